package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/drover-ai/drover/pkg/agent"
	"github.com/drover-ai/drover/pkg/auth"
	"github.com/drover-ai/drover/pkg/events"
	"github.com/drover-ai/drover/pkg/memory"
	"github.com/drover-ai/drover/pkg/server"
	"github.com/drover-ai/drover/pkg/tool"
)

var _ server.Runner = (*Runtime)(nil)

// AgentNames returns the configured agent names, sorted.
func (r *Runtime) AgentNames() []string {
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AgentCard describes one agent for discovery. Tool cards reflect the
// catalogue selection; remote operations are listed per principal at run
// time and do not appear here.
func (r *Runtime) AgentCard(name string) (server.AgentCard, error) {
	def, ok := r.agents[name]
	if !ok {
		return server.AgentCard{}, fmt.Errorf("unknown agent: %s", name)
	}

	reg := r.sessionRegistry(def)
	tools := make([]server.ToolCard, 0, reg.Len())
	for _, d := range reg.List() {
		tools = append(tools, server.ToolCard{Name: d.Name, Description: d.Description})
	}

	return server.AgentCard{
		Name:     name,
		Language: def.lang.Name(),
		Goals:    def.goals,
		Tools:    tools,
	}, nil
}

// RunSession resolves the session, builds a one-session agent over a
// fresh registry, and drives the loop to its outcome.
func (r *Runtime) RunSession(ctx context.Context, spec server.RunSpec) (server.RunResult, error) {
	def, ok := r.agents[spec.Agent]
	if !ok {
		return server.RunResult{}, fmt.Errorf("unknown agent: %s", spec.Agent)
	}

	var history []memory.Entry
	sessionID := spec.SessionID
	if sessionID == "" {
		sess, err := r.store.Create(ctx, spec.Agent, spec.Principal.Subject)
		if err != nil {
			return server.RunResult{}, fmt.Errorf("create session: %w", err)
		}
		sessionID = sess.ID
	} else {
		if _, err := r.store.Get(ctx, sessionID); err != nil {
			return server.RunResult{}, fmt.Errorf("session %s: %w", sessionID, err)
		}
		entries, err := r.store.Entries(ctx, sessionID)
		if err != nil {
			return server.RunResult{}, fmt.Errorf("session %s history: %w", sessionID, err)
		}
		history = entries
	}

	ac := &tool.ActionContext{
		Principal:   spec.Principal.Subject,
		BearerToken: spec.Bearer,
		SessionID:   sessionID,
		AgentID:     spec.Agent,
		MessageID:   uuid.NewString(),
		Emitter:     spec.Emitter,
		Cancelled:   func() bool { return ctx.Err() != nil },
	}

	reg := r.sessionRegistry(def)
	if r.remote != nil {
		n, err := r.remote.Register(ctx, ac, reg)
		if err != nil {
			return server.RunResult{}, fmt.Errorf("remote operations: %w", err)
		}
		slog.Debug("Registered remote operations", "agent", spec.Agent, "count", n)
	}

	ag, err := agent.New(def.name, def.provider, def.lang, reg, agent.Options{
		Goals:           def.goals,
		Environment:     def.cfg.Environment,
		MaxParseRetries: *def.cfg.MaxParseRetries,
		MaxIterations:   *def.cfg.MaxIterations,
		Relevance: agent.RelevanceOptions{
			Enabled:  def.cfg.Relevance.Enabled,
			MaxTools: def.cfg.Relevance.MaxTools,
			Provider: def.relevance,
		},
		History:   history,
		Store:     r.store,
		SessionID: sessionID,
	})
	if err != nil {
		return server.RunResult{}, err
	}

	outcome, err := ag.Run(ctx, ac, spec.Task)
	if err != nil {
		return server.RunResult{SessionID: sessionID, Iterations: outcome.Iterations}, err
	}
	return server.RunResult{
		SessionID:  sessionID,
		Result:     outcome.Result,
		Iterations: outcome.Iterations,
	}, nil
}

// TaskOptions parameterize a local RunTask call.
type TaskOptions struct {
	// SessionID continues a stored session instead of creating one.
	SessionID string

	// Emitter receives the run's progress events. May be nil.
	Emitter events.Emitter
}

// RunTask runs one task as the anonymous principal. This is the CLI and
// embedding path; the HTTP surface goes through RunSession directly.
func (r *Runtime) RunTask(ctx context.Context, agentName, task string, opts TaskOptions) (server.RunResult, error) {
	return r.RunSession(ctx, server.RunSpec{
		Agent:     agentName,
		SessionID: opts.SessionID,
		Task:      task,
		Principal: auth.Anonymous(),
		Emitter:   opts.Emitter,
	})
}

// Agent builds a detached single-session agent from the catalogue
// selection, without store mirroring or remote operations. Callers
// drive it with their own ActionContext.
func (r *Runtime) Agent(name string) (*agent.Agent, error) {
	def, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("unknown agent: %s", name)
	}
	return agent.New(def.name, def.provider, def.lang, r.sessionRegistry(def), agent.Options{
		Goals:           def.goals,
		Environment:     def.cfg.Environment,
		MaxParseRetries: *def.cfg.MaxParseRetries,
		MaxIterations:   *def.cfg.MaxIterations,
		Relevance: agent.RelevanceOptions{
			Enabled:  def.cfg.Relevance.Enabled,
			MaxTools: def.cfg.Relevance.MaxTools,
			Provider: def.relevance,
		},
	})
}

// sessionRegistry builds a fresh registry for one session from the
// agent's catalogue selection. The terminator is always present.
func (r *Runtime) sessionRegistry(def *agentDef) *tool.Registry {
	reg := tool.NewRegistry(r.catalogue, def.cfg.Tools.Tags, def.cfg.Tools.Names)
	if err := reg.RegisterTerminate(); err != nil {
		// Unreachable with a catalogue seeded by initCatalogue; agent.New
		// re-checks and fails the run if it ever happens.
		slog.Error("Catalogue has no terminate tool", "agent", def.name)
	}
	return reg
}
