// Package runtime assembles a deployment from its configuration: model
// providers, the tool catalogue and its external sources, the session
// store, and per-agent definitions. It implements the server's Runner
// interface so the HTTP surface stays decoupled from construction.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/drover-ai/drover/pkg/config"
	"github.com/drover-ai/drover/pkg/language"
	"github.com/drover-ai/drover/pkg/llm"
	"github.com/drover-ai/drover/pkg/logger"
	"github.com/drover-ai/drover/pkg/mcp"
	"github.com/drover-ai/drover/pkg/observability"
	"github.com/drover-ai/drover/pkg/plugin"
	"github.com/drover-ai/drover/pkg/prompt"
	"github.com/drover-ai/drover/pkg/remoteops"
	"github.com/drover-ai/drover/pkg/server"
	"github.com/drover-ai/drover/pkg/session"
	"github.com/drover-ai/drover/pkg/tool"
	"github.com/drover-ai/drover/pkg/tool/buildertools"
)

// Runtime is the composition root for one configured deployment.
type Runtime struct {
	cfg       *config.Config
	providers *llm.Registry
	catalogue *tool.Catalogue
	store     session.Store
	obs       *observability.Manager

	remote  *remoteops.Toolset
	mcps    map[string]*mcp.Toolset
	plugins *plugin.Host

	agents map[string]*agentDef

	closeLog func()
}

// agentDef is the static definition a session agent is built from.
type agentDef struct {
	name      string
	cfg       config.AgentConfig
	provider  llm.Provider
	relevance llm.Provider // nil uses the agent's own model
	lang      language.Language
	goals     []prompt.Goal
}

// New builds the runtime: logging, observability, model providers, the
// tool catalogue with its external sources, the session store, and one
// definition per configured agent. A failure mid-build releases
// everything already constructed.
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if len(cfg.Agents) == 0 {
		return nil, fmt.Errorf("no agents configured")
	}

	r := &Runtime{
		cfg:  cfg,
		mcps: make(map[string]*mcp.Toolset),
	}
	fail := func(err error) (*Runtime, error) {
		if cerr := r.Shutdown(context.Background()); cerr != nil {
			slog.Warn("Cleanup after failed initialization", "error", cerr)
		}
		return nil, err
	}

	if err := r.initLogging(); err != nil {
		return nil, err
	}

	r.obs = observability.NewManager(cfg.Observability)
	if err := r.obs.Initialize(ctx); err != nil {
		return fail(fmt.Errorf("observability: %w", err))
	}

	providers, err := llm.NewRegistry(cfg.LLMs)
	if err != nil {
		return fail(err)
	}
	r.providers = providers

	if err := r.initCatalogue(ctx); err != nil {
		return fail(err)
	}

	if cfg.RemoteOps != nil {
		remote, err := remoteops.NewToolset(*cfg.RemoteOps)
		if err != nil {
			return fail(fmt.Errorf("remote_ops: %w", err))
		}
		r.remote = remote
	}

	store, err := session.New(cfg.Session)
	if err != nil {
		return fail(fmt.Errorf("session store: %w", err))
	}
	r.store = store

	if err := r.initAgents(); err != nil {
		return fail(err)
	}

	slog.Info("Runtime ready",
		"agents", len(r.agents),
		"tools", r.catalogue.Len(),
		"llms", len(cfg.LLMs))
	return r, nil
}

// initLogging configures the process logger from config. File outputs
// stay open until Shutdown.
func (r *Runtime) initLogging() error {
	lc := r.cfg.Logging

	level, err := logger.ParseLevel(lc.Level)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	out := os.Stderr
	switch lc.Output {
	case "", "stderr":
	case "stdout":
		out = os.Stdout
	default:
		f, closeFn, err := logger.OpenLogFile(lc.Output)
		if err != nil {
			return fmt.Errorf("logging: %w", err)
		}
		out = f
		r.closeLog = closeFn
	}

	logger.Init(level, out, lc.Format)
	return nil
}

// initCatalogue seeds the built-in tools and registers every external
// source. An MCP server that is down at startup logs a warning and
// contributes nothing; a bad plugin path fails the build.
func (r *Runtime) initCatalogue(ctx context.Context) error {
	cat := tool.NewCatalogue()

	if err := cat.Register(buildertools.Terminate()); err != nil {
		return err
	}
	clock, err := buildertools.CurrentTime()
	if err != nil {
		return fmt.Errorf("current_time tool: %w", err)
	}
	if err := cat.Register(clock); err != nil {
		return err
	}
	todo, err := buildertools.NewTodoStore().Tool()
	if err != nil {
		return fmt.Errorf("todo_write tool: %w", err)
	}
	if err := cat.Register(todo); err != nil {
		return err
	}

	for _, name := range sortedKeys(r.cfg.MCP) {
		ts, err := mcp.NewToolset(r.cfg.MCP[name])
		if err != nil {
			return fmt.Errorf("mcp %q: %w", name, err)
		}
		r.mcps[name] = ts

		descs, err := ts.Descriptors(ctx)
		if err != nil {
			slog.Warn("MCP server unavailable, continuing without its tools",
				"server", name, "error", err)
			continue
		}
		for _, d := range descs {
			if err := cat.Register(d); err != nil {
				return fmt.Errorf("mcp %q tool: %w", name, err)
			}
		}
	}

	if paths := r.cfg.Plugins.Paths; len(paths) > 0 {
		host := plugin.NewHost()
		if _, err := host.LoadAll(paths); err != nil {
			host.Close()
			return fmt.Errorf("plugins: %w", err)
		}
		r.plugins = host
		for _, d := range host.Descriptors() {
			if err := cat.Register(d); err != nil {
				return fmt.Errorf("plugin tool: %w", err)
			}
		}
	}

	r.catalogue = cat
	return nil
}

// initAgents resolves each agent definition against the provider
// registry and the language variants. The config tree is already
// validated, so a failure here is a real defect and fails the build.
func (r *Runtime) initAgents() error {
	r.agents = make(map[string]*agentDef, len(r.cfg.Agents))

	for name, acfg := range r.cfg.Agents {
		provider, err := r.providers.Get(acfg.LLM)
		if err != nil {
			return fmt.Errorf("agent %q: %w", name, err)
		}

		lang, err := language.New(language.Config{
			Variant:            acfg.Language,
			FeedbackStyle:      language.FeedbackStyle(acfg.FeedbackStyle),
			AllowNonToolOutput: *acfg.AllowNonToolOutput,
		})
		if err != nil {
			return fmt.Errorf("agent %q: %w", name, err)
		}

		def := &agentDef{
			name:     name,
			cfg:      acfg,
			provider: provider,
			lang:     lang,
			goals:    goalsOf(acfg.Goals),
		}
		if acfg.Relevance.LLM != "" {
			rp, err := r.providers.Get(acfg.Relevance.LLM)
			if err != nil {
				return fmt.Errorf("agent %q relevance: %w", name, err)
			}
			def.relevance = rp
		}
		r.agents[name] = def
	}
	return nil
}

// Config returns the runtime's configuration.
func (r *Runtime) Config() *config.Config { return r.cfg }

// Store returns the session store.
func (r *Runtime) Store() session.Store { return r.store }

// Catalogue returns the process-wide tool catalogue.
func (r *Runtime) Catalogue() *tool.Catalogue { return r.catalogue }

// Providers returns the model provider registry.
func (r *Runtime) Providers() *llm.Registry { return r.providers }

// Server builds the HTTP surface over this runtime.
func (r *Runtime) Server() (*server.Server, error) {
	return server.New(r.cfg.Server, r, r.store)
}

// Shutdown releases everything the runtime owns. Safe on a partially
// initialized runtime.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("session store: %w", err))
		}
	}
	for name, ts := range r.mcps {
		if err := ts.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mcp %q: %w", name, err))
		}
	}
	if r.plugins != nil {
		r.plugins.Close()
	}
	if r.providers != nil {
		if err := r.providers.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.obs != nil {
		if err := r.obs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("observability: %w", err))
		}
	}
	if r.closeLog != nil {
		r.closeLog()
		r.closeLog = nil
	}

	return errors.Join(errs...)
}

func goalsOf(cfgs []config.GoalConfig) []prompt.Goal {
	goals := make([]prompt.Goal, 0, len(cfgs))
	for _, g := range cfgs {
		goals = append(goals, prompt.Goal{
			Name:        g.Name,
			Description: g.Description,
			Priority:    g.Priority,
		})
	}
	return goals
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
