// Package agent drives one session's think-act loop: construct a prompt,
// call the model, parse the reply into an action, dispatch the tool, and
// append what happened to memory, until a terminal tool ends the session.
//
// An Agent owns its memory and registry for the lifetime of one session.
// Concurrent sessions run on separate Agent instances; nothing here is
// safe for shared use.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drover-ai/drover/pkg/events"
	"github.com/drover-ai/drover/pkg/language"
	"github.com/drover-ai/drover/pkg/llm"
	"github.com/drover-ai/drover/pkg/memory"
	"github.com/drover-ai/drover/pkg/observability"
	"github.com/drover-ai/drover/pkg/prompt"
	"github.com/drover-ai/drover/pkg/relevance"
	"github.com/drover-ai/drover/pkg/session"
	"github.com/drover-ai/drover/pkg/tool"
)

// ErrCancelled reports a cooperative stop request delivered through the
// action context.
var ErrCancelled = errors.New("session cancelled")

// Outcome is what a finished session returns.
type Outcome struct {
	// Result is the terminal tool's return value.
	Result any
	// Iterations is how many loop turns ran.
	Iterations int
	// MemoryLen is the entry count at session end.
	MemoryLen int
}

// RelevanceOptions configures the tool filter pass run before the loop.
type RelevanceOptions struct {
	Enabled bool
	// MaxTools caps the kept tool count; zero uses the filter default.
	MaxTools int
	// Provider scores relevance. Nil uses the agent's own model.
	Provider llm.Provider
}

// Options carries the optional collaborators and bounds for New.
type Options struct {
	Goals       []prompt.Goal
	Environment map[string]string

	// MaxParseRetries bounds corrective feedback rounds per iteration.
	// Zero means the first parse failure ends the session.
	MaxParseRetries int

	// MaxIterations bounds loop turns per session; zero is unbounded.
	MaxIterations int

	Relevance RelevanceOptions

	// History seeds memory when resuming a stored session.
	History []memory.Entry

	// Store, together with SessionID, receives a mirror of every appended
	// entry. Mirror failures are logged, never fatal.
	Store     session.Store
	SessionID string
}

// Agent runs the loop for one session.
type Agent struct {
	name     string
	provider llm.Provider
	language language.Language
	registry *tool.Registry

	goals       []prompt.Goal
	environment map[string]string

	maxParseRetries int
	maxIterations   int
	relevance       RelevanceOptions

	store     session.Store
	sessionID string

	memory *memory.Log
}

// New builds a session agent. The registry must contain the terminal
// tool; a missing terminator is a construction failure, never a loop
// failure.
func New(name string, provider llm.Provider, lang language.Language, registry *tool.Registry, opts Options) (*Agent, error) {
	if provider == nil {
		return nil, fmt.Errorf("agent %q: llm provider is required", name)
	}
	if lang == nil {
		return nil, fmt.Errorf("agent %q: language is required", name)
	}
	if registry == nil || !registry.HasTerminator() {
		return nil, fmt.Errorf("agent %q: %w", name, tool.ErrMissingTerminator)
	}
	return &Agent{
		name:            name,
		provider:        provider,
		language:        lang,
		registry:        registry,
		goals:           opts.Goals,
		environment:     opts.Environment,
		maxParseRetries: max(opts.MaxParseRetries, 0),
		maxIterations:   max(opts.MaxIterations, 0),
		relevance:       opts.Relevance,
		store:           opts.Store,
		sessionID:       opts.SessionID,
		memory:          memory.Seeded(opts.History...),
	}, nil
}

// Name returns the agent's configured name.
func (a *Agent) Name() string { return a.name }

// Goals returns the agent's goal list.
func (a *Agent) Goals() []prompt.Goal { return a.goals }

// Registry exposes the session's tool registry.
func (a *Agent) Registry() *tool.Registry { return a.registry }

// Memory returns a copy of the session log.
func (a *Agent) Memory() []memory.Entry { return a.memory.Entries() }

// Run executes the loop until a terminal tool fires, the iteration bound
// is hit, cancellation is requested, or the model transport fails. Parse
// failures never surface here: exhausted retries resolve into a
// synthesized terminate that still flows through the terminal tool.
func (a *Agent) Run(ctx context.Context, ac *tool.ActionContext, task string) (Outcome, error) {
	start := time.Now()
	ctx, span := observability.GetTracer("drover/agent").Start(ctx, "agent.run",
		trace.WithAttributes(attribute.String("agent.name", a.name)))
	defer span.End()

	if task != "" {
		a.append(ctx, memory.Entry{Type: memory.EntryUser, Content: task})
	}

	a.filterTools(ctx, task)

	iterations := 0
	for a.maxIterations == 0 || iterations < a.maxIterations {
		iterations++
		events.SafeEmit(emitterOf(ac), events.StatusEvent,
			map[string]any{"status": fmt.Sprintf("Iteration %d", iterations)})

		action, desc, err := a.nextAction(ctx, ac)
		if err != nil {
			a.end(ctx, span, start, iterations, err)
			return Outcome{Iterations: iterations, MemoryLen: a.memory.Len()}, err
		}

		if err := a.cancelled(ctx, ac); err != nil {
			a.end(ctx, span, start, iterations, err)
			return Outcome{Iterations: iterations, MemoryLen: a.memory.Len()}, err
		}

		result := a.runAction(ctx, ac, action, desc)

		if desc.Terminal {
			a.end(ctx, span, start, iterations, nil)
			return Outcome{Result: result, Iterations: iterations, MemoryLen: a.memory.Len()}, nil
		}
	}

	// Iteration bound hit: close the session through the terminal tool so
	// the caller still receives a terminate result.
	action := terminateAction(fmt.Sprintf("Iteration limit (%d) reached before the task completed.", a.maxIterations))
	desc, err := a.registry.Get(tool.TerminateToolName)
	if err != nil {
		a.end(ctx, span, start, iterations, err)
		return Outcome{Iterations: iterations, MemoryLen: a.memory.Len()}, err
	}
	result := a.runAction(ctx, ac, action, desc)
	a.end(ctx, span, start, iterations, nil)
	return Outcome{Result: result, Iterations: iterations, MemoryLen: a.memory.Len()}, nil
}

// nextAction drives the prompt/parse protocol for one iteration: at most
// 1 + maxParseRetries model calls, with corrective adaptation between
// them for parse failures and unknown tools. Exhaustion synthesizes a
// terminate action recording the failure.
func (a *Agent) nextAction(ctx context.Context, ac *tool.ActionContext) (language.Action, tool.Descriptor, error) {
	p := a.language.Construct(a.goals, a.memory.Entries(), a.environment, a.registry.List())
	retries := a.maxParseRetries

	for {
		if err := a.cancelled(ctx, ac); err != nil {
			return language.Action{}, tool.Descriptor{}, err
		}

		reply, err := a.provider.Generate(ctx, p, llm.Options{})
		if err != nil {
			return language.Action{}, tool.Descriptor{}, fmt.Errorf("llm call: %w", err)
		}
		a.append(ctx, promptEntry(p))

		action, perr := a.language.Parse(reply.Text)
		if perr != nil {
			if retries > 0 {
				a.recordParseRetry(ctx)
				slog.Debug("Reply parse failed, adapting prompt",
					"agent", a.name, "retries_left", retries, "error", perr)
				p = a.language.Adapt(p, reply.Text, perr, retries)
				retries--
				continue
			}
			return a.giveUp(ctx, perr)
		}

		desc, derr := a.registry.Get(action.Tool)
		if derr != nil {
			if retries > 0 {
				a.recordParseRetry(ctx)
				slog.Debug("Unknown tool in reply, adapting prompt",
					"agent", a.name, "tool", action.Tool, "retries_left", retries)
				p = a.language.Adapt(p, reply.Text, derr, retries)
				retries--
				continue
			}
			return a.giveUp(ctx, derr)
		}

		return action, desc, nil
	}
}

// giveUp records retry exhaustion in memory and hands back a synthesized
// terminate so the session still ends through the terminal tool.
func (a *Agent) giveUp(ctx context.Context, cause error) (language.Action, tool.Descriptor, error) {
	a.append(ctx, memory.Entry{
		Type:    memory.EntryAssistant,
		Content: fmt.Sprintf("Could not produce a valid action: %v", cause),
	})

	desc, err := a.registry.Get(tool.TerminateToolName)
	if err != nil {
		return language.Action{}, tool.Descriptor{}, err
	}
	action := language.Action{
		Tool: tool.TerminateToolName,
		Args: map[string]any{
			"message": fmt.Sprintf("Session ended: no valid action after %d attempts (%v)", a.maxParseRetries+1, cause),
			"error":   cause.Error(),
		},
	}
	return action, desc, nil
}

// runAction invokes the tool and appends the intent and result entries.
func (a *Agent) runAction(ctx context.Context, ac *tool.ActionContext, action language.Action, desc tool.Descriptor) any {
	ctx, span := observability.GetTracer("drover/agent").Start(ctx, "tool.invoke",
		trace.WithAttributes(attribute.String("tool.name", desc.Name)))
	defer span.End()

	started := time.Now()
	result := desc.Invoke(ctx, ac, action.Args)
	if m := observability.GetGlobalMetrics(); m != nil {
		m.RecordToolInvocation(ctx, desc.Name, time.Since(started), nil)
	}

	a.append(ctx, memory.Entry{
		Type:    memory.EntryAssistant,
		Payload: map[string]any{"tool": action.Tool, "args": action.Args},
	})
	a.append(ctx, memory.Entry{Type: memory.EntryEnvironment, Content: resultText(result)})
	return result
}

// filterTools runs the optional relevance pass. The filter never reduces
// correctness: on any failure it keeps the full registry.
func (a *Agent) filterTools(ctx context.Context, task string) {
	if !a.relevance.Enabled {
		return
	}
	provider := a.relevance.Provider
	if provider == nil {
		provider = a.provider
	}
	input := task
	if input == "" {
		input = relevance.ConversationText(prompt.ProjectMemory(a.memory.Entries()))
	}
	relevance.Filter(ctx, provider, a.registry, input, a.goals, relevance.Options{
		MaxTools: a.relevance.MaxTools,
		Agent:    a.name,
	})
}

// append adds an entry to memory and mirrors it to the session store when
// one is attached.
func (a *Agent) append(ctx context.Context, e memory.Entry) {
	a.memory.Append(e)
	if a.store == nil || a.sessionID == "" {
		return
	}
	if err := a.store.AppendEntry(ctx, a.sessionID, e); err != nil {
		slog.Warn("Failed to mirror entry to session store",
			"agent", a.name, "session", a.sessionID, "error", err)
	}
}

func (a *Agent) cancelled(ctx context.Context, ac *tool.ActionContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ac.IsCancelled() {
		return ErrCancelled
	}
	return nil
}

func (a *Agent) end(ctx context.Context, span trace.Span, start time.Time, iterations int, err error) {
	if m := observability.GetGlobalMetrics(); m != nil {
		m.RecordSession(ctx, a.name, time.Since(start), iterations, err)
	}
	span.SetAttributes(attribute.Int("agent.iterations", iterations))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func (a *Agent) recordParseRetry(ctx context.Context) {
	if m := observability.GetGlobalMetrics(); m != nil {
		m.RecordParseRetry(ctx, a.name)
	}
}

// promptEntry records what was sent to the model. Prompt entries are
// provenance only; projection drops them from later prompts.
func promptEntry(p prompt.Prompt) memory.Entry {
	data, err := json.Marshal(p.Messages)
	if err != nil {
		return memory.Entry{Type: memory.EntryPrompt, Content: p.Transcript()}
	}
	return memory.Entry{Type: memory.EntryPrompt, Content: string(data)}
}

// resultText serialises a tool result for the environment entry. Strings
// pass through; everything else, nil included, renders as JSON.
func resultText(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}

func terminateAction(message string) language.Action {
	return language.Action{
		Tool: tool.TerminateToolName,
		Args: map[string]any{"message": message},
	}
}

func emitterOf(ac *tool.ActionContext) events.Emitter {
	if ac == nil {
		return nil
	}
	return ac.Emitter
}
