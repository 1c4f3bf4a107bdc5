// Package tool defines invokable tool descriptors, the process-wide tool
// catalogue, and the per-session registry the agent loop dispatches
// against.
package tool

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/drover-ai/drover/pkg/events"
)

// TerminateToolName is the reserved name of the terminal tool. Every
// registry snapshot the loop runs against must contain it.
const TerminateToolName = "terminate"

// ActionContext is the per-invocation envelope handed to every tool
// function. It lives for a single LLM turn and must not be retained.
type ActionContext struct {
	Principal   string
	BearerToken string
	SessionID   string
	AgentID     string
	MessageID   string

	// Emitter receives out-of-band progress events. May be nil.
	Emitter events.Emitter

	// Cancelled reports whether the session was asked to stop. Checked by
	// the loop before each LLM call and tool invocation; long-running
	// tools may poll it themselves. May be nil (never cancelled).
	Cancelled func() bool
}

// IsCancelled is a nil-safe read of the cancellation flag.
func (ac *ActionContext) IsCancelled() bool {
	return ac != nil && ac.Cancelled != nil && ac.Cancelled()
}

// RawFunc is the underlying callable of a tool. Args arrive as decoded
// JSON. Framework-private arguments have names starting with "_" and are
// excluded from the published schema and from emitted events.
type RawFunc func(ctx context.Context, ac *ActionContext, args map[string]any) (any, error)

// Descriptor is the metadata and callable for one tool. Descriptors are
// values shared read-only between registries; registration never mutates
// a published descriptor.
type Descriptor struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object describing the args.
	Parameters map[string]any
	// Output optionally describes the result shape.
	Output map[string]any
	// Terminal marks the tool that ends the session.
	Terminal bool
	Tags     []string

	// Optional status line templates emitted as agent/status events around
	// the call. "{param}" placeholders expand from the sanitized args;
	// "{result}" and "{error}" are available in the end and error lines.
	Status       string
	ResultStatus string
	ErrorStatus  string

	Func RawFunc
}

// HasTag reports whether the descriptor carries the given tag.
func (d Descriptor) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// PublicParameters returns the parameter schema with framework-private
// ("_"-prefixed) properties removed. This is what the LLM sees.
func (d Descriptor) PublicParameters() map[string]any {
	return hidePrivateParams(d.Parameters)
}

// Invoke runs the tool with full lifecycle eventing:
//
//	tools/<name>/start   sanitized args
//	tools/<name>/end     sanitized args plus result
//	tools/<name>/error   sanitized args plus exception (and traceback on panic)
//
// Errors and panics from the raw callable DO NOT propagate: the error
// event is emitted and Invoke returns nil. The loop observes a
// successful-but-nil result; the event stream is the failure signal.
// Emitter failures are swallowed independently of the call itself.
func (d Descriptor) Invoke(ctx context.Context, ac *ActionContext, args map[string]any) (result any) {
	var emitter events.Emitter
	if ac != nil {
		emitter = ac.Emitter
	}

	clean := sanitizeArgs(args)

	events.SafeEmit(emitter, events.ToolStart(d.Name), clean)
	if d.Status != "" {
		events.SafeEmit(emitter, events.StatusEvent,
			map[string]any{"status": expandTemplate(d.Status, clean)})
	}

	defer func() {
		if r := recover(); r != nil {
			payload := withExtra(clean, map[string]any{
				"exception": fmt.Sprintf("panic: %v", r),
				"traceback": string(debug.Stack()),
			})
			events.SafeEmit(emitter, events.ToolError(d.Name), payload)
			if d.ErrorStatus != "" {
				events.SafeEmit(emitter, events.StatusEvent, map[string]any{
					"status": expandTemplate(d.ErrorStatus, withExtra(clean, map[string]any{
						"error": fmt.Sprintf("%v", r),
					})),
				})
			}
			result = nil
		}
	}()

	out, err := d.Func(ctx, ac, args)
	if err != nil {
		payload := withExtra(clean, map[string]any{"exception": err.Error()})
		events.SafeEmit(emitter, events.ToolError(d.Name), payload)
		if d.ErrorStatus != "" {
			events.SafeEmit(emitter, events.StatusEvent, map[string]any{
				"status": expandTemplate(d.ErrorStatus, withExtra(clean, map[string]any{
					"error": err.Error(),
				})),
			})
		}
		return nil
	}

	events.SafeEmit(emitter, events.ToolEnd(d.Name), withExtra(clean, map[string]any{"result": out}))
	if d.ResultStatus != "" {
		events.SafeEmit(emitter, events.StatusEvent, map[string]any{
			"status": expandTemplate(d.ResultStatus, withExtra(clean, map[string]any{
				"result": fmt.Sprintf("%v", out),
			})),
		})
	}

	return out
}

// sanitizeArgs copies args, dropping framework-private keys so they never
// reach the event stream.
func sanitizeArgs(args map[string]any) map[string]any {
	clean := make(map[string]any, len(args))
	for k, v := range args {
		if strings.HasPrefix(k, "_") {
			continue
		}
		clean[k] = v
	}
	return clean
}

// withExtra returns a copy of base with extra keys merged on top.
func withExtra(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// expandTemplate substitutes "{key}" placeholders with stringified values.
// Unknown placeholders are left in place.
func expandTemplate(tmpl string, values map[string]any) string {
	out := tmpl
	for k, v := range values {
		out = strings.ReplaceAll(out, "{"+k+"}", fmt.Sprintf("%v", v))
	}
	return out
}

// hidePrivateParams strips "_"-prefixed properties from a JSON-schema
// object, including their entries in "required".
func hidePrivateParams(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}

	out := make(map[string]any, len(schema))
	for k, v := range schema {
		out[k] = v
	}

	if props, ok := out["properties"].(map[string]any); ok {
		cleanProps := make(map[string]any, len(props))
		for name, def := range props {
			if strings.HasPrefix(name, "_") {
				continue
			}
			cleanProps[name] = def
		}
		out["properties"] = cleanProps
	}

	if required, ok := out["required"].([]string); ok {
		out["required"] = dropPrivateNames(required)
	} else if required, ok := out["required"].([]any); ok {
		keep := make([]any, 0, len(required))
		for _, r := range required {
			if s, ok := r.(string); ok && strings.HasPrefix(s, "_") {
				continue
			}
			keep = append(keep, r)
		}
		out["required"] = keep
	}

	return out
}

func dropPrivateNames(names []string) []string {
	keep := make([]string, 0, len(names))
	for _, n := range names {
		if strings.HasPrefix(n, "_") {
			continue
		}
		keep = append(keep, n)
	}
	return keep
}
