// Package events carries progress notifications out of a running agent
// session: tool lifecycle events and free-form status lines.
//
// Emitters are fire-and-forget. A failing or slow sink must never affect
// the correctness of the loop that emits into it; SafeEmit and the Channel
// emitter's drop policy enforce that.
package events

import (
	"fmt"
	"log/slog"
)

// Event names follow the pattern tools/<tool>/<phase> plus agent/status.
const (
	// StatusEvent carries a formatted progress line in payload["status"].
	StatusEvent = "agent/status"

	phaseStart = "start"
	phaseEnd   = "end"
	phaseError = "error"
)

// ToolStart returns the event name for a tool invocation beginning.
func ToolStart(tool string) string { return toolEvent(tool, phaseStart) }

// ToolEnd returns the event name for a tool invocation completing.
func ToolEnd(tool string) string { return toolEvent(tool, phaseEnd) }

// ToolError returns the event name for a tool invocation failing.
func ToolError(tool string) string { return toolEvent(tool, phaseError) }

func toolEvent(tool, phase string) string {
	return fmt.Sprintf("tools/%s/%s", tool, phase)
}

// Event is one emitted notification.
type Event struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Emitter is the out-of-band sink attached to each action context.
type Emitter interface {
	Emit(name string, payload map[string]any)
}

// SafeEmit forwards to the emitter, swallowing nil emitters and sink
// panics. Loops and tool wrappers emit through this.
func SafeEmit(e Emitter, name string, payload map[string]any) {
	if e == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("Event sink panicked", "event", name, "panic", r)
		}
	}()
	e.Emit(name, payload)
}

// Func adapts a plain function to the Emitter interface.
type Func func(name string, payload map[string]any)

func (f Func) Emit(name string, payload map[string]any) {
	f(name, payload)
}

// Noop discards every event.
type Noop struct{}

func (Noop) Emit(string, map[string]any) {}

// Multi fans an event out to several sinks in order.
type Multi []Emitter

func (m Multi) Emit(name string, payload map[string]any) {
	for _, e := range m {
		SafeEmit(e, name, payload)
	}
}

// Logger writes events to slog at debug level.
type Logger struct{}

func (Logger) Emit(name string, payload map[string]any) {
	slog.Debug("agent event", "event", name, "payload", payload)
}

// Channel buffers events for an out-of-band consumer (SSE stream, CLI
// display). When the buffer is full the newest event is dropped so the
// emitting loop never blocks.
type Channel struct {
	ch      chan Event
	dropped int
}

// NewChannel creates a channel emitter with the given buffer size.
// Sizes below 1 are raised to 64.
func NewChannel(size int) *Channel {
	if size < 1 {
		size = 64
	}
	return &Channel{ch: make(chan Event, size)}
}

func (c *Channel) Emit(name string, payload map[string]any) {
	select {
	case c.ch <- Event{Name: name, Payload: payload}:
	default:
		c.dropped++
		slog.Debug("Event buffer full, dropping event", "event", name)
	}
}

// Events exposes the receive side for the consumer.
func (c *Channel) Events() <-chan Event {
	return c.ch
}

// Dropped reports how many events were discarded due to a full buffer.
func (c *Channel) Dropped() int {
	return c.dropped
}

// Close closes the receive side. Call only after the producing session
// has finished.
func (c *Channel) Close() {
	close(c.ch)
}
