// Package llm provides clients for the model endpoints an agent can talk
// to: OpenAI-compatible chat completions, Anthropic messages, and Google
// Gemini, behind one string-in/string-out Generate contract.
//
// Providers with native tool calling serialise a structured call back to
// the canonical {"tool":…,"args":{…}} JSON string, so callers parse one
// reply shape regardless of provider.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/drover-ai/drover/pkg/prompt"
)

// Reply is one model response.
type Reply struct {
	// Text of the reply. A native tool call arrives here serialised as a
	// {"tool":…,"args":{…}} JSON object.
	Text string

	// Token usage as reported by the provider. Zero when the provider
	// omits usage (some streamed responses).
	InputTokens  int
	OutputTokens int

	// StopReason as reported by the provider ("stop", "tool_use", …).
	StopReason string
}

// Options tune a single request.
type Options struct {
	// Stream asks for incremental delivery. Generate still returns the
	// complete reply; chunks are forwarded to OnChunk as they arrive.
	// Providers without native streaming deliver one chunk.
	Stream bool

	// OnChunk receives text fragments during a streamed request.
	OnChunk func(text string)
}

// Provider is one model endpoint.
type Provider interface {
	// Generate submits the prompt and returns the model reply.
	Generate(ctx context.Context, p prompt.Prompt, opts Options) (Reply, error)

	// Model returns the configured model identifier.
	Model() string

	// Close releases provider resources.
	Close() error
}

// nativeCall is the wire shape a structured tool call serialises to.
type nativeCall struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// serializeToolCall renders a native tool call as the canonical JSON
// string languages parse.
func serializeToolCall(name string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(nativeCall{Tool: name, Args: args})
	if err != nil {
		return "", fmt.Errorf("failed to serialise tool call %s: %w", name, err)
	}
	return string(data), nil
}
