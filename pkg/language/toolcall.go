package language

import (
	"encoding/json"
	"strings"

	"github.com/drover-ai/drover/pkg/memory"
	"github.com/drover-ai/drover/pkg/prompt"
	"github.com/drover-ai/drover/pkg/tool"
)

// ExitSentinel is the escape hatch for models that want to stop without
// producing a tool call when plain-text output is disallowed.
const ExitSentinel = "EXIT_AGENT_LOOP"

// EarlyTerminationMessage marks outcomes produced via the exit sentinel.
const EarlyTerminationMessage = "Agent Loop Terminated Early"

// ToolCall rides the provider's native tool-calling support: the prompt
// carries a structured tool schema list instead of an inline enumeration,
// and the provider guarantees (mostly) well-formed {tool, args} replies.
type ToolCall struct {
	allowNonToolOutput bool
}

// NewToolCall creates the native tool-calling variant. With
// allowNonToolOutput set, plain-text replies become the final answer
// instead of a parse failure.
func NewToolCall(allowNonToolOutput bool) *ToolCall {
	return &ToolCall{allowNonToolOutput: allowNonToolOutput}
}

func (l *ToolCall) Name() string { return VariantToolCall }

// Construct renders goals, environment, and memory, and attaches the tool
// schemas on the side for the provider to serialize natively.
func (l *ToolCall) Construct(goals []prompt.Goal, entries []memory.Entry, environment map[string]string, tools []tool.Descriptor) prompt.Prompt {
	return corePrompt(goals, environment).
		Append(prompt.ProjectMemory(entries)...).
		WithTools(toolSchemas(tools))
}

// Parse decodes the reply as a {tool, args} object. Replies with no tool
// call in them fall through a chain: synthesize a final answer when
// allowNonToolOutput is set, honor the exit sentinel, otherwise fail.
func (l *ToolCall) Parse(reply string) (Action, error) {
	var decoded Action
	if err := json.Unmarshal([]byte(reply), &decoded); err == nil && decoded.Tool != "" {
		if decoded.Args == nil {
			decoded.Args = map[string]any{}
		}
		return decoded, nil
	}

	if l.allowNonToolOutput {
		return terminateAction(reply), nil
	}

	if strings.Contains(reply, ExitSentinel) {
		message := strings.TrimSpace(strings.ReplaceAll(reply, ExitSentinel, ""))
		return Action{
			Tool: tool.TerminateToolName,
			Args: map[string]any{
				"message": message,
				"error":   EarlyTerminationMessage,
			},
		}, nil
	}

	return Action{}, &ParseError{Reason: "reply is not a tool call", Raw: reply}
}

// Adapt appends the failed reply, a system reminder that a tool must be
// chosen, and a user request for a valid call.
func (l *ToolCall) Adapt(p prompt.Prompt, reply string, _ error, _ int) prompt.Prompt {
	return p.Append(
		prompt.Message{Role: prompt.RoleAssistant, Content: reply},
		prompt.Message{Role: prompt.RoleSystem, Content: "You MUST respond by choosing one of the provided tools. Plain text replies are not accepted."},
		prompt.Message{Role: prompt.RoleUser, Content: "Please respond with a valid tool call."},
	)
}
