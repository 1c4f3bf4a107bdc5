// Package language defines the prompt languages an agent can speak: how a
// prompt is assembled, how a model reply is parsed into an action, and how
// the prompt is adapted when parsing or dispatch fails.
//
// Three variants exist. Natural never parses structure out of the reply and
// treats every reply as the final answer. JSONBlock demands a fenced block
// tagged "action" containing a {tool, args} object and works with any chat
// model. ToolCall rides the provider's native tool-calling schema.
package language

import (
	"fmt"
	"strings"

	"github.com/drover-ai/drover/pkg/memory"
	"github.com/drover-ai/drover/pkg/prompt"
	"github.com/drover-ai/drover/pkg/tool"
)

// Variant names accepted by New.
const (
	VariantNatural   = "natural"
	VariantJSONBlock = "jsonblock"
	VariantToolCall  = "toolcall"
)

// Action is a parsed invocation intent: which tool to run and with what
// arguments.
type Action struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// ParseError reports that a model reply could not be turned into an Action.
// The loop feeds it back through Adapt rather than surfacing it.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failure: %s", e.Reason)
}

// FeedbackStyle controls how much of the multi-line corrective feedback the
// JSONBlock variant sends back after a parse failure.
type FeedbackStyle string

const (
	// FeedbackTerse sends only the first feedback line.
	FeedbackTerse FeedbackStyle = "terse"
	// FeedbackFull sends every feedback line.
	FeedbackFull FeedbackStyle = "full"
)

// Language is the strategy an agent uses to talk to its model.
type Language interface {
	// Construct assembles the prompt for the next LLM call from the
	// session's goals, memory, ambient environment, and tool set.
	Construct(goals []prompt.Goal, entries []memory.Entry, environment map[string]string, tools []tool.Descriptor) prompt.Prompt

	// Parse extracts the next action from a raw model reply. A *ParseError
	// return means the reply had no usable action in it.
	Parse(reply string) (Action, error)

	// Adapt extends a prompt with corrective feedback after a parse failure
	// or an unknown-tool dispatch. The input prompt is not modified.
	Adapt(p prompt.Prompt, reply string, cause error, retriesLeft int) prompt.Prompt

	// Name identifies the variant for config and logging.
	Name() string
}

// Config selects and parameterizes a variant.
type Config struct {
	// Variant is one of natural, jsonblock, toolcall. Empty selects
	// jsonblock, the variant that works against any chat model.
	Variant string
	// FeedbackStyle applies to jsonblock only.
	FeedbackStyle FeedbackStyle
	// AllowNonToolOutput applies to toolcall only: plain-text replies
	// become the final answer instead of a parse failure.
	AllowNonToolOutput bool
}

// New builds the language variant named by cfg.
func New(cfg Config) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Variant)) {
	case VariantNatural:
		return NewNatural(), nil
	case VariantJSONBlock, "":
		return NewJSONBlock(cfg.FeedbackStyle), nil
	case VariantToolCall:
		return NewToolCall(cfg.AllowNonToolOutput), nil
	default:
		return nil, fmt.Errorf("unsupported language variant: %s (supported: 'natural', 'jsonblock', 'toolcall')", cfg.Variant)
	}
}

// terminateAction synthesizes a terminate invocation carrying message as the
// final answer.
func terminateAction(message string) Action {
	return Action{
		Tool: tool.TerminateToolName,
		Args: map[string]any{"message": message},
	}
}

// corePrompt renders the parts shared by every variant: goals as the leading
// system message, then the ambient environment as a user turn. Memory and
// tool enumeration are variant-specific and layered on by the caller.
func corePrompt(goals []prompt.Goal, environment map[string]string) prompt.Prompt {
	p := prompt.Prompt{}
	if text := prompt.RenderGoals(goals); text != "" {
		p = p.Append(prompt.Message{Role: prompt.RoleSystem, Content: text})
	}
	if text := prompt.RenderEnvironment(environment); text != "" {
		p = p.Append(prompt.Message{Role: prompt.RoleUser, Content: text})
	}
	return p
}

// toolSchemas converts descriptors to the structured schema list carried by
// native tool-calling prompts. Private parameters are already stripped.
func toolSchemas(tools []tool.Descriptor) []prompt.ToolSchema {
	out := make([]prompt.ToolSchema, 0, len(tools))
	for _, d := range tools {
		out = append(out, prompt.ToolSchema{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.PublicParameters(),
		})
	}
	return out
}
