package language

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/drover-ai/drover/pkg/memory"
	"github.com/drover-ai/drover/pkg/prompt"
	"github.com/drover-ai/drover/pkg/tool"
)

// Fence markers for the action block.
const (
	openFence  = "```action"
	closeFence = "```"
)

// JSONBlock demands that every reply carry a fenced block tagged "action"
// whose body is a {tool, args} JSON object. It needs no provider support for
// tool calling and works against any chat model.
type JSONBlock struct {
	feedback FeedbackStyle
}

// NewJSONBlock creates the fenced-block variant. An empty style defaults to
// terse feedback.
func NewJSONBlock(style FeedbackStyle) *JSONBlock {
	if style == "" {
		style = FeedbackTerse
	}
	return &JSONBlock{feedback: style}
}

func (l *JSONBlock) Name() string { return VariantJSONBlock }

// Construct renders goals and environment, then a system message enumerating
// the tools as JSON and stating the fenced-block contract, then memory.
func (l *JSONBlock) Construct(goals []prompt.Goal, entries []memory.Entry, environment map[string]string, tools []tool.Descriptor) prompt.Prompt {
	return corePrompt(goals, environment).
		Append(l.toolsMessage(tools)).
		Append(prompt.ProjectMemory(entries)...)
}

func (l *JSONBlock) toolsMessage(tools []tool.Descriptor) prompt.Message {
	enumeration, err := prompt.RenderToolsJSON(toolSchemas(tools))
	if err != nil {
		slog.Warn("failed to render tool enumeration, sending empty list", "error", err)
		enumeration = "[]"
	}

	var b strings.Builder
	b.WriteString("You can invoke the following tools:\n")
	b.WriteString(enumeration)
	b.WriteString("\n\n")
	b.WriteString("Every reply MUST contain a fenced code block tagged 'action' whose body is a single JSON object with keys \"tool\" and \"args\". Example:\n")
	b.WriteString(exampleBlock())
	return prompt.Message{Role: prompt.RoleSystem, Content: b.String()}
}

// Parse extracts the action block and decodes it. The block spans from the
// first opening fence to the LAST closing fence, so JSON containing nested
// backticks survives. Bodies with Python-style triple-quoted strings are
// normalized to legal JSON before decoding.
func (l *JSONBlock) Parse(reply string) (Action, error) {
	body, perr := extractActionBlock(reply)
	if perr != nil {
		return Action{}, perr
	}

	var decoded Action
	if err := json.Unmarshal([]byte(normalizeTripleQuoted(body)), &decoded); err != nil {
		return Action{}, &ParseError{
			Reason: fmt.Sprintf("action block is not valid JSON: %v", err),
			Raw:    reply,
		}
	}
	if decoded.Tool == "" {
		return Action{}, &ParseError{Reason: "action block is missing the tool name", Raw: reply}
	}
	if decoded.Args == nil {
		decoded.Args = map[string]any{}
	}
	return decoded, nil
}

// Adapt appends the failed reply as an assistant turn plus a corrective user
// turn. Unknown-tool failures echo the dispatch error so the model sees which
// name it invented; everything else gets the fenced-shape reminder.
func (l *JSONBlock) Adapt(p prompt.Prompt, reply string, cause error, _ int) prompt.Prompt {
	var feedback string
	if errors.Is(cause, tool.ErrUnknownTool) {
		feedback = cause.Error()
	} else {
		feedback = l.shapeReminder(cause)
	}
	return p.Append(
		prompt.Message{Role: prompt.RoleAssistant, Content: reply},
		prompt.Message{Role: prompt.RoleUser, Content: feedback},
	)
}

func (l *JSONBlock) shapeReminder(cause error) string {
	reason := "no action found"
	var pe *ParseError
	if errors.As(cause, &pe) {
		reason = pe.Reason
	} else if cause != nil {
		reason = cause.Error()
	}

	lines := []string{
		fmt.Sprintf("Your reply could not be parsed: %s.", reason),
		"Every reply must include a fenced code block tagged 'action'.",
		"The block body must be a single JSON object with keys \"tool\" and \"args\".",
		"Example:\n" + exampleBlock(),
	}
	if l.feedback == FeedbackFull {
		return strings.Join(lines, "\n")
	}
	return lines[0]
}

func exampleBlock() string {
	return openFence + "\n{\"tool\": \"<tool name>\", \"args\": {}}\n" + closeFence
}

// extractActionBlock returns the text between the first opening fence and
// the last closing fence.
func extractActionBlock(reply string) (string, *ParseError) {
	start := strings.Index(reply, openFence)
	if start < 0 {
		return "", &ParseError{Reason: "no fenced block tagged 'action' found", Raw: reply}
	}
	bodyStart := start + len(openFence)
	end := strings.LastIndex(reply, closeFence)
	if end < bodyStart {
		return "", &ParseError{Reason: "fenced action block is not terminated", Raw: reply}
	}
	return strings.TrimSpace(reply[bodyStart:end]), nil
}

// normalizeTripleQuoted rewrites Python-style """…""" string literals into
// legal JSON strings by escaping newlines and inner double quotes. Models
// prompted for JSON emit these often enough that rejecting them outright
// wastes a retry.
func normalizeTripleQuoted(s string) string {
	const delim = `"""`
	if !strings.Contains(s, delim) {
		return s
	}

	var b strings.Builder
	for {
		i := strings.Index(s, delim)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		rest := s[i+len(delim):]
		j := strings.Index(rest, delim)
		if j < 0 {
			// Unbalanced delimiter. Leave it for the JSON pass to reject.
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(`"`)
		b.WriteString(escapeRawString(rest[:j]))
		b.WriteString(`"`)
		s = rest[j+len(delim):]
	}
}

var rawStringEscaper = strings.NewReplacer(
	"\r\n", `\n`,
	"\n", `\n`,
	"\r", `\n`,
	`"`, `\"`,
)

func escapeRawString(body string) string {
	return rawStringEscaper.Replace(body)
}
