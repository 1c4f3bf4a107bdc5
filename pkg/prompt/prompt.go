// Package prompt defines the immutable prompt value submitted to an LLM
// and the pure functions that assemble it from goals, memory, and tools.
//
// Prompts are never mutated in place. Adaptation after a parse failure
// produces a new Prompt extending the old one.
package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/drover-ai/drover/pkg/memory"
)

// Chat roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolSchema describes one tool for providers with native tool calling.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Prompt is the immutable value consumed by an LLM client: an ordered
// message list plus, for native tool calling, a structured tool schema list.
type Prompt struct {
	Messages []Message
	Tools    []ToolSchema
}

// Append returns a new Prompt with the given messages added at the end.
// The receiver is left untouched.
func (p Prompt) Append(msgs ...Message) Prompt {
	out := Prompt{
		Messages: make([]Message, 0, len(p.Messages)+len(msgs)),
		Tools:    p.Tools,
	}
	out.Messages = append(out.Messages, p.Messages...)
	out.Messages = append(out.Messages, msgs...)
	return out
}

// WithTools returns a new Prompt carrying the given tool schemas.
func (p Prompt) WithTools(tools []ToolSchema) Prompt {
	out := Prompt{
		Messages: p.Messages,
		Tools:    make([]ToolSchema, len(tools)),
	}
	copy(out.Tools, tools)
	return out
}

// Transcript renders the messages as "role: content" lines, one per
// message. Used for provenance entries and debug logging.
func (p Prompt) Transcript() string {
	var b strings.Builder
	for i, m := range p.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

// Goal is one session objective. Goals are static for the lifetime of a
// session and feed prompt rendering and tool relevance scoring.
type Goal struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Priority    int    `json:"priority" yaml:"priority"`
}

// RenderGoals produces the system-message text for a goal list. Output is
// deterministic: goals sort by descending priority, then by name.
func RenderGoals(goals []Goal) string {
	if len(goals) == 0 {
		return ""
	}

	sorted := make([]Goal, len(goals))
	copy(sorted, goals)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].Name < sorted[j].Name
	})

	var b strings.Builder
	b.WriteString("You are pursuing the following goals:")
	for i, g := range sorted {
		b.WriteString(fmt.Sprintf("\n%d. %s: %s", i+1, g.Name, g.Description))
	}
	return b.String()
}

// RenderEnvironment produces a system-message text for ambient key/value
// facts (working directory, date, deployment name). Keys sort
// alphabetically so output is deterministic.
func RenderEnvironment(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Environment:")
	for _, k := range keys {
		b.WriteString("\n")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(env[k])
	}
	return b.String()
}

// RenderToolsJSON produces a deterministic JSON description of the tool
// schemas for inline enumeration in a system message. Tools sort by name;
// encoding/json orders map keys, so output is byte-stable.
func RenderToolsJSON(tools []ToolSchema) (string, error) {
	sorted := make([]ToolSchema, len(tools))
	copy(sorted, tools)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render tool schemas: %w", err)
	}
	return string(data), nil
}

// ProjectMemory maps log entries to chat messages:
//
//	prompt                    dropped (provenance only)
//	assistant                 assistant
//	assistant with skipped    assistant, synthesized skip notice
//	system                    system
//	environment               user
//	anything else             user
//
// Entries without a content string are serialized to indented JSON.
func ProjectMemory(entries []memory.Entry) []Message {
	out := make([]Message, 0, len(entries))
	for _, e := range entries {
		switch e.Type {
		case memory.EntryPrompt:
			continue
		case memory.EntryAssistant:
			if tool, reason, ok := e.Skipped(); ok {
				out = append(out, Message{
					Role:    RoleAssistant,
					Content: fmt.Sprintf("Skipped step: '%s' Skipped reason: %s", tool, reason),
				})
				continue
			}
			out = append(out, Message{Role: RoleAssistant, Content: e.Text()})
		case memory.EntrySystem:
			out = append(out, Message{Role: RoleSystem, Content: e.Text()})
		default:
			// environment and unknown types read as user turns
			out = append(out, Message{Role: RoleUser, Content: e.Text()})
		}
	}
	return out
}
