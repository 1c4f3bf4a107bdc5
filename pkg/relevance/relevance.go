// Package relevance shrinks a session's tool registry to the subset an
// LLM judges useful for the task at hand. The filter is advisory: any
// failure along the way keeps the original registry, so a broken scorer
// can slow a session down but never remove a capability it needed.
package relevance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/drover-ai/drover/pkg/llm"
	"github.com/drover-ai/drover/pkg/observability"
	"github.com/drover-ai/drover/pkg/prompt"
	"github.com/drover-ai/drover/pkg/tokenizer"
	"github.com/drover-ai/drover/pkg/tool"
)

// Sentinels the scorer must emit around its selection.
const (
	SentinelStart = "/RELEVANT_TOOLS_START"
	SentinelEnd   = "/RELEVANT_TOOLS_END"
)

const defaultConversationTokenCap = 4000

// Options tune one filter pass.
type Options struct {
	// MaxTools caps the selection the scorer is asked for. Zero or
	// negative falls back to 10.
	MaxTools int

	// Agent labels the reduction metric and log lines.
	Agent string

	// MaxConversationTokens truncates the rendered conversation before it
	// is embedded in the scoring prompt. Zero applies a 4000-token cap.
	MaxConversationTokens int
}

// Filter runs one scoring pass over the registry and swaps its snapshot
// for the selected subset. userInput is the task text; render a chat
// transcript with ConversationText first when the session carries
// history. The pass is skipped when the registry holds nothing beyond
// the terminal tool, and any failure keeps the original registry.
func Filter(ctx context.Context, provider llm.Provider, reg *tool.Registry, userInput string, goals []prompt.Goal, opts Options) {
	if reg == nil || provider == nil {
		return
	}

	candidates := nonTerminalDescriptors(reg)
	if len(candidates) == 0 {
		return
	}

	if opts.MaxTools <= 0 {
		opts.MaxTools = 10
	}

	selected, err := score(ctx, provider, candidates, userInput, goals, opts)
	if err != nil {
		slog.Warn("Tool relevance filter failed, keeping full tool set",
			"agent", opts.Agent, "error", err)
		return
	}

	// ReplaceWith drops unknown names and reinstates the terminator on
	// its own; the intersection here is for the metric and the log line.
	kept := intersect(selected, reg)

	before := reg.Len()
	reg.ReplaceWith(kept)
	after := reg.Len()

	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordFilterReduction(ctx, opts.Agent, before, after)
	}
	slog.Debug("Tool relevance filter applied",
		"agent", opts.Agent, "before", before, "after", after, "kept", kept)
}

// ConversationText renders a chat transcript for scoring, keeping only
// the system and user turns. Assistant output does not steer selection.
func ConversationText(msgs []prompt.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		if m.Role != prompt.RoleSystem && m.Role != prompt.RoleUser {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

func score(ctx context.Context, provider llm.Provider, candidates []tool.Descriptor, userInput string, goals []prompt.Goal, opts Options) ([]string, error) {
	conversation := userInput
	tokenCap := opts.MaxConversationTokens
	if tokenCap <= 0 {
		tokenCap = defaultConversationTokenCap
	}
	// Capping is best-effort: a tokenizer failure must not fail the pass.
	if counter, err := tokenizer.NewCounter(provider.Model()); err == nil {
		conversation = counter.Truncate(conversation, tokenCap)
	}

	p := prompt.Prompt{Messages: []prompt.Message{
		{Role: prompt.RoleSystem, Content: rubric(opts.MaxTools)},
		{Role: prompt.RoleUser, Content: sections(conversation, goals, candidates)},
	}}

	reply, err := provider.Generate(ctx, p, llm.Options{})
	if err != nil {
		return nil, fmt.Errorf("scoring call failed: %w", err)
	}

	return extractSelection(reply.Text)
}

func rubric(maxTools int) string {
	return fmt.Sprintf(`You are a tool relevance scorer. Score every available tool for how useful it would be in the current session, using five criteria:

1. Direct-Need: the user's request directly requires the tool.
2. Goal-Alignment: the tool advances one of the stated goals.
3. Problem-Solving: the tool unblocks a likely intermediate step.
4. Domain-Relevance: the tool belongs to the domain of the task.
5. Complementary-Value: the tool combines well with the other selected tools.

Weight the user messages at about 60%% and the goals and system context at about 20%% each.

Select at most %d tools. Respond with the selected tool names as a JSON array of strings, delimited exactly by %s and %s:

%s
["tool_a", "tool_b"]
%s`, maxTools, SentinelStart, SentinelEnd, SentinelStart, SentinelEnd)
}

func sections(conversation string, goals []prompt.Goal, candidates []tool.Descriptor) string {
	var b strings.Builder

	b.WriteString("CONVERSATION:\n")
	b.WriteString(conversation)

	b.WriteString("\n\nGOALS:\n")
	if len(goals) == 0 {
		b.WriteString("(none)")
	}
	for i, g := range goals {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(g.Name)
		b.WriteString(": ")
		b.WriteString(g.Description)
	}

	b.WriteString("\n\nAVAILABLE TOOLS:\n")
	b.WriteString(renderTools(candidates))

	return b.String()
}

func renderTools(descs []tool.Descriptor) string {
	var b strings.Builder
	for i, d := range descs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Tool: %s\nDescription: %s\n", d.Name, d.Description)
		if lines := parameterLines(d.Parameters); len(lines) > 0 {
			b.WriteString("Parameters:\n")
			for _, line := range lines {
				b.WriteString("  ")
				b.WriteString(line)
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

// parameterLines renders one line per parameter, tolerating both the
// JSON-schema form ({type, description} maps under "properties") and the
// legacy flat form mapping a name straight to a description string.
func parameterLines(schema map[string]any) []string {
	if len(schema) == 0 {
		return nil
	}

	props, structured := schema["properties"].(map[string]any)
	if !structured {
		props = schema
	}

	names := make([]string, 0, len(props))
	for name := range props {
		if !structured {
			switch name {
			case "type", "required", "additionalProperties":
				continue
			}
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		switch v := props[name].(type) {
		case map[string]any:
			typ, _ := v["type"].(string)
			desc, _ := v["description"].(string)
			if typ == "" {
				typ = "any"
			}
			lines = append(lines, fmt.Sprintf("%s (%s): %s", name, typ, desc))
		case string:
			lines = append(lines, fmt.Sprintf("%s: %s", name, v))
		}
	}
	return lines
}

func extractSelection(reply string) ([]string, error) {
	start := strings.Index(reply, SentinelStart)
	if start == -1 {
		return nil, fmt.Errorf("reply is missing %s", SentinelStart)
	}
	rest := reply[start+len(SentinelStart):]
	end := strings.Index(rest, SentinelEnd)
	if end == -1 {
		return nil, fmt.Errorf("reply is missing %s", SentinelEnd)
	}

	var names []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(rest[:end])), &names); err != nil {
		return nil, fmt.Errorf("selection is not a JSON array of tool names: %w", err)
	}
	return names, nil
}

// nonTerminalDescriptors returns the scoring candidates. The terminal
// tool is never scored; ReplaceWith keeps it regardless of the outcome.
func nonTerminalDescriptors(reg *tool.Registry) []tool.Descriptor {
	all := reg.List()
	out := make([]tool.Descriptor, 0, len(all))
	for _, d := range all {
		if d.Terminal {
			continue
		}
		out = append(out, d)
	}
	return out
}

func intersect(names []string, reg *tool.Registry) []string {
	kept := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] || !reg.Has(name) {
			continue
		}
		seen[name] = true
		kept = append(kept, name)
	}
	return kept
}
