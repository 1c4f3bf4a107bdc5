package prompt

import (
	"strings"
	"testing"

	"github.com/drover-ai/drover/pkg/memory"
)

func TestPromptAppendDoesNotMutate(t *testing.T) {
	base := Prompt{Messages: []Message{{Role: RoleSystem, Content: "goals"}}}

	extended := base.Append(Message{Role: RoleUser, Content: "hi"})

	if len(base.Messages) != 1 {
		t.Errorf("Expected base prompt unchanged, got %d messages", len(base.Messages))
	}
	if len(extended.Messages) != 2 {
		t.Errorf("Expected extended prompt with 2 messages, got %d", len(extended.Messages))
	}
}

func TestRenderGoalsDeterministic(t *testing.T) {
	goals := []Goal{
		{Name: "beta", Description: "second", Priority: 1},
		{Name: "alpha", Description: "first", Priority: 5},
		{Name: "gamma", Description: "also priority one", Priority: 1},
	}

	first := RenderGoals(goals)
	second := RenderGoals(goals)
	if first != second {
		t.Error("Expected byte-identical output across runs")
	}

	// Priority 5 sorts first; ties order by name.
	lines := strings.Split(first, "\n")
	if !strings.Contains(lines[1], "alpha") {
		t.Errorf("Expected alpha first, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "beta") {
		t.Errorf("Expected beta second, got %q", lines[2])
	}
}

func TestRenderGoalsEmpty(t *testing.T) {
	if got := RenderGoals(nil); got != "" {
		t.Errorf("Expected empty string for no goals, got %q", got)
	}
}

func TestRenderEnvironmentSortsKeys(t *testing.T) {
	env := map[string]string{"zone": "us-east", "app": "drover"}

	got := RenderEnvironment(env)
	want := "Environment:\napp: drover\nzone: us-east"
	if got != want {
		t.Errorf("RenderEnvironment = %q, want %q", got, want)
	}
}

func TestRenderToolsJSONDeterministic(t *testing.T) {
	tools := []ToolSchema{
		{Name: "zeta", Description: "last", Parameters: map[string]any{"type": "object"}},
		{Name: "alpha", Description: "first", Parameters: map[string]any{"type": "object"}},
	}

	first, err := RenderToolsJSON(tools)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, _ := RenderToolsJSON(tools)
	if first != second {
		t.Error("Expected byte-identical output across runs")
	}
	if strings.Index(first, "alpha") > strings.Index(first, "zeta") {
		t.Error("Expected tools sorted by name")
	}
}

func TestProjectMemory(t *testing.T) {
	entries := []memory.Entry{
		{Type: memory.EntrySystem, Content: "goals here"},
		{Type: memory.EntryUser, Content: "hi"},
		{Type: memory.EntryPrompt, Content: "sent prompt transcript"},
		{Type: memory.EntryAssistant, Content: "thinking"},
		{Type: memory.EntryEnvironment, Content: "result text"},
		{Type: memory.EntryAssistant, Payload: map[string]any{"skipped": "not needed", "tool": "search"}},
	}

	msgs := ProjectMemory(entries)

	if len(msgs) != 5 {
		t.Fatalf("Expected 5 messages (prompt entry dropped), got %d", len(msgs))
	}

	wantRoles := []string{RoleSystem, RoleUser, RoleAssistant, RoleUser, RoleAssistant}
	for i, m := range msgs {
		if m.Role != wantRoles[i] {
			t.Errorf("message %d: role = %s, want %s", i, m.Role, wantRoles[i])
		}
	}

	skip := msgs[4].Content
	if skip != "Skipped step: 'search' Skipped reason: not needed" {
		t.Errorf("Unexpected skip projection: %q", skip)
	}
}

func TestProjectMemorySerializesPayload(t *testing.T) {
	entries := []memory.Entry{
		{Type: memory.EntryEnvironment, Payload: map[string]any{"success": true}},
	}

	msgs := ProjectMemory(entries)
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, `"success": true`) {
		t.Errorf("Expected serialized payload, got %q", msgs[0].Content)
	}
}
