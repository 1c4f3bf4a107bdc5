package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/drover-ai/drover/pkg/auth"
	"github.com/drover-ai/drover/pkg/config"
	"github.com/drover-ai/drover/pkg/events"
	"github.com/drover-ai/drover/pkg/memory"
	"github.com/drover-ai/drover/pkg/server"
	"github.com/drover-ai/drover/pkg/tool"
)

// scriptedModel plays a chat-completions endpoint. Each call consumes the
// next scripted reply; once the script runs out the last reply repeats.
type scriptedModel struct {
	srv     *httptest.Server
	mu      sync.Mutex
	replies []string
	calls   int
}

func newScriptedModel(t *testing.T, replies ...string) *scriptedModel {
	t.Helper()
	m := &scriptedModel{replies: replies}
	m.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		m.mu.Lock()
		idx := m.calls
		if idx >= len(m.replies) {
			idx = len(m.replies) - 1
		}
		reply := m.replies[idx]
		m.calls++
		m.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]any{"content": reply},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 7},
		})
	}))
	t.Cleanup(m.srv.Close)
	return m
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func actionReply(name, args string) string {
	return "```action\n{\"tool\": \"" + name + "\", \"args\": " + args + "}\n```"
}

func terminateReply(message string) string {
	return actionReply(tool.TerminateToolName, `{"message": "`+message+`"}`)
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		LLMs: map[string]config.LLMConfig{
			"default": {
				Provider: config.LLMProviderOpenAI,
				Model:    "scout-1",
				APIKey:   "test-key",
				BaseURL:  baseURL,
			},
		},
		Agents: map[string]config.AgentConfig{
			"scout": {
				LLM:   "default",
				Goals: []config.GoalConfig{{Name: "resolve", Description: "Resolve the task", Priority: 10}},
			},
			"clerk": {
				LLM:   "default",
				Tools: config.ToolSelection{Tags: []string{"utility"}},
			},
		},
	}
}

func newTestRuntime(t *testing.T, cfg *config.Config) *Runtime {
	t.Helper()
	rt, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := rt.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return rt
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()

	if _, err := New(ctx, nil); err == nil {
		t.Error("expected error for nil config")
	}

	noAgents := &config.Config{
		LLMs: map[string]config.LLMConfig{
			"default": {Provider: config.LLMProviderOpenAI, Model: "m", APIKey: "k"},
		},
	}
	if _, err := New(ctx, noAgents); err == nil || !strings.Contains(err.Error(), "no agents configured") {
		t.Errorf("expected no-agents error, got %v", err)
	}

	danglingRef := &config.Config{
		LLMs: map[string]config.LLMConfig{
			"default": {Provider: config.LLMProviderOpenAI, Model: "m", APIKey: "k"},
		},
		Agents: map[string]config.AgentConfig{"scout": {LLM: "missing"}},
	}
	if _, err := New(ctx, danglingRef); err == nil || !strings.Contains(err.Error(), "unknown llm") {
		t.Errorf("expected dangling llm reference error, got %v", err)
	}
}

func TestAgentSurface(t *testing.T) {
	model := newScriptedModel(t, terminateReply("ok"))
	rt := newTestRuntime(t, testConfig(model.srv.URL))

	if names := rt.AgentNames(); !reflect.DeepEqual(names, []string{"clerk", "scout"}) {
		t.Errorf("AgentNames = %v, want [clerk scout]", names)
	}

	card, err := rt.AgentCard("scout")
	if err != nil {
		t.Fatalf("AgentCard(scout): %v", err)
	}
	if card.Name != "scout" || card.Language != "jsonblock" {
		t.Errorf("card = %+v, want name scout language jsonblock", card)
	}
	if len(card.Goals) != 1 || card.Goals[0].Name != "resolve" || card.Goals[0].Priority != 10 {
		t.Errorf("goals = %+v", card.Goals)
	}
	if got := toolNames(card.Tools); !reflect.DeepEqual(got, []string{tool.TerminateToolName}) {
		t.Errorf("scout tools = %v, want terminate only", got)
	}

	clerk, err := rt.AgentCard("clerk")
	if err != nil {
		t.Fatalf("AgentCard(clerk): %v", err)
	}
	if got := toolNames(clerk.Tools); !reflect.DeepEqual(got, []string{"current_time", tool.TerminateToolName}) {
		t.Errorf("clerk tools = %v, want [current_time terminate]", got)
	}

	if _, err := rt.AgentCard("ghost"); err == nil {
		t.Error("expected error for unknown agent card")
	}
}

func toolNames(cards []server.ToolCard) []string {
	names := make([]string, len(cards))
	for i, c := range cards {
		names[i] = c.Name
	}
	return names
}

func TestRunSession(t *testing.T) {
	ctx := context.Background()
	model := newScriptedModel(t, terminateReply("rounded up"))
	rt := newTestRuntime(t, testConfig(model.srv.URL))

	res, err := rt.RunSession(ctx, server.RunSpec{
		Agent:     "scout",
		Task:      "herd the cattle",
		Principal: auth.Anonymous(),
	})
	if err != nil {
		t.Fatalf("RunSession: %v", err)
	}
	if res.SessionID == "" {
		t.Fatal("expected a session id for a fresh run")
	}
	if res.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", res.Iterations)
	}
	result, ok := res.Result.(map[string]any)
	if !ok || result["message"] != "rounded up" {
		t.Errorf("result = %#v, want terminate echo", res.Result)
	}

	sess, err := rt.Store().Get(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("Store.Get: %v", err)
	}
	if sess.Agent != "scout" || sess.Principal != auth.AnonymousSubject {
		t.Errorf("session = %+v, want scout/anonymous", sess)
	}

	entries, err := rt.Store().Entries(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("Store.Entries: %v", err)
	}
	wantTypes := []memory.EntryType{
		memory.EntryUser, memory.EntryPrompt, memory.EntryAssistant, memory.EntryEnvironment,
	}
	if got := entryTypes(entries); !reflect.DeepEqual(got, wantTypes) {
		t.Fatalf("entry types = %v, want %v", got, wantTypes)
	}
	if entries[0].Content != "herd the cattle" {
		t.Errorf("first entry = %q, want the task", entries[0].Content)
	}
}

func entryTypes(entries []memory.Entry) []memory.EntryType {
	types := make([]memory.EntryType, len(entries))
	for i, e := range entries {
		types[i] = e.Type
	}
	return types
}

func TestRunSession_Continue(t *testing.T) {
	ctx := context.Background()
	model := newScriptedModel(t, terminateReply("first"), terminateReply("second"))
	rt := newTestRuntime(t, testConfig(model.srv.URL))

	first, err := rt.RunSession(ctx, server.RunSpec{
		Agent: "scout", Task: "open the gate", Principal: auth.Anonymous(),
	})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	second, err := rt.RunSession(ctx, server.RunSpec{
		Agent:     "scout",
		SessionID: first.SessionID,
		Task:      "now close it",
		Principal: auth.Anonymous(),
	})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("session id changed: %s -> %s", first.SessionID, second.SessionID)
	}
	result, ok := second.Result.(map[string]any)
	if !ok || result["message"] != "second" {
		t.Errorf("second result = %#v", second.Result)
	}
	if model.callCount() != 2 {
		t.Errorf("model calls = %d, want 2", model.callCount())
	}

	entries, err := rt.Store().Entries(ctx, first.SessionID)
	if err != nil {
		t.Fatalf("Store.Entries: %v", err)
	}
	if len(entries) != 8 {
		t.Errorf("entries = %d, want 8 after two runs", len(entries))
	}

	if _, err := rt.RunSession(ctx, server.RunSpec{
		Agent: "scout", SessionID: "no-such-session", Task: "hi", Principal: auth.Anonymous(),
	}); err == nil {
		t.Error("expected error for unknown session id")
	}
}

func TestRunSession_UnknownAgent(t *testing.T) {
	model := newScriptedModel(t, terminateReply("ok"))
	rt := newTestRuntime(t, testConfig(model.srv.URL))

	_, err := rt.RunSession(context.Background(), server.RunSpec{
		Agent: "ghost", Task: "boo", Principal: auth.Anonymous(),
	})
	if err == nil || !strings.Contains(err.Error(), "unknown agent") {
		t.Errorf("expected unknown agent error, got %v", err)
	}
}

func TestRunSession_ParseRetry(t *testing.T) {
	ctx := context.Background()
	model := newScriptedModel(t, "let me think about that", terminateReply("recovered"))
	rt := newTestRuntime(t, testConfig(model.srv.URL))

	res, err := rt.RunSession(ctx, server.RunSpec{
		Agent: "scout", Task: "herd the cattle", Principal: auth.Anonymous(),
	})
	if err != nil {
		t.Fatalf("RunSession: %v", err)
	}
	if res.Iterations != 1 {
		t.Errorf("iterations = %d, want 1 (retries stay within the iteration)", res.Iterations)
	}
	result, ok := res.Result.(map[string]any)
	if !ok || result["message"] != "recovered" {
		t.Errorf("result = %#v", res.Result)
	}
	if model.callCount() != 2 {
		t.Errorf("model calls = %d, want 2", model.callCount())
	}
}

func TestRunSession_IterationLimit(t *testing.T) {
	ctx := context.Background()
	model := newScriptedModel(t, actionReply("current_time", "{}"))
	cfg := testConfig(model.srv.URL)
	cfg.Agents["penner"] = config.AgentConfig{
		LLM:           "default",
		Tools:         config.ToolSelection{Tags: []string{"utility"}},
		MaxIterations: config.IntPtr(2),
	}
	rt := newTestRuntime(t, cfg)

	res, err := rt.RunSession(ctx, server.RunSpec{
		Agent: "penner", Task: "loop forever", Principal: auth.Anonymous(),
	})
	if err != nil {
		t.Fatalf("RunSession: %v", err)
	}
	if res.Iterations != 2 {
		t.Errorf("iterations = %d, want the configured bound", res.Iterations)
	}
	result, ok := res.Result.(map[string]any)
	if !ok {
		t.Fatalf("result = %#v, want synthesized terminate echo", res.Result)
	}
	msg, _ := result["message"].(string)
	if !strings.Contains(msg, "Iteration limit (2)") {
		t.Errorf("message = %q, want iteration limit notice", msg)
	}
}

func TestRunTask_EmitsEvents(t *testing.T) {
	ctx := context.Background()
	model := newScriptedModel(t, terminateReply("done"))
	rt := newTestRuntime(t, testConfig(model.srv.URL))

	ch := events.NewChannel(32)
	res, err := rt.RunTask(ctx, "scout", "count the flock", TaskOptions{Emitter: ch})
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	ch.Close()

	seen := map[string]bool{}
	for ev := range ch.Events() {
		seen[ev.Name] = true
	}
	if !seen[events.StatusEvent] {
		t.Error("expected a status event")
	}
	if !seen[events.ToolEnd(tool.TerminateToolName)] {
		t.Error("expected a terminate tool-end event")
	}
	if ch.Dropped() != 0 {
		t.Errorf("dropped %d events", ch.Dropped())
	}

	sess, err := rt.Store().Get(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("Store.Get: %v", err)
	}
	if sess.Principal != auth.AnonymousSubject {
		t.Errorf("principal = %q, want anonymous for the task facade", sess.Principal)
	}
}

func TestAgent_Detached(t *testing.T) {
	model := newScriptedModel(t, terminateReply("fence checked"))
	rt := newTestRuntime(t, testConfig(model.srv.URL))

	ag, err := rt.Agent("scout")
	if err != nil {
		t.Fatalf("Agent: %v", err)
	}
	if ag.Name() != "scout" {
		t.Errorf("name = %q", ag.Name())
	}

	outcome, err := ag.Run(context.Background(), &tool.ActionContext{}, "check the fences")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	result, ok := outcome.Result.(map[string]any)
	if !ok || result["message"] != "fence checked" {
		t.Errorf("result = %#v", outcome.Result)
	}

	sessions, err := rt.Store().List(context.Background(), auth.AnonymousSubject)
	if err != nil {
		t.Fatalf("Store.List: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("detached run persisted %d sessions, want none", len(sessions))
	}

	if _, err := rt.Agent("ghost"); err == nil {
		t.Error("expected error for unknown agent")
	}
}

func TestRemoteOpsFailureFailsRun(t *testing.T) {
	model := newScriptedModel(t, terminateReply("ok"))
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	t.Cleanup(remote.Close)

	cfg := testConfig(model.srv.URL)
	cfg.RemoteOps = &config.RemoteOpsConfig{BaseURL: remote.URL}
	rt := newTestRuntime(t, cfg)

	_, err := rt.RunSession(context.Background(), server.RunSpec{
		Agent: "scout", Task: "herd the cattle", Principal: auth.Anonymous(),
	})
	if err == nil || !strings.Contains(err.Error(), "remote operations") {
		t.Errorf("expected remote operations failure, got %v", err)
	}
}
