package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/drover-ai/drover/pkg/events"
)

type recordingEmitter struct {
	names    []string
	payloads []map[string]any
}

func (r *recordingEmitter) Emit(name string, payload map[string]any) {
	r.names = append(r.names, name)
	r.payloads = append(r.payloads, payload)
}

func newTestContext(rec events.Emitter) *ActionContext {
	return &ActionContext{
		Principal:   "user-1",
		BearerToken: "token",
		SessionID:   "sess-1",
		AgentID:     "agent-1",
		MessageID:   "msg-1",
		Emitter:     rec,
	}
}

func TestInvokeEmitsStartAndEnd(t *testing.T) {
	rec := &recordingEmitter{}
	d := Descriptor{
		Name: "say_hello",
		Func: func(ctx context.Context, ac *ActionContext, args map[string]any) (any, error) {
			return "hello " + args["name"].(string), nil
		},
	}

	result := d.Invoke(context.Background(), newTestContext(rec), map[string]any{"name": "world"})

	if result != "hello world" {
		t.Errorf("Expected result, got %v", result)
	}
	if len(rec.names) != 2 {
		t.Fatalf("Expected 2 events, got %d: %v", len(rec.names), rec.names)
	}
	if rec.names[0] != "tools/say_hello/start" {
		t.Errorf("Expected start event, got %s", rec.names[0])
	}
	if rec.names[1] != "tools/say_hello/end" {
		t.Errorf("Expected end event, got %s", rec.names[1])
	}
	if rec.payloads[1]["result"] != "hello world" {
		t.Errorf("Expected result in end payload, got %v", rec.payloads[1])
	}
}

func TestInvokeSwallowsErrors(t *testing.T) {
	rec := &recordingEmitter{}
	d := Descriptor{
		Name: "flaky",
		Func: func(ctx context.Context, ac *ActionContext, args map[string]any) (any, error) {
			return nil, errors.New("backend down")
		},
	}

	result := d.Invoke(context.Background(), newTestContext(rec), map[string]any{"q": "x"})

	if result != nil {
		t.Errorf("Expected nil result for failed tool, got %v", result)
	}
	if len(rec.names) != 2 || rec.names[1] != "tools/flaky/error" {
		t.Fatalf("Expected error event, got %v", rec.names)
	}
	if rec.payloads[1]["exception"] != "backend down" {
		t.Errorf("Expected exception in payload, got %v", rec.payloads[1])
	}
}

func TestInvokeSwallowsPanics(t *testing.T) {
	rec := &recordingEmitter{}
	d := Descriptor{
		Name: "crasher",
		Func: func(ctx context.Context, ac *ActionContext, args map[string]any) (any, error) {
			panic("boom")
		},
	}

	result := d.Invoke(context.Background(), newTestContext(rec), nil)

	if result != nil {
		t.Errorf("Expected nil result after panic, got %v", result)
	}
	if len(rec.names) != 2 || rec.names[1] != "tools/crasher/error" {
		t.Fatalf("Expected error event after panic, got %v", rec.names)
	}
	if rec.payloads[1]["traceback"] == nil || rec.payloads[1]["traceback"] == "" {
		t.Error("Expected a traceback in the panic payload")
	}
}

func TestInvokeSanitizesPrivateArgs(t *testing.T) {
	rec := &recordingEmitter{}
	var sawPrivate bool
	d := Descriptor{
		Name: "secretive",
		Func: func(ctx context.Context, ac *ActionContext, args map[string]any) (any, error) {
			_, sawPrivate = args["_internal"]
			return "ok", nil
		},
	}

	d.Invoke(context.Background(), newTestContext(rec), map[string]any{
		"visible":   "yes",
		"_internal": "secret",
	})

	if !sawPrivate {
		t.Error("Expected raw callable to receive private args")
	}
	for i, p := range rec.payloads {
		if _, leaked := p["_internal"]; leaked {
			t.Errorf("Private arg leaked into event %d (%s)", i, rec.names[i])
		}
	}
	if rec.payloads[0]["visible"] != "yes" {
		t.Errorf("Expected visible arg in start payload, got %v", rec.payloads[0])
	}
}

func TestInvokeNilEmitter(t *testing.T) {
	d := Descriptor{
		Name: "quiet",
		Func: func(ctx context.Context, ac *ActionContext, args map[string]any) (any, error) {
			return 42, nil
		},
	}

	// No emitter on the context; must not panic.
	result := d.Invoke(context.Background(), &ActionContext{}, nil)
	if result != 42 {
		t.Errorf("Expected 42, got %v", result)
	}

	// Nil context entirely.
	result = d.Invoke(context.Background(), nil, nil)
	if result != 42 {
		t.Errorf("Expected 42 with nil action context, got %v", result)
	}
}

func TestInvokeEmitsStatusLines(t *testing.T) {
	rec := &recordingEmitter{}
	d := Descriptor{
		Name:         "greeter",
		Status:       "Greeting {name}",
		ResultStatus: "Greeted: {result}",
		Func: func(ctx context.Context, ac *ActionContext, args map[string]any) (any, error) {
			return "done", nil
		},
	}

	d.Invoke(context.Background(), newTestContext(rec), map[string]any{"name": "pat"})

	var statuses []string
	for i, name := range rec.names {
		if name == events.StatusEvent {
			statuses = append(statuses, rec.payloads[i]["status"].(string))
		}
	}
	if len(statuses) != 2 {
		t.Fatalf("Expected 2 status events, got %d", len(statuses))
	}
	if statuses[0] != "Greeting pat" {
		t.Errorf("Unexpected start status: %q", statuses[0])
	}
	if statuses[1] != "Greeted: done" {
		t.Errorf("Unexpected result status: %q", statuses[1])
	}
}

func TestPublicParametersHidesPrivate(t *testing.T) {
	d := Descriptor{
		Name: "op",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city":    map[string]any{"type": "string"},
				"_bearer": map[string]any{"type": "string"},
			},
			"required": []any{"city", "_bearer"},
		},
	}

	public := d.PublicParameters()

	props := public["properties"].(map[string]any)
	if _, hidden := props["_bearer"]; hidden {
		t.Error("Expected _bearer to be hidden from public schema")
	}
	if _, visible := props["city"]; !visible {
		t.Error("Expected city to remain in public schema")
	}

	required := public["required"].([]any)
	if len(required) != 1 || required[0] != "city" {
		t.Errorf("Expected required=[city], got %v", required)
	}

	// The original descriptor must be untouched.
	origProps := d.Parameters["properties"].(map[string]any)
	if _, ok := origProps["_bearer"]; !ok {
		t.Error("Expected original schema to keep private params")
	}
}
