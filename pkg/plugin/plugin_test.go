package plugin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"strings"
	"testing"

	"github.com/drover-ai/drover/pkg/tool"
)

// fakeProvider is an in-process ToolProvider implementation.
type fakeProvider struct {
	listErr error
}

func (f *fakeProvider) List() ([]Manifest, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return []Manifest{
		{
			Name:        "weather",
			Description: "Current weather for a city",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"city": map[string]any{"type": "string"},
				},
				"required": []any{"city"},
			},
		},
		{Name: "sum", Description: "Add the given numbers"},
	}, nil
}

func (f *fakeProvider) Call(name string, args map[string]any) (any, error) {
	switch name {
	case "weather":
		return map[string]any{"city": args["city"], "temp": 21.5}, nil
	case "sum":
		total := 0.0
		for _, v := range args {
			n, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("not a number: %v", v)
			}
			total += n
		}
		return total, nil
	case "nothing":
		return nil, nil
	case "echo_args":
		if args == nil {
			return "nil args", nil
		}
		return args, nil
	default:
		return nil, fmt.Errorf("no such tool: %s", name)
	}
}

// pipedProvider wires the client and server adapters together over an
// in-memory connection, through the same glue go-plugin dispenses.
func pipedProvider(t *testing.T, impl ToolProvider) ToolProvider {
	t.Helper()

	p := &Plugin{Impl: impl}

	srvConn, cliConn := net.Pipe()
	served, err := p.Server(nil)
	if err != nil {
		t.Fatalf("Server: %v", err)
	}
	server := rpc.NewServer()
	if err := server.RegisterName("Plugin", served); err != nil {
		t.Fatalf("RegisterName: %v", err)
	}
	go server.ServeConn(srvConn)

	client := rpc.NewClient(cliConn)
	t.Cleanup(func() { client.Close() })

	dispensed, err := p.Client(nil, client)
	if err != nil {
		t.Fatalf("Client: %v", err)
	}
	provider, ok := dispensed.(ToolProvider)
	if !ok {
		t.Fatalf("client side is %T, want ToolProvider", dispensed)
	}
	return provider
}

func TestProviderRoundTrip(t *testing.T) {
	provider := pipedProvider(t, &fakeProvider{})

	manifests, err := provider.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(manifests) != 2 {
		t.Fatalf("got %d manifests, want 2", len(manifests))
	}
	weather := manifests[0]
	if weather.Name != "weather" {
		t.Errorf("manifests[0].Name = %q", weather.Name)
	}
	props, ok := weather.Parameters["properties"].(map[string]any)
	if !ok || props["city"] == nil {
		t.Errorf("schema did not survive the wire: %v", weather.Parameters)
	}
	if manifests[1].Parameters != nil {
		t.Errorf("sum should have no schema, got %v", manifests[1].Parameters)
	}

	result, err := provider.Call("weather", map[string]any{"city": "Oslo"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	m, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("result type %T, want map", result)
	}
	if m["city"] != "Oslo" || m["temp"] != 21.5 {
		t.Errorf("result = %v", m)
	}

	sum, err := provider.Call("sum", map[string]any{"a": 2.0, "b": 3.0})
	if err != nil {
		t.Fatalf("Call sum: %v", err)
	}
	if sum != 5.0 {
		t.Errorf("sum = %v, want 5", sum)
	}
}

func TestProviderErrors(t *testing.T) {
	provider := pipedProvider(t, &fakeProvider{})

	if _, err := provider.Call("bogus", nil); err == nil {
		t.Fatal("expected error for unknown tool")
	} else if !strings.Contains(err.Error(), "no such tool: bogus") {
		t.Errorf("error = %v", err)
	}

	broken := pipedProvider(t, &fakeProvider{listErr: errors.New("registry empty")})
	if _, err := broken.List(); err == nil {
		t.Fatal("expected list error")
	} else if err.Error() != "registry empty" {
		t.Errorf("business error should cross the wire verbatim, got %v", err)
	}
}

func TestProviderNilHandling(t *testing.T) {
	provider := pipedProvider(t, &fakeProvider{})

	result, err := provider.Call("nothing", map[string]any{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result != nil {
		t.Errorf("result = %v, want nil", result)
	}

	// Nil args arrive as nil on the far side.
	got, err := provider.Call("echo_args", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "nil args" {
		t.Errorf("nil args arrived as %v", got)
	}
}

func TestCompileManifests(t *testing.T) {
	impl := &fakeProvider{}
	manifests := []Manifest{
		{Name: "weather", Description: "Current weather", Parameters: map[string]any{"type": "object"}},
		{Name: "sum"},
		{Description: "unnamed, dropped"},
	}

	descs := compileManifests(impl, manifests)
	if len(descs) != 2 {
		t.Fatalf("got %d descriptors, want 2", len(descs))
	}
	for _, d := range descs {
		if !d.HasTag("plugin") {
			t.Errorf("%s missing plugin tag", d.Name)
		}
	}
	if descs[1].Parameters["type"] != "object" {
		t.Errorf("missing schema should default to an object: %v", descs[1].Parameters)
	}

	result, err := descs[0].Func(context.Background(), nil, map[string]any{"city": "Bergen"})
	if err != nil {
		t.Fatalf("Func: %v", err)
	}
	if m := result.(map[string]any); m["city"] != "Bergen" {
		t.Errorf("result = %v", m)
	}
}

func TestHost_LoadMissingBinary(t *testing.T) {
	h := NewHost()
	defer h.Close()

	if _, err := h.Load("/no/such/plugin-binary"); err == nil {
		t.Fatal("expected error for missing binary")
	}
	if _, err := h.LoadAll([]string{"/no/such/plugin-binary"}); err == nil {
		t.Fatal("expected error from LoadAll")
	}
	if got := h.Descriptors(); len(got) != 0 {
		t.Errorf("descriptors = %v, want none", got)
	}
}

func TestHost_Register(t *testing.T) {
	h := NewHost()
	h.tools = compileManifests(&fakeProvider{}, []Manifest{
		{Name: "weather"}, {Name: "sum"},
	})

	reg := tool.NewRegistry(nil, nil, nil)
	if n := h.Register(reg); n != 2 {
		t.Errorf("registered %d, want 2", n)
	}
	if !reg.Has("weather") || !reg.Has("sum") {
		t.Errorf("registry names = %v", reg.Names())
	}
}
