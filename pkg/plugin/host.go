package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"

	"github.com/drover-ai/drover/pkg/tool"
)

// Host owns the plugin subprocesses. Load starts one binary and
// compiles its tools; Close kills everything that was started.
type Host struct {
	logger hclog.Logger

	mu      sync.Mutex
	clients []*goplugin.Client
	tools   []tool.Descriptor
}

func NewHost() *Host {
	return &Host{
		logger: hclog.New(&hclog.LoggerOptions{
			Name:  "drover.plugin",
			Level: hclog.Info,
		}),
	}
}

// Load starts the plugin binary at path, dispenses its tool provider
// and compiles the exported manifests into descriptors.
func (h *Host) Load(path string) ([]tool.Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("plugin binary %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("plugin binary %s is a directory", path)
	}

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			ProviderName: &Plugin{},
		},
		Cmd:    exec.Command(path),
		Logger: h.logger,
		AllowedProtocols: []goplugin.Protocol{
			goplugin.ProtocolNetRPC,
		},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to start plugin %s: %w", path, err)
	}

	raw, err := rpcClient.Dispense(ProviderName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense plugin %s: %w", path, err)
	}
	provider, ok := raw.(ToolProvider)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin %s does not implement the tool provider interface", path)
	}

	manifests, err := provider.List()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to list plugin tools %s: %w", path, err)
	}

	descs := compileManifests(provider, manifests)

	h.mu.Lock()
	h.clients = append(h.clients, client)
	h.tools = append(h.tools, descs...)
	h.mu.Unlock()

	slog.Info("Loaded plugin", "path", path, "tools", len(descs))
	return descs, nil
}

// LoadAll loads every configured binary. The first failure aborts so a
// bad path surfaces at startup rather than as missing tools later.
func (h *Host) LoadAll(paths []string) ([]tool.Descriptor, error) {
	var all []tool.Descriptor
	for _, path := range paths {
		descs, err := h.Load(path)
		if err != nil {
			return nil, err
		}
		all = append(all, descs...)
	}
	return all, nil
}

// Descriptors returns every tool loaded so far.
func (h *Host) Descriptors() []tool.Descriptor {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]tool.Descriptor, len(h.tools))
	copy(out, h.tools)
	return out
}

// Register adds every loaded tool to the registry.
func (h *Host) Register(reg *tool.Registry) int {
	descs := h.Descriptors()
	for _, d := range descs {
		reg.Register(d)
	}
	return len(descs)
}

// Close kills all plugin subprocesses. Kill blocks until each process
// has exited.
func (h *Host) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = nil
	h.tools = nil
	h.mu.Unlock()

	for _, c := range clients {
		c.Kill()
	}
}

// compileManifests turns plugin manifests into registrable descriptors.
// Unnamed manifests are dropped.
func compileManifests(provider ToolProvider, manifests []Manifest) []tool.Descriptor {
	descs := make([]tool.Descriptor, 0, len(manifests))
	for _, m := range manifests {
		if m.Name == "" {
			slog.Warn("Skipping plugin tool with empty name")
			continue
		}
		params := m.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		name := m.Name
		descs = append(descs, tool.Descriptor{
			Name:        name,
			Description: m.Description,
			Parameters:  params,
			Tags:        []string{"plugin"},
			Func: func(_ context.Context, _ *tool.ActionContext, args map[string]any) (any, error) {
				return provider.Call(name, args)
			},
		})
	}
	return descs
}
