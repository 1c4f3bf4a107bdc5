// Package plugin loads external tool providers as subprocesses speaking
// hashicorp go-plugin's net/rpc protocol. A plugin binary implements
// ToolProvider and calls Serve from its main; the host compiles the
// provider's manifests into tool descriptors.
package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/rpc"

	goplugin "github.com/hashicorp/go-plugin"
)

// ProviderName is the dispense key plugin binaries serve under.
const ProviderName = "tools"

// Handshake pairs host and plugin builds. A binary built against a
// different cookie is rejected before any RPC happens.
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "DROVER_PLUGIN",
	MagicCookieValue: "drover_tool_provider_v1",
}

// Manifest describes one tool a plugin exports. Parameters is a
// JSON-schema object; nil publishes an empty object schema.
type Manifest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolProvider is the contract a plugin binary implements. Calls are
// synchronous; the net/rpc protocol carries no context.
type ToolProvider interface {
	List() ([]Manifest, error)
	Call(name string, args map[string]any) (any, error)
}

// Serve runs the provider as a plugin binary. Call it from the plugin's
// main; it blocks until the host kills the process.
func Serve(impl ToolProvider) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			ProviderName: &Plugin{Impl: impl},
		},
	})
}

// Plugin is the go-plugin glue binding ToolProvider to the net/rpc
// protocol. Impl is only consulted on the serving side.
type Plugin struct {
	Impl ToolProvider
}

func (p *Plugin) Server(*goplugin.MuxBroker) (any, error) {
	return &rpcServer{impl: p.Impl}, nil
}

func (p *Plugin) Client(_ *goplugin.MuxBroker, c *rpc.Client) (any, error) {
	return &rpcClient{client: c}, nil
}

// Wire structs are exported because net/rpc only serves methods whose
// argument types are exported or builtin. Schemas, args and results
// travel as JSON bytes so arbitrary nesting needs no gob registration.

type WireManifest struct {
	Name        string
	Description string
	Parameters  []byte
}

type ListReply struct {
	Manifests []WireManifest
	Err       string
}

type CallArgs struct {
	Name string
	Args []byte
}

type CallReply struct {
	Result []byte
	Err    string
}

// rpcClient is the host-side ToolProvider speaking to the subprocess.
type rpcClient struct {
	client *rpc.Client
}

func (c *rpcClient) List() ([]Manifest, error) {
	var resp ListReply
	if err := c.client.Call("Plugin.List", new(any), &resp); err != nil {
		return nil, fmt.Errorf("plugin list: %w", err)
	}
	if resp.Err != "" {
		return nil, errors.New(resp.Err)
	}

	manifests := make([]Manifest, 0, len(resp.Manifests))
	for _, p := range resp.Manifests {
		m := Manifest{Name: p.Name, Description: p.Description}
		if len(p.Parameters) > 0 {
			if err := json.Unmarshal(p.Parameters, &m.Parameters); err != nil {
				return nil, fmt.Errorf("plugin manifest %q: bad parameter schema: %w", p.Name, err)
			}
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

func (c *rpcClient) Call(name string, args map[string]any) (any, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("plugin call %q: encode args: %w", name, err)
	}

	var resp CallReply
	if err := c.client.Call("Plugin.Call", CallArgs{Name: name, Args: data}, &resp); err != nil {
		return nil, fmt.Errorf("plugin call %q: %w", name, err)
	}
	if resp.Err != "" {
		return nil, errors.New(resp.Err)
	}
	if len(resp.Result) == 0 {
		return nil, nil
	}

	var out any
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		return nil, fmt.Errorf("plugin call %q: decode result: %w", name, err)
	}
	return out, nil
}

// rpcServer runs inside the plugin process and forwards to the
// author's implementation. Business failures travel in the Err field;
// a method error would mask them as transport faults.
type rpcServer struct {
	impl ToolProvider
}

func (s *rpcServer) List(_ any, resp *ListReply) error {
	manifests, err := s.impl.List()
	if err != nil {
		resp.Err = err.Error()
		return nil
	}
	for _, m := range manifests {
		p := WireManifest{Name: m.Name, Description: m.Description}
		if m.Parameters != nil {
			data, err := json.Marshal(m.Parameters)
			if err != nil {
				resp.Err = fmt.Sprintf("manifest %q: encode parameter schema: %v", m.Name, err)
				return nil
			}
			p.Parameters = data
		}
		resp.Manifests = append(resp.Manifests, p)
	}
	return nil
}

func (s *rpcServer) Call(req CallArgs, resp *CallReply) error {
	var args map[string]any
	if len(req.Args) > 0 {
		if err := json.Unmarshal(req.Args, &args); err != nil {
			resp.Err = fmt.Sprintf("decode args: %v", err)
			return nil
		}
	}

	result, err := s.impl.Call(req.Name, args)
	if err != nil {
		resp.Err = err.Error()
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		resp.Err = fmt.Sprintf("encode result: %v", err)
		return nil
	}
	resp.Result = data
	return nil
}

var (
	_ ToolProvider    = (*rpcClient)(nil)
	_ goplugin.Plugin = (*Plugin)(nil)
)
