// Package mcp bridges tools published by an MCP server into the tool
// system. The server is spoken to over the streamable HTTP transport;
// its tool list compiles into descriptors whose callables round-trip
// through tools/call.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/drover-ai/drover/pkg/config"
	"github.com/drover-ai/drover/pkg/tool"
)

const protocolVersion = "2024-11-05"

// Toolset connects one MCP server and exposes its tools as descriptors.
// The connection is established lazily on the first Descriptors call.
type Toolset struct {
	cfg config.MCPServerConfig

	mu        sync.Mutex
	client    *client.Client
	tools     []tool.Descriptor
	connected bool
}

// NewToolset validates the endpoint config. No connection is made yet.
func NewToolset(cfg config.MCPServerConfig) (*Toolset, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("mcp config: %w", err)
	}
	return &Toolset{cfg: cfg}, nil
}

// Descriptors returns the server's tools, connecting on first use.
func (t *Toolset) Descriptors(ctx context.Context) ([]tool.Descriptor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		if err := t.connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to MCP server: %w", err)
		}
	}

	out := make([]tool.Descriptor, len(t.tools))
	copy(out, t.tools)
	return out, nil
}

// Register lists the server's tools and registers each descriptor,
// returning how many were added.
func (t *Toolset) Register(ctx context.Context, reg *tool.Registry) (int, error) {
	descs, err := t.Descriptors(ctx)
	if err != nil {
		return 0, err
	}
	for _, d := range descs {
		reg.Register(d)
	}
	return len(descs), nil
}

// Close shuts the client down. The toolset reconnects on next use.
func (t *Toolset) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	t.tools = nil
	t.connected = false
	return err
}

// connect performs the initialize handshake and tool listing. Caller
// holds t.mu.
func (t *Toolset) connect(ctx context.Context) error {
	cli, err := client.NewStreamableHttpClient(t.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to create MCP client: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	if err := cli.Start(cctx); err != nil {
		return fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = protocolVersion
	initReq.Params.ClientInfo = mcpgo.Implementation{
		Name:    "drover",
		Version: "1.0.0",
	}
	if _, err := cli.Initialize(cctx, initReq); err != nil {
		cli.Close()
		return fmt.Errorf("failed to initialize MCP: %w", err)
	}

	listResp, err := cli.ListTools(cctx, mcpgo.ListToolsRequest{})
	if err != nil {
		cli.Close()
		return fmt.Errorf("failed to list tools: %w", err)
	}

	tools := make([]tool.Descriptor, 0, len(listResp.Tools))
	for _, mt := range listResp.Tools {
		tools = append(tools, tool.Descriptor{
			Name:        mt.Name,
			Description: mt.Description,
			Parameters:  schemaMap(mt.InputSchema),
			Tags:        []string{"mcp"},
			Func:        t.callFunc(mt.Name),
		})
	}

	t.client = cli
	t.tools = tools
	t.connected = true

	slog.Info("Connected to MCP server", "url", t.cfg.URL, "tools", len(tools))
	return nil
}

// callFunc builds the callable for one server tool.
func (t *Toolset) callFunc(name string) tool.RawFunc {
	return func(ctx context.Context, _ *tool.ActionContext, args map[string]any) (any, error) {
		t.mu.Lock()
		cli := t.client
		t.mu.Unlock()
		if cli == nil {
			return nil, fmt.Errorf("MCP client not connected")
		}

		cctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()

		req := mcpgo.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = args

		resp, err := cli.CallTool(cctx, req)
		if err != nil {
			return nil, fmt.Errorf("MCP call failed: %w", err)
		}
		return resultMap(resp), nil
	}
}

// resultMap flattens a call result: protocol-level tool failures map to
// an error key (the LLM reads them as tool output), single text content
// to result, several to results.
func resultMap(resp *mcpgo.CallToolResult) map[string]any {
	result := make(map[string]any)

	if resp.IsError {
		for _, content := range resp.Content {
			if text, ok := content.(mcpgo.TextContent); ok {
				result["error"] = text.Text
				break
			}
		}
		if result["error"] == nil {
			result["error"] = "unknown error"
		}
		return result
	}

	var texts []string
	for _, content := range resp.Content {
		if text, ok := content.(mcpgo.TextContent); ok {
			texts = append(texts, text.Text)
		}
	}
	switch len(texts) {
	case 0:
	case 1:
		result["result"] = texts[0]
	default:
		result["results"] = texts
	}
	return result
}

// schemaMap converts the typed input schema to a plain JSON-schema map.
func schemaMap(schema mcpgo.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
