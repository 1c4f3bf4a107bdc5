// Package remoteops bridges a remote operation registry into the tool
// system. Operations are enumerated over HTTP, compiled into tool
// descriptors, and executed by posting the merged arguments back to the
// registry. Parameter bindings let an operator re-describe a parameter
// for the LLM ("ai") or pin its value and hide it entirely ("manual").
package remoteops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/drover-ai/drover/pkg/config"
	"github.com/drover-ai/drover/pkg/httpclient"
	"github.com/drover-ai/drover/pkg/tool"
)

// Binding adjusts how one operation parameter is exposed.
//
// Mode "ai" replaces the parameter's description with Value so the LLM
// sees operator-supplied guidance; the LLM still fills the argument.
// Mode "manual" removes the parameter from the published schema and
// overlays Value on the arguments at call time.
type Binding struct {
	Mode  string `json:"mode"`
	Value string `json:"value"`
}

// LegacyParam is the flat {name, description} parameter form older
// registries serve instead of a JSON schema.
type LegacyParam struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Operation is one remote operation descriptor as served by the
// registry's enumerate endpoint.
type Operation struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Description       string             `json:"description"`
	CustomName        string             `json:"customName,omitempty"`
	CustomDescription string             `json:"customDescription,omitempty"`
	Tags              []string           `json:"tags,omitempty"`
	Parameters        map[string]any     `json:"parameters,omitempty"`
	Schema            map[string]any     `json:"schema,omitempty"`
	Params            []LegacyParam      `json:"params,omitempty"`
	Bindings          map[string]Binding `json:"bindings,omitempty"`
	Path              string             `json:"path,omitempty"`
}

// EffectiveName returns the operator-assigned name when present.
func (op Operation) EffectiveName() string {
	if op.CustomName != "" {
		return op.CustomName
	}
	return op.ID
}

// EffectiveDescription returns the operator-assigned description when
// present.
func (op Operation) EffectiveDescription() string {
	if op.CustomDescription != "" {
		return op.CustomDescription
	}
	return op.Description
}

type listResponse struct {
	Data []Operation `json:"data"`
}

type executeRequest struct {
	Data executeEnvelope `json:"data"`
}

type executeEnvelope struct {
	Action       executeAction `json:"action"`
	Conversation string        `json:"conversation"`
	Message      string        `json:"message"`
	Assistant    string        `json:"assistant"`
}

type executeAction struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload"`
}

// Client talks to one remote operation registry.
type Client struct {
	cfg        config.RemoteOpsConfig
	httpClient *httpclient.Client
}

// NewClient builds a registry client from the given configuration.
func NewClient(cfg config.RemoteOpsConfig) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("remote ops config: %w", err)
	}
	return &Client{
		cfg: cfg,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			httpclient.WithMaxRetries(3),
		),
	}, nil
}

// ListOperations fetches the operations available to the calling
// principal. The bearer token on the action context authenticates the
// request; the registry decides what the principal may see.
func (c *Client) ListOperations(ctx context.Context, ac *tool.ActionContext) ([]Operation, error) {
	body, err := c.post(ctx, c.cfg.ListPath, struct{}{}, bearer(ac))
	if err != nil {
		return nil, err
	}
	var list listResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode operation list: %w", err)
	}
	slog.Debug("Remote operations listed", "count", len(list.Data), "url", c.cfg.BaseURL+c.cfg.ListPath)
	return list.Data, nil
}

// Compile turns an operation descriptor into an invokable tool. The
// published schema reflects the operation's bindings; the callable posts
// the merged arguments to the registry's execute endpoint.
func (c *Client) Compile(op Operation) tool.Descriptor {
	schema := effectiveSchema(op)
	applyBindings(schema, op.Bindings)
	return tool.Descriptor{
		Name:        op.EffectiveName(),
		Description: op.EffectiveDescription(),
		Parameters:  schema,
		Tags:        op.Tags,
		Func:        c.executeFunc(op),
	}
}

// executeFunc returns the compiled callable for one operation. Transport
// failures surface as a {success:false, message} result rather than an
// error so the LLM sees what went wrong on its next turn.
func (c *Client) executeFunc(op Operation) tool.RawFunc {
	return func(ctx context.Context, ac *tool.ActionContext, args map[string]any) (any, error) {
		payload := make(map[string]any, len(args)+len(op.Bindings))
		for k, v := range args {
			payload[k] = v
		}
		// Manual bindings always win over LLM-supplied values.
		for param, b := range op.Bindings {
			if b.Mode == bindingManual {
				payload[param] = coerceManualValue(b.Value)
			}
		}
		result, err := c.execute(ctx, ac, op.ID, payload)
		if err != nil {
			slog.Warn("Remote operation failed", "operation", op.ID, "error", err)
			return map[string]any{"success": false, "message": err.Error()}, nil
		}
		return result, nil
	}
}

func (c *Client) execute(ctx context.Context, ac *tool.ActionContext, opID string, payload map[string]any) (map[string]any, error) {
	req := executeRequest{
		Data: executeEnvelope{
			Action:       executeAction{Name: opID, Payload: payload},
			Conversation: sessionID(ac),
			Message:      messageID(ac),
			Assistant:    agentID(ac),
		},
	}
	body, err := c.post(ctx, c.cfg.ExecutePath, req, bearer(ac))
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode operation result: %w", err)
	}
	return unwrap(result), nil
}

// unwrap peels up to three nested data/result envelopes off a successful
// response and returns the innermost object. Non-success responses pass
// through untouched so the success=false signal reaches the caller.
func unwrap(body map[string]any) map[string]any {
	if success, ok := body["success"].(bool); ok && !success {
		return body
	}
	current := body
	for i := 0; i < 3; i++ {
		next, ok := current["data"].(map[string]any)
		if !ok {
			next, ok = current["result"].(map[string]any)
		}
		if !ok {
			break
		}
		current = next
	}
	return current
}

func (c *Client) post(ctx context.Context, path string, body any, bearerToken string) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("remote ops request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote ops %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}

const (
	bindingAI     = "ai"
	bindingManual = "manual"
)

// effectiveSchema picks the first non-empty parameter source: the full
// schema under parameters, the alternative schema field, or a schema
// derived from the legacy flat list. The result is always a private copy
// safe to mutate.
func effectiveSchema(op Operation) map[string]any {
	switch {
	case len(op.Parameters) > 0:
		return cloneSchema(op.Parameters)
	case len(op.Schema) > 0:
		return cloneSchema(op.Schema)
	default:
		return schemaFromLegacy(op.Params)
	}
}

// cloneSchema deep-copies a schema via a JSON round trip so compiled
// descriptors never share mutable state with the source operation.
func cloneSchema(schema map[string]any) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// schemaFromLegacy builds an object schema from the flat {name,
// description} list. Types are inferred from the description text and a
// parameter is required iff its description mentions the word required.
func schemaFromLegacy(params []LegacyParam) map[string]any {
	props := make(map[string]any, len(params))
	var required []any
	for _, p := range params {
		props[p.Name] = map[string]any{
			"type":        inferType(p.Description),
			"description": p.Description,
		}
		if strings.Contains(strings.ToLower(p.Description), "required") {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// inferType maps a legacy parameter description to a JSON type by
// substring scan, first match wins.
func inferType(description string) string {
	d := strings.ToLower(description)
	switch {
	case strings.Contains(d, "boolean"):
		return "boolean"
	case strings.Contains(d, "string"), strings.Contains(d, "str"):
		return "string"
	case strings.Contains(d, "number"), strings.Contains(d, "integer"), strings.Contains(d, "int"):
		return "number"
	case strings.Contains(d, "array"), strings.Contains(d, "list"):
		return "array"
	case strings.Contains(d, "object"), strings.Contains(d, "dict"):
		return "object"
	default:
		return "string"
	}
}

// applyBindings rewrites the schema in place. "ai" bindings replace a
// parameter's description and leave type and required-ness alone;
// "manual" bindings delete the parameter from properties and required.
func applyBindings(schema map[string]any, bindings map[string]Binding) {
	if len(bindings) == 0 {
		return
	}
	props, _ := schema["properties"].(map[string]any)
	for param, b := range bindings {
		switch b.Mode {
		case bindingAI:
			if prop, ok := props[param].(map[string]any); ok {
				prop["description"] = b.Value
			}
		case bindingManual:
			delete(props, param)
			dropRequired(schema, param)
		}
	}
}

// dropRequired removes one name from the schema's required list,
// tolerating both []any (JSON-decoded) and []string forms.
func dropRequired(schema map[string]any, name string) {
	switch required := schema["required"].(type) {
	case []any:
		keep := make([]any, 0, len(required))
		for _, r := range required {
			if s, ok := r.(string); ok && s == name {
				continue
			}
			keep = append(keep, r)
		}
		if len(keep) == 0 {
			delete(schema, "required")
		} else {
			schema["required"] = keep
		}
	case []string:
		keep := make([]string, 0, len(required))
		for _, r := range required {
			if r != name {
				keep = append(keep, r)
			}
		}
		if len(keep) == 0 {
			delete(schema, "required")
		} else {
			schema["required"] = keep
		}
	}
}

// coerceManualValue turns the literal strings "true" and "false" into
// booleans; everything else stays a string.
func coerceManualValue(value string) any {
	switch value {
	case "true":
		return true
	case "false":
		return false
	default:
		return value
	}
}

func bearer(ac *tool.ActionContext) string {
	if ac == nil {
		return ""
	}
	return ac.BearerToken
}

func sessionID(ac *tool.ActionContext) string {
	if ac == nil {
		return ""
	}
	return ac.SessionID
}

func messageID(ac *tool.ActionContext) string {
	if ac == nil {
		return ""
	}
	return ac.MessageID
}

func agentID(ac *tool.ActionContext) string {
	if ac == nil {
		return ""
	}
	return ac.AgentID
}

// Toolset lists a registry's operations and registers the compiled
// descriptors into a tool registry.
type Toolset struct {
	client *Client
}

// NewToolset builds a toolset over a fresh client.
func NewToolset(cfg config.RemoteOpsConfig) (*Toolset, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Toolset{client: client}, nil
}

// Client exposes the underlying registry client.
func (t *Toolset) Client() *Client {
	return t.client
}

// Descriptors fetches and compiles every operation the principal may use.
func (t *Toolset) Descriptors(ctx context.Context, ac *tool.ActionContext) ([]tool.Descriptor, error) {
	ops, err := t.client.ListOperations(ctx, ac)
	if err != nil {
		return nil, err
	}
	descriptors := make([]tool.Descriptor, 0, len(ops))
	for _, op := range ops {
		descriptors = append(descriptors, t.client.Compile(op))
	}
	return descriptors, nil
}

// Register compiles every listed operation into the given registry and
// reports how many tools were added.
func (t *Toolset) Register(ctx context.Context, ac *tool.ActionContext, reg *tool.Registry) (int, error) {
	descriptors, err := t.Descriptors(ctx, ac)
	if err != nil {
		return 0, err
	}
	for _, d := range descriptors {
		reg.Register(d)
	}
	return len(descriptors), nil
}
