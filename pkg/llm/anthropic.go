package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drover-ai/drover/pkg/config"
	"github.com/drover-ai/drover/pkg/httpclient"
	"github.com/drover-ai/drover/pkg/observability"
	"github.com/drover-ai/drover/pkg/prompt"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

// AnthropicProvider speaks the messages API. System messages are hoisted
// to the top-level system field the API requires.
type AnthropicProvider struct {
	config     config.LLMConfig
	httpClient *httpclient.Client
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input *map[string]any `json:"input,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
	Error      *anthropicError    `json:"error,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewAnthropicProvider builds a provider from config.
func NewAnthropicProvider(cfg config.LLMConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for anthropic")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAnthropicBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	maxRetries := 3
	if cfg.MaxRetries != nil {
		maxRetries = *cfg.MaxRetries
	}

	return &AnthropicProvider{
		config: cfg,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			httpclient.WithMaxRetries(maxRetries),
			httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders),
		),
	}, nil
}

// Model returns the configured model identifier.
func (p *AnthropicProvider) Model() string {
	return p.config.Model
}

// Close releases provider resources.
func (p *AnthropicProvider) Close() error {
	return nil
}

// Generate submits the prompt and returns the model reply. Streaming is
// not wired for this provider; the full reply arrives as one chunk.
func (p *AnthropicProvider) Generate(ctx context.Context, pr prompt.Prompt, opts Options) (Reply, error) {
	tracer := observability.GetTracer("drover.llm")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMModel, p.config.Model),
			attribute.String(observability.AttrLLMProvider, "anthropic"),
		))
	defer span.End()

	start := time.Now()
	metrics := observability.GetGlobalMetrics()

	request := p.buildRequest(pr)
	response, err := p.makeRequest(ctx, request)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if metrics != nil {
			metrics.RecordLLMCall(ctx, p.config.Model, duration, 0, 0, err)
		}
		return Reply{}, err
	}

	if response.Error != nil {
		apiErr := fmt.Errorf("anthropic API error: %s", response.Error.Message)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, response.Error.Message)
		if metrics != nil {
			metrics.RecordLLMCall(ctx, p.config.Model, duration, 0, 0, apiErr)
		}
		return Reply{}, apiErr
	}

	var text string
	var call *anthropicContent
	for i, content := range response.Content {
		switch content.Type {
		case "text":
			text += content.Text
		case "tool_use":
			if call == nil {
				call = &response.Content[i]
			}
		}
	}

	if call != nil {
		var args map[string]any
		if call.Input != nil {
			args = *call.Input
		}
		text, err = serializeToolCall(call.Name, args)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Reply{}, err
		}
	}

	reply := Reply{
		Text:         text,
		InputTokens:  response.Usage.InputTokens,
		OutputTokens: response.Usage.OutputTokens,
		StopReason:   response.StopReason,
	}

	if opts.OnChunk != nil && reply.Text != "" {
		opts.OnChunk(reply.Text)
	}

	span.SetAttributes(
		attribute.Int(observability.AttrLLMTokensInput, reply.InputTokens),
		attribute.Int(observability.AttrLLMTokensOutput, reply.OutputTokens),
	)
	span.SetStatus(codes.Ok, "success")
	if metrics != nil {
		metrics.RecordLLMCall(ctx, p.config.Model, duration, reply.InputTokens, reply.OutputTokens, nil)
	}

	return reply, nil
}

// buildRequest hoists system messages into the top-level system field and
// passes the rest through as content blocks.
func (p *AnthropicProvider) buildRequest(pr prompt.Prompt) anthropicRequest {
	var systemParts []string
	messages := make([]anthropicMessage, 0, len(pr.Messages))

	for _, m := range pr.Messages {
		if m.Role == prompt.RoleSystem {
			if m.Content != "" {
				systemParts = append(systemParts, m.Content)
			}
			continue
		}

		role := m.Role
		if role != prompt.RoleAssistant {
			role = prompt.RoleUser
		}
		messages = append(messages, anthropicMessage{
			Role:    role,
			Content: []anthropicContent{{Type: "text", Text: m.Content}},
		})
	}

	request := anthropicRequest{
		Model:       p.config.Model,
		Messages:    messages,
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
		System:      strings.Join(systemParts, "\n\n"),
	}

	if len(pr.Tools) > 0 {
		tools := make([]anthropicTool, len(pr.Tools))
		for i, t := range pr.Tools {
			tools[i] = anthropicTool{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: t.Parameters,
			}
		}
		request.Tools = tools
	}

	return request
}

func (p *AnthropicProvider) makeRequest(ctx context.Context, request anthropicRequest) (*anthropicResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/v1/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(jsonData)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &response, nil
}

var _ Provider = (*AnthropicProvider)(nil)
