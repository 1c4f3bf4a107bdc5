package llm

import (
	"bufio"
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

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider speaks the chat-completions protocol. The configurable
// base URL covers OpenAI itself, Azure-compatible hosts, and local
// runtimes exposing the same API.
type OpenAIProvider struct {
	config     config.LLMConfig
	httpClient *httpclient.Client
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Tools       []openAITool    `json:"tools,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Message      openAIChoiceMessage `json:"message"`
	FinishReason string              `json:"finish_reason"`
}

type openAIChoiceMessage struct {
	Content   string           `json:"content"`
	ToolCalls []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// openAIStreamChunk is one SSE data frame of a streamed completion.
type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openAIUsage `json:"usage,omitempty"`
}

// NewOpenAIProvider builds a provider from config.
func NewOpenAIProvider(cfg config.LLMConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for openai")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	maxRetries := 3
	if cfg.MaxRetries != nil {
		maxRetries = *cfg.MaxRetries
	}

	return &OpenAIProvider{
		config: cfg,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			httpclient.WithMaxRetries(maxRetries),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
		),
	}, nil
}

// Model returns the configured model identifier.
func (p *OpenAIProvider) Model() string {
	return p.config.Model
}

// Close releases provider resources.
func (p *OpenAIProvider) Close() error {
	return nil
}

// Generate submits the prompt and returns the model reply.
func (p *OpenAIProvider) Generate(ctx context.Context, pr prompt.Prompt, opts Options) (Reply, error) {
	tracer := observability.GetTracer("drover.llm")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMModel, p.config.Model),
			attribute.String(observability.AttrLLMProvider, "openai"),
			attribute.Bool("streaming", opts.Stream),
		))
	defer span.End()

	start := time.Now()
	metrics := observability.GetGlobalMetrics()

	var reply Reply
	var err error
	if opts.Stream {
		reply, err = p.generateStream(ctx, pr, opts.OnChunk)
	} else {
		reply, err = p.generate(ctx, pr)
	}

	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if metrics != nil {
			metrics.RecordLLMCall(ctx, p.config.Model, duration, 0, 0, err)
		}
		return Reply{}, err
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

func (p *OpenAIProvider) generate(ctx context.Context, pr prompt.Prompt) (Reply, error) {
	request := p.buildRequest(pr, false)

	resp, err := p.makeRequest(ctx, request)
	if err != nil {
		return Reply{}, err
	}

	if resp.Error != nil {
		return Reply{}, fmt.Errorf("openai API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return Reply{}, fmt.Errorf("openai returned no choices")
	}

	choice := resp.Choices[0]
	text := choice.Message.Content

	if len(choice.Message.ToolCalls) > 0 {
		call := choice.Message.ToolCalls[0]
		var args map[string]any
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return Reply{}, fmt.Errorf("failed to decode tool call arguments: %w", err)
			}
		}
		text, err = serializeToolCall(call.Function.Name, args)
		if err != nil {
			return Reply{}, err
		}
	}

	return Reply{
		Text:         text,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		StopReason:   choice.FinishReason,
	}, nil
}

func (p *OpenAIProvider) generateStream(ctx context.Context, pr prompt.Prompt, onChunk func(string)) (Reply, error) {
	request := p.buildRequest(pr, true)

	jsonData, err := json.Marshal(request)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return Reply{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(jsonData)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Reply{}, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var text strings.Builder
	var reply Reply

	// Tool call fragments accumulate per index across frames.
	type callAccum struct {
		name string
		args strings.Builder
	}
	calls := map[int]*callAccum{}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return Reply{}, fmt.Errorf("failed to decode stream chunk: %w", err)
		}

		if chunk.Usage != nil {
			reply.InputTokens = chunk.Usage.PromptTokens
			reply.OutputTokens = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			text.WriteString(choice.Delta.Content)
			if onChunk != nil {
				onChunk(choice.Delta.Content)
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			acc, ok := calls[tc.Index]
			if !ok {
				acc = &callAccum{}
				calls[tc.Index] = acc
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			acc.args.WriteString(tc.Function.Arguments)
		}
		if choice.FinishReason != "" {
			reply.StopReason = choice.FinishReason
		}
	}
	if err := scanner.Err(); err != nil {
		return Reply{}, fmt.Errorf("failed to read stream: %w", err)
	}

	reply.Text = text.String()

	if acc, ok := calls[0]; ok && acc.name != "" {
		var args map[string]any
		if raw := acc.args.String(); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return Reply{}, fmt.Errorf("failed to decode tool call arguments: %w", err)
			}
		}
		reply.Text, err = serializeToolCall(acc.name, args)
		if err != nil {
			return Reply{}, err
		}
	}

	return reply, nil
}

func (p *OpenAIProvider) buildRequest(pr prompt.Prompt, stream bool) openAIRequest {
	messages := make([]openAIMessage, 0, len(pr.Messages))
	for _, m := range pr.Messages {
		messages = append(messages, openAIMessage{Role: m.Role, Content: m.Content})
	}

	request := openAIRequest{
		Model:       p.config.Model,
		Messages:    messages,
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
		Stream:      stream,
	}

	if len(pr.Tools) > 0 {
		tools := make([]openAITool, len(pr.Tools))
		for i, t := range pr.Tools {
			tools[i] = openAITool{
				Type: "function",
				Function: openAIFunction{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			}
		}
		request.Tools = tools
	}

	return request
}

func (p *OpenAIProvider) makeRequest(ctx context.Context, request openAIRequest) (*openAIResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(jsonData)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

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
		var apiErr openAIResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != nil {
			return nil, fmt.Errorf("openai API error: %s", apiErr.Error.Message)
		}
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &response, nil
}

var _ Provider = (*OpenAIProvider)(nil)
