package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/drover-ai/drover/pkg/config"
	"github.com/drover-ai/drover/pkg/observability"
	"github.com/drover-ai/drover/pkg/prompt"
)

// GeminiProvider talks to Google Gemini through the official genai SDK.
type GeminiProvider struct {
	client *genai.Client
	config config.LLMConfig
}

// NewGeminiProvider builds a provider from config.
func NewGeminiProvider(cfg config.LLMConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for gemini")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		config: cfg,
	}, nil
}

// Model returns the configured model identifier.
func (p *GeminiProvider) Model() string {
	return p.config.Model
}

// Close releases provider resources.
func (p *GeminiProvider) Close() error {
	return nil
}

// Generate submits the prompt and returns the model reply. Streaming is
// not wired for this provider; the full reply arrives as one chunk.
func (p *GeminiProvider) Generate(ctx context.Context, pr prompt.Prompt, opts Options) (Reply, error) {
	tracer := observability.GetTracer("drover.llm")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMModel, p.config.Model),
			attribute.String(observability.AttrLLMProvider, "gemini"),
		))
	defer span.End()

	start := time.Now()
	metrics := observability.GetGlobalMetrics()

	contents, genConfig := p.buildRequest(pr)

	reqCtx := ctx
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	genResp, err := p.client.Models.GenerateContent(reqCtx, p.config.Model, contents, genConfig)
	duration := time.Since(start)

	if err != nil {
		err = fmt.Errorf("gemini generation failed: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if metrics != nil {
			metrics.RecordLLMCall(ctx, p.config.Model, duration, 0, 0, err)
		}
		return Reply{}, err
	}

	reply, err := p.parseResponse(genResp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if metrics != nil {
			metrics.RecordLLMCall(ctx, p.config.Model, duration, 0, 0, err)
		}
		return Reply{}, err
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

// buildRequest converts the prompt to genai contents. System messages
// become the system instruction; assistant turns map to the model role.
func (p *GeminiProvider) buildRequest(pr prompt.Prompt) ([]*genai.Content, *genai.GenerateContentConfig) {
	var systemParts []string
	var contents []*genai.Content

	for _, m := range pr.Messages {
		if m.Role == prompt.RoleSystem {
			if m.Content != "" {
				systemParts = append(systemParts, m.Content)
			}
			continue
		}

		role := "user"
		if m.Role == prompt.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	genConfig := &genai.GenerateContentConfig{}
	if len(systemParts) > 0 {
		genConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(systemParts, "\n\n")}},
		}
	}
	if p.config.Temperature != nil {
		genConfig.Temperature = genai.Ptr(float32(*p.config.Temperature))
	}
	if p.config.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(p.config.MaxTokens)
	}

	if len(pr.Tools) > 0 {
		declarations := make([]*genai.FunctionDeclaration, len(pr.Tools))
		for i, t := range pr.Tools {
			declarations[i] = &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGenaiSchema(t.Parameters),
			}
		}
		genConfig.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}

	return contents, genConfig
}

func (p *GeminiProvider) parseResponse(genResp *genai.GenerateContentResponse) (Reply, error) {
	if len(genResp.Candidates) == 0 {
		return Reply{}, fmt.Errorf("gemini returned no candidates")
	}

	candidate := genResp.Candidates[0]

	var text string
	var call *genai.FunctionCall
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				text += part.Text
			}
			if part.FunctionCall != nil && call == nil {
				call = part.FunctionCall
			}
		}
	}

	if call != nil {
		serialized, err := serializeToolCall(call.Name, call.Args)
		if err != nil {
			return Reply{}, err
		}
		text = serialized
	}

	reply := Reply{
		Text:       text,
		StopReason: string(candidate.FinishReason),
	}
	if genResp.UsageMetadata != nil {
		reply.InputTokens = int(genResp.UsageMetadata.PromptTokenCount)
		reply.OutputTokens = int(genResp.UsageMetadata.CandidatesTokenCount)
	}

	return reply, nil
}

// toGenaiSchema converts a JSON schema map to the SDK's schema type.
func toGenaiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	s := &genai.Schema{}

	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(t)
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				s.Properties[name] = toGenaiSchema(propMap)
			}
		}
	}
	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = toGenaiSchema(items)
	}
	if enum, ok := schema["enum"].([]any); ok {
		for _, e := range enum {
			if es, ok := e.(string); ok {
				s.Enum = append(s.Enum, es)
			}
		}
	}

	return s
}

var _ Provider = (*GeminiProvider)(nil)
