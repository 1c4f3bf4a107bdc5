package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/drover-ai/drover/pkg/config"
	"github.com/drover-ai/drover/pkg/prompt"
)

func TestSerializeToolCall(t *testing.T) {
	text, err := serializeToolCall("get_weather", map[string]any{
		"city":  "Paris",
		"units": "metric",
	})
	if err != nil {
		t.Fatalf("serializeToolCall() error = %v", err)
	}

	want := `{"tool":"get_weather","args":{"city":"Paris","units":"metric"}}`
	if text != want {
		t.Errorf("serializeToolCall() = %v, want %v", text, want)
	}
}

func TestSerializeToolCall_NilArgs(t *testing.T) {
	text, err := serializeToolCall("terminate", nil)
	if err != nil {
		t.Fatalf("serializeToolCall() error = %v", err)
	}

	want := `{"tool":"terminate","args":{}}`
	if text != want {
		t.Errorf("serializeToolCall() = %v, want %v", text, want)
	}
}

func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "cohere", Model: "command-r", APIKey: "key"})
	if err == nil {
		t.Fatal("New() expected error for unsupported provider")
	}
	if !strings.Contains(err.Error(), "unsupported LLM provider") {
		t.Errorf("New() error = %v, want mention of unsupported LLM provider", err)
	}
}

func TestNewOpenAIProvider_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIProvider(config.LLMConfig{Provider: config.LLMProviderOpenAI, Model: "gpt-4o"})
	if err == nil {
		t.Fatal("NewOpenAIProvider() expected error for missing API key")
	}
}

func TestOpenAIProvider_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected /chat/completions, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test-key" {
			t.Errorf("Expected Bearer token, got %s", auth)
		}

		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.Model != "gpt-4o" {
			t.Errorf("Expected model gpt-4o, got %s", req.Model)
		}
		if len(req.Messages) != 2 {
			t.Errorf("Expected 2 messages, got %d", len(req.Messages))
		}
		if req.Messages[0].Role != "system" {
			t.Errorf("Expected system role first, got %s", req.Messages[0].Role)
		}

		response := openAIResponse{
			Choices: []openAIChoice{
				{
					Message:      openAIChoiceMessage{Content: "Hello! How can I help?"},
					FinishReason: "stop",
				},
			},
			Usage: openAIUsage{PromptTokens: 10, CompletionTokens: 15, TotalTokens: 25},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(config.LLMConfig{
		Provider: config.LLMProviderOpenAI,
		Model:    "gpt-4o",
		BaseURL:  server.URL,
		APIKey:   "sk-test-key",
	})
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}

	reply, err := provider.Generate(context.Background(), prompt.Prompt{
		Messages: []prompt.Message{
			{Role: prompt.RoleSystem, Content: "You are helpful."},
			{Role: prompt.RoleUser, Content: "Hello"},
		},
	}, Options{})

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if reply.Text != "Hello! How can I help?" {
		t.Errorf("Generate() text = %v, want Hello! How can I help?", reply.Text)
	}
	if reply.InputTokens != 10 || reply.OutputTokens != 15 {
		t.Errorf("Generate() tokens = %d/%d, want 10/15", reply.InputTokens, reply.OutputTokens)
	}
	if reply.StopReason != "stop" {
		t.Errorf("Generate() stopReason = %v, want stop", reply.StopReason)
	}
}

func TestOpenAIProvider_Generate_ToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if len(req.Tools) != 1 {
			t.Errorf("Expected 1 tool, got %d", len(req.Tools))
		}
		if req.Tools[0].Function.Name != "get_weather" {
			t.Errorf("Expected tool get_weather, got %s", req.Tools[0].Function.Name)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{
				"message": {
					"content": "",
					"tool_calls": [{
						"id": "call_123",
						"type": "function",
						"function": {"name": "get_weather", "arguments": "{\"city\": \"Paris\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 10}
		}`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(config.LLMConfig{
		Provider: config.LLMProviderOpenAI,
		Model:    "gpt-4o",
		BaseURL:  server.URL,
		APIKey:   "sk-test-key",
	})
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}

	p := prompt.Prompt{
		Messages: []prompt.Message{{Role: prompt.RoleUser, Content: "Weather in Paris?"}},
		Tools: []prompt.ToolSchema{
			{
				Name:        "get_weather",
				Description: "Look up current weather",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"city": map[string]any{"type": "string"},
					},
				},
			},
		},
	}

	reply, err := provider.Generate(context.Background(), p, Options{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	want := `{"tool":"get_weather","args":{"city":"Paris"}}`
	if reply.Text != want {
		t.Errorf("Generate() text = %v, want %v", reply.Text, want)
	}
	if reply.StopReason != "tool_calls" {
		t.Errorf("Generate() stopReason = %v, want tool_calls", reply.StopReason)
	}
}

func TestOpenAIProvider_Generate_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(config.LLMConfig{
		Provider:   config.LLMProviderOpenAI,
		Model:      "gpt-4o",
		BaseURL:    server.URL,
		APIKey:     "sk-test-key",
		MaxRetries: config.IntPtr(0),
	})
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}

	_, err = provider.Generate(context.Background(), prompt.Prompt{
		Messages: []prompt.Message{{Role: prompt.RoleUser, Content: "Hello"}},
	}, Options{})

	if err == nil {
		t.Error("Generate() expected error, got nil")
	}
}

func TestOpenAIProvider_Generate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error": {"message": "model overloaded", "type": "server_error"}}`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(config.LLMConfig{
		Provider: config.LLMProviderOpenAI,
		Model:    "gpt-4o",
		BaseURL:  server.URL,
		APIKey:   "sk-test-key",
	})
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}

	_, err = provider.Generate(context.Background(), prompt.Prompt{
		Messages: []prompt.Message{{Role: prompt.RoleUser, Content: "Hello"}},
	}, Options{})

	if err == nil {
		t.Fatal("Generate() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("Generate() error = %v, want mention of model overloaded", err)
	}
}

func TestOpenAIProvider_Generate_Streaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if !req.Stream {
			t.Error("Expected stream=true in request")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		frames := []string{
			`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
			`data: {"choices":[{"delta":{"content":"lo"}}]}`,
			`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			`data: {"usage":{"prompt_tokens":10,"completion_tokens":2}}`,
			"data: [DONE]",
		}
		for _, frame := range frames {
			_, _ = w.Write([]byte(frame + "\n\n"))
		}
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(config.LLMConfig{
		Provider: config.LLMProviderOpenAI,
		Model:    "gpt-4o",
		BaseURL:  server.URL,
		APIKey:   "sk-test-key",
	})
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}

	var chunks []string
	reply, err := provider.Generate(context.Background(), prompt.Prompt{
		Messages: []prompt.Message{{Role: prompt.RoleUser, Content: "Hello"}},
	}, Options{
		Stream:  true,
		OnChunk: func(text string) { chunks = append(chunks, text) },
	})

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if reply.Text != "Hello" {
		t.Errorf("Generate() text = %v, want Hello", reply.Text)
	}
	if got := strings.Join(chunks, ""); got != "Hello" {
		t.Errorf("Chunks joined = %v, want Hello", got)
	}
	if reply.InputTokens != 10 || reply.OutputTokens != 2 {
		t.Errorf("Generate() tokens = %d/%d, want 10/2", reply.InputTokens, reply.OutputTokens)
	}
	if reply.StopReason != "stop" {
		t.Errorf("Generate() stopReason = %v, want stop", reply.StopReason)
	}
}

func TestOpenAIProvider_Generate_StreamingToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		// Arguments arrive split across frames and must be reassembled.
		frames := []string{
			`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"search","arguments":"{\"qu"}}]}}]}`,
			`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ery\":\"go\"}"}}]}}]}`,
			`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
			"data: [DONE]",
		}
		for _, frame := range frames {
			_, _ = w.Write([]byte(frame + "\n\n"))
		}
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(config.LLMConfig{
		Provider: config.LLMProviderOpenAI,
		Model:    "gpt-4o",
		BaseURL:  server.URL,
		APIKey:   "sk-test-key",
	})
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}

	reply, err := provider.Generate(context.Background(), prompt.Prompt{
		Messages: []prompt.Message{{Role: prompt.RoleUser, Content: "Search for go"}},
	}, Options{Stream: true})

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	want := `{"tool":"search","args":{"query":"go"}}`
	if reply.Text != want {
		t.Errorf("Generate() text = %v, want %v", reply.Text, want)
	}
}

func TestAnthropicProvider_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Expected /v1/messages, got %s", r.URL.Path)
		}
		if key := r.Header.Get("x-api-key"); key != "sk-ant-test" {
			t.Errorf("Expected x-api-key header, got %s", key)
		}
		if version := r.Header.Get("anthropic-version"); version != "2023-06-01" {
			t.Errorf("Expected anthropic-version 2023-06-01, got %s", version)
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.System != "You are helpful." {
			t.Errorf("Expected hoisted system message, got %q", req.System)
		}
		if len(req.Messages) != 1 {
			t.Errorf("Expected 1 message after hoisting, got %d", len(req.Messages))
		}
		if req.Messages[0].Role != "user" {
			t.Errorf("Expected user role, got %s", req.Messages[0].Role)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [{"type": "text", "text": "Hi there"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 9, "output_tokens": 3}
		}`))
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(config.LLMConfig{
		Provider: config.LLMProviderAnthropic,
		Model:    "claude-sonnet-4-20250514",
		BaseURL:  server.URL,
		APIKey:   "sk-ant-test",
	})
	if err != nil {
		t.Fatalf("NewAnthropicProvider() error = %v", err)
	}

	reply, err := provider.Generate(context.Background(), prompt.Prompt{
		Messages: []prompt.Message{
			{Role: prompt.RoleSystem, Content: "You are helpful."},
			{Role: prompt.RoleUser, Content: "Hello"},
		},
	}, Options{})

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if reply.Text != "Hi there" {
		t.Errorf("Generate() text = %v, want Hi there", reply.Text)
	}
	if reply.InputTokens != 9 || reply.OutputTokens != 3 {
		t.Errorf("Generate() tokens = %d/%d, want 9/3", reply.InputTokens, reply.OutputTokens)
	}
	if reply.StopReason != "end_turn" {
		t.Errorf("Generate() stopReason = %v, want end_turn", reply.StopReason)
	}
}

func TestAnthropicProvider_Generate_ToolUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [
				{"type": "text", "text": "Let me check."},
				{"type": "tool_use", "id": "tu_1", "name": "get_weather", "input": {"city": "Paris"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 15, "output_tokens": 8}
		}`))
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(config.LLMConfig{
		Provider: config.LLMProviderAnthropic,
		Model:    "claude-sonnet-4-20250514",
		BaseURL:  server.URL,
		APIKey:   "sk-ant-test",
	})
	if err != nil {
		t.Fatalf("NewAnthropicProvider() error = %v", err)
	}

	reply, err := provider.Generate(context.Background(), prompt.Prompt{
		Messages: []prompt.Message{{Role: prompt.RoleUser, Content: "Weather in Paris?"}},
	}, Options{})

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	want := `{"tool":"get_weather","args":{"city":"Paris"}}`
	if reply.Text != want {
		t.Errorf("Generate() text = %v, want %v", reply.Text, want)
	}
	if reply.StopReason != "tool_use" {
		t.Errorf("Generate() stopReason = %v, want tool_use", reply.StopReason)
	}
}

func TestAnthropicProvider_Generate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error": {"type": "overloaded_error", "message": "overloaded"}}`))
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(config.LLMConfig{
		Provider: config.LLMProviderAnthropic,
		Model:    "claude-sonnet-4-20250514",
		BaseURL:  server.URL,
		APIKey:   "sk-ant-test",
	})
	if err != nil {
		t.Fatalf("NewAnthropicProvider() error = %v", err)
	}

	_, err = provider.Generate(context.Background(), prompt.Prompt{
		Messages: []prompt.Message{{Role: prompt.RoleUser, Content: "Hello"}},
	}, Options{})

	if err == nil {
		t.Fatal("Generate() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "overloaded") {
		t.Errorf("Generate() error = %v, want mention of overloaded", err)
	}
}

func TestGeminiProvider_BuildRequest(t *testing.T) {
	temp := 0.2
	provider := &GeminiProvider{config: config.LLMConfig{
		Provider:    config.LLMProviderGemini,
		Model:       "gemini-2.0-flash",
		MaxTokens:   2048,
		Temperature: &temp,
	}}

	p := prompt.Prompt{
		Messages: []prompt.Message{
			{Role: prompt.RoleSystem, Content: "Be terse."},
			{Role: prompt.RoleUser, Content: "Hello"},
			{Role: prompt.RoleAssistant, Content: "Hi"},
		},
		Tools: []prompt.ToolSchema{
			{Name: "search", Description: "Search the web", Parameters: map[string]any{"type": "object"}},
		},
	}

	contents, genConfig := provider.buildRequest(p)

	if len(contents) != 2 {
		t.Fatalf("Expected 2 contents after system hoisting, got %d", len(contents))
	}
	if contents[0].Role != "user" {
		t.Errorf("Expected user role, got %s", contents[0].Role)
	}
	if contents[1].Role != "model" {
		t.Errorf("Expected assistant mapped to model role, got %s", contents[1].Role)
	}

	if genConfig.SystemInstruction == nil || genConfig.SystemInstruction.Parts[0].Text != "Be terse." {
		t.Error("Expected system instruction from hoisted system message")
	}
	if genConfig.MaxOutputTokens != 2048 {
		t.Errorf("Expected max output tokens 2048, got %d", genConfig.MaxOutputTokens)
	}
	if genConfig.Temperature == nil || *genConfig.Temperature != float32(0.2) {
		t.Error("Expected temperature 0.2")
	}
	if len(genConfig.Tools) != 1 || len(genConfig.Tools[0].FunctionDeclarations) != 1 {
		t.Fatal("Expected 1 tool with 1 function declaration")
	}
	if genConfig.Tools[0].FunctionDeclarations[0].Name != "search" {
		t.Errorf("Expected declaration search, got %s", genConfig.Tools[0].FunctionDeclarations[0].Name)
	}
}

func TestGeminiProvider_ParseResponse(t *testing.T) {
	provider := &GeminiProvider{config: config.LLMConfig{Model: "gemini-2.0-flash"}}

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Role: "model",
					Parts: []*genai.Part{
						{Text: "internal reasoning", Thought: true},
						{Text: "Hello"},
						{Text: " world"},
					},
				},
				FinishReason: genai.FinishReasonStop,
			},
		},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     12,
			CandidatesTokenCount: 4,
		},
	}

	reply, err := provider.parseResponse(resp)
	if err != nil {
		t.Fatalf("parseResponse() error = %v", err)
	}
	if reply.Text != "Hello world" {
		t.Errorf("parseResponse() text = %v, want Hello world (thought parts excluded)", reply.Text)
	}
	if reply.InputTokens != 12 || reply.OutputTokens != 4 {
		t.Errorf("parseResponse() tokens = %d/%d, want 12/4", reply.InputTokens, reply.OutputTokens)
	}
	if reply.StopReason != string(genai.FinishReasonStop) {
		t.Errorf("parseResponse() stopReason = %v, want %v", reply.StopReason, string(genai.FinishReasonStop))
	}
}

func TestGeminiProvider_ParseResponse_FunctionCall(t *testing.T) {
	provider := &GeminiProvider{config: config.LLMConfig{Model: "gemini-2.0-flash"}}

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Role: "model",
					Parts: []*genai.Part{
						{FunctionCall: &genai.FunctionCall{Name: "search", Args: map[string]any{"query": "go"}}},
					},
				},
			},
		},
	}

	reply, err := provider.parseResponse(resp)
	if err != nil {
		t.Fatalf("parseResponse() error = %v", err)
	}
	want := `{"tool":"search","args":{"query":"go"}}`
	if reply.Text != want {
		t.Errorf("parseResponse() text = %v, want %v", reply.Text, want)
	}
}

func TestGeminiProvider_ParseResponse_NoCandidates(t *testing.T) {
	provider := &GeminiProvider{config: config.LLMConfig{Model: "gemini-2.0-flash"}}

	_, err := provider.parseResponse(&genai.GenerateContentResponse{})
	if err == nil {
		t.Error("parseResponse() expected error for empty candidate list")
	}
}

func TestToGenaiSchema(t *testing.T) {
	schema := map[string]any{
		"type":        "object",
		"description": "Search parameters",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "Search terms"},
			"tags": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string", "enum": []any{"news", "docs"}},
			},
		},
		"required": []any{"query"},
	}

	s := toGenaiSchema(schema)
	if s == nil {
		t.Fatal("toGenaiSchema() returned nil")
	}
	if s.Type != genai.Type("object") {
		t.Errorf("Type = %v, want object", s.Type)
	}
	if s.Description != "Search parameters" {
		t.Errorf("Description = %v, want Search parameters", s.Description)
	}
	if len(s.Properties) != 2 {
		t.Fatalf("Expected 2 properties, got %d", len(s.Properties))
	}
	if s.Properties["query"].Description != "Search terms" {
		t.Errorf("query description = %v", s.Properties["query"].Description)
	}
	tags := s.Properties["tags"]
	if tags.Items == nil || len(tags.Items.Enum) != 2 {
		t.Error("Expected items schema with 2 enum values")
	}
	if len(s.Required) != 1 || s.Required[0] != "query" {
		t.Errorf("Required = %v, want [query]", s.Required)
	}
}

func TestToGenaiSchema_Nil(t *testing.T) {
	if toGenaiSchema(nil) != nil {
		t.Error("toGenaiSchema(nil) should return nil")
	}
}

func TestNewRegistry(t *testing.T) {
	registry, err := NewRegistry(map[string]config.LLMConfig{
		"default": {Provider: config.LLMProviderOpenAI, Model: "gpt-4o", APIKey: "sk-a"},
		"fast":    {Provider: config.LLMProviderAnthropic, Model: "claude-3-5-haiku-20241022", APIKey: "sk-b"},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	defer registry.Close()

	fast, err := registry.Get("fast")
	if err != nil {
		t.Fatalf("Get(fast) error = %v", err)
	}
	if fast.Model() != "claude-3-5-haiku-20241022" {
		t.Errorf("Get(fast) model = %v", fast.Model())
	}

	if _, err := registry.Get("missing"); err == nil {
		t.Error("Get(missing) expected error")
	}

	def, err := registry.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if def.Model() != "gpt-4o" {
		t.Errorf("Default() model = %v, want gpt-4o", def.Model())
	}

	if len(registry.Names()) != 2 {
		t.Errorf("Names() length = %d, want 2", len(registry.Names()))
	}
}

func TestNewRegistry_BuildFailure(t *testing.T) {
	_, err := NewRegistry(map[string]config.LLMConfig{
		"broken": {Provider: config.LLMProviderOpenAI, Model: "gpt-4o"},
	})
	if err == nil {
		t.Fatal("NewRegistry() expected error for missing API key")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("NewRegistry() error = %v, want mention of entry name", err)
	}
}

func TestRegistry_Default_SingleEntry(t *testing.T) {
	registry, err := NewRegistry(map[string]config.LLMConfig{
		"main": {Provider: config.LLMProviderOpenAI, Model: "gpt-4o", APIKey: "sk-a"},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	defer registry.Close()

	def, err := registry.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if def.Model() != "gpt-4o" {
		t.Errorf("Default() model = %v, want gpt-4o", def.Model())
	}
}

func TestRegistry_Default_Ambiguous(t *testing.T) {
	registry, err := NewRegistry(map[string]config.LLMConfig{
		"a": {Provider: config.LLMProviderOpenAI, Model: "gpt-4o", APIKey: "sk-a"},
		"b": {Provider: config.LLMProviderOpenAI, Model: "gpt-4o-mini", APIKey: "sk-b"},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	defer registry.Close()

	if _, err := registry.Default(); err == nil {
		t.Error("Default() expected error with two unnamed candidates")
	}
}

func TestRegistry_Register(t *testing.T) {
	registry, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	mock := &mockProvider{model: "test-model"}
	if err := registry.Register("mock", mock); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := registry.Get("mock")
	if err != nil {
		t.Fatalf("Get(mock) error = %v", err)
	}
	if got != mock {
		t.Error("Get(mock) should return the registered provider")
	}

	if err := registry.Register("", mock); err == nil {
		t.Error("Register() expected error for empty name")
	}
	if err := registry.Register("nil", nil); err == nil {
		t.Error("Register() expected error for nil provider")
	}
}

func TestRegistry_Close(t *testing.T) {
	registry, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	mock := &mockProvider{model: "test-model"}
	_ = registry.Register("mock", mock)

	if err := registry.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !mock.closed {
		t.Error("Close() should close registered providers")
	}
	if _, err := registry.Get("mock"); err == nil {
		t.Error("Get() after Close() expected error")
	}
}

type mockProvider struct {
	model  string
	closed bool
}

func (m *mockProvider) Generate(ctx context.Context, p prompt.Prompt, opts Options) (Reply, error) {
	return Reply{Text: "mock reply"}, nil
}

func (m *mockProvider) Model() string { return m.model }

func (m *mockProvider) Close() error {
	m.closed = true
	return nil
}
