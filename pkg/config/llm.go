package config

import (
	"fmt"
	"os"
	"time"
)

// LLMProvider identifies a provider implementation.
type LLMProvider string

const (
	LLMProviderOpenAI    LLMProvider = "openai"
	LLMProviderAnthropic LLMProvider = "anthropic"
	LLMProviderGemini    LLMProvider = "gemini"
)

// LLMConfig configures one model endpoint.
type LLMConfig struct {
	// Provider type (openai, anthropic, gemini).
	Provider LLMProvider `yaml:"provider,omitempty" json:"provider,omitempty" jsonschema:"enum=openai,enum=anthropic,enum=gemini"`

	// Model identifier, e.g. "gpt-4o" or "claude-sonnet-4-20250514".
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// BaseURL overrides the provider's default endpoint. For openai this
	// covers Azure-compatible hosts and local runtimes.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// Timeout covers one request round trip.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// MaxTokens limits response length.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	// Temperature for sampling.
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`

	// MaxRetries for transient transport failures.
	MaxRetries *int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
}

// SetDefaults applies defaults, detecting the provider and key from the
// environment when unset.
func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = detectProviderFromEnv()
	}
	if c.Model == "" {
		switch c.Provider {
		case LLMProviderOpenAI:
			c.Model = "gpt-4o"
		case LLMProviderAnthropic:
			c.Model = "claude-sonnet-4-20250514"
		case LLMProviderGemini:
			c.Model = "gemini-2.0-flash"
		}
	}
	if c.APIKey == "" {
		c.APIKey = apiKeyFromEnv(c.Provider)
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Temperature == nil {
		temp := 0.7
		c.Temperature = &temp
	}
	if c.MaxRetries == nil {
		c.MaxRetries = IntPtr(3)
	}
}

// Validate checks the endpoint settings.
func (c *LLMConfig) Validate() error {
	switch c.Provider {
	case LLMProviderOpenAI, LLMProviderAnthropic, LLMProviderGemini:
	default:
		return fmt.Errorf("unsupported provider %q (supported: openai, anthropic, gemini)", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

func detectProviderFromEnv() LLMProvider {
	switch {
	case os.Getenv("OPENAI_API_KEY") != "":
		return LLMProviderOpenAI
	case os.Getenv("ANTHROPIC_API_KEY") != "":
		return LLMProviderAnthropic
	case os.Getenv("GEMINI_API_KEY") != "", os.Getenv("GOOGLE_API_KEY") != "":
		return LLMProviderGemini
	default:
		return LLMProviderOpenAI
	}
}

func apiKeyFromEnv(p LLMProvider) string {
	switch p {
	case LLMProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case LLMProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case LLMProviderGemini:
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return ""
	}
}
