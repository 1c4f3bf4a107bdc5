package llm

import (
	"fmt"
	"sync"

	"github.com/drover-ai/drover/pkg/config"
)

// New builds a provider from its config.
func New(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case config.LLMProviderOpenAI:
		return NewOpenAIProvider(cfg)
	case config.LLMProviderAnthropic:
		return NewAnthropicProvider(cfg)
	case config.LLMProviderGemini:
		return NewGeminiProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (supported: openai, anthropic, gemini)", cfg.Provider)
	}
}

// Registry holds named providers built from config.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry builds every configured provider. A single construction
// failure fails the whole registry; partially built providers are closed.
func NewRegistry(cfgs map[string]config.LLMConfig) (*Registry, error) {
	r := &Registry{
		providers: make(map[string]Provider, len(cfgs)),
	}

	for name, cfg := range cfgs {
		p, err := New(cfg)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("llm %q: %w", name, err)
		}
		r.providers[name] = p
	}

	return r, nil
}

// Register adds a provider under a name, replacing any previous entry.
func (r *Registry) Register(name string, p Provider) error {
	if name == "" {
		return fmt.Errorf("llm name cannot be empty")
	}
	if p == nil {
		return fmt.Errorf("llm provider cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
	return nil
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("llm provider %q not found", name)
	}
	return p, nil
}

// Default returns the provider named "default", or the sole provider when
// exactly one is configured.
func (r *Registry) Default() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.providers["default"]; ok {
		return p, nil
	}
	if len(r.providers) == 1 {
		for _, p := range r.providers {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no default llm provider (configure one named \"default\" or exactly one provider)")
}

// Names lists the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Close closes every provider.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, p := range r.providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing llm %q: %w", name, err)
		}
	}
	r.providers = map[string]Provider{}
	return firstErr
}
