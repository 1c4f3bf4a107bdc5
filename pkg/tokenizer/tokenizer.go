// Package tokenizer provides model-aware token counting backed by tiktoken
// encodings. Counters are cheap to create: the underlying encoding is cached
// process-wide per model name.
package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackEncoding is used when a model has no registered encoding. It covers
// the GPT-4/GPT-3.5 family and is a reasonable approximation for most chat
// models.
const fallbackEncoding = "cl100k_base"

// Counter counts tokens for a specific model.
type Counter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewCounter returns a counter for the given model, falling back to the
// cl100k_base encoding when the model is unknown to tiktoken.
func NewCounter(model string) (*Counter, error) {
	cacheMu.RLock()
	cached, ok := encodingCache[model]
	cacheMu.RUnlock()
	if ok {
		return &Counter{encoding: cached, model: model}, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("tokenizer: no encoding for model %q: %w", model, err)
		}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()

	return &Counter{encoding: encoding, model: model}, nil
}

// Model returns the model name the counter was built for.
func (c *Counter) Model() string { return c.model }

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// CountConversation counts tokens across role/content pairs, including the
// per-message framing overhead used by OpenAI-style chat models.
func (c *Counter) CountConversation(turns []Turn) int {
	// <|start|>role<|message|>content<|end|> framing.
	const perMessage = 3

	total := 0
	for _, t := range turns {
		total += perMessage
		total += len(c.encoding.Encode(t.Role, nil, nil))
		total += len(c.encoding.Encode(t.Content, nil, nil))
	}
	// Replies are primed with <|start|>assistant<|message|>.
	total += perMessage
	return total
}

// Turn is a single role/content pair for conversation counting.
type Turn struct {
	Role    string
	Content string
}

// Truncate returns the longest suffix of text that fits within maxTokens.
// Suffix rather than prefix: recent context is worth more than old context.
func (c *Counter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	tokens := c.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return c.encoding.Decode(tokens[len(tokens)-maxTokens:])
}

// FitTurns selects the most recent turns that fit within maxTokens, preserving
// their original order.
func (c *Counter) FitTurns(turns []Turn, maxTokens int) []Turn {
	if len(turns) == 0 {
		return turns
	}

	const replyPriming = 3
	used := replyPriming
	fitted := []Turn{}

	for i := len(turns) - 1; i >= 0; i-- {
		n := c.CountConversation([]Turn{turns[i]}) - replyPriming
		if used+n > maxTokens {
			break
		}
		used += n
		fitted = append([]Turn{turns[i]}, fitted...)
	}
	return fitted
}
