package chat

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/probelab/agent-testbed/internal/domain/agent"
)

// TokenCounter counts conversation tokens with tiktoken encodings,
// caching one codec per model.
type TokenCounter struct {
	mu     sync.RWMutex
	codecs map[string]tokenizer.Codec
}

func NewTokenCounter() *TokenCounter {
	return &TokenCounter{codecs: make(map[string]tokenizer.Codec)}
}

// CountConversation sums the content tokens across the history.
func (c *TokenCounter) CountConversation(model string, history []agent.Message) int {
	codec, err := c.codec(model)
	if err != nil {
		return 0
	}
	total := 0
	for _, msg := range history {
		ids, _, err := codec.Encode(msg.Content)
		if err != nil {
			continue
		}
		total += len(ids)
	}
	return total
}

// CountText counts tokens in a single string.
func (c *TokenCounter) CountText(model, text string) (int, error) {
	codec, err := c.codec(model)
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// codec resolves the model's native encoding, falling back to
// cl100k_base for models tiktoken does not know.
func (c *TokenCounter) codec(model string) (tokenizer.Codec, error) {
	c.mu.RLock()
	if codec, ok := c.codecs[model]; ok {
		c.mu.RUnlock()
		return codec, nil
	}
	c.mu.RUnlock()

	codec, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return nil, fmt.Errorf("load fallback encoding: %w", err)
		}
	}

	c.mu.Lock()
	c.codecs[model] = codec
	c.mu.Unlock()
	return codec, nil
}
