package llm

import (
	"sync"
	"sync/atomic"

	"github.com/RichardoC/relaychat/internal/models"
	"github.com/pkoukk/tiktoken-go"
)

const DefaultEncoding = "cl100k_base"

// TokenCounter counts tokens for usage accounting. The encoding is loaded at
// most once, by EnsureLoaded (tiktoken may fetch its ranks over the network).
// Count never waits for that load: until it has succeeded, counts are
// estimated.
type TokenCounter struct {
	load func() (*tiktoken.Tiktoken, error)

	once sync.Once
	enc  atomic.Pointer[tiktoken.Tiktoken]
	err  error
}

func NewTokenCounter(encoding string) *TokenCounter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return NewTokenCounterFrom(func() (*tiktoken.Tiktoken, error) {
		return tiktoken.GetEncoding(encoding)
	})
}

// NewTokenCounterFrom builds a counter around a custom loader, such as one
// reading ranks from local disk.
func NewTokenCounterFrom(load func() (*tiktoken.Tiktoken, error)) *TokenCounter {
	return &TokenCounter{load: load}
}

// EnsureLoaded loads the encoding on first call and returns the cached
// outcome on every later call. Concurrent callers wait for the first load.
func (c *TokenCounter) EnsureLoaded() error {
	c.once.Do(func() {
		enc, err := c.load()
		if err == nil && enc != nil {
			c.enc.Store(enc)
		}
		c.err = err
	})
	return c.err
}

// Loaded reports whether exact counts are available.
func (c *TokenCounter) Loaded() bool {
	return c.enc.Load() != nil
}

// Count returns the number of tokens in text.
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if enc := c.enc.Load(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return estimate(text)
}

// CountMessages sums the content tokens of a conversation.
func (c *TokenCounter) CountMessages(messages []models.ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += c.Count(m.Content)
	}
	return total
}

// estimate approximates one token per four bytes of text.
func estimate(text string) int {
	return (len(text) + 3) / 4
}
