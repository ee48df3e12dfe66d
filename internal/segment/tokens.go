package segment

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens with a BPE tokenizer, falling back to a
// character-based approximation when the encoder cannot be loaded.
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenCounter returns a lazily initialised counter for cl100k_base.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

// Count returns the token count of s. Encoder failure degrades to the
// standard four-characters-per-token approximation instead of erroring.
func (t *TokenCounter) Count(s string) int {
	if s == "" {
		return 0
	}
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			t.enc = enc
		}
	})
	if t.enc == nil {
		return approxTokens(s)
	}
	return len(t.enc.Encode(s, nil, nil))
}

func approxTokens(s string) int {
	n := len(s) / 4
	if n == 0 {
		n = 1
	}
	return n
}
