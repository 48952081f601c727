package ai

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultPromptTokens bounds the article text placed in a summary prompt.
const DefaultPromptTokens = 3000

// TokenBudget truncates text to a number of model tokens. Without an
// encoding it falls back to four characters per token.
type TokenBudget struct {
	enc *tiktoken.Tiktoken
	max int
}

// NewTokenBudget loads the encoding for model. Loading can fail offline, in
// which case the returned budget uses the character fallback and err is set.
func NewTokenBudget(model string, max int) (*TokenBudget, error) {
	if max <= 0 {
		max = DefaultPromptTokens
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		return &TokenBudget{max: max}, err
	}
	return &TokenBudget{enc: enc, max: max}, nil
}

func (b *TokenBudget) Truncate(text string) string {
	if b == nil {
		return text
	}
	if b.enc == nil {
		r := []rune(text)
		if limit := b.max * 4; len(r) > limit {
			return strings.TrimSpace(string(r[:limit]))
		}
		return text
	}
	tokens := b.enc.Encode(text, nil, nil)
	if len(tokens) <= b.max {
		return text
	}
	return strings.TrimSpace(b.enc.Decode(tokens[:b.max]))
}
