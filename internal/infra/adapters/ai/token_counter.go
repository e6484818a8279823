package ai

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"

	"ai-transform-service/internal/domain/ports/adapter"
)

var _ adapter.TokenCounter = (*TokenCounter)(nil)

// TokenCounter counts cl100k_base tokens. When the encoding cannot be loaded
// it falls back to a rune-based estimate.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTokenCounter(log *zerolog.Logger) *TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		if log != nil {
			log.Warn().Err(err).Msg("tiktoken encoding unavailable; approximating token counts")
		}
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.enc == nil {
		return (utf8.RuneCountInString(text) + 3) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}
