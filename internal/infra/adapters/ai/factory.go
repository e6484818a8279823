package ai

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"ai-transform-service/internal/config"
	"ai-transform-service/internal/domain/ports/adapter"
)

// NewProviderFromConfig builds every provider that has credentials, routes
// between them and caps concurrent calls.
func NewProviderFromConfig(ctx context.Context, cfg config.AIConfig, log *zerolog.Logger) (adapter.GenerationProvider, error) {
	byProvider := map[string]adapter.GenerationProvider{"noop": NewNoopProvider()}

	if cfg.GeminiKey != "" {
		g, err := NewGeminiAdapter(ctx, cfg.GeminiKey, cfg.GeminiURL, cfg.GeminiImage, cfg.GeminiText)
		if err != nil {
			return nil, fmt.Errorf("gemini adapter: %w", err)
		}
		byProvider["gemini"] = g
		log.Info().Str("image_model", cfg.GeminiImage).Str("text_model", cfg.GeminiText).Msg("AI provider: gemini")
	}
	if cfg.OpenAIKey != "" {
		o, err := NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIImage, cfg.OpenAIText)
		if err != nil {
			return nil, fmt.Errorf("openai adapter: %w", err)
		}
		byProvider["openai"] = o
		log.Info().Str("base_url", cfg.OpenAIBaseURL).Str("image_model", cfg.OpenAIImage).Msg("AI provider: openai")
	}

	for _, name := range []string{cfg.Provider, cfg.ImageProvider, cfg.TextProvider} {
		if name == "" {
			continue
		}
		if _, ok := byProvider[name]; !ok {
			return nil, fmt.Errorf("ai provider %q is selected but not configured", name)
		}
	}

	multi := NewMultiProvider(cfg.Provider, byProvider, cfg.ImageProvider, cfg.TextProvider)
	return NewLimitedProvider(multi, cfg.ConcurrentLimit), nil
}
