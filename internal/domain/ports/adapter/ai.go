package adapter

import (
	"context"
	"fmt"
)

// Image is raw generated or uploaded image data.
type Image struct {
	Data        []byte
	ContentType string
}

// ImageGenerator is the port for image-to-image generation.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, source Image) (Image, error)
}

// TextGenerator is the port for the textual analysis step.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string, source Image) (string, error)
}

// GenerationProvider is a named provider serving both step kinds.
type GenerationProvider interface {
	ImageGenerator
	TextGenerator
	Name() string
}

// ProviderError is the only error shape provider adapters return for vendor
// failures. Retryable is decided once by the adapter.
type ProviderError struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// TokenCounter estimates prompt tokens for a piece of text.
type TokenCounter interface {
	Count(text string) int
}

// RetryableStatus is the HTTP-status rule adapters use to build ProviderErrors:
// 408, 429 and 5xx are transient unless the quota is exhausted.
func RetryableStatus(status int, quotaExhausted bool) bool {
	if quotaExhausted {
		return false
	}
	return status == 408 || status == 429 || status >= 500
}
