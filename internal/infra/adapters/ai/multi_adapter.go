// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"errors"
	"strings"

	"ai-transform-service/internal/domain/ports/adapter"
)

var _ adapter.GenerationProvider = (*MultiProvider)(nil)

// ErrNoProvider is returned when no provider is registered at all.
var ErrNoProvider = errors.New("no generation provider configured")

// MultiProvider routes image and text calls to possibly different providers,
// e.g. images to gemini and the analysis to an OpenAI-compatible gateway.
type MultiProvider struct {
	defaultProvider string
	byProvider      map[string]adapter.GenerationProvider
	imageProvider   string
	textProvider    string
}

// NewMultiProvider knows a default provider plus optional per-kind overrides.
// Empty overrides fall back to the default.
func NewMultiProvider(
	defaultProvider string,
	byProvider map[string]adapter.GenerationProvider,
	imageProvider, textProvider string,
) *MultiProvider {
	return &MultiProvider{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
		imageProvider:   strings.ToLower(imageProvider),
		textProvider:    strings.ToLower(textProvider),
	}
}

func (m *MultiProvider) Name() string { return "multi:" + m.defaultProvider }

func (m *MultiProvider) pick(override string) adapter.GenerationProvider {
	if p := m.byProvider[override]; override != "" && p != nil {
		return p
	}
	if p := m.byProvider[m.defaultProvider]; p != nil {
		return p
	}
	// last resort: first available
	for _, p := range m.byProvider {
		if p != nil {
			return p
		}
	}
	return nil
}

func (m *MultiProvider) Generate(ctx context.Context, prompt string, source adapter.Image) (adapter.Image, error) {
	p := m.pick(m.imageProvider)
	if p == nil {
		return adapter.Image{}, ErrNoProvider
	}
	return p.Generate(ctx, prompt, source)
}

func (m *MultiProvider) Complete(ctx context.Context, prompt string, source adapter.Image) (string, error) {
	p := m.pick(m.textProvider)
	if p == nil {
		return "", ErrNoProvider
	}
	return p.Complete(ctx, prompt, source)
}
