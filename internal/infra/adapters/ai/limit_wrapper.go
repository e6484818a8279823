package ai

import (
	"context"

	"ai-transform-service/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.GenerationProvider = (*limitedProvider)(nil)

type limitedProvider struct {
	inner adapter.GenerationProvider
	sem   chan struct{}
}

// NewLimitedProvider caps the number of in-flight provider calls.
func NewLimitedProvider(inner adapter.GenerationProvider, maxConcurrent int) adapter.GenerationProvider {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedProvider{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedProvider) Name() string { return l.inner.Name() }

func (l *limitedProvider) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limitedProvider) Generate(ctx context.Context, prompt string, source adapter.Image) (adapter.Image, error) {
	if err := l.acquire(ctx); err != nil {
		return adapter.Image{}, err
	}
	defer func() { <-l.sem }()
	return l.inner.Generate(ctx, prompt, source)
}

func (l *limitedProvider) Complete(ctx context.Context, prompt string, source adapter.Image) (string, error) {
	if err := l.acquire(ctx); err != nil {
		return "", err
	}
	defer func() { <-l.sem }()
	return l.inner.Complete(ctx, prompt, source)
}
