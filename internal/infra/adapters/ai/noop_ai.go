package ai

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"time"

	"ai-transform-service/internal/domain/ports/adapter"
)

var _ adapter.GenerationProvider = (*NoopProvider)(nil)

// NoopProvider is a deterministic offline provider for local runs and demos.
// Images are small gradients seeded by the prompt; text echoes a summary.
type NoopProvider struct {
	Delay time.Duration
	Size  int
}

func NewNoopProvider() *NoopProvider {
	return &NoopProvider{Delay: 50 * time.Millisecond, Size: 64}
}

func (a *NoopProvider) Name() string { return "noop" }

func (a *NoopProvider) wait(ctx context.Context) error {
	if a.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(a.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *NoopProvider) Generate(ctx context.Context, prompt string, _ adapter.Image) (adapter.Image, error) {
	if err := a.wait(ctx); err != nil {
		return adapter.Image{}, err
	}
	size := a.Size
	if size <= 0 {
		size = 64
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(prompt))
	seed := h.Sum32()

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(seed) + uint8(x*255/size),
				G: uint8(seed>>8) + uint8(y*255/size),
				B: uint8(seed >> 16),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return adapter.Image{}, err
	}
	return adapter.Image{Data: buf.Bytes(), ContentType: "image/png"}, nil
}

func (a *NoopProvider) Complete(ctx context.Context, prompt string, _ adapter.Image) (string, error) {
	if err := a.wait(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("## Analysis\n\nThis is a noop analysis for a prompt of %d characters.", len(prompt)), nil
}
