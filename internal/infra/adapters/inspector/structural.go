package inspector

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg" // decoders
	_ "image/png"
	"math"

	"ai-transform-service/internal/domain/ports/adapter"
)

var _ adapter.ImageInspector = (*Structural)(nil)

const (
	minSide       = 32
	sampleGrid    = 48
	flatStdDev    = 4.0
	textureStdDev = 24.0
)

// Structural scores decode failures, tiny frames, flat frames and clipped
// exposure. It cannot see subjects or faces, so it reports one subject with
// full face confidence and leaves those checks to a vision inspector.
type Structural struct{}

func NewStructural() *Structural { return &Structural{} }

func (s *Structural) Inspect(ctx context.Context, img adapter.Image) (adapter.Inspection, error) {
	if err := ctx.Err(); err != nil {
		return adapter.Inspection{}, err
	}
	out := adapter.Inspection{SubjectCount: 1, FaceConfidence: 1}

	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		out.ArtifactScore = 1
		return out, nil
	}
	b := decoded.Bounds()
	if b.Dx() < minSide || b.Dy() < minSide {
		out.ArtifactScore = 1
		return out, nil
	}
	out.ArtifactScore = artifactScore(decoded)
	return out, nil
}

// artifactScore samples luminance on a fixed grid. A flat frame scores 1; low
// texture and clipped pixels raise the score.
func artifactScore(img image.Image) float64 {
	b := img.Bounds()
	stepX := max(1, b.Dx()/sampleGrid)
	stepY := max(1, b.Dy()/sampleGrid)

	var n, clipped int
	var sum, sumSq float64
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			r, g, bl, _ := img.At(x, y).RGBA()
			lum := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257
			if lum <= 2 || lum >= 253 {
				clipped++
			}
			sum += lum
			sumSq += lum * lum
			n++
		}
	}
	if n == 0 {
		return 1
	}
	mean := sum / float64(n)
	stddev := math.Sqrt(math.Max(0, sumSq/float64(n)-mean*mean))
	if stddev < flatStdDev {
		return 1
	}
	flatness := math.Max(0, 1-stddev/textureStdDev)
	return math.Min(1, math.Max(flatness, float64(clipped)/float64(n)))
}
