package inspector

import (
	"context"
	"errors"
	"math"

	"ai-transform-service/internal/domain/ports/adapter"
)

var _ adapter.ImageInspector = (*Composite)(nil)

// Composite runs every inspector and keeps the worst signal of each kind. Any
// inspector error fails the whole inspection.
type Composite struct {
	inspectors []adapter.ImageInspector
}

func NewComposite(inspectors ...adapter.ImageInspector) *Composite {
	return &Composite{inspectors: inspectors}
}

func (c *Composite) Inspect(ctx context.Context, img adapter.Image) (adapter.Inspection, error) {
	if len(c.inspectors) == 0 {
		return adapter.Inspection{}, errors.New("no inspectors configured")
	}
	var out adapter.Inspection
	for i, in := range c.inspectors {
		ins, err := in.Inspect(ctx, img)
		if err != nil {
			return adapter.Inspection{}, err
		}
		if i == 0 {
			out = ins
			continue
		}
		if ins.SubjectCount != 1 {
			out.SubjectCount = ins.SubjectCount
		}
		out.FaceConfidence = math.Min(out.FaceConfidence, ins.FaceConfidence)
		out.ArtifactScore = math.Max(out.ArtifactScore, ins.ArtifactScore)
	}
	return out, nil
}
