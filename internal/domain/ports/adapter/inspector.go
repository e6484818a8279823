package adapter

import "context"

// Inspection holds the structural signals the quality gate decides on.
type Inspection struct {
	SubjectCount   int     `json:"subject_count" validate:"gte=0"`
	FaceConfidence float64 `json:"face_confidence" validate:"gte=0,lte=1"`
	ArtifactScore  float64 `json:"artifact_score" validate:"gte=0,lte=1"`
}

// ImageInspector extracts an Inspection from a generated image.
type ImageInspector interface {
	Inspect(ctx context.Context, img Image) (Inspection, error)
}
