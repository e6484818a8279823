package usecase

import (
	"context"
	"fmt"

	"ai-transform-service/internal/domain/model"
	"ai-transform-service/internal/domain/ports/adapter"
	"ai-transform-service/internal/infra/metrics"
)

type VerdictKind string

const (
	VerdictAccepted            VerdictKind = "accepted"
	VerdictRetryWithCorrection VerdictKind = "retry_with_correction"
	VerdictDegraded            VerdictKind = "degraded"
)

// Correction hints, appended to the prompt on retry.
const (
	HintSingleSubject         = "single_subject"
	HintFaceVisible           = "face_visible"
	HintNoArtifacts           = "no_artifacts"
	HintInspectionUnavailable = "inspection_unavailable"
)

type Verdict struct {
	Kind VerdictKind
	Hint string
}

func (v Verdict) String() string {
	if v.Hint == "" {
		return string(v.Kind)
	}
	return fmt.Sprintf("%s(%s)", v.Kind, v.Hint)
}

// QualityContext carries the step an artifact was produced for.
type QualityContext struct {
	Step    model.Step
	Attempt int
}

type QualityThresholds struct {
	MinFaceConfidence float64
	MaxArtifactScore  float64
}

// QualityGate runs structural heuristics on generated images, in order,
// stopping at the first failure.
type QualityGate struct {
	inspector  adapter.ImageInspector
	thresholds QualityThresholds
}

func NewQualityGate(inspector adapter.ImageInspector, th QualityThresholds) *QualityGate {
	return &QualityGate{inspector: inspector, thresholds: th}
}

// Evaluate never fails the pipeline: an inspector error degrades the artifact.
func (g *QualityGate) Evaluate(ctx context.Context, art *model.Artifact, qc QualityContext) Verdict {
	v := g.evaluate(ctx, art, qc)
	metrics.IncQualityVerdict(string(v.Kind), v.Hint)
	return v
}

func (g *QualityGate) evaluate(ctx context.Context, art *model.Artifact, qc QualityContext) Verdict {
	if qc.Step.Kind == model.StepKindText {
		if len(art.Data) == 0 {
			return Verdict{Kind: VerdictDegraded, Hint: "empty_text"}
		}
		return Verdict{Kind: VerdictAccepted}
	}

	ins, err := g.inspector.Inspect(ctx, adapter.Image{Data: art.Data, ContentType: art.ContentType})
	if err != nil {
		return Verdict{Kind: VerdictDegraded, Hint: HintInspectionUnavailable}
	}
	switch {
	case ins.SubjectCount != 1:
		return Verdict{Kind: VerdictRetryWithCorrection, Hint: HintSingleSubject}
	case ins.FaceConfidence < g.thresholds.MinFaceConfidence:
		return Verdict{Kind: VerdictRetryWithCorrection, Hint: HintFaceVisible}
	case ins.ArtifactScore >= g.thresholds.MaxArtifactScore:
		return Verdict{Kind: VerdictRetryWithCorrection, Hint: HintNoArtifacts}
	}
	return Verdict{Kind: VerdictAccepted}
}
