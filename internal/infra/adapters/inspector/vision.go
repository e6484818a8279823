package inspector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"

	"ai-transform-service/internal/domain/ports/adapter"
)

var _ adapter.ImageInspector = (*Vision)(nil)

const visionPrompt = `You are a strict image quality reviewer. Look at the attached generated photo and answer with JSON only:
{"subject_count": <number of people visible>, "face_confidence": <0..1, how clearly the main face is visible>, "artifact_score": <0..1, amount of visual artifacts such as extra limbs, melted features or noise>}`

const inspectionSchema = `{
  "type": "object",
  "required": ["subject_count", "face_confidence", "artifact_score"],
  "properties": {
    "subject_count": {"type": "integer", "minimum": 0},
    "face_confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "artifact_score": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

// Vision asks a multimodal model to review the image and validates its answer.
type Vision struct {
	model    adapter.TextGenerator
	schema   *gojsonschema.Schema
	validate *validator.Validate
}

func NewVision(model adapter.TextGenerator) (*Vision, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(inspectionSchema))
	if err != nil {
		return nil, fmt.Errorf("load inspection schema: %w", err)
	}
	return &Vision{model: model, schema: schema, validate: validator.New()}, nil
}

func (v *Vision) Inspect(ctx context.Context, img adapter.Image) (adapter.Inspection, error) {
	raw, err := v.model.Complete(ctx, visionPrompt, img)
	if err != nil {
		return adapter.Inspection{}, fmt.Errorf("vision inspection: %w", err)
	}
	return v.parse(raw)
}

func (v *Vision) parse(raw string) (adapter.Inspection, error) {
	doc := extractJSON(raw)
	res, err := v.schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return adapter.Inspection{}, fmt.Errorf("vision inspection: unreadable answer: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return adapter.Inspection{}, fmt.Errorf("vision inspection: invalid answer: %s", strings.Join(msgs, "; "))
	}

	var ins adapter.Inspection
	if err := json.Unmarshal([]byte(doc), &ins); err != nil {
		return adapter.Inspection{}, fmt.Errorf("vision inspection: %w", err)
	}
	if err := v.validate.Struct(ins); err != nil {
		return adapter.Inspection{}, fmt.Errorf("vision inspection: %w", err)
	}
	return ins, nil
}

// extractJSON strips markdown fences and surrounding prose.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			text = strings.TrimSpace(rest[:j])
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
