package usecase

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"ai-transform-service/internal/domain/model"
	"ai-transform-service/internal/domain/ports/adapter"
)

const (
	TemplateMilestone = "milestone"
	TemplateAnalysis  = "analysis"
)

var promptTemplates = map[string]string{
	TemplateMilestone: `Edit the attached photo of {{.Name}} to show a realistic physical transformation after {{.Step.Horizon}} of consistent progress toward the goal: {{.Profile.Goal}}.
Stage {{.Step.Ordinal}} of {{.Total}}.
Person: {{with .Profile.Age}}{{.}} years old, {{end}}{{with .Profile.Sex}}{{.}}, {{end}}{{with .Profile.HeightCm}}{{printf "%.0f" .}} cm, {{end}}currently {{printf "%.1f" .Profile.CurrentWeightKg}} kg, target {{printf "%.1f" .Profile.TargetWeightKg}} kg, activity level {{or .Profile.ActivityLevel "unspecified"}}.
Keep the same person, face, skin tone, hairstyle, clothing style and background. Photorealistic, natural lighting, no text or watermarks.
{{- with .Notes}}
Context from the user: {{.}}{{end}}`,

	TemplateAnalysis: `You are a supportive fitness coach. Write a short analysis for {{.Name}} based on the attached photo and profile.
Goal: {{.Profile.Goal}}. {{with .Profile.Age}}Age {{.}}. {{end}}Current weight {{printf "%.1f" .Profile.CurrentWeightKg}} kg, target {{printf "%.1f" .Profile.TargetWeightKg}} kg, activity level {{or .Profile.ActivityLevel "unspecified"}}.
Cover: realistic expectations for each milestone ({{.Horizons}}), training focus, nutrition focus, and one habit to start this week.
Use plain language, no medical claims, under 300 words, markdown headings allowed.
{{- with .Notes}}
Context from the user: {{.}}{{end}}`,
}

var correctionPhrases = map[string]string{
	HintSingleSubject: "Show exactly one person, the same person as in the source photo, with no other people or reflections.",
	HintFaceVisible:   "The face must be fully visible, facing the camera, unobstructed and in focus.",
	HintNoArtifacts:   "Avoid distortions: correct anatomy, natural hands, no warped limbs, no blur or noise.",
}

type promptData struct {
	Name     string
	Profile  model.Profile
	Step     model.Step
	Total    int
	Horizons string
	Notes    string
}

// PromptBuilder renders step prompts. Build is a pure function of its inputs.
type PromptBuilder struct {
	templates     map[string]*template.Template
	counter       adapter.TokenCounter
	maxNoteTokens int
}

// NewPromptBuilder parses the built-in templates. counter may be nil, in which
// case tokens are approximated from rune counts.
func NewPromptBuilder(counter adapter.TokenCounter, maxNoteTokens int) (*PromptBuilder, error) {
	b := &PromptBuilder{templates: make(map[string]*template.Template, len(promptTemplates)), counter: counter, maxNoteTokens: maxNoteTokens}
	for name, src := range promptTemplates {
		t, err := template.New(name).Option("missingkey=error").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("parse prompt template %q: %w", name, err)
		}
		b.templates[name] = t
	}
	return b, nil
}

// Build renders the prompt for step. steps is the full ordered pipeline and
// hints are correction hints to append, in order, without duplicates.
func (b *PromptBuilder) Build(profile model.Profile, step model.Step, steps []model.Step, hints []string) (string, error) {
	t, ok := b.templates[step.PromptTemplateRef]
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", step.PromptTemplateRef)
	}

	var horizons []string
	for _, s := range steps {
		if s.Kind == model.StepKindImage && s.Horizon != "" {
			horizons = append(horizons, s.Horizon)
		}
	}
	name := strings.TrimSpace(profile.DisplayName)
	if name == "" {
		name = "the person"
	}
	data := promptData{
		Name:     name,
		Profile:  profile,
		Step:     step,
		Total:    countKind(steps, step.Kind),
		Horizons: strings.Join(horizons, ", "),
		Notes:    b.trimNotes(profile.Notes),
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", step.PromptTemplateRef, err)
	}

	seen := make(map[string]struct{}, len(hints))
	for _, h := range hints {
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		phrase, ok := correctionPhrases[h]
		if !ok {
			continue
		}
		buf.WriteString("\nCorrection: ")
		buf.WriteString(phrase)
	}
	return buf.String(), nil
}

// Tokens estimates the token count of a rendered prompt.
func (b *PromptBuilder) Tokens(prompt string) int {
	if b.counter != nil {
		return b.counter.Count(prompt)
	}
	return approxTokens(prompt)
}

func (b *PromptBuilder) trimNotes(notes string) string {
	notes = strings.Join(strings.Fields(notes), " ")
	if notes == "" || b.maxNoteTokens <= 0 || b.Tokens(notes) <= b.maxNoteTokens {
		return notes
	}
	words := strings.Fields(notes)
	lo, hi := 0, len(words)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if b.Tokens(strings.Join(words[:mid], " ")) <= b.maxNoteTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return strings.Join(words[:lo], " ")
}

func approxTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

func countKind(steps []model.Step, kind model.StepKind) int {
	n := 0
	for _, s := range steps {
		if s.Kind == kind {
			n++
		}
	}
	return n
}
