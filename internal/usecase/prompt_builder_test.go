package usecase

import (
	"strings"
	"testing"

	"ai-transform-service/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSteps() []model.Step {
	return []model.Step{
		{ID: "milestone_1", Ordinal: 1, Kind: model.StepKindImage, PromptTemplateRef: TemplateMilestone, Horizon: "4 weeks", MaxQualityRetries: 2, CostUnits: 5},
		{ID: "milestone_2", Ordinal: 2, Kind: model.StepKindImage, PromptTemplateRef: TemplateMilestone, Horizon: "12 weeks", MaxQualityRetries: 2, CostUnits: 5},
		{ID: "milestone_3", Ordinal: 3, Kind: model.StepKindImage, PromptTemplateRef: TemplateMilestone, Horizon: "6 months", MaxQualityRetries: 2, CostUnits: 5},
	}
}

func testProfile() model.Profile {
	return model.Profile{
		DisplayName:     "Sam",
		Goal:            "lose fat and build strength",
		Age:             34,
		Sex:             "female",
		HeightCm:        168,
		CurrentWeightKg: 82.5,
		TargetWeightKg:  70,
		ActivityLevel:   "moderate",
		Notes:           "  knee injury last year,   prefers   home workouts ",
	}
}

func TestPromptBuilderIsDeterministic(t *testing.T) {
	b, err := NewPromptBuilder(nil, 200)
	require.NoError(t, err)
	steps := testSteps()

	first, err := b.Build(testProfile(), steps[1], steps, nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := b.Build(testProfile(), steps[1], steps, nil)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	assert.Contains(t, first, "after 12 weeks")
	assert.Contains(t, first, "Stage 2 of 3")
	assert.Contains(t, first, "34 years old, female, 168 cm")
	assert.Contains(t, first, "currently 82.5 kg, target 70.0 kg")
	assert.Contains(t, first, "Context from the user: knee injury last year, prefers home workouts")
}

func TestPromptBuilderAppendsCorrections(t *testing.T) {
	b, err := NewPromptBuilder(nil, 200)
	require.NoError(t, err)
	steps := testSteps()

	p, err := b.Build(testProfile(), steps[0], steps, []string{HintFaceVisible, HintSingleSubject, HintFaceVisible, "unknown_hint"})
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(p, "\nCorrection: "))
	faceAt := strings.Index(p, correctionPhrases[HintFaceVisible])
	subjAt := strings.Index(p, correctionPhrases[HintSingleSubject])
	assert.True(t, faceAt > 0 && subjAt > faceAt, "corrections keep first-seen order")
}

func TestPromptBuilderAnalysisTemplate(t *testing.T) {
	b, err := NewPromptBuilder(nil, 200)
	require.NoError(t, err)
	steps := append(testSteps(), model.Step{ID: "analysis", Ordinal: 4, Kind: model.StepKindText, PromptTemplateRef: TemplateAnalysis})

	p, err := b.Build(testProfile(), steps[3], steps, nil)
	require.NoError(t, err)
	assert.Contains(t, p, "4 weeks, 12 weeks, 6 months")
	assert.Contains(t, p, "analysis for Sam")
}

func TestPromptBuilderUnknownTemplate(t *testing.T) {
	b, err := NewPromptBuilder(nil, 200)
	require.NoError(t, err)
	_, err = b.Build(testProfile(), model.Step{ID: "x", PromptTemplateRef: "nope"}, nil, nil)
	assert.Error(t, err)
}

type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func TestPromptBuilderTrimsNotesToTokenBudget(t *testing.T) {
	b, err := NewPromptBuilder(wordCounter{}, 3)
	require.NoError(t, err)
	profile := testProfile()
	profile.Notes = "one two three four five"
	steps := testSteps()

	p, err := b.Build(profile, steps[0], steps, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(p, "Context from the user: one two three"))
	assert.NotContains(t, p, "four")
}
