package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"ai-transform-service/internal/domain"
	"ai-transform-service/internal/domain/ports/adapter"
)

var _ adapter.GenerationProvider = (*GeminiAdapter)(nil)

const (
	defaultGeminiImageModel = "gemini-2.5-flash-image"
	defaultGeminiTextModel  = "gemini-2.5-flash"
)

type GeminiAdapter struct {
	client     *genai.Client
	imageModel string
	textModel  string
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseUrl, imageModel, textModel string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseUrl,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{
		client:     c,
		imageModel: modelOrDefault(imageModel, defaultGeminiImageModel),
		textModel:  modelOrDefault(textModel, defaultGeminiTextModel),
	}, nil
}

func (g *GeminiAdapter) Name() string { return "gemini" }

// Generate edits source according to prompt and returns the first image part.
func (g *GeminiAdapter) Generate(ctx context.Context, prompt string, source adapter.Image) (adapter.Image, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.imageModel, userContent(prompt, source),
		&genai.GenerateContentConfig{ResponseModalities: []string{"TEXT", "IMAGE"}})
	if err != nil {
		return adapter.Image{}, g.wrap(err)
	}
	for _, p := range firstParts(resp) {
		if p.InlineData != nil && len(p.InlineData.Data) > 0 {
			return adapter.Image{Data: p.InlineData.Data, ContentType: p.InlineData.MIMEType}, nil
		}
	}
	return adapter.Image{}, &adapter.ProviderError{Provider: g.Name(), Err: domain.ErrEmptyOutput}
}

// Complete returns the concatenated text parts of the first candidate.
func (g *GeminiAdapter) Complete(ctx context.Context, prompt string, source adapter.Image) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.textModel, userContent(prompt, source), nil)
	if err != nil {
		return "", g.wrap(err)
	}
	var sb strings.Builder
	for _, p := range firstParts(resp) {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", &adapter.ProviderError{Provider: g.Name(), Err: domain.ErrEmptyOutput}
	}
	return text, nil
}

// --- internal ---

func (g *GeminiAdapter) wrap(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		quota := strings.Contains(strings.ToLower(apiErr.Message), "exceeded your current quota")
		return &adapter.ProviderError{
			Provider:   g.Name(),
			StatusCode: apiErr.Code,
			Retryable:  adapter.RetryableStatus(apiErr.Code, quota),
			Err:        fmt.Errorf("%s: %s", apiErr.Status, apiErr.Message),
		}
	}
	return transportError(g.Name(), err)
}

func userContent(prompt string, source adapter.Image) []*genai.Content {
	parts := []*genai.Part{{Text: prompt}}
	if len(source.Data) > 0 {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: source.ContentType, Data: source.Data}})
	}
	return []*genai.Content{{Role: genai.RoleUser, Parts: parts}}
}

func firstParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	return resp.Candidates[0].Content.Parts
}

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return def
}
