package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"ai-transform-service/internal/domain"
	"ai-transform-service/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.GenerationProvider = (*OpenAIAdapter)(nil)

const (
	defaultOpenAIImageModel = "gpt-image-1"
	defaultOpenAITextModel  = "gpt-4o-mini"
)

// OpenAIAdapter talks to OpenAI or any OpenAI-compatible gateway (base URL).
type OpenAIAdapter struct {
	client     openai.Client
	name       string
	imageModel string
	textModel  string
}

func NewOpenAIAdapter(apiKey, baseURL, imageModel, textModel string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	name := "openai"
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
		name = "openai-compatible"
	}
	return &OpenAIAdapter{
		client:     openai.NewClient(opts...),
		name:       name,
		imageModel: modelOrDefault(imageModel, defaultOpenAIImageModel),
		textModel:  modelOrDefault(textModel, defaultOpenAITextModel),
	}, nil
}

func (o *OpenAIAdapter) Name() string { return o.name }

// Generate uses the image edit endpoint so the output keeps the source subject.
func (o *OpenAIAdapter) Generate(ctx context.Context, prompt string, source adapter.Image) (adapter.Image, error) {
	resp, err := o.client.Images.Edit(ctx, openai.ImageEditParams{
		Image: openai.ImageEditParamsImageUnion{
			OfFile: openai.File(bytes.NewReader(source.Data), "source"+extFor(source.ContentType), source.ContentType),
		},
		Prompt: prompt,
		Model:  openai.ImageModel(o.imageModel),
		N:      openai.Int(1),
	})
	if err != nil {
		return adapter.Image{}, o.wrap(err)
	}
	if resp == nil || len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return adapter.Image{}, &adapter.ProviderError{Provider: o.name, Err: domain.ErrEmptyOutput}
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return adapter.Image{}, &adapter.ProviderError{Provider: o.name, Err: fmt.Errorf("decode image: %w", err)}
	}
	return adapter.Image{Data: data, ContentType: "image/png"}, nil
}

// Complete sends the prompt and, when present, the source photo as a data URL.
func (o *OpenAIAdapter) Complete(ctx context.Context, prompt string, source adapter.Image) (string, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(prompt)}
	if len(source.Data) > 0 {
		url := "data:" + source.ContentType + ";base64," + base64.StdEncoding.EncodeToString(source.Data)
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
	}
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.textModel),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(parts)},
	})
	if err != nil {
		return "", o.wrap(err)
	}
	for _, c := range resp.Choices {
		if text := strings.TrimSpace(c.Message.Content); text != "" {
			return text, nil
		}
	}
	return "", &adapter.ProviderError{Provider: o.name, Err: domain.ErrEmptyOutput}
}

func (o *OpenAIAdapter) wrap(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		quota := apiErr.Code == "insufficient_quota"
		return &adapter.ProviderError{
			Provider:   o.name,
			StatusCode: apiErr.StatusCode,
			Retryable:  adapter.RetryableStatus(apiErr.StatusCode, quota),
			Err:        err,
		}
	}
	return transportError(o.name, err)
}

func extFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
