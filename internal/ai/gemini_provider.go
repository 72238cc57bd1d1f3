package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiProvider struct {
	apiKey string
	model  string
	opts   Options
}

func NewGeminiProvider(apiKey, model string, opts Options) *GeminiProvider {
	return &GeminiProvider{apiKey: apiKey, model: model, opts: opts.withDefaults()}
}

func (p *GeminiProvider) Model() string {
	return "gemini/" + p.model
}

// GenerateRecipe открывает клиент на один запрос: генерация редкая, кэш перед ней.
func (p *GeminiProvider) GenerateRecipe(ctx context.Context, req RecipeRequest) (RecipeResponse, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return RecipeResponse{}, &Error{Kind: KindConfig, Provider: "gemini", Model: p.model, Cause: err}
	}
	defer client.Close()

	model := client.GenerativeModel(p.model)
	model.SetMaxOutputTokens(int32(p.opts.MaxTokens))
	model.SetTemperature(float32(p.opts.Temperature))
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	resp, err := model.GenerateContent(ctx, genai.Text(BuildPrompt(req)))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return RecipeResponse{}, &Error{Kind: KindMalformed, Provider: "gemini", Model: p.model, Message: "response blocked", Cause: err}
		}
		return RecipeResponse{}, classify(err, "gemini", p.model)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return RecipeResponse{}, malformed("gemini", p.model, "no candidates in response")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return toResponse(b.String(), "gemini", p.model)
}
