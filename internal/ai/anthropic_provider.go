package ai

import (
	"context"

	"github.com/liushuangls/go-anthropic/v2"
)

type AnthropicProvider struct {
	client *anthropic.Client
	model  string
	opts   Options
}

func NewAnthropicProvider(apiKey, model string, opts Options) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(apiKey),
		model:  model,
		opts:   opts.withDefaults(),
	}
}

func (p *AnthropicProvider) Model() string {
	return "anthropic/" + p.model
}

func (p *AnthropicProvider) GenerateRecipe(ctx context.Context, req RecipeRequest) (RecipeResponse, error) {
	prompt := BuildPrompt(req)
	temperature := float32(p.opts.Temperature)
	resp, err := p.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(p.model),
		System:      systemPrompt,
		MaxTokens:   p.opts.MaxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		return RecipeResponse{}, classify(err, "anthropic", p.model)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return toResponse(*block.Text, "anthropic", p.model)
		}
	}
	return RecipeResponse{}, malformed("anthropic", p.model, "no text block in response")
}
