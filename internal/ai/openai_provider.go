package ai

import (
	"context"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Base URLs of OpenAI-compatible providers.
const (
	GroqBaseURL       = "https://api.groq.com/openai/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client   *openai.Client
	provider string
	model    string
	opts     Options
}

// NewOpenAIProvider creates a client; baseURL "" means api.openai.com.
func NewOpenAIProvider(provider, apiKey, baseURL, model string, opts Options, headers map[string]string) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	if len(headers) > 0 {
		clientConfig.HTTPClient = &http.Client{Transport: headerTransport{headers: headers, base: http.DefaultTransport}}
	}
	return &OpenAIProvider{
		client:   openai.NewClientWithConfig(clientConfig),
		provider: provider,
		model:    model,
		opts:     opts.withDefaults(),
	}
}

func (p *OpenAIProvider) Model() string {
	return p.provider + "/" + p.model
}

func (p *OpenAIProvider) GenerateRecipe(ctx context.Context, req RecipeRequest) (RecipeResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(req)},
		},
		MaxTokens:   p.opts.MaxTokens,
		Temperature: float32(p.opts.Temperature),
	})
	if err != nil {
		return RecipeResponse{}, classify(err, p.provider, p.model)
	}
	if len(resp.Choices) == 0 {
		return RecipeResponse{}, malformed(p.provider, p.model, "no choices in response")
	}
	return toResponse(resp.Choices[0].Message.Content, p.provider, p.model)
}

// headerTransport добавляет заголовки атрибуции (OpenRouter).
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	for k, v := range t.headers {
		r.Header.Set(k, v)
	}
	return t.base.RoundTrip(r)
}
