package ai

import (
	"fmt"
	"strings"

	"github.com/fdg312/meal-tracker/internal/config"
)

// DefaultModels used when a provider is selected without an explicit model id.
var DefaultModels = map[string]string{
	config.ProviderMock:       "mock-chef",
	config.ProviderGroq:       "openai/gpt-oss-120b",
	config.ProviderOpenRouter: "arcee-ai/trinity-large-preview:free",
	config.ProviderOpenAI:     "gpt-4o-mini",
	config.ProviderAnthropic:  "claude-3-5-haiku-latest",
	config.ProviderGemini:     "gemini-1.5-flash",
}

// NewProvider builds a generator for provider/model using keys from cfg.
func NewProvider(cfg config.RecipeConfig, provider, model string) (Provider, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModels[provider]
	}
	opts := Options{MaxTokens: cfg.MaxOutputTokens, Temperature: cfg.Temperature}

	if provider == config.ProviderMock {
		return NewMockProvider(), nil
	}
	if _, ok := DefaultModels[provider]; !ok {
		return nil, &Error{Kind: KindConfig, Provider: provider, Model: model, Message: "unknown provider"}
	}
	apiKey := strings.TrimSpace(cfg.APIKeyFor(provider))
	if apiKey == "" {
		return nil, &Error{Kind: KindConfig, Provider: provider, Model: model,
			Message: fmt.Sprintf("API key not configured for %s", provider)}
	}

	switch provider {
	case config.ProviderGroq:
		return NewOpenAIProvider(provider, apiKey, GroqBaseURL, model, opts, nil), nil
	case config.ProviderOpenRouter:
		return NewOpenAIProvider(provider, apiKey, OpenRouterBaseURL, model, opts, map[string]string{
			"HTTP-Referer": cfg.AppURL,
			"X-Title":      "Meal Tracker",
		}), nil
	case config.ProviderOpenAI:
		return NewOpenAIProvider(provider, apiKey, "", model, opts, nil), nil
	case config.ProviderAnthropic:
		return NewAnthropicProvider(apiKey, model, opts), nil
	default:
		return NewGeminiProvider(apiKey, model, opts), nil
	}
}
