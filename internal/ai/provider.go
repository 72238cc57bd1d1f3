// Package ai генерирует описания рецептов через внешние LLM.
package ai

import "context"

// Provider generates recipe text for one dish.
type Provider interface {
	GenerateRecipe(ctx context.Context, req RecipeRequest) (RecipeResponse, error)
	// Model returns "<provider>/<model id>" for logging and cache attribution.
	Model() string
}

type RecipeRequest struct {
	DishName    string
	Description string
}

type RecipeResponse struct {
	Text             string
	NutritionSummary string
}

// Options — общие параметры генерации.
type Options struct {
	MaxTokens   int
	Temperature float64
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 2000
	}
	if o.Temperature <= 0 {
		o.Temperature = 0.7
	}
	return o
}
