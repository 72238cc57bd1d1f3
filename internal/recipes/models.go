package recipes

import (
	"time"

	"github.com/fdg312/meal-tracker/internal/planentries"
	"github.com/fdg312/meal-tracker/internal/storage"
)

type RecipeDTO struct {
	Signature        string    `json:"signature"`
	Text             string    `json:"text"`
	NutritionSummary string    `json:"nutrition_summary,omitempty"`
	Status           string    `json:"status"`
	SourceModel      string    `json:"source_model,omitempty"`
	GeneratedAt      time.Time `json:"generated_at"`
	ExpiresAt        time.Time `json:"expires_at"`
}

type DishResponse struct {
	Entry  planentries.PlanEntryDTO `json:"entry"`
	Recipe RecipeDTO                `json:"recipe"`
}

// InvalidateRequest: либо signature, либо dish_name (+ description).
type InvalidateRequest struct {
	Signature   string `json:"signature"`
	DishName    string `json:"dish_name"`
	Description string `json:"description"`
}

type InvalidateResponse struct {
	Signature   string `json:"signature"`
	Invalidated bool   `json:"invalidated"`
}

func ToRecipeDTO(info storage.RecipeInfo) RecipeDTO {
	return RecipeDTO{
		Signature:        info.Signature,
		Text:             info.GeneratedText,
		NutritionSummary: info.NutritionSummary,
		Status:           info.Status,
		SourceModel:      info.SourceModel,
		GeneratedAt:      info.GeneratedAt,
		ExpiresAt:        info.ExpiresAt,
	}
}
