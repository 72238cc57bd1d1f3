package ai

import (
	"context"
	"fmt"
	"html"
	"strings"
)

// MockProvider returns deterministic text; used locally and in tests.
type MockProvider struct{}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (p *MockProvider) Model() string {
	return "mock/mock-chef"
}

func (p *MockProvider) GenerateRecipe(ctx context.Context, req RecipeRequest) (RecipeResponse, error) {
	if err := ctx.Err(); err != nil {
		return RecipeResponse{}, classify(err, "mock", "mock-chef")
	}

	dish := html.EscapeString(strings.TrimSpace(req.DishName))
	var b strings.Builder
	fmt.Fprintf(&b, "<h3>Recipe: %s</h3>\n", dish)
	fmt.Fprintf(&b, "<h4>%s (per serving)</h4>\n", nutritionHeading)
	b.WriteString("<ul><li>See the meal plan for calories and macros</li></ul>\n")
	b.WriteString("<h4>Ingredients</h4>\n<ul><li>")
	if d := strings.TrimSpace(req.Description); d != "" {
		b.WriteString(html.EscapeString(d))
	} else {
		b.WriteString(dish)
	}
	b.WriteString("</li></ul>\n")
	b.WriteString("<h4>Preparation Steps</h4>\n<ol><li>Prepare the ingredients.</li><li>Cook and serve.</li></ol>\n")
	b.WriteString("<p><em>Demo mode: generated without an AI provider.</em></p>")

	return toResponse(b.String(), "mock", "mock-chef")
}
