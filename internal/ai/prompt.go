package ai

import (
	"fmt"
	"regexp"
	"strings"
)

const systemPrompt = "You are a nutrition expert and professional chef. Respond only in clean HTML format."

const nutritionHeading = "Nutritional Information"

// BuildPrompt returns the user prompt for a dish.
func BuildPrompt(req RecipeRequest) string {
	dish := strings.TrimSpace(req.DishName)
	var hint string
	if d := strings.TrimSpace(req.Description); d != "" {
		hint = fmt.Sprintf("\nThe meal plan describes it as: %q.\n", d)
	}
	return fmt.Sprintf(`Provide detailed information about the dish: %q.%s
Please provide the following in clean HTML format (no markdown, use HTML tags):

<h3>Recipe: %s</h3>

<h4>%s (per serving)</h4>
<ul>
<li>Calories: estimated kcal</li>
<li>Protein: g</li>
<li>Carbohydrates: g</li>
<li>Fat: g</li>
<li>Fiber: g</li>
</ul>

<h4>Ingredients</h4>
<ul>List all ingredients with quantities</ul>

<h4>Preparation Steps</h4>
<ol>Step by step cooking instructions</ol>

<h4>Cooking Time</h4>
<p>Prep time, cook time, total time</p>

<h4>Dietary Notes</h4>
<p>Allergens and dietary restrictions</p>

Keep the response concise but informative. Use clean, well-formatted HTML only.`, dish, hint, dish, nutritionHeading)
}

var fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// cleanText убирает markdown-обёртку, которую модели добавляют вопреки инструкции.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// ExtractNutrition returns the nutrition section of the generated HTML, or "".
func ExtractNutrition(text string) string {
	i := strings.Index(text, nutritionHeading)
	if i < 0 {
		return ""
	}
	rest := text[i:]
	start := strings.Index(rest, "<ul>")
	end := strings.Index(rest, "</ul>")
	if start < 0 || end < start {
		return ""
	}
	return strings.TrimSpace(rest[start : end+len("</ul>")])
}

// toResponse validates provider output.
func toResponse(raw, provider, model string) (RecipeResponse, error) {
	text := cleanText(raw)
	if text == "" {
		return RecipeResponse{}, malformed(provider, model, "empty response")
	}
	return RecipeResponse{Text: text, NutritionSummary: ExtractNutrition(text)}, nil
}
