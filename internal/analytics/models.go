package analytics

import "github.com/google/uuid"

// StatsResponse — сводка для админки
type StatsResponse struct {
	Members        int `json:"members"`
	Entries        int `json:"entries"`
	PlanDays       int `json:"plan_days"`
	RecipeEntries  int `json:"recipe_entries"`
	ActivityLast24 int `json:"activity_last_24h"`
}

// MemberAdherence — итоги недели одного участника
type MemberAdherence struct {
	ProfileID uuid.UUID `json:"profile_id"`
	Name      string    `json:"name"`
	Prepared  int       `json:"prepared"`
	Missed    int       `json:"missed"`
	Pending   int       `json:"pending"`
	Total     int       `json:"total"`
	Rate      *float64  `json:"rate"` // prepared / (prepared + missed), nil без решённых приёмов
}

// AdherenceResponse — ответ GET /v1/admin/adherence
type AdherenceResponse struct {
	WeekStart string            `json:"week_start"`
	WeekEnd   string            `json:"week_end"`
	Members   []MemberAdherence `json:"members"`
}

// ErrorResponse — формат ошибки
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
