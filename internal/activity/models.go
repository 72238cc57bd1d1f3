package activity

import (
	"time"

	"github.com/google/uuid"
)

// Действия журнала.
const (
	ActionPageView        = "page_view"
	ActionHistoryView     = "history_view"
	ActionProfileCreated  = "profile_created"
	ActionProfileSelected = "profile_selected"
	ActionProfileDeleted  = "profile_deleted"
	ActionMealPrepared    = "meal_prepared"
	ActionMealMissed      = "meal_missed"
	ActionMealUnprepared  = "meal_unprepared"
	ActionDishViewed      = "dish_viewed"
	ActionImportCommitted = "import_committed"
	ActionEntryAdded      = "entry_added"
	ActionEntryEdited     = "entry_edited"
	ActionEntryCopied     = "entry_copied"
	ActionEntryDeleted    = "entry_deleted"
	ActionWeekCleared     = "week_cleared"
	ActionAdminLogin      = "admin_login"
	ActionPasswordChanged = "admin_password_changed"
	ActionModelChanged    = "ai_model_changed"
	ActionExportCreated   = "export_created"
)

// PageSize — размер страницы журнала в админке.
const PageSize = 50

// Entry is what callers hand to Record.
type Entry struct {
	ProfileID *uuid.UUID
	Action    string
	Details   string
	IP        string
	UserAgent string
}

type EventDTO struct {
	ID        string    `json:"id"`
	ProfileID *string   `json:"profile_id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ListResponse struct {
	Events     []EventDTO `json:"events"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	TotalPages int        `json:"total_pages"`
}
