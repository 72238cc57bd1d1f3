package planentries

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fdg312/meal-tracker/internal/clock"
	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
)

// Reason — код причины отклонения строки/записи.
type Reason string

// Причины проверяются в этом порядке; первая сработавшая побеждает.
const (
	ReasonInvalidDate     Reason = "InvalidDate"
	ReasonInvalidMealType Reason = "InvalidMealType"
	ReasonMissingDish     Reason = "MissingDish"
	ReasonInvalidNumber   Reason = "InvalidNumber"
	ReasonInvalidScope    Reason = "InvalidScope"
)

var (
	ErrEntryNotFound = errors.New("plan entry not found")
)

// ValidationError describes why a single entry was rejected.
type ValidationError struct {
	Reason Reason
	Field  string
	Value  string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s=%q", e.Reason, e.Field, e.Value)
}

// RawEntry — запись плана в виде строк, как она пришла из таблицы или формы.
type RawEntry struct {
	PlanDate    string
	MealType    string
	DishName    string
	Description string
	Calories    string
	ProteinG    string
	CarbsG      string
	FatG        string
	FiberG      string
}

// Validate normalizes raw into a plan entry (without scope) or reports the first failure.
func Validate(raw RawEntry) (storage.PlanEntry, *ValidationError) {
	date := strings.TrimSpace(raw.PlanDate)
	if !clock.ValidDate(date) {
		return storage.PlanEntry{}, &ValidationError{Reason: ReasonInvalidDate, Field: "plan_date", Value: raw.PlanDate}
	}

	meal, ok := NormalizeMealType(raw.MealType)
	if !ok {
		return storage.PlanEntry{}, &ValidationError{Reason: ReasonInvalidMealType, Field: "meal_type", Value: raw.MealType}
	}

	dish := strings.TrimSpace(raw.DishName)
	if dish == "" {
		return storage.PlanEntry{}, &ValidationError{Reason: ReasonMissingDish, Field: "dish_name"}
	}

	entry := storage.PlanEntry{
		PlanDate:    date,
		MealType:    meal,
		DishName:    dish,
		Description: strings.TrimSpace(raw.Description),
	}
	numbers := []struct {
		field string
		raw   string
		dst   *float64
	}{
		{"calories", raw.Calories, &entry.Calories},
		{"protein_g", raw.ProteinG, &entry.ProteinG},
		{"carbs_g", raw.CarbsG, &entry.CarbsG},
		{"fat_g", raw.FatG, &entry.FatG},
		{"fiber_g", raw.FiberG, &entry.FiberG},
	}
	for _, n := range numbers {
		v, ok := ParseNumber(n.raw)
		if !ok {
			return storage.PlanEntry{}, &ValidationError{Reason: ReasonInvalidNumber, Field: n.field, Value: n.raw}
		}
		*n.dst = v
	}
	return entry, nil
}

// NormalizeMealType trims and lowercases s and checks it against the six meal types.
func NormalizeMealType(s string) (string, bool) {
	m := strings.ToLower(strings.TrimSpace(s))
	for _, known := range storage.MealTypes {
		if m == known {
			return m, true
		}
	}
	return "", false
}

// ParseNumber parses a non-negative finite number; blank means 0.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

// NormalizeScope returns "everyone" for blank input, or a canonical profile UUID.
func NormalizeScope(s string) (string, *ValidationError) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, storage.ScopeEveryone) {
		return storage.ScopeEveryone, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", &ValidationError{Reason: ReasonInvalidScope, Field: "scope", Value: s}
	}
	return id.String(), nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// rawFromEntry is the inverse of Validate, used to overlay partial edits.
func rawFromEntry(e storage.PlanEntry) RawEntry {
	return RawEntry{
		PlanDate:    e.PlanDate,
		MealType:    e.MealType,
		DishName:    e.DishName,
		Description: e.Description,
		Calories:    formatNumber(e.Calories),
		ProteinG:    formatNumber(e.ProteinG),
		CarbsG:      formatNumber(e.CarbsG),
		FatG:        formatNumber(e.FatG),
		FiberG:      formatNumber(e.FiberG),
	}
}

type PlanEntryDTO struct {
	ID          string    `json:"id"`
	Scope       string    `json:"scope"`
	PlanDate    string    `json:"plan_date"`
	MealType    string    `json:"meal_type"`
	DishName    string    `json:"dish_name"`
	Description string    `json:"description"`
	Calories    float64   `json:"calories"`
	ProteinG    float64   `json:"protein_g"`
	CarbsG      float64   `json:"carbs_g"`
	FatG        float64   `json:"fat_g"`
	FiberG      float64   `json:"fiber_g"`
	Revision    int64     `json:"revision"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func ToDTO(e storage.PlanEntry) PlanEntryDTO {
	return PlanEntryDTO{
		ID:          e.ID.String(),
		Scope:       e.Scope,
		PlanDate:    e.PlanDate,
		MealType:    e.MealType,
		DishName:    e.DishName,
		Description: e.Description,
		Calories:    e.Calories,
		ProteinG:    e.ProteinG,
		CarbsG:      e.CarbsG,
		FatG:        e.FatG,
		FiberG:      e.FiberG,
		Revision:    e.Revision,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// EntryRequest — тело POST /v1/admin/entries.
type EntryRequest struct {
	Scope       string   `json:"scope"`
	PlanDate    string   `json:"plan_date"`
	MealType    string   `json:"meal_type"`
	DishName    string   `json:"dish_name"`
	Description string   `json:"description"`
	Calories    *float64 `json:"calories"`
	ProteinG    *float64 `json:"protein_g"`
	CarbsG      *float64 `json:"carbs_g"`
	FatG        *float64 `json:"fat_g"`
	FiberG      *float64 `json:"fiber_g"`
}

func (r EntryRequest) raw() RawEntry {
	return RawEntry{
		PlanDate:    r.PlanDate,
		MealType:    r.MealType,
		DishName:    r.DishName,
		Description: r.Description,
		Calories:    optNumber(r.Calories),
		ProteinG:    optNumber(r.ProteinG),
		CarbsG:      optNumber(r.CarbsG),
		FatG:        optNumber(r.FatG),
		FiberG:      optNumber(r.FiberG),
	}
}

// EditRequest — тело PATCH /v1/admin/entries/{id}; nil поля не меняются.
type EditRequest struct {
	PlanDate    *string  `json:"plan_date"`
	MealType    *string  `json:"meal_type"`
	DishName    *string  `json:"dish_name"`
	Description *string  `json:"description"`
	Calories    *float64 `json:"calories"`
	ProteinG    *float64 `json:"protein_g"`
	CarbsG      *float64 `json:"carbs_g"`
	FatG        *float64 `json:"fat_g"`
	FiberG      *float64 `json:"fiber_g"`
}

func (r EditRequest) apply(raw RawEntry) RawEntry {
	if r.PlanDate != nil {
		raw.PlanDate = *r.PlanDate
	}
	if r.MealType != nil {
		raw.MealType = *r.MealType
	}
	if r.DishName != nil {
		raw.DishName = *r.DishName
	}
	if r.Description != nil {
		raw.Description = *r.Description
	}
	if r.Calories != nil {
		raw.Calories = formatNumber(*r.Calories)
	}
	if r.ProteinG != nil {
		raw.ProteinG = formatNumber(*r.ProteinG)
	}
	if r.CarbsG != nil {
		raw.CarbsG = formatNumber(*r.CarbsG)
	}
	if r.FatG != nil {
		raw.FatG = formatNumber(*r.FatG)
	}
	if r.FiberG != nil {
		raw.FiberG = formatNumber(*r.FiberG)
	}
	return raw
}

type CopyRequest struct {
	TargetDate string `json:"target_date"`
}

// WriteResponse — результат записи для админских операций.
type WriteResponse struct {
	Entry          PlanEntryDTO `json:"entry"`
	Outcome        string       `json:"outcome"`
	AdherenceReset int          `json:"adherence_reset"`
}

type ListResponse struct {
	From    string         `json:"from"`
	To      string         `json:"to"`
	Entries []PlanEntryDTO `json:"entries"`
}

type StatsDTO struct {
	Entries int `json:"entries"`
	Days    int `json:"days"`
}

func optNumber(v *float64) string {
	if v == nil {
		return ""
	}
	return formatNumber(*v)
}

func toWriteResponse(res storage.PlanUpsertResult) WriteResponse {
	return WriteResponse{
		Entry:          ToDTO(res.Entry),
		Outcome:        string(res.Outcome),
		AdherenceReset: res.AdherenceReset,
	}
}
