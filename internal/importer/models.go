package importer

import (
	"strconv"

	"github.com/fdg312/meal-tracker/internal/planentries"
)

// Reason — причина отклонения строки.
type Reason = planentries.Reason

const (
	ReasonInvalidDate     Reason = planentries.ReasonInvalidDate
	ReasonInvalidMealType Reason = planentries.ReasonInvalidMealType
	ReasonMissingDish     Reason = planentries.ReasonMissingDish
	ReasonInvalidNumber   Reason = planentries.ReasonInvalidNumber
	ReasonStorageError    Reason = "StorageError"
	ReasonMalformedRow    Reason = "MalformedRow"
)

// RowError — отклонённая строка. Никогда не прерывает загрузку.
type RowError struct {
	Row    int    `json:"row"`
	Reason Reason `json:"reason"`
	Field  string `json:"field,omitempty"`
	Value  string `json:"value,omitempty"`
}

func (e RowError) Error() string {
	return "row " + strconv.Itoa(e.Row) + ": " + string(e.Reason)
}

// ReplacedRow — строка, перекрытая более поздней строкой с тем же (plan_date, meal_type).
type ReplacedRow struct {
	Row        int `json:"row"`
	ReplacedBy int `json:"replaced_by"`
}

// Effects — влияние загрузки на хранилище (в dry-run вычисляется чтением).
type Effects struct {
	Created        int `json:"created"`
	Updated        int `json:"updated"`
	Unchanged      int `json:"unchanged"`
	DishChanged    int `json:"dish_changed"`
	AdherenceReset int `json:"adherence_reset"`
}

// Report — результат импорта.
type Report struct {
	DryRun     bool          `json:"dry_run"`
	Scope      string        `json:"scope"`
	Format     Format        `json:"format"`
	TotalRows  int           `json:"total_rows"`
	Accepted   int           `json:"accepted"`
	Replaced   []ReplacedRow `json:"replaced"`
	Rejected   []RowError    `json:"rejected"`
	Effects    Effects       `json:"effects"`
	ArchiveKey string        `json:"archive_key,omitempty"`
}

// Request — входные данные импорта.
type Request struct {
	Data     []byte
	Filename string
	Scope    string
	DryRun   bool
}
