package adherence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fdg312/meal-tracker/internal/planentries"
	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
)

var (
	ErrInvalidStatus = errors.New("status must be prepared or missed")
	ErrInvalidDate   = errors.New("invalid date")
)

// Kind — эффективный статус приёма пищи.
type Kind string

const (
	KindPending  Kind = storage.StatusPending
	KindPrepared Kind = storage.StatusPrepared
	KindMissed   Kind = storage.StatusMissed
)

// Status is what a user sees for one plan entry.
// Materialized is false when the status is inferred (pending or implicit missed).
type Status struct {
	Kind         Kind
	Materialized bool
	ChangedAt    *time.Time
}

// Effective: сохранённая отметка, иначе missed для прошедших дат, иначе pending.
// Даты сравниваются как YYYY-MM-DD строки.
func Effective(rec *storage.AdherenceRecord, planDate, today string) Status {
	if rec != nil {
		changed := rec.StatusChangedAt
		return Status{Kind: Kind(rec.Status), Materialized: true, ChangedAt: &changed}
	}
	if planDate < today {
		return Status{Kind: KindMissed}
	}
	return Status{Kind: KindPending}
}

// ParseMarkStatus accepts only explicitly settable statuses.
func ParseMarkStatus(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case storage.StatusPrepared:
		return storage.StatusPrepared, nil
	case storage.StatusMissed:
		return storage.StatusMissed, nil
	default:
		return "", ErrInvalidStatus
	}
}

// ConflictError сообщает, что отметку успели изменить между чтением и записью.
// Запись всё равно применяется (last writer wins).
type ConflictError struct {
	EntryID          uuid.UUID
	UserID           string
	ExpectedRevision int64
	ActualRevision   int64
	OverwrittenState string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("adherence for entry %s changed concurrently: expected revision %d, found %d",
		e.EntryID, e.ExpectedRevision, e.ActualRevision)
}

type MarkResult struct {
	Record   storage.AdherenceRecord
	Previous *storage.AdherenceRecord
	Conflict *ConflictError
}

// Counts — агрегаты по эффективным статусам.
type Counts struct {
	Prepared int `json:"prepared"`
	Missed   int `json:"missed"`
	Pending  int `json:"pending"`
}

func (c *Counts) add(k Kind) {
	switch k {
	case KindPrepared:
		c.Prepared++
	case KindMissed:
		c.Missed++
	default:
		c.Pending++
	}
}

func (c *Counts) merge(o Counts) {
	c.Prepared += o.Prepared
	c.Missed += o.Missed
	c.Pending += o.Pending
}

func (c Counts) Total() int {
	return c.Prepared + c.Missed + c.Pending
}

type EntryView struct {
	Entry  storage.PlanEntry
	Status Status
}

type DayView struct {
	Date    string
	Entries []EntryView
	Counts  Counts
}

type WeekView struct {
	WeekStart string
	WeekEnd   string
	Days      []DayView
	Totals    Counts
}

// DashboardView — экран "сегодня" с навигацией по дням.
type DashboardView struct {
	Date             string
	Today            string
	IsToday          bool
	Fallback         bool // показана ближайшая дата с планом вместо сегодняшней
	PrevDate         string
	NextDate         string
	Entries          []EntryView
	Counts           Counts
	TotalCalories    float64
	PreparedCalories float64
}

// DTOs

type StatusDTO struct {
	Status       string     `json:"status"`
	Materialized bool       `json:"materialized"`
	ChangedAt    *time.Time `json:"changed_at,omitempty"`
}

type EntryStatusDTO struct {
	Entry planentries.PlanEntryDTO `json:"entry"`
	StatusDTO
}

type DayDTO struct {
	Date    string           `json:"date"`
	Entries []EntryStatusDTO `json:"entries"`
	Counts  Counts           `json:"counts"`
}

type WeekDTO struct {
	WeekStart string   `json:"week_start"`
	WeekEnd   string   `json:"week_end"`
	Days      []DayDTO `json:"days"`
	Totals    Counts   `json:"totals"`
}

type DashboardDTO struct {
	Date             string           `json:"date"`
	Today            string           `json:"today"`
	IsToday          bool             `json:"is_today"`
	Fallback         bool             `json:"fallback"`
	PrevDate         string           `json:"prev_date"`
	NextDate         string           `json:"next_date"`
	Entries          []EntryStatusDTO `json:"entries"`
	Counts           Counts           `json:"counts"`
	TotalCalories    float64          `json:"total_calories"`
	PreparedCalories float64          `json:"prepared_calories"`
}

// MarkRequest — тело POST /v1/entries/{id}/mark.
type MarkRequest struct {
	Status           string `json:"status"`
	ExpectedRevision *int64 `json:"expected_revision,omitempty"`
}

type RecordDTO struct {
	EntryID         string    `json:"entry_id"`
	Status          string    `json:"status"`
	StatusChangedAt time.Time `json:"status_changed_at"`
	Revision        int64     `json:"revision"`
}

type ConflictDTO struct {
	ExpectedRevision int64  `json:"expected_revision"`
	ActualRevision   int64  `json:"actual_revision"`
	OverwrittenState string `json:"overwritten_status"`
}

type MarkResponse struct {
	Record         RecordDTO    `json:"record"`
	PreviousStatus string       `json:"previous_status"`
	Conflict       *ConflictDTO `json:"conflict,omitempty"`
}

func toStatusDTO(s Status) StatusDTO {
	return StatusDTO{Status: string(s.Kind), Materialized: s.Materialized, ChangedAt: s.ChangedAt}
}

func toEntryDTOs(views []EntryView) []EntryStatusDTO {
	out := make([]EntryStatusDTO, len(views))
	for i, v := range views {
		out[i] = EntryStatusDTO{Entry: planentries.ToDTO(v.Entry), StatusDTO: toStatusDTO(v.Status)}
	}
	return out
}

func ToWeekDTO(w WeekView) WeekDTO {
	days := make([]DayDTO, len(w.Days))
	for i, d := range w.Days {
		days[i] = DayDTO{Date: d.Date, Entries: toEntryDTOs(d.Entries), Counts: d.Counts}
	}
	return WeekDTO{WeekStart: w.WeekStart, WeekEnd: w.WeekEnd, Days: days, Totals: w.Totals}
}

func ToDashboardDTO(d DashboardView) DashboardDTO {
	return DashboardDTO{
		Date:             d.Date,
		Today:            d.Today,
		IsToday:          d.IsToday,
		Fallback:         d.Fallback,
		PrevDate:         d.PrevDate,
		NextDate:         d.NextDate,
		Entries:          toEntryDTOs(d.Entries),
		Counts:           d.Counts,
		TotalCalories:    d.TotalCalories,
		PreparedCalories: d.PreparedCalories,
	}
}

func toMarkResponse(res MarkResult) MarkResponse {
	resp := MarkResponse{
		Record: RecordDTO{
			EntryID:         res.Record.EntryID.String(),
			Status:          res.Record.Status,
			StatusChangedAt: res.Record.StatusChangedAt,
			Revision:        res.Record.Revision,
		},
		PreviousStatus: storage.StatusPending,
	}
	if res.Previous != nil {
		resp.PreviousStatus = res.Previous.Status
	}
	if c := res.Conflict; c != nil {
		resp.Conflict = &ConflictDTO{
			ExpectedRevision: c.ExpectedRevision,
			ActualRevision:   c.ActualRevision,
			OverwrittenState: c.OverwrittenState,
		}
	}
	return resp
}
