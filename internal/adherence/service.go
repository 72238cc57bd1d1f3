// Package adherence ведёт отметки выполнения плана и строит представления по дням и неделям.
package adherence

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/fdg312/meal-tracker/internal/clock"
	"github.com/fdg312/meal-tracker/internal/planentries"
	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the slice of storage the ledger needs.
type Store interface {
	storage.PlanEntriesStorage
	storage.AdherenceStorage
}

// Service handles adherence business logic.
type Service struct {
	storage Store
	clock   clock.Clock
	logger  *zap.Logger
}

// NewService creates a new adherence service.
func NewService(st Store, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{storage: st, clock: clk, logger: logger.Named("adherence")}
}

// Today returns the current calendar date of the injected clock.
func (s *Service) Today() string {
	return clock.Today(s.clock)
}

// Mark sets status for the entry at key.
func (s *Service) Mark(ctx context.Context, key storage.PlanKey, userID, status string) (storage.AdherenceRecord, error) {
	if !visible(key.Scope, userID) {
		return storage.AdherenceRecord{}, planentries.ErrEntryNotFound
	}
	entry, found, err := s.storage.GetPlanEntry(ctx, key)
	if err != nil {
		return storage.AdherenceRecord{}, fmt.Errorf("failed to get plan entry: %w", err)
	}
	if !found {
		return storage.AdherenceRecord{}, planentries.ErrEntryNotFound
	}
	res, err := s.MarkByID(ctx, entry.ID, userID, status, nil)
	if err != nil {
		return storage.AdherenceRecord{}, err
	}
	return res.Record, nil
}

// MarkByID sets status for an entry. With expectedRevision the result carries a
// ConflictError when the stored revision differed; the write is applied anyway.
func (s *Service) MarkByID(ctx context.Context, entryID uuid.UUID, userID, status string, expectedRevision *int64) (MarkResult, error) {
	status, err := ParseMarkStatus(status)
	if err != nil {
		return MarkResult{}, err
	}
	if _, err := s.visibleEntry(ctx, entryID, userID); err != nil {
		return MarkResult{}, err
	}

	rec, prev, err := s.storage.SetAdherence(ctx, entryID, userID, status, s.clock.Now().UTC())
	if errors.Is(err, storage.ErrEntryGone) {
		return MarkResult{}, planentries.ErrEntryNotFound
	}
	if err != nil {
		return MarkResult{}, fmt.Errorf("failed to set adherence: %w", err)
	}

	res := MarkResult{Record: rec, Previous: prev}
	if expectedRevision != nil {
		var actual int64
		overwritten := storage.StatusPending
		if prev != nil {
			actual = prev.Revision
			overwritten = prev.Status
		}
		if actual != *expectedRevision {
			res.Conflict = &ConflictError{
				EntryID:          entryID,
				UserID:           userID,
				ExpectedRevision: *expectedRevision,
				ActualRevision:   actual,
				OverwrittenState: overwritten,
			}
			s.logger.Info("adherence conflict",
				zap.String("entry_id", entryID.String()),
				zap.String("user_id", userID),
				zap.Int64("expected", *expectedRevision),
				zap.Int64("actual", actual))
		}
	}
	return res, nil
}

// Unmark removes the record; the entry becomes pending (or implicitly missed) again.
func (s *Service) Unmark(ctx context.Context, entryID uuid.UUID, userID string) (bool, error) {
	if _, err := s.visibleEntry(ctx, entryID, userID); err != nil {
		return false, err
	}
	deleted, err := s.storage.DeleteAdherence(ctx, entryID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete adherence: %w", err)
	}
	return deleted, nil
}

// MaterializedStatus returns the stored record, nil when nothing was marked.
func (s *Service) MaterializedStatus(ctx context.Context, entryID uuid.UUID, userID string) (*storage.AdherenceRecord, error) {
	if _, err := s.visibleEntry(ctx, entryID, userID); err != nil {
		return nil, err
	}
	rec, found, err := s.storage.GetAdherence(ctx, entryID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get adherence: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

func (s *Service) EffectiveStatus(ctx context.Context, entryID uuid.UUID, userID string) (storage.PlanEntry, Status, error) {
	entry, err := s.visibleEntry(ctx, entryID, userID)
	if err != nil {
		return storage.PlanEntry{}, Status{}, err
	}
	rec, found, err := s.storage.GetAdherence(ctx, entryID, userID)
	if err != nil {
		return storage.PlanEntry{}, Status{}, fmt.Errorf("failed to get adherence: %w", err)
	}
	var recPtr *storage.AdherenceRecord
	if found {
		recPtr = &rec
	}
	return entry, Effective(recPtr, entry.PlanDate, s.Today()), nil
}

// TodayView returns the user's entries for asOf with effective statuses.
func (s *Service) TodayView(ctx context.Context, userID, asOf string) ([]EntryView, error) {
	if !clock.ValidDate(asOf) {
		return nil, ErrInvalidDate
	}
	days, err := s.days(ctx, userID, asOf, asOf)
	if err != nil {
		return nil, err
	}
	return days[0].Entries, nil
}

// Dashboard: без явной даты и без плана на сегодня показывается ближайшая дата с планом.
func (s *Service) Dashboard(ctx context.Context, userID, date string) (DashboardView, error) {
	today := s.Today()
	view := DashboardView{Today: today}

	switch {
	case date == "":
		view.Date = today
		entries, err := s.TodayView(ctx, userID, today)
		if err != nil {
			return DashboardView{}, err
		}
		if len(entries) == 0 {
			nearest, found, err := s.storage.NearestPlanDate(ctx, today, storage.ScopesFor(userID))
			if err != nil {
				return DashboardView{}, fmt.Errorf("failed to find nearest plan date: %w", err)
			}
			if found {
				view.Date = nearest
				view.Fallback = true
			}
		}
	case clock.ValidDate(date):
		view.Date = date
	default:
		return DashboardView{}, ErrInvalidDate
	}

	entries, err := s.TodayView(ctx, userID, view.Date)
	if err != nil {
		return DashboardView{}, err
	}
	view.Entries = entries
	view.IsToday = view.Date == today
	view.PrevDate, _ = clock.AddDays(view.Date, -1)
	view.NextDate, _ = clock.AddDays(view.Date, 1)
	for _, e := range entries {
		view.Counts.add(e.Status.Kind)
		view.TotalCalories += e.Entry.Calories
		if e.Status.Kind == KindPrepared {
			view.PreparedCalories += e.Entry.Calories
		}
	}
	return view, nil
}

// WeeklyView returns 7 days starting at weekStart.
func (s *Service) WeeklyView(ctx context.Context, userID, weekStart string) (WeekView, error) {
	end, err := clock.AddDays(weekStart, 6)
	if err != nil {
		return WeekView{}, ErrInvalidDate
	}
	days, err := s.days(ctx, userID, weekStart, end)
	if err != nil {
		return WeekView{}, err
	}
	view := WeekView{WeekStart: weekStart, WeekEnd: end, Days: days}
	for _, d := range days {
		view.Totals.merge(d.Counts)
	}
	return view, nil
}

// RangeView returns every day in [from, to] with effective statuses.
func (s *Service) RangeView(ctx context.Context, userID, from, to string) ([]DayView, error) {
	if !clock.ValidDate(from) || !clock.ValidDate(to) || to < from {
		return nil, ErrInvalidDate
	}
	return s.days(ctx, userID, from, to)
}

// WeekStartFor returns the Monday of the current week shifted by offset weeks.
func (s *Service) WeekStartFor(offset int) string {
	start, _ := clock.WeekStart(s.Today())
	start, _ = clock.AddDays(start, 7*offset)
	return start
}

// days строит DayView для каждой даты [from, to], включая пустые дни.
func (s *Service) days(ctx context.Context, userID, from, to string) ([]DayView, error) {
	entries, err := s.storage.ListPlanEntries(ctx, from, to, storage.ScopesFor(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to list plan entries: %w", err)
	}

	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	records, err := s.storage.ListAdherence(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list adherence: %w", err)
	}

	n, err := clock.DaysBetween(from, to)
	if err != nil {
		return nil, ErrInvalidDate
	}
	days := make([]DayView, n+1)
	index := make(map[string]int, n+1)
	for i := range days {
		date, _ := clock.AddDays(from, i)
		days[i] = DayView{Date: date, Entries: []EntryView{}}
		index[date] = i
	}

	today := s.Today()
	for _, e := range entries {
		i, ok := index[e.PlanDate]
		if !ok {
			continue
		}
		var recPtr *storage.AdherenceRecord
		if rec, found := records[e.ID]; found {
			recPtr = &rec
		}
		st := Effective(recPtr, e.PlanDate, today)
		days[i].Entries = append(days[i].Entries, EntryView{Entry: e, Status: st})
		days[i].Counts.add(st.Kind)
	}
	return days, nil
}

func (s *Service) visibleEntry(ctx context.Context, entryID uuid.UUID, userID string) (storage.PlanEntry, error) {
	entry, found, err := s.storage.GetPlanEntryByID(ctx, entryID)
	if err != nil {
		return storage.PlanEntry{}, fmt.Errorf("failed to get plan entry: %w", err)
	}
	if !found || !visible(entry.Scope, userID) {
		return storage.PlanEntry{}, planentries.ErrEntryNotFound
	}
	return entry, nil
}

func visible(scope, userID string) bool {
	return slices.Contains(storage.ScopesFor(userID), scope)
}
