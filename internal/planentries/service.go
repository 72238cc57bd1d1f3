package planentries

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"

	"github.com/fdg312/meal-tracker/internal/clock"
	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Header — обязательный заголовок файла импорта.
var Header = []string{"plan_date", "meal_type", "dish_name", "description", "calories", "protein_g", "carbs_g", "fat_g", "fiber_g"}

// Service handles plan entries business logic.
type Service struct {
	storage storage.PlanEntriesStorage
	clock   clock.Clock
	logger  *zap.Logger
}

// NewService creates a new plan entries service.
func NewService(st storage.PlanEntriesStorage, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{storage: st, clock: clk, logger: logger.Named("planentries")}
}

// Upsert writes an already validated entry. Scope defaults to everyone.
func (s *Service) Upsert(ctx context.Context, entry storage.PlanEntry) (storage.PlanUpsertResult, error) {
	scope, verr := NormalizeScope(entry.Scope)
	if verr != nil {
		return storage.PlanUpsertResult{}, verr
	}
	normalized, verr := Validate(rawFromEntry(entry))
	if verr != nil {
		return storage.PlanUpsertResult{}, verr
	}
	normalized.Scope = scope

	res, err := s.storage.UpsertPlanEntry(ctx, normalized, s.clock.Now().UTC())
	if err != nil {
		return storage.PlanUpsertResult{}, fmt.Errorf("failed to upsert plan entry: %w", err)
	}
	if res.AdherenceReset > 0 {
		s.logger.Info("dish changed, adherence reset",
			zap.String("entry_id", res.Entry.ID.String()),
			zap.String("plan_date", res.Entry.PlanDate),
			zap.String("meal_type", res.Entry.MealType),
			zap.Int("records", res.AdherenceReset))
	}
	return res, nil
}

func (s *Service) Get(ctx context.Context, key storage.PlanKey) (storage.PlanEntry, bool, error) {
	return s.storage.GetPlanEntry(ctx, key)
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (storage.PlanEntry, bool, error) {
	return s.storage.GetPlanEntryByID(ctx, id)
}

// ListRange returns entries in [from, to] ordered by date and canonical meal order.
func (s *Service) ListRange(ctx context.Context, from, to string, scopes []string) ([]storage.PlanEntry, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	return s.storage.ListPlanEntries(ctx, from, to, scopes)
}

// Delete removes the entry at key together with its adherence records.
func (s *Service) Delete(ctx context.Context, key storage.PlanKey) (bool, error) {
	return s.storage.DeletePlanEntry(ctx, key)
}

func (s *Service) DeleteByID(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.storage.DeletePlanEntryByID(ctx, id)
}

// DeleteRange clears every entry in [from, to] for the given scopes (all when empty).
func (s *Service) DeleteRange(ctx context.Context, from, to string, scopes []string) (int, error) {
	if err := validateRange(from, to); err != nil {
		return 0, err
	}
	n, err := s.storage.DeletePlanEntriesRange(ctx, from, to, scopes)
	if err != nil {
		return 0, fmt.Errorf("failed to delete plan range: %w", err)
	}
	s.logger.Info("plan range cleared", zap.String("from", from), zap.String("to", to), zap.Int("deleted", n))
	return n, nil
}

// AddManual validates a single admin-entered row exactly like an import row.
func (s *Service) AddManual(ctx context.Context, scope string, raw RawEntry) (storage.PlanUpsertResult, error) {
	entry, verr := Validate(raw)
	if verr != nil {
		return storage.PlanUpsertResult{}, verr
	}
	entry.Scope = scope
	return s.Upsert(ctx, entry)
}

// Edit applies a partial change. If date or meal type moves, the entry at the new key
// (if any) is replaced and only then the old entry is removed.
func (s *Service) Edit(ctx context.Context, id uuid.UUID, req EditRequest) (storage.PlanUpsertResult, error) {
	current, found, err := s.storage.GetPlanEntryByID(ctx, id)
	if err != nil {
		return storage.PlanUpsertResult{}, fmt.Errorf("failed to get plan entry: %w", err)
	}
	if !found {
		return storage.PlanUpsertResult{}, ErrEntryNotFound
	}

	updated, verr := Validate(req.apply(rawFromEntry(current)))
	if verr != nil {
		return storage.PlanUpsertResult{}, verr
	}
	updated.Scope = current.Scope

	if updated.Key() == current.Key() {
		return s.Upsert(ctx, updated)
	}

	// сначала запись по новому ключу: при ошибке старая запись остаётся на месте
	updated.ID = uuid.Nil
	res, err := s.Upsert(ctx, updated)
	if err != nil {
		return storage.PlanUpsertResult{}, err
	}
	if _, err := s.storage.DeletePlanEntryByID(ctx, id); err != nil {
		return storage.PlanUpsertResult{}, fmt.Errorf("failed to remove moved plan entry: %w", err)
	}
	return res, nil
}

// Copy upserts the entry's dish at targetDate, keeping meal type and scope.
func (s *Service) Copy(ctx context.Context, id uuid.UUID, targetDate string) (storage.PlanUpsertResult, error) {
	if !clock.ValidDate(targetDate) {
		return storage.PlanUpsertResult{}, &ValidationError{Reason: ReasonInvalidDate, Field: "target_date", Value: targetDate}
	}
	src, found, err := s.storage.GetPlanEntryByID(ctx, id)
	if err != nil {
		return storage.PlanUpsertResult{}, fmt.Errorf("failed to get plan entry: %w", err)
	}
	if !found {
		return storage.PlanUpsertResult{}, ErrEntryNotFound
	}

	dst := src
	dst.ID = uuid.Nil
	dst.PlanDate = targetDate
	return s.Upsert(ctx, dst)
}

// NearestDate returns the plan date closest to date (earlier on ties).
func (s *Service) NearestDate(ctx context.Context, date string, scopes []string) (string, bool, error) {
	if !clock.ValidDate(date) {
		return "", false, &ValidationError{Reason: ReasonInvalidDate, Field: "date", Value: date}
	}
	return s.storage.NearestPlanDate(ctx, date, scopes)
}

func (s *Service) Stats(ctx context.Context) (storage.PlanStats, error) {
	return s.storage.PlanStats(ctx)
}

// Template returns the sample import file.
func Template() ([]byte, error) {
	rows := [][]string{
		Header,
		{"2026-02-22", storage.MealBreakfast, "Oatmeal with Berries", "Warm oatmeal topped with fresh berries and honey", "350", "12", "55", "8", "6"},
		{"2026-02-22", storage.MealLunch, "Grilled Chicken Salad", "Mixed greens with grilled chicken breast", "420", "35", "15", "22", "4"},
		{"2026-02-22", storage.MealDinner, "Salmon with Vegetables", "Baked salmon fillet with roasted seasonal vegetables", "480", "38", "20", "28", "5"},
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to write template: %w", err)
	}
	return buf.Bytes(), nil
}

func validateRange(from, to string) error {
	if !clock.ValidDate(from) {
		return &ValidationError{Reason: ReasonInvalidDate, Field: "from", Value: from}
	}
	if !clock.ValidDate(to) || to < from {
		return &ValidationError{Reason: ReasonInvalidDate, Field: "to", Value: to}
	}
	return nil
}
