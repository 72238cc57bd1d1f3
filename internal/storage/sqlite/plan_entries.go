package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
)

const planEntryColumns = `id, scope, plan_date, meal_type, dish_name, description,
	calories, protein_g, carbs_g, fat_g, fiber_g, revision, created_at, updated_at`

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanPlanEntry(row rowScanner) (storage.PlanEntry, error) {
	var (
		e                storage.PlanEntry
		id               string
		created, updated int64
	)
	err := row.Scan(
		&id,
		&e.Scope,
		&e.PlanDate,
		&e.MealType,
		&e.DishName,
		&e.Description,
		&e.Calories,
		&e.ProteinG,
		&e.CarbsG,
		&e.FatG,
		&e.FiberG,
		&e.Revision,
		&created,
		&updated,
	)
	if err != nil {
		return storage.PlanEntry{}, err
	}
	if e.ID, err = uuid.Parse(id); err != nil {
		return storage.PlanEntry{}, fmt.Errorf("bad plan entry id %q: %w", id, err)
	}
	e.CreatedAt = fromNanos(created)
	e.UpdatedAt = fromNanos(updated)
	return e, nil
}

func getPlanEntryByKey(ctx context.Context, q querier, key storage.PlanKey) (storage.PlanEntry, bool, error) {
	e, err := scanPlanEntry(q.QueryRowContext(ctx, `
		SELECT `+planEntryColumns+` FROM plan_entries
		WHERE plan_date = ? AND meal_type = ? AND scope = ?
	`, key.PlanDate, key.MealType, key.Scope))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.PlanEntry{}, false, nil
	}
	if err != nil {
		return storage.PlanEntry{}, false, fmt.Errorf("failed to get plan entry: %w", err)
	}
	return e, true, nil
}

func (s *SQLiteStorage) UpsertPlanEntry(ctx context.Context, entry storage.PlanEntry, now time.Time) (storage.PlanUpsertResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.PlanUpsertResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, found, err := getPlanEntryByKey(ctx, tx, entry.Key())
	if err != nil {
		return storage.PlanUpsertResult{}, err
	}

	var result storage.PlanUpsertResult
	switch {
	case !found:
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		entry.Revision = 1
		entry.CreatedAt = now.UTC()
		entry.UpdatedAt = now.UTC()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO plan_entries (`+planEntryColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		`, entry.ID.String(), entry.Scope, entry.PlanDate, entry.MealType, entry.DishName, entry.Description,
			entry.Calories, entry.ProteinG, entry.CarbsG, entry.FatG, entry.FiberG, toNanos(now), toNanos(now))
		if err != nil {
			return storage.PlanUpsertResult{}, fmt.Errorf("failed to insert plan entry: %w", err)
		}
		result = storage.PlanUpsertResult{Entry: entry, Outcome: storage.OutcomeCreated}

	case storage.SameContent(existing, entry):
		result = storage.PlanUpsertResult{Entry: existing, Outcome: storage.OutcomeUnchanged}

	default:
		reset := 0
		dishChanged := !storage.SameDish(existing, entry)
		if dishChanged {
			res, err := tx.ExecContext(ctx, `DELETE FROM adherence_records WHERE entry_id = ?`, existing.ID.String())
			if err != nil {
				return storage.PlanUpsertResult{}, fmt.Errorf("failed to reset adherence: %w", err)
			}
			reset = int(affected(res))
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE plan_entries
			SET dish_name = ?, description = ?, calories = ?, protein_g = ?, carbs_g = ?,
				fat_g = ?, fiber_g = ?, revision = revision + 1, updated_at = ?
			WHERE id = ?
		`, entry.DishName, entry.Description, entry.Calories, entry.ProteinG, entry.CarbsG,
			entry.FatG, entry.FiberG, toNanos(now), existing.ID.String())
		if err != nil {
			return storage.PlanUpsertResult{}, fmt.Errorf("failed to update plan entry: %w", err)
		}
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
		entry.UpdatedAt = now.UTC()
		entry.Revision = existing.Revision + 1
		result = storage.PlanUpsertResult{Entry: entry, Outcome: storage.OutcomeUpdated, DishChanged: dishChanged, AdherenceReset: reset}
	}

	if err := tx.Commit(); err != nil {
		return storage.PlanUpsertResult{}, fmt.Errorf("failed to commit: %w", err)
	}
	return result, nil
}

func (s *SQLiteStorage) GetPlanEntry(ctx context.Context, key storage.PlanKey) (storage.PlanEntry, bool, error) {
	return getPlanEntryByKey(ctx, s.db, key)
}

func (s *SQLiteStorage) GetPlanEntryByID(ctx context.Context, id uuid.UUID) (storage.PlanEntry, bool, error) {
	e, err := scanPlanEntry(s.db.QueryRowContext(ctx, `
		SELECT `+planEntryColumns+` FROM plan_entries WHERE id = ?
	`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.PlanEntry{}, false, nil
	}
	if err != nil {
		return storage.PlanEntry{}, false, fmt.Errorf("failed to get plan entry: %w", err)
	}
	return e, true, nil
}

func (s *SQLiteStorage) ListPlanEntries(ctx context.Context, from, to string, scopes []string) ([]storage.PlanEntry, error) {
	scopeSQL, scopeArgs := inClause("scope", scopes)
	args := append([]any{from, to}, scopeArgs...)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+planEntryColumns+` FROM plan_entries
		WHERE plan_date BETWEEN ? AND ? AND `+scopeSQL+`
		ORDER BY plan_date
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list plan entries: %w", err)
	}
	defer rows.Close()

	entries := make([]storage.PlanEntry, 0)
	for rows.Next() {
		e, err := scanPlanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	storage.SortPlanEntries(entries)
	return entries, nil
}

func (s *SQLiteStorage) DeletePlanEntry(ctx context.Context, key storage.PlanKey) (bool, error) {
	e, found, err := s.GetPlanEntry(ctx, key)
	if err != nil || !found {
		return false, err
	}
	return s.DeletePlanEntryByID(ctx, e.ID)
}

func (s *SQLiteStorage) DeletePlanEntryByID(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM adherence_records WHERE entry_id = ?`, id.String()); err != nil {
		return false, fmt.Errorf("failed to delete adherence: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM plan_entries WHERE id = ?`, id.String())
	if err != nil {
		return false, fmt.Errorf("failed to delete plan entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return affected(res) > 0, nil
}

func (s *SQLiteStorage) DeletePlanEntriesRange(ctx context.Context, from, to string, scopes []string) (int, error) {
	scopeSQL, scopeArgs := inClause("scope", scopes)
	args := append([]any{from, to}, scopeArgs...)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM adherence_records WHERE entry_id IN (
			SELECT id FROM plan_entries WHERE plan_date BETWEEN ? AND ? AND `+scopeSQL+`
		)
	`, args...); err != nil {
		return 0, fmt.Errorf("failed to delete adherence: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		DELETE FROM plan_entries WHERE plan_date BETWEEN ? AND ? AND `+scopeSQL, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete plan entries: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return int(affected(res)), nil
}

func (s *SQLiteStorage) NearestPlanDate(ctx context.Context, date string, scopes []string) (string, bool, error) {
	scopeSQL, scopeArgs := inClause("scope", scopes)
	args := append(scopeArgs, date)

	var nearest string
	err := s.db.QueryRowContext(ctx, `
		SELECT plan_date FROM plan_entries
		WHERE `+scopeSQL+`
		ORDER BY abs(julianday(plan_date) - julianday(?)), plan_date
		LIMIT 1
	`, args...).Scan(&nearest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to find nearest plan date: %w", err)
	}
	return nearest, true, nil
}

func (s *SQLiteStorage) PlanStats(ctx context.Context) (storage.PlanStats, error) {
	var st storage.PlanStats
	if err := s.db.QueryRowContext(ctx, `
		SELECT count(*), count(DISTINCT plan_date) FROM plan_entries
	`).Scan(&st.Entries, &st.Days); err != nil {
		return storage.PlanStats{}, fmt.Errorf("failed to get plan stats: %w", err)
	}
	return st, nil
}
