package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const planEntryColumns = `id, scope, plan_date::text, meal_type, dish_name, description,
	calories, protein_g, carbs_g, fat_g, fiber_g, revision, created_at, updated_at`

func scanPlanEntry(row pgx.Row) (storage.PlanEntry, error) {
	var e storage.PlanEntry
	err := row.Scan(
		&e.ID,
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
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	return e, err
}

// UpsertPlanEntry: INSERT .. ON CONFLICT DO NOTHING, иначе строка блокируется FOR UPDATE
// и заменяется в той же транзакции.
func (s *PostgresStorage) UpsertPlanEntry(ctx context.Context, entry storage.PlanEntry, now time.Time) (storage.PlanUpsertResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storage.PlanUpsertResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	created, err := scanPlanEntry(tx.QueryRow(ctx, `
		INSERT INTO plan_entries (id, scope, plan_date, meal_type, dish_name, description,
			calories, protein_g, carbs_g, fat_g, fiber_g, revision, created_at, updated_at)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $12)
		ON CONFLICT (plan_date, meal_type, scope) DO NOTHING
		RETURNING `+planEntryColumns,
		entry.ID, entry.Scope, entry.PlanDate, entry.MealType, entry.DishName, entry.Description,
		entry.Calories, entry.ProteinG, entry.CarbsG, entry.FatG, entry.FiberG, now,
	))
	if err == nil {
		if err := tx.Commit(ctx); err != nil {
			return storage.PlanUpsertResult{}, fmt.Errorf("failed to commit: %w", err)
		}
		return storage.PlanUpsertResult{Entry: created, Outcome: storage.OutcomeCreated}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return storage.PlanUpsertResult{}, fmt.Errorf("failed to insert plan entry: %w", err)
	}

	existing, err := scanPlanEntry(tx.QueryRow(ctx, `
		SELECT `+planEntryColumns+`
		FROM plan_entries
		WHERE plan_date = $1::date AND meal_type = $2 AND scope = $3
		FOR UPDATE
	`, entry.PlanDate, entry.MealType, entry.Scope))
	if err != nil {
		return storage.PlanUpsertResult{}, fmt.Errorf("failed to lock plan entry: %w", err)
	}

	if storage.SameContent(existing, entry) {
		if err := tx.Commit(ctx); err != nil {
			return storage.PlanUpsertResult{}, fmt.Errorf("failed to commit: %w", err)
		}
		return storage.PlanUpsertResult{Entry: existing, Outcome: storage.OutcomeUnchanged}, nil
	}

	reset := 0
	dishChanged := !storage.SameDish(existing, entry)
	if dishChanged {
		tag, err := tx.Exec(ctx, `DELETE FROM adherence_records WHERE entry_id = $1`, existing.ID)
		if err != nil {
			return storage.PlanUpsertResult{}, fmt.Errorf("failed to reset adherence: %w", err)
		}
		reset = int(tag.RowsAffected())
	}

	updated, err := scanPlanEntry(tx.QueryRow(ctx, `
		UPDATE plan_entries
		SET dish_name = $2, description = $3, calories = $4, protein_g = $5, carbs_g = $6,
			fat_g = $7, fiber_g = $8, revision = revision + 1, updated_at = $9
		WHERE id = $1
		RETURNING `+planEntryColumns,
		existing.ID, entry.DishName, entry.Description,
		entry.Calories, entry.ProteinG, entry.CarbsG, entry.FatG, entry.FiberG, now,
	))
	if err != nil {
		return storage.PlanUpsertResult{}, fmt.Errorf("failed to update plan entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storage.PlanUpsertResult{}, fmt.Errorf("failed to commit: %w", err)
	}
	return storage.PlanUpsertResult{Entry: updated, Outcome: storage.OutcomeUpdated, DishChanged: dishChanged, AdherenceReset: reset}, nil
}

func (s *PostgresStorage) GetPlanEntry(ctx context.Context, key storage.PlanKey) (storage.PlanEntry, bool, error) {
	e, err := scanPlanEntry(s.pool.QueryRow(ctx, `
		SELECT `+planEntryColumns+`
		FROM plan_entries
		WHERE plan_date = $1::date AND meal_type = $2 AND scope = $3
	`, key.PlanDate, key.MealType, key.Scope))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.PlanEntry{}, false, nil
	}
	if err != nil {
		return storage.PlanEntry{}, false, fmt.Errorf("failed to get plan entry: %w", err)
	}
	return e, true, nil
}

func (s *PostgresStorage) GetPlanEntryByID(ctx context.Context, id uuid.UUID) (storage.PlanEntry, bool, error) {
	e, err := scanPlanEntry(s.pool.QueryRow(ctx, `
		SELECT `+planEntryColumns+` FROM plan_entries WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.PlanEntry{}, false, nil
	}
	if err != nil {
		return storage.PlanEntry{}, false, fmt.Errorf("failed to get plan entry: %w", err)
	}
	return e, true, nil
}

func (s *PostgresStorage) ListPlanEntries(ctx context.Context, from, to string, scopes []string) ([]storage.PlanEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+planEntryColumns+`
		FROM plan_entries
		WHERE plan_date BETWEEN $1::date AND $2::date
		  AND ($3::text[] IS NULL OR scope = ANY($3))
		ORDER BY plan_date
	`, from, to, nilIfEmpty(scopes))
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
		return nil, fmt.Errorf("error iterating plan entries: %w", err)
	}

	storage.SortPlanEntries(entries)
	return entries, nil
}

func (s *PostgresStorage) DeletePlanEntry(ctx context.Context, key storage.PlanKey) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM plan_entries WHERE plan_date = $1::date AND meal_type = $2 AND scope = $3
	`, key.PlanDate, key.MealType, key.Scope)
	if err != nil {
		return false, fmt.Errorf("failed to delete plan entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStorage) DeletePlanEntryByID(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM plan_entries WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete plan entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStorage) DeletePlanEntriesRange(ctx context.Context, from, to string, scopes []string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM plan_entries
		WHERE plan_date BETWEEN $1::date AND $2::date
		  AND ($3::text[] IS NULL OR scope = ANY($3))
	`, from, to, nilIfEmpty(scopes))
	if err != nil {
		return 0, fmt.Errorf("failed to delete plan entries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStorage) NearestPlanDate(ctx context.Context, date string, scopes []string) (string, bool, error) {
	var nearest string
	err := s.pool.QueryRow(ctx, `
		SELECT plan_date::text
		FROM plan_entries
		WHERE ($2::text[] IS NULL OR scope = ANY($2))
		ORDER BY abs(plan_date - $1::date), plan_date
		LIMIT 1
	`, date, nilIfEmpty(scopes)).Scan(&nearest)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to find nearest plan date: %w", err)
	}
	return nearest, true, nil
}

func (s *PostgresStorage) PlanStats(ctx context.Context) (storage.PlanStats, error) {
	var st storage.PlanStats
	err := s.pool.QueryRow(ctx, `
		SELECT count(*), count(DISTINCT plan_date) FROM plan_entries
	`).Scan(&st.Entries, &st.Days)
	if err != nil {
		return storage.PlanStats{}, fmt.Errorf("failed to get plan stats: %w", err)
	}
	return st, nil
}
