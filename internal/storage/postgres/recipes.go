package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/jackc/pgx/v5"
)

func (s *PostgresStorage) GetRecipeInfo(ctx context.Context, signature string) (storage.RecipeInfo, bool, error) {
	var r storage.RecipeInfo
	err := s.pool.QueryRow(ctx, `
		SELECT signature, dish_name, description, generated_text, nutrition_summary,
			status, source_model, last_error, generated_at, expires_at
		FROM recipe_infos WHERE signature = $1
	`, signature).Scan(
		&r.Signature,
		&r.DishName,
		&r.Description,
		&r.GeneratedText,
		&r.NutritionSummary,
		&r.Status,
		&r.SourceModel,
		&r.LastError,
		&r.GeneratedAt,
		&r.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.RecipeInfo{}, false, nil
	}
	if err != nil {
		return storage.RecipeInfo{}, false, fmt.Errorf("failed to get recipe info: %w", err)
	}
	return r, true, nil
}

func (s *PostgresStorage) PutRecipeInfo(ctx context.Context, info storage.RecipeInfo) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO recipe_infos (signature, dish_name, description, generated_text, nutrition_summary,
			status, source_model, last_error, generated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (signature) DO UPDATE SET
			dish_name = EXCLUDED.dish_name,
			description = EXCLUDED.description,
			generated_text = EXCLUDED.generated_text,
			nutrition_summary = EXCLUDED.nutrition_summary,
			status = EXCLUDED.status,
			source_model = EXCLUDED.source_model,
			last_error = EXCLUDED.last_error,
			generated_at = EXCLUDED.generated_at,
			expires_at = EXCLUDED.expires_at
	`, info.Signature, info.DishName, info.Description, info.GeneratedText, info.NutritionSummary,
		info.Status, info.SourceModel, info.LastError, info.GeneratedAt, info.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to put recipe info: %w", err)
	}
	return nil
}

func (s *PostgresStorage) ExpireRecipeInfo(ctx context.Context, signature string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE recipe_infos SET expires_at = $2 WHERE signature = $1`, signature, now)
	if err != nil {
		return false, fmt.Errorf("failed to expire recipe info: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStorage) CountRecipeInfos(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM recipe_infos`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count recipe infos: %w", err)
	}
	return n, nil
}

// AcquireRecipeLease: upsert проходит только если лиз наш или просрочен.
func (s *PostgresStorage) AcquireRecipeLease(ctx context.Context, signature, owner string, now time.Time, ttl time.Duration) (bool, error) {
	var got string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO recipe_leases (signature, owner, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (signature) DO UPDATE SET owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at
		WHERE recipe_leases.owner = EXCLUDED.owner OR recipe_leases.expires_at <= $4
		RETURNING owner
	`, signature, owner, now.Add(ttl), now).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to acquire recipe lease: %w", err)
	}
	return got == owner, nil
}

func (s *PostgresStorage) ReleaseRecipeLease(ctx context.Context, signature, owner string) error {
	if _, err := s.pool.Exec(ctx, `
		DELETE FROM recipe_leases WHERE signature = $1 AND owner = $2
	`, signature, owner); err != nil {
		return fmt.Errorf("failed to release recipe lease: %w", err)
	}
	return nil
}
