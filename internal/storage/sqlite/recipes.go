package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fdg312/meal-tracker/internal/storage"
)

func (s *SQLiteStorage) GetRecipeInfo(ctx context.Context, signature string) (storage.RecipeInfo, bool, error) {
	var (
		r                  storage.RecipeInfo
		generated, expires int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT signature, dish_name, description, generated_text, nutrition_summary,
			status, source_model, last_error, generated_at, expires_at
		FROM recipe_infos WHERE signature = ?
	`, signature).Scan(
		&r.Signature,
		&r.DishName,
		&r.Description,
		&r.GeneratedText,
		&r.NutritionSummary,
		&r.Status,
		&r.SourceModel,
		&r.LastError,
		&generated,
		&expires,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.RecipeInfo{}, false, nil
	}
	if err != nil {
		return storage.RecipeInfo{}, false, fmt.Errorf("failed to get recipe info: %w", err)
	}
	r.GeneratedAt = fromNanos(generated)
	r.ExpiresAt = fromNanos(expires)
	return r, true, nil
}

func (s *SQLiteStorage) PutRecipeInfo(ctx context.Context, info storage.RecipeInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recipe_infos (signature, dish_name, description, generated_text, nutrition_summary,
			status, source_model, last_error, generated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (signature) DO UPDATE SET
			dish_name = excluded.dish_name,
			description = excluded.description,
			generated_text = excluded.generated_text,
			nutrition_summary = excluded.nutrition_summary,
			status = excluded.status,
			source_model = excluded.source_model,
			last_error = excluded.last_error,
			generated_at = excluded.generated_at,
			expires_at = excluded.expires_at
	`, info.Signature, info.DishName, info.Description, info.GeneratedText, info.NutritionSummary,
		info.Status, info.SourceModel, info.LastError, toNanos(info.GeneratedAt), toNanos(info.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to put recipe info: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ExpireRecipeInfo(ctx context.Context, signature string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE recipe_infos SET expires_at = ? WHERE signature = ?`, toNanos(now), signature)
	if err != nil {
		return false, fmt.Errorf("failed to expire recipe info: %w", err)
	}
	return affected(res) > 0, nil
}

func (s *SQLiteStorage) CountRecipeInfos(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM recipe_infos`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count recipe infos: %w", err)
	}
	return n, nil
}

func (s *SQLiteStorage) AcquireRecipeLease(ctx context.Context, signature, owner string, now time.Time, ttl time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO recipe_leases (signature, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (signature) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE recipe_leases.owner = excluded.owner OR recipe_leases.expires_at <= ?
	`, signature, owner, toNanos(now.Add(ttl)), toNanos(now))
	if err != nil {
		return false, fmt.Errorf("failed to acquire recipe lease: %w", err)
	}
	return affected(res) > 0, nil
}

func (s *SQLiteStorage) ReleaseRecipeLease(ctx context.Context, signature, owner string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM recipe_leases WHERE signature = ? AND owner = ?
	`, signature, owner); err != nil {
		return fmt.Errorf("failed to release recipe lease: %w", err)
	}
	return nil
}
