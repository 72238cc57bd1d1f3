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

const aiModelColumns = `id, provider, model_id, display_name, is_default, created_at`

func scanAIModel(row pgx.Row) (storage.AIModel, error) {
	var m storage.AIModel
	err := row.Scan(&m.ID, &m.Provider, &m.ModelID, &m.DisplayName, &m.IsDefault, &m.CreatedAt)
	return m, err
}

func (s *PostgresStorage) ListAIModels(ctx context.Context) ([]storage.AIModel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+aiModelColumns+` FROM ai_models ORDER BY is_default DESC, created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ai models: %w", err)
	}
	defer rows.Close()

	models := make([]storage.AIModel, 0)
	for rows.Next() {
		m, err := scanAIModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ai model: %w", err)
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

func (s *PostgresStorage) GetAIModel(ctx context.Context, id uuid.UUID) (storage.AIModel, bool, error) {
	m, err := scanAIModel(s.pool.QueryRow(ctx, `SELECT `+aiModelColumns+` FROM ai_models WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.AIModel{}, false, nil
	}
	if err != nil {
		return storage.AIModel{}, false, fmt.Errorf("failed to get ai model: %w", err)
	}
	return m, true, nil
}

func (s *PostgresStorage) GetDefaultAIModel(ctx context.Context) (storage.AIModel, bool, error) {
	m, err := scanAIModel(s.pool.QueryRow(ctx, `SELECT `+aiModelColumns+` FROM ai_models WHERE is_default LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.AIModel{}, false, nil
	}
	if err != nil {
		return storage.AIModel{}, false, fmt.Errorf("failed to get default ai model: %w", err)
	}
	return m, true, nil
}

func (s *PostgresStorage) CreateAIModel(ctx context.Context, model *storage.AIModel) error {
	if model.ID == uuid.Nil {
		model.ID = uuid.New()
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if model.IsDefault {
		if _, err := tx.Exec(ctx, `UPDATE ai_models SET is_default = false WHERE is_default`); err != nil {
			return fmt.Errorf("failed to clear default ai model: %w", err)
		}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO ai_models (`+aiModelColumns+`) VALUES ($1, $2, $3, $4, $5, $6)
	`, model.ID, model.Provider, model.ModelID, model.DisplayName, model.IsDefault, model.CreatedAt)
	if isUniqueViolation(err) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create ai model: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStorage) DeleteAIModel(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ai_models WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete ai model: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStorage) SetDefaultAIModel(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE ai_models SET is_default = false WHERE is_default AND id <> $1`, id); err != nil {
		return false, fmt.Errorf("failed to clear default ai model: %w", err)
	}
	tag, err := tx.Exec(ctx, `UPDATE ai_models SET is_default = true WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to set default ai model: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}
