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

const aiModelColumns = `id, provider, model_id, display_name, is_default, created_at`

func scanAIModel(row rowScanner) (storage.AIModel, error) {
	var (
		m       storage.AIModel
		id      string
		created int64
	)
	if err := row.Scan(&id, &m.Provider, &m.ModelID, &m.DisplayName, &m.IsDefault, &created); err != nil {
		return storage.AIModel{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return storage.AIModel{}, fmt.Errorf("bad ai model id %q: %w", id, err)
	}
	m.ID = parsed
	m.CreatedAt = fromNanos(created)
	return m, nil
}

func (s *SQLiteStorage) ListAIModels(ctx context.Context) ([]storage.AIModel, error) {
	rows, err := s.db.QueryContext(ctx, `
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
			return nil, err
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

func (s *SQLiteStorage) GetAIModel(ctx context.Context, id uuid.UUID) (storage.AIModel, bool, error) {
	m, err := scanAIModel(s.db.QueryRowContext(ctx, `SELECT `+aiModelColumns+` FROM ai_models WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.AIModel{}, false, nil
	}
	if err != nil {
		return storage.AIModel{}, false, fmt.Errorf("failed to get ai model: %w", err)
	}
	return m, true, nil
}

func (s *SQLiteStorage) GetDefaultAIModel(ctx context.Context) (storage.AIModel, bool, error) {
	m, err := scanAIModel(s.db.QueryRowContext(ctx, `SELECT `+aiModelColumns+` FROM ai_models WHERE is_default = 1 LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.AIModel{}, false, nil
	}
	if err != nil {
		return storage.AIModel{}, false, fmt.Errorf("failed to get default ai model: %w", err)
	}
	return m, true, nil
}

func (s *SQLiteStorage) CreateAIModel(ctx context.Context, model *storage.AIModel) error {
	if model.ID == uuid.Nil {
		model.ID = uuid.New()
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if model.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE ai_models SET is_default = 0 WHERE is_default = 1`); err != nil {
			return fmt.Errorf("failed to clear default ai model: %w", err)
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO ai_models (`+aiModelColumns+`) VALUES (?, ?, ?, ?, ?, ?)
	`, model.ID.String(), model.Provider, model.ModelID, model.DisplayName, model.IsDefault, toNanos(model.CreatedAt))
	if isUniqueViolation(err) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create ai model: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStorage) DeleteAIModel(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ai_models WHERE id = ?`, id.String())
	if err != nil {
		return false, fmt.Errorf("failed to delete ai model: %w", err)
	}
	return affected(res) > 0, nil
}

func (s *SQLiteStorage) SetDefaultAIModel(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE ai_models SET is_default = 1 WHERE id = ?`, id.String())
	if err != nil {
		return false, fmt.Errorf("failed to set default ai model: %w", err)
	}
	if affected(res) == 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `UPDATE ai_models SET is_default = 0 WHERE id <> ?`, id.String()); err != nil {
		return false, fmt.Errorf("failed to clear default ai model: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}
