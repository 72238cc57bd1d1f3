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

// CreateExport сохраняет метаданные выгрузки (и данные для inline режима)
func (s *PostgresStorage) CreateExport(ctx context.Context, export *storage.ExportMeta) error {
	if export.ID == uuid.Nil {
		export.ID = uuid.New()
	}
	if export.CreatedAt.IsZero() {
		export.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO exports (id, profile_id, format, from_date, to_date, object_key, size_bytes, data, created_at)
		VALUES ($1, $2, $3, $4::date, $5::date, $6, $7, $8, $9)
	`, export.ID, export.ProfileID, export.Format, export.FromDate, export.ToDate,
		export.ObjectKey, export.SizeBytes, export.Data, export.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create export: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetExport(ctx context.Context, id uuid.UUID) (storage.ExportMeta, bool, error) {
	var e storage.ExportMeta
	err := s.pool.QueryRow(ctx, `
		SELECT id, profile_id, format, from_date::text, to_date::text, object_key, size_bytes, data, created_at
		FROM exports WHERE id = $1
	`, id).Scan(&e.ID, &e.ProfileID, &e.Format, &e.FromDate, &e.ToDate, &e.ObjectKey, &e.SizeBytes, &e.Data, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ExportMeta{}, false, nil
	}
	if err != nil {
		return storage.ExportMeta{}, false, fmt.Errorf("failed to get export: %w", err)
	}
	return e, true, nil
}

func (s *PostgresStorage) ListExports(ctx context.Context, profileID uuid.UUID, limit, offset int) ([]storage.ExportMeta, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, profile_id, format, from_date::text, to_date::text, object_key, size_bytes, created_at
		FROM exports
		WHERE profile_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, profileID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}
	defer rows.Close()

	exports := make([]storage.ExportMeta, 0)
	for rows.Next() {
		var e storage.ExportMeta
		if err := rows.Scan(&e.ID, &e.ProfileID, &e.Format, &e.FromDate, &e.ToDate, &e.ObjectKey, &e.SizeBytes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan export: %w", err)
		}
		exports = append(exports, e)
	}
	return exports, rows.Err()
}

func (s *PostgresStorage) DeleteExport(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM exports WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete export: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
