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

func (s *SQLiteStorage) CreateExport(ctx context.Context, export *storage.ExportMeta) error {
	if export.ID == uuid.Nil {
		export.ID = uuid.New()
	}
	if export.CreatedAt.IsZero() {
		export.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exports (id, profile_id, format, from_date, to_date, object_key, size_bytes, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, export.ID.String(), export.ProfileID.String(), export.Format, export.FromDate, export.ToDate,
		export.ObjectKey, export.SizeBytes, export.Data, toNanos(export.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create export: %w", err)
	}
	return nil
}

func scanExport(row rowScanner, withData bool) (storage.ExportMeta, error) {
	var (
		e           storage.ExportMeta
		id, profile string
		objectKey   sql.NullString
		created     int64
	)
	dest := []any{&id, &profile, &e.Format, &e.FromDate, &e.ToDate, &objectKey, &e.SizeBytes}
	if withData {
		dest = append(dest, &e.Data)
	}
	dest = append(dest, &created)
	if err := row.Scan(dest...); err != nil {
		return storage.ExportMeta{}, err
	}
	e.ID, _ = uuid.Parse(id)
	e.ProfileID, _ = uuid.Parse(profile)
	if objectKey.Valid {
		key := objectKey.String
		e.ObjectKey = &key
	}
	e.CreatedAt = fromNanos(created)
	return e, nil
}

func (s *SQLiteStorage) GetExport(ctx context.Context, id uuid.UUID) (storage.ExportMeta, bool, error) {
	e, err := scanExport(s.db.QueryRowContext(ctx, `
		SELECT id, profile_id, format, from_date, to_date, object_key, size_bytes, data, created_at
		FROM exports WHERE id = ?
	`, id.String()), true)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ExportMeta{}, false, nil
	}
	if err != nil {
		return storage.ExportMeta{}, false, fmt.Errorf("failed to get export: %w", err)
	}
	return e, true, nil
}

func (s *SQLiteStorage) ListExports(ctx context.Context, profileID uuid.UUID, limit, offset int) ([]storage.ExportMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile_id, format, from_date, to_date, object_key, size_bytes, created_at
		FROM exports WHERE profile_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, profileID.String(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}
	defer rows.Close()

	exports := make([]storage.ExportMeta, 0)
	for rows.Next() {
		e, err := scanExport(rows, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scan export: %w", err)
		}
		exports = append(exports, e)
	}
	return exports, rows.Err()
}

func (s *SQLiteStorage) DeleteExport(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM exports WHERE id = ?`, id.String())
	if err != nil {
		return false, fmt.Errorf("failed to delete export: %w", err)
	}
	return affected(res) > 0, nil
}
