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

// SetAdherence блокирует строку плана (FOR UPDATE), поэтому отметка сериализуется
// с заменой блюда и с другими отметками по той же записи.
func (s *PostgresStorage) SetAdherence(ctx context.Context, entryID uuid.UUID, userID, status string, now time.Time) (storage.AdherenceRecord, *storage.AdherenceRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storage.AdherenceRecord{}, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM plan_entries WHERE id = $1 FOR UPDATE`, entryID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.AdherenceRecord{}, nil, storage.ErrEntryGone
	}
	if err != nil {
		return storage.AdherenceRecord{}, nil, fmt.Errorf("failed to lock plan entry: %w", err)
	}

	var prev *storage.AdherenceRecord
	existing, err := scanAdherence(tx.QueryRow(ctx, `
		SELECT entry_id, user_id, status, status_changed_at, revision
		FROM adherence_records WHERE entry_id = $1 AND user_id = $2
	`, entryID, userID))
	switch {
	case err == nil:
		prev = &existing
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return storage.AdherenceRecord{}, nil, fmt.Errorf("failed to read adherence: %w", err)
	}

	rec, err := scanAdherence(tx.QueryRow(ctx, `
		INSERT INTO adherence_records (entry_id, user_id, status, status_changed_at, revision)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (entry_id, user_id) DO UPDATE SET
			status = EXCLUDED.status,
			status_changed_at = CASE WHEN adherence_records.status = EXCLUDED.status
				THEN adherence_records.status_changed_at ELSE EXCLUDED.status_changed_at END,
			revision = adherence_records.revision + 1
		RETURNING entry_id, user_id, status, status_changed_at, revision
	`, entryID, userID, status, now))
	if err != nil {
		return storage.AdherenceRecord{}, nil, fmt.Errorf("failed to upsert adherence: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storage.AdherenceRecord{}, nil, fmt.Errorf("failed to commit: %w", err)
	}
	return rec, prev, nil
}

func (s *PostgresStorage) GetAdherence(ctx context.Context, entryID uuid.UUID, userID string) (storage.AdherenceRecord, bool, error) {
	rec, err := scanAdherence(s.pool.QueryRow(ctx, `
		SELECT entry_id, user_id, status, status_changed_at, revision
		FROM adherence_records WHERE entry_id = $1 AND user_id = $2
	`, entryID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.AdherenceRecord{}, false, nil
	}
	if err != nil {
		return storage.AdherenceRecord{}, false, fmt.Errorf("failed to get adherence: %w", err)
	}
	return rec, true, nil
}

func (s *PostgresStorage) ListAdherence(ctx context.Context, userID string, entryIDs []uuid.UUID) (map[uuid.UUID]storage.AdherenceRecord, error) {
	out := make(map[uuid.UUID]storage.AdherenceRecord, len(entryIDs))
	if len(entryIDs) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT entry_id, user_id, status, status_changed_at, revision
		FROM adherence_records
		WHERE user_id = $1 AND entry_id = ANY($2)
	`, userID, entryIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list adherence: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanAdherence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan adherence: %w", err)
		}
		out[rec.EntryID] = rec
	}
	return out, rows.Err()
}

func (s *PostgresStorage) DeleteAdherence(ctx context.Context, entryID uuid.UUID, userID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM adherence_records WHERE entry_id = $1 AND user_id = $2
	`, entryID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete adherence: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanAdherence(row pgx.Row) (storage.AdherenceRecord, error) {
	var r storage.AdherenceRecord
	err := row.Scan(&r.EntryID, &r.UserID, &r.Status, &r.StatusChangedAt, &r.Revision)
	return r, err
}
