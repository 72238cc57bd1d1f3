package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
)

func scanAdherence(row rowScanner) (storage.AdherenceRecord, error) {
	var (
		r       storage.AdherenceRecord
		entryID string
		changed int64
	)
	if err := row.Scan(&entryID, &r.UserID, &r.Status, &changed, &r.Revision); err != nil {
		return storage.AdherenceRecord{}, err
	}
	id, err := uuid.Parse(entryID)
	if err != nil {
		return storage.AdherenceRecord{}, fmt.Errorf("bad entry id %q: %w", entryID, err)
	}
	r.EntryID = id
	r.StatusChangedAt = fromNanos(changed)
	return r, nil
}

func (s *SQLiteStorage) SetAdherence(ctx context.Context, entryID uuid.UUID, userID, status string, now time.Time) (storage.AdherenceRecord, *storage.AdherenceRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.AdherenceRecord{}, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM plan_entries WHERE id = ?`, entryID.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.AdherenceRecord{}, nil, storage.ErrEntryGone
	}
	if err != nil {
		return storage.AdherenceRecord{}, nil, fmt.Errorf("failed to check plan entry: %w", err)
	}

	rec := storage.AdherenceRecord{
		EntryID:         entryID,
		UserID:          userID,
		Status:          status,
		StatusChangedAt: now.UTC(),
		Revision:        1,
	}

	var prev *storage.AdherenceRecord
	existing, err := scanAdherence(tx.QueryRowContext(ctx, `
		SELECT entry_id, user_id, status, status_changed_at, revision
		FROM adherence_records WHERE entry_id = ? AND user_id = ?
	`, entryID.String(), userID))
	switch {
	case err == nil:
		prev = &existing
		rec.Revision = existing.Revision + 1
		if existing.Status == status {
			rec.StatusChangedAt = existing.StatusChangedAt
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return storage.AdherenceRecord{}, nil, fmt.Errorf("failed to read adherence: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO adherence_records (entry_id, user_id, status, status_changed_at, revision)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (entry_id, user_id) DO UPDATE SET
			status = excluded.status,
			status_changed_at = excluded.status_changed_at,
			revision = excluded.revision
	`, entryID.String(), userID, status, toNanos(rec.StatusChangedAt), rec.Revision); err != nil {
		return storage.AdherenceRecord{}, nil, fmt.Errorf("failed to upsert adherence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.AdherenceRecord{}, nil, fmt.Errorf("failed to commit: %w", err)
	}
	return rec, prev, nil
}

func (s *SQLiteStorage) GetAdherence(ctx context.Context, entryID uuid.UUID, userID string) (storage.AdherenceRecord, bool, error) {
	rec, err := scanAdherence(s.db.QueryRowContext(ctx, `
		SELECT entry_id, user_id, status, status_changed_at, revision
		FROM adherence_records WHERE entry_id = ? AND user_id = ?
	`, entryID.String(), userID))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.AdherenceRecord{}, false, nil
	}
	if err != nil {
		return storage.AdherenceRecord{}, false, fmt.Errorf("failed to get adherence: %w", err)
	}
	return rec, true, nil
}

func (s *SQLiteStorage) ListAdherence(ctx context.Context, userID string, entryIDs []uuid.UUID) (map[uuid.UUID]storage.AdherenceRecord, error) {
	out := make(map[uuid.UUID]storage.AdherenceRecord, len(entryIDs))
	if len(entryIDs) == 0 {
		return out, nil
	}

	args := make([]any, 0, len(entryIDs)+1)
	args = append(args, userID)
	for _, id := range entryIDs {
		args = append(args, id.String())
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(entryIDs)), ", ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, user_id, status, status_changed_at, revision
		FROM adherence_records
		WHERE user_id = ? AND entry_id IN (`+placeholders+`)
	`, args...)
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

func (s *SQLiteStorage) DeleteAdherence(ctx context.Context, entryID uuid.UUID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM adherence_records WHERE entry_id = ? AND user_id = ?
	`, entryID.String(), userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete adherence: %w", err)
	}
	return affected(res) > 0, nil
}
