package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
)

func (s *SQLiteStorage) AddActivity(ctx context.Context, event *storage.ActivityEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	var profileID sql.NullString
	if event.ProfileID != nil {
		profileID = sql.NullString{String: event.ProfileID.String(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, profile_id, action, details, ip, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.ID.String(), profileID, event.Action, event.Details, event.IP, event.UserAgent, toNanos(event.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to add activity: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListActivity(ctx context.Context, profileID *uuid.UUID, limit, offset int) ([]storage.ActivityEvent, int, error) {
	where, args := "1=1", []any{}
	if profileID != nil {
		where, args = "profile_id = ?", []any{profileID.String()}
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM activity_log WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count activity: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile_id, action, details, ip, user_agent, created_at
		FROM activity_log
		WHERE `+where+`
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	events := make([]storage.ActivityEvent, 0)
	for rows.Next() {
		var (
			e       storage.ActivityEvent
			id      string
			profile sql.NullString
			created int64
		)
		if err := rows.Scan(&id, &profile, &e.Action, &e.Details, &e.IP, &e.UserAgent, &created); err != nil {
			return nil, 0, fmt.Errorf("failed to scan activity: %w", err)
		}
		e.ID, _ = uuid.Parse(id)
		if profile.Valid {
			if pid, err := uuid.Parse(profile.String); err == nil {
				e.ProfileID = &pid
			}
		}
		e.CreatedAt = fromNanos(created)
		events = append(events, e)
	}
	return events, total, rows.Err()
}

func (s *SQLiteStorage) CountActivitySince(ctx context.Context, since time.Time) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM activity_log WHERE created_at >= ?`, toNanos(since)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count activity: %w", err)
	}
	return n, nil
}
