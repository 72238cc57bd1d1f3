package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
)

func (s *PostgresStorage) AddActivity(ctx context.Context, event *storage.ActivityEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO activity_log (id, profile_id, action, details, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.ID, event.ProfileID, event.Action, event.Details, event.IP, event.UserAgent, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add activity: %w", err)
	}
	return nil
}

func (s *PostgresStorage) ListActivity(ctx context.Context, profileID *uuid.UUID, limit, offset int) ([]storage.ActivityEvent, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM activity_log WHERE ($1::uuid IS NULL OR profile_id = $1)
	`, profileID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count activity: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, profile_id, action, details, ip, user_agent, created_at
		FROM activity_log
		WHERE ($1::uuid IS NULL OR profile_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, profileID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	events := make([]storage.ActivityEvent, 0)
	for rows.Next() {
		var e storage.ActivityEvent
		if err := rows.Scan(&e.ID, &e.ProfileID, &e.Action, &e.Details, &e.IP, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan activity: %w", err)
		}
		events = append(events, e)
	}
	return events, total, rows.Err()
}

func (s *PostgresStorage) CountActivitySince(ctx context.Context, since time.Time) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM activity_log WHERE created_at >= $1`, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count activity: %w", err)
	}
	return n, nil
}
