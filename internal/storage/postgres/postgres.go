package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage — Postgres реализация storage.Store
type PostgresStorage struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*PostgresStorage)(nil)

// New создаёт PostgresStorage; схема должна быть применена миграциями goose
func New(ctx context.Context, databaseURL string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStorage{pool: pool}, nil
}

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStorage) ListProfiles(ctx context.Context) ([]storage.Profile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, created_at, last_seen_at
		FROM profiles
		ORDER BY name, created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]storage.Profile, 0)
	for rows.Next() {
		var p storage.Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.LastSeenAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *PostgresStorage) GetProfile(ctx context.Context, id uuid.UUID) (storage.Profile, bool, error) {
	var p storage.Profile
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, created_at, last_seen_at FROM profiles WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Profile{}, false, nil
	}
	if err != nil {
		return storage.Profile{}, false, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, true, nil
}

func (s *PostgresStorage) CreateProfile(ctx context.Context, profile *storage.Profile) error {
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	if profile.LastSeenAt.IsZero() {
		profile.LastSeenAt = profile.CreatedAt
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (id, name, created_at, last_seen_at) VALUES ($1, $2, $3, $4)
	`, profile.ID, profile.Name, profile.CreatedAt, profile.LastSeenAt)
	if isUniqueViolation(err) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (s *PostgresStorage) TouchProfile(ctx context.Context, id uuid.UUID, now time.Time) error {
	if _, err := s.pool.Exec(ctx, `UPDATE profiles SET last_seen_at = $2 WHERE id = $1`, id, now); err != nil {
		return fmt.Errorf("failed to touch profile: %w", err)
	}
	return nil
}

func (s *PostgresStorage) DeleteProfile(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// отметки удаляются каскадом вместе с записями плана
	if _, err := tx.Exec(ctx, `DELETE FROM plan_entries WHERE scope = $1`, id.String()); err != nil {
		return false, fmt.Errorf("failed to delete profile plan: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM adherence_records WHERE user_id = $1`, id.String()); err != nil {
		return false, fmt.Errorf("failed to delete profile adherence: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete profile: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// nilIfEmpty turns an empty scope filter into SQL NULL.
func nilIfEmpty(scopes []string) []string {
	if len(scopes) == 0 {
		return nil
	}
	return scopes
}
