// Package sqlite is the embedded single-file backend (pure Go driver, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStorage — SQLite реализация storage.Store
type SQLiteStorage struct {
	db *sql.DB
}

var _ storage.Store = (*SQLiteStorage)(nil)

// Open применяет миграции и открывает базу. Один коннект: запись сериализуется.
func Open(path string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	if err := RunMigrations(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// RunMigrations applies the embedded migrations with golang-migrate.
func RunMigrations(path string) error {
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create iofs driver: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, "sqlite://"+path)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) ListProfiles(ctx context.Context) ([]storage.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, last_seen_at FROM profiles ORDER BY name, created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]storage.Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *SQLiteStorage) GetProfile(ctx context.Context, id uuid.UUID) (storage.Profile, bool, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, last_seen_at FROM profiles WHERE id = ?
	`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Profile{}, false, nil
	}
	if err != nil {
		return storage.Profile{}, false, err
	}
	return p, true, nil
}

func (s *SQLiteStorage) CreateProfile(ctx context.Context, profile *storage.Profile) error {
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	if profile.LastSeenAt.IsZero() {
		profile.LastSeenAt = profile.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, name, created_at, last_seen_at) VALUES (?, ?, ?, ?)
	`, profile.ID.String(), profile.Name, toNanos(profile.CreatedAt), toNanos(profile.LastSeenAt))
	if isUniqueViolation(err) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) TouchProfile(ctx context.Context, id uuid.UUID, now time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE profiles SET last_seen_at = ? WHERE id = ?`, toNanos(now), id.String()); err != nil {
		return fmt.Errorf("failed to touch profile: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteProfile(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	uid := id.String()
	if _, err := tx.ExecContext(ctx, `DELETE FROM adherence_records WHERE user_id = ? OR entry_id IN (SELECT id FROM plan_entries WHERE scope = ?)`, uid, uid); err != nil {
		return false, fmt.Errorf("failed to delete profile adherence: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM plan_entries WHERE scope = ?`, uid); err != nil {
		return false, fmt.Errorf("failed to delete profile plan: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, uid)
	if err != nil {
		return false, fmt.Errorf("failed to delete profile: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return affected(res) > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (storage.Profile, error) {
	var (
		p             storage.Profile
		id            string
		created, seen int64
	)
	if err := row.Scan(&id, &p.Name, &created, &seen); err != nil {
		return storage.Profile{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return storage.Profile{}, fmt.Errorf("bad profile id %q: %w", id, err)
	}
	p.ID = parsed
	p.CreatedAt = fromNanos(created)
	p.LastSeenAt = fromNanos(seen)
	return p, nil
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func affected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// inClause builds "col IN (?, ?, ...)" for a non-empty list, or "1=1".
func inClause(col string, values []string) (string, []any) {
	if len(values) == 0 {
		return "1=1", nil
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return col + " IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ") + ")", args
}
