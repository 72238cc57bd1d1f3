package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fdg312/meal-tracker/internal/storage"
)

var ErrAdminNotFound = errors.New("admin not found")

func (s *SQLiteStorage) GetAdmin(ctx context.Context, username string) (storage.AdminAccount, bool, error) {
	var (
		a       storage.AdminAccount
		updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash, updated_at FROM admins WHERE username = ?
	`, username).Scan(&a.Username, &a.PasswordHash, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.AdminAccount{}, false, nil
	}
	if err != nil {
		return storage.AdminAccount{}, false, fmt.Errorf("failed to get admin: %w", err)
	}
	a.UpdatedAt = fromNanos(updated)
	return a, true, nil
}

func (s *SQLiteStorage) CreateAdminIfMissing(ctx context.Context, account storage.AdminAccount) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO admins (username, password_hash, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (username) DO NOTHING
	`, account.Username, account.PasswordHash, toNanos(account.UpdatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to create admin: %w", err)
	}
	return affected(res) > 0, nil
}

func (s *SQLiteStorage) UpdateAdminPassword(ctx context.Context, username, passwordHash string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE admins SET password_hash = ?, updated_at = ? WHERE username = ?
	`, passwordHash, toNanos(now), username)
	if err != nil {
		return fmt.Errorf("failed to update admin password: %w", err)
	}
	if affected(res) == 0 {
		return ErrAdminNotFound
	}
	return nil
}
