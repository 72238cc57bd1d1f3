package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/jackc/pgx/v5"
)

var ErrAdminNotFound = errors.New("admin not found")

func (s *PostgresStorage) GetAdmin(ctx context.Context, username string) (storage.AdminAccount, bool, error) {
	var a storage.AdminAccount
	err := s.pool.QueryRow(ctx, `
		SELECT username, password_hash, updated_at FROM admins WHERE username = $1
	`, username).Scan(&a.Username, &a.PasswordHash, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.AdminAccount{}, false, nil
	}
	if err != nil {
		return storage.AdminAccount{}, false, fmt.Errorf("failed to get admin: %w", err)
	}
	return a, true, nil
}

func (s *PostgresStorage) CreateAdminIfMissing(ctx context.Context, account storage.AdminAccount) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO admins (username, password_hash, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, account.Username, account.PasswordHash, account.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create admin: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStorage) UpdateAdminPassword(ctx context.Context, username, passwordHash string, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE admins SET password_hash = $2, updated_at = $3 WHERE username = $1
	`, username, passwordHash, now)
	if err != nil {
		return fmt.Errorf("failed to update admin password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAdminNotFound
	}
	return nil
}
