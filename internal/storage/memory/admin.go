package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fdg312/meal-tracker/internal/storage"
)

var ErrAdminNotFound = errors.New("admin not found")

type adminStorage struct {
	mu       sync.RWMutex
	accounts map[string]storage.AdminAccount
}

func newAdminStorage() *adminStorage {
	return &adminStorage{accounts: make(map[string]storage.AdminAccount)}
}

func (m *MemoryStorage) GetAdmin(ctx context.Context, username string) (storage.AdminAccount, bool, error) {
	s := m.admins
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[username]
	return a, ok, nil
}

func (m *MemoryStorage) CreateAdminIfMissing(ctx context.Context, account storage.AdminAccount) (bool, error) {
	s := m.admins
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.Username]; ok {
		return false, nil
	}
	s.accounts[account.Username] = account
	return true, nil
}

func (m *MemoryStorage) UpdateAdminPassword(ctx context.Context, username, passwordHash string, now time.Time) error {
	s := m.admins
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[username]
	if !ok {
		return ErrAdminNotFound
	}
	a.PasswordHash = passwordHash
	a.UpdatedAt = now
	s.accounts[username] = a
	return nil
}
