package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fdg312/meal-tracker/internal/storage"
)

type recipeLease struct {
	owner     string
	expiresAt time.Time
}

type recipeCacheStorage struct {
	mu     sync.Mutex
	infos  map[string]storage.RecipeInfo
	leases map[string]recipeLease
}

func newRecipeCacheStorage() *recipeCacheStorage {
	return &recipeCacheStorage{
		infos:  make(map[string]storage.RecipeInfo),
		leases: make(map[string]recipeLease),
	}
}

func (m *MemoryStorage) GetRecipeInfo(ctx context.Context, signature string) (storage.RecipeInfo, bool, error) {
	s := m.recipes
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.infos[signature]
	return info, ok, nil
}

func (m *MemoryStorage) PutRecipeInfo(ctx context.Context, info storage.RecipeInfo) error {
	s := m.recipes
	s.mu.Lock()
	defer s.mu.Unlock()

	s.infos[info.Signature] = info
	return nil
}

func (m *MemoryStorage) ExpireRecipeInfo(ctx context.Context, signature string, now time.Time) (bool, error) {
	s := m.recipes
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.infos[signature]
	if !ok {
		return false, nil
	}
	info.ExpiresAt = now
	s.infos[signature] = info
	return true, nil
}

func (m *MemoryStorage) CountRecipeInfos(ctx context.Context) (int, error) {
	s := m.recipes
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.infos), nil
}

func (m *MemoryStorage) AcquireRecipeLease(ctx context.Context, signature, owner string, now time.Time, ttl time.Duration) (bool, error) {
	s := m.recipes
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.leases[signature]; ok && l.owner != owner && now.Before(l.expiresAt) {
		return false, nil
	}
	s.leases[signature] = recipeLease{owner: owner, expiresAt: now.Add(ttl)}
	return true, nil
}

func (m *MemoryStorage) ReleaseRecipeLease(ctx context.Context, signature, owner string) error {
	s := m.recipes
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.leases[signature]; ok && l.owner == owner {
		delete(s.leases, signature)
	}
	return nil
}
