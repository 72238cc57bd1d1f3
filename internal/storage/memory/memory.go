package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
)

// MemoryStorage — in-memory реализация storage.Store
type MemoryStorage struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID]storage.Profile

	plans    *plansStorage
	recipes  *recipeCacheStorage
	models   *aiModelsStorage
	activity *activityStorage
	admins   *adminStorage
	exports  *exportsStorage
}

var _ storage.Store = (*MemoryStorage)(nil)

// New создаёт пустой MemoryStorage
func New() *MemoryStorage {
	return &MemoryStorage{
		profiles: make(map[uuid.UUID]storage.Profile),
		plans:    newPlansStorage(),
		recipes:  newRecipeCacheStorage(),
		models:   newAIModelsStorage(),
		activity: newActivityStorage(),
		admins:   newAdminStorage(),
		exports:  newExportsStorage(),
	}
}

func (m *MemoryStorage) ListProfiles(ctx context.Context) ([]storage.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	profiles := make([]storage.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].Name != profiles[j].Name {
			return profiles[i].Name < profiles[j].Name
		}
		return profiles[i].CreatedAt.Before(profiles[j].CreatedAt)
	})
	return profiles, nil
}

func (m *MemoryStorage) GetProfile(ctx context.Context, id uuid.UUID) (storage.Profile, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[id]
	return p, ok, nil
}

func (m *MemoryStorage) CreateProfile(ctx context.Context, profile *storage.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	if profile.LastSeenAt.IsZero() {
		profile.LastSeenAt = profile.CreatedAt
	}
	if _, exists := m.profiles[profile.ID]; exists {
		return storage.ErrDuplicate
	}
	m.profiles[profile.ID] = *profile
	return nil
}

func (m *MemoryStorage) TouchProfile(ctx context.Context, id uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.profiles[id]; ok {
		p.LastSeenAt = now
		m.profiles[id] = p
	}
	return nil
}

func (m *MemoryStorage) DeleteProfile(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	_, ok := m.profiles[id]
	delete(m.profiles, id)
	m.mu.Unlock()

	if !ok {
		return false, nil
	}
	m.plans.deleteScopeAndUser(id.String())
	return true, nil
}

// Close — no-op для in-memory
func (m *MemoryStorage) Close() error {
	return nil
}
