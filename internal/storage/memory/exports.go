package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
)

// exportsStorage — in-memory storage для выгрузок
type exportsStorage struct {
	mu      sync.RWMutex
	exports map[uuid.UUID]storage.ExportMeta
}

func newExportsStorage() *exportsStorage {
	return &exportsStorage{exports: make(map[uuid.UUID]storage.ExportMeta)}
}

// CreateExport создаёт новую выгрузку
func (m *MemoryStorage) CreateExport(ctx context.Context, export *storage.ExportMeta) error {
	s := m.exports
	s.mu.Lock()
	defer s.mu.Unlock()

	if export.ID == uuid.Nil {
		export.ID = uuid.New()
	}
	if export.CreatedAt.IsZero() {
		export.CreatedAt = time.Now().UTC()
	}
	s.exports[export.ID] = *export
	return nil
}

func (m *MemoryStorage) GetExport(ctx context.Context, id uuid.UUID) (storage.ExportMeta, bool, error) {
	s := m.exports
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.exports[id]
	return e, ok, nil
}

// ListExports возвращает список выгрузок с пагинацией
func (m *MemoryStorage) ListExports(ctx context.Context, profileID uuid.UUID, limit, offset int) ([]storage.ExportMeta, error) {
	s := m.exports
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []storage.ExportMeta
	for _, e := range s.exports {
		if e.ProfileID == profileID {
			e.Data = nil
			filtered = append(filtered, e)
		}
	}

	// Сортируем по created_at DESC
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	if offset >= len(filtered) {
		return []storage.ExportMeta{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(filtered) {
		end = len(filtered)
	}
	return filtered[offset:end], nil
}

func (m *MemoryStorage) DeleteExport(ctx context.Context, id uuid.UUID) (bool, error) {
	s := m.exports
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.exports[id]; !ok {
		return false, nil
	}
	delete(s.exports, id)
	return true, nil
}
