package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
)

type aiModelsStorage struct {
	mu     sync.RWMutex
	models map[uuid.UUID]storage.AIModel
}

func newAIModelsStorage() *aiModelsStorage {
	return &aiModelsStorage{models: make(map[uuid.UUID]storage.AIModel)}
}

func (m *MemoryStorage) ListAIModels(ctx context.Context) ([]storage.AIModel, error) {
	s := m.models
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.AIModel, 0, len(s.models))
	for _, model := range s.models {
		out = append(out, model)
	}
	// default first, then by creation
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStorage) GetAIModel(ctx context.Context, id uuid.UUID) (storage.AIModel, bool, error) {
	s := m.models
	s.mu.RLock()
	defer s.mu.RUnlock()

	model, ok := s.models[id]
	return model, ok, nil
}

func (m *MemoryStorage) GetDefaultAIModel(ctx context.Context) (storage.AIModel, bool, error) {
	s := m.models
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, model := range s.models {
		if model.IsDefault {
			return model, true, nil
		}
	}
	return storage.AIModel{}, false, nil
}

func (m *MemoryStorage) CreateAIModel(ctx context.Context, model *storage.AIModel) error {
	s := m.models
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.models {
		if existing.Provider == model.Provider && existing.ModelID == model.ModelID {
			return storage.ErrDuplicate
		}
	}
	if model.ID == uuid.Nil {
		model.ID = uuid.New()
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if model.IsDefault {
		s.clearDefaultLocked()
	}
	s.models[model.ID] = *model
	return nil
}

func (m *MemoryStorage) DeleteAIModel(ctx context.Context, id uuid.UUID) (bool, error) {
	s := m.models
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.models[id]; !ok {
		return false, nil
	}
	delete(s.models, id)
	return true, nil
}

func (m *MemoryStorage) SetDefaultAIModel(ctx context.Context, id uuid.UUID) (bool, error) {
	s := m.models
	s.mu.Lock()
	defer s.mu.Unlock()

	model, ok := s.models[id]
	if !ok {
		return false, nil
	}
	s.clearDefaultLocked()
	model.IsDefault = true
	s.models[id] = model
	return true, nil
}

func (s *aiModelsStorage) clearDefaultLocked() {
	for id, model := range s.models {
		if model.IsDefault {
			model.IsDefault = false
			s.models[id] = model
		}
	}
}
