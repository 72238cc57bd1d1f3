package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
)

type activityStorage struct {
	mu     sync.RWMutex
	events []storage.ActivityEvent // в порядке добавления
}

func newActivityStorage() *activityStorage {
	return &activityStorage{}
}

func (m *MemoryStorage) AddActivity(ctx context.Context, event *storage.ActivityEvent) error {
	s := m.activity
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.events = append(s.events, *event)
	return nil
}

func (m *MemoryStorage) ListActivity(ctx context.Context, profileID *uuid.UUID, limit, offset int) ([]storage.ActivityEvent, int, error) {
	s := m.activity
	s.mu.RLock()
	defer s.mu.RUnlock()

	// новые первыми
	filtered := make([]storage.ActivityEvent, 0)
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if profileID != nil && (e.ProfileID == nil || *e.ProfileID != *profileID) {
			continue
		}
		filtered = append(filtered, e)
	}

	total := len(filtered)
	if offset >= total {
		return []storage.ActivityEvent{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}

func (m *MemoryStorage) CountActivitySince(ctx context.Context, since time.Time) (int, error) {
	s := m.activity
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.events {
		if !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}
