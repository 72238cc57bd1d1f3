package memory

import (
	"context"
	"time"

	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
)

func (m *MemoryStorage) SetAdherence(ctx context.Context, entryID uuid.UUID, userID, status string, now time.Time) (storage.AdherenceRecord, *storage.AdherenceRecord, error) {
	s := m.plans
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entryID]; !ok {
		return storage.AdherenceRecord{}, nil, storage.ErrEntryGone
	}

	key := adherenceKey{entryID: entryID, userID: userID}
	rec := storage.AdherenceRecord{
		EntryID:         entryID,
		UserID:          userID,
		Status:          status,
		StatusChangedAt: now,
		Revision:        1,
	}

	var prev *storage.AdherenceRecord
	if existing, ok := s.adherence[key]; ok {
		p := existing
		prev = &p
		rec.Revision = existing.Revision + 1
		if existing.Status == status {
			rec.StatusChangedAt = existing.StatusChangedAt
		}
	}
	s.adherence[key] = rec
	return rec, prev, nil
}

func (m *MemoryStorage) GetAdherence(ctx context.Context, entryID uuid.UUID, userID string) (storage.AdherenceRecord, bool, error) {
	s := m.plans
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.adherence[adherenceKey{entryID: entryID, userID: userID}]
	return rec, ok, nil
}

func (m *MemoryStorage) ListAdherence(ctx context.Context, userID string, entryIDs []uuid.UUID) (map[uuid.UUID]storage.AdherenceRecord, error) {
	s := m.plans
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uuid.UUID]storage.AdherenceRecord, len(entryIDs))
	for _, id := range entryIDs {
		if rec, ok := s.adherence[adherenceKey{entryID: id, userID: userID}]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

func (m *MemoryStorage) DeleteAdherence(ctx context.Context, entryID uuid.UUID, userID string) (bool, error) {
	s := m.plans
	s.mu.Lock()
	defer s.mu.Unlock()

	key := adherenceKey{entryID: entryID, userID: userID}
	if _, ok := s.adherence[key]; !ok {
		return false, nil
	}
	delete(s.adherence, key)
	return true, nil
}
