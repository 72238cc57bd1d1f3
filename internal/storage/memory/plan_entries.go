package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
)

type adherenceKey struct {
	entryID uuid.UUID
	userID  string
}

// plansStorage хранит план и отметки под одной блокировкой:
// замена блюда удаляет отметки атомарно.
type plansStorage struct {
	mu        sync.RWMutex
	entries   map[uuid.UUID]storage.PlanEntry
	byKey     map[storage.PlanKey]uuid.UUID
	adherence map[adherenceKey]storage.AdherenceRecord
}

func newPlansStorage() *plansStorage {
	return &plansStorage{
		entries:   make(map[uuid.UUID]storage.PlanEntry),
		byKey:     make(map[storage.PlanKey]uuid.UUID),
		adherence: make(map[adherenceKey]storage.AdherenceRecord),
	}
}

func (m *MemoryStorage) UpsertPlanEntry(ctx context.Context, entry storage.PlanEntry, now time.Time) (storage.PlanUpsertResult, error) {
	s := m.plans
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entry.Key()
	if id, ok := s.byKey[key]; ok {
		existing := s.entries[id]
		if storage.SameContent(existing, entry) {
			return storage.PlanUpsertResult{Entry: existing, Outcome: storage.OutcomeUnchanged}, nil
		}

		reset := 0
		dishChanged := !storage.SameDish(existing, entry)
		if dishChanged {
			reset = s.deleteAdherenceForEntryLocked(id)
		}

		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
		entry.UpdatedAt = now
		entry.Revision = existing.Revision + 1
		s.entries[id] = entry
		return storage.PlanUpsertResult{Entry: entry, Outcome: storage.OutcomeUpdated, DishChanged: dishChanged, AdherenceReset: reset}, nil
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = now
	entry.UpdatedAt = now
	entry.Revision = 1
	s.entries[entry.ID] = entry
	s.byKey[key] = entry.ID
	return storage.PlanUpsertResult{Entry: entry, Outcome: storage.OutcomeCreated}, nil
}

func (m *MemoryStorage) GetPlanEntry(ctx context.Context, key storage.PlanKey) (storage.PlanEntry, bool, error) {
	s := m.plans
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[key]
	if !ok {
		return storage.PlanEntry{}, false, nil
	}
	return s.entries[id], true, nil
}

func (m *MemoryStorage) GetPlanEntryByID(ctx context.Context, id uuid.UUID) (storage.PlanEntry, bool, error) {
	s := m.plans
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	return e, ok, nil
}

func (m *MemoryStorage) ListPlanEntries(ctx context.Context, from, to string, scopes []string) ([]storage.PlanEntry, error) {
	s := m.plans
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := scopeSet(scopes)
	out := make([]storage.PlanEntry, 0)
	for _, e := range s.entries {
		if e.PlanDate < from || e.PlanDate > to {
			continue
		}
		if allowed != nil && !allowed[e.Scope] {
			continue
		}
		out = append(out, e)
	}
	storage.SortPlanEntries(out)
	return out, nil
}

func (m *MemoryStorage) DeletePlanEntry(ctx context.Context, key storage.PlanKey) (bool, error) {
	s := m.plans
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byKey[key]
	if !ok {
		return false, nil
	}
	s.deleteEntryLocked(id)
	return true, nil
}

func (m *MemoryStorage) DeletePlanEntryByID(ctx context.Context, id uuid.UUID) (bool, error) {
	s := m.plans
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return false, nil
	}
	s.deleteEntryLocked(id)
	return true, nil
}

func (m *MemoryStorage) DeletePlanEntriesRange(ctx context.Context, from, to string, scopes []string) (int, error) {
	s := m.plans
	s.mu.Lock()
	defer s.mu.Unlock()

	allowed := scopeSet(scopes)
	n := 0
	for id, e := range s.entries {
		if e.PlanDate < from || e.PlanDate > to {
			continue
		}
		if allowed != nil && !allowed[e.Scope] {
			continue
		}
		s.deleteEntryLocked(id)
		n++
	}
	return n, nil
}

func (m *MemoryStorage) NearestPlanDate(ctx context.Context, date string, scopes []string) (string, bool, error) {
	target, err := parseDate(date)
	if err != nil {
		return "", false, err
	}

	s := m.plans
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := scopeSet(scopes)
	best := ""
	bestDist := 0.0
	for _, e := range s.entries {
		if allowed != nil && !allowed[e.Scope] {
			continue
		}
		d, err := parseDate(e.PlanDate)
		if err != nil {
			continue
		}
		dist := d.Sub(target).Hours()
		if dist < 0 {
			dist = -dist
		}
		// равное расстояние: более ранняя дата
		if best == "" || dist < bestDist || (dist == bestDist && e.PlanDate < best) {
			best = e.PlanDate
			bestDist = dist
		}
	}
	return best, best != "", nil
}

func (m *MemoryStorage) PlanStats(ctx context.Context) (storage.PlanStats, error) {
	s := m.plans
	s.mu.RLock()
	defer s.mu.RUnlock()

	days := make(map[string]struct{})
	for _, e := range s.entries {
		days[e.PlanDate] = struct{}{}
	}
	return storage.PlanStats{Entries: len(s.entries), Days: len(days)}, nil
}

func (s *plansStorage) deleteEntryLocked(id uuid.UUID) {
	e := s.entries[id]
	delete(s.entries, id)
	delete(s.byKey, e.Key())
	s.deleteAdherenceForEntryLocked(id)
}

func (s *plansStorage) deleteAdherenceForEntryLocked(id uuid.UUID) int {
	n := 0
	for k := range s.adherence {
		if k.entryID == id {
			delete(s.adherence, k)
			n++
		}
	}
	return n
}

// deleteScopeAndUser удаляет план профиля и все его отметки.
func (s *plansStorage) deleteScopeAndUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		if e.Scope == userID {
			s.deleteEntryLocked(id)
		}
	}
	for k := range s.adherence {
		if k.userID == userID {
			delete(s.adherence, k)
		}
	}
}

func scopeSet(scopes []string) map[string]bool {
	if len(scopes) == 0 {
		return nil
	}
	set := make(map[string]bool, len(scopes))
	for _, sc := range scopes {
		set[sc] = true
	}
	return set
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}
