// Package storagetest is a behavioural suite every storage.Store backend must pass.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store; cleanup is the factory's job.
type Factory func(t *testing.T) storage.Store

var t0 = time.Date(2026, 2, 22, 9, 0, 0, 0, time.UTC)

func entry(date, meal, scope, dish string) storage.PlanEntry {
	return storage.PlanEntry{
		Scope:       scope,
		PlanDate:    date,
		MealType:    meal,
		DishName:    dish,
		Description: dish + " description",
		Calories:    350,
		ProteinG:    12,
		CarbsG:      55,
		FatG:        8,
		FiberG:      6,
	}
}

// Run executes the full suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("UpsertOutcomes", func(t *testing.T) { testUpsertOutcomes(t, newStore(t)) })
	t.Run("DishChangeResetsAdherence", func(t *testing.T) { testDishChangeResetsAdherence(t, newStore(t)) })
	t.Run("ListOrderAndScopes", func(t *testing.T) { testListOrderAndScopes(t, newStore(t)) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, newStore(t)) })
	t.Run("NearestPlanDate", func(t *testing.T) { testNearestPlanDate(t, newStore(t)) })
	t.Run("Adherence", func(t *testing.T) { testAdherence(t, newStore(t)) })
	t.Run("ConcurrentAdherence", func(t *testing.T) { testConcurrentAdherence(t, newStore(t)) })
	t.Run("RecipeCacheAndLease", func(t *testing.T) { testRecipeCacheAndLease(t, newStore(t)) })
	t.Run("Profiles", func(t *testing.T) { testProfiles(t, newStore(t)) })
	t.Run("AIModels", func(t *testing.T) { testAIModels(t, newStore(t)) })
	t.Run("Activity", func(t *testing.T) { testActivity(t, newStore(t)) })
	t.Run("Admin", func(t *testing.T) { testAdmin(t, newStore(t)) })
	t.Run("Exports", func(t *testing.T) { testExports(t, newStore(t)) })
}

func testUpsertOutcomes(t *testing.T, s storage.Store) {
	ctx := context.Background()

	first, err := s.UpsertPlanEntry(ctx, entry("2026-02-22", storage.MealBreakfast, storage.ScopeEveryone, "Oatmeal"), t0)
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeCreated, first.Outcome)
	assert.Equal(t, int64(1), first.Entry.Revision)
	assert.NotEqual(t, uuid.Nil, first.Entry.ID)

	again, err := s.UpsertPlanEntry(ctx, entry("2026-02-22", storage.MealBreakfast, storage.ScopeEveryone, "Oatmeal"), t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeUnchanged, again.Outcome)
	assert.Equal(t, first.Entry.ID, again.Entry.ID)
	assert.Equal(t, int64(1), again.Entry.Revision)

	changed := entry("2026-02-22", storage.MealBreakfast, storage.ScopeEveryone, "Oatmeal")
	changed.Calories = 400
	upd, err := s.UpsertPlanEntry(ctx, changed, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeUpdated, upd.Outcome)
	assert.Equal(t, first.Entry.ID, upd.Entry.ID)
	assert.Equal(t, int64(2), upd.Entry.Revision)

	got, found, err := s.GetPlanEntry(ctx, changed.Key())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 400.0, got.Calories)

	_, found, err = s.GetPlanEntry(ctx, storage.PlanKey{PlanDate: "2026-02-22", MealType: storage.MealLunch, Scope: storage.ScopeEveryone})
	require.NoError(t, err)
	assert.False(t, found)

	st, err := s.PlanStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.PlanStats{Entries: 1, Days: 1}, st)
}

func testDishChangeResetsAdherence(t *testing.T, s storage.Store) {
	ctx := context.Background()

	res, err := s.UpsertPlanEntry(ctx, entry("2026-02-22", storage.MealLunch, storage.ScopeEveryone, "Salad"), t0)
	require.NoError(t, err)
	id := res.Entry.ID

	_, _, err = s.SetAdherence(ctx, id, "u1", storage.StatusPrepared, t0)
	require.NoError(t, err)
	_, _, err = s.SetAdherence(ctx, id, "u2", storage.StatusMissed, t0)
	require.NoError(t, err)

	// nutrition only
	nut := entry("2026-02-22", storage.MealLunch, storage.ScopeEveryone, "Salad")
	nut.FatG = 30
	res, err = s.UpsertPlanEntry(ctx, nut, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, res.AdherenceReset)
	assert.False(t, res.DishChanged)
	rec, found, err := s.GetAdherence(ctx, id, "u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, storage.StatusPrepared, rec.Status)

	// description change is a dish change
	desc := nut
	desc.Description = "Different description"
	res, err = s.UpsertPlanEntry(ctx, desc, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeUpdated, res.Outcome)
	assert.Equal(t, 2, res.AdherenceReset)
	assert.True(t, res.DishChanged)
	assert.Equal(t, id, res.Entry.ID)

	_, found, err = s.GetAdherence(ctx, id, "u1")
	require.NoError(t, err)
	assert.False(t, found)
}

func testListOrderAndScopes(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := uuid.New().String()

	for _, e := range []storage.PlanEntry{
		entry("2026-02-23", storage.MealDinner, storage.ScopeEveryone, "D2"),
		entry("2026-02-22", storage.MealEveningSnack, storage.ScopeEveryone, "E1"),
		entry("2026-02-22", storage.MealBreakfast, user, "B1-user"),
		entry("2026-02-22", storage.MealAfternoonSnack, storage.ScopeEveryone, "A1"),
		entry("2026-02-22", storage.MealBreakfast, storage.ScopeEveryone, "B1"),
		entry("2026-02-22", storage.MealMorningSnack, "someone-else", "M1-other"),
		entry("2026-03-01", storage.MealLunch, storage.ScopeEveryone, "out of range"),
	} {
		_, err := s.UpsertPlanEntry(ctx, e, t0)
		require.NoError(t, err)
	}

	list, err := s.ListPlanEntries(ctx, "2026-02-22", "2026-02-28", storage.ScopesFor(user))
	require.NoError(t, err)
	var dishes []string
	for _, e := range list {
		dishes = append(dishes, e.DishName)
	}
	// user scope sorts after "everyone" only by scope string; both are breakfast
	want := []string{"B1", "B1-user", "A1", "E1", "D2"}
	if user < storage.ScopeEveryone {
		want = []string{"B1-user", "B1", "A1", "E1", "D2"}
	}
	assert.Equal(t, want, dishes)

	all, err := s.ListPlanEntries(ctx, "2026-01-01", "2026-12-31", nil)
	require.NoError(t, err)
	assert.Len(t, all, 7)
}

func testDeleteCascades(t *testing.T, s storage.Store) {
	ctx := context.Background()

	a, err := s.UpsertPlanEntry(ctx, entry("2026-02-16", storage.MealBreakfast, storage.ScopeEveryone, "A"), t0)
	require.NoError(t, err)
	b, err := s.UpsertPlanEntry(ctx, entry("2026-02-17", storage.MealLunch, storage.ScopeEveryone, "B"), t0)
	require.NoError(t, err)
	c, err := s.UpsertPlanEntry(ctx, entry("2026-02-25", storage.MealLunch, storage.ScopeEveryone, "C"), t0)
	require.NoError(t, err)

	_, _, err = s.SetAdherence(ctx, a.Entry.ID, "u1", storage.StatusPrepared, t0)
	require.NoError(t, err)

	ok, err := s.DeletePlanEntry(ctx, a.Entry.Key())
	require.NoError(t, err)
	assert.True(t, ok)
	_, found, err := s.GetAdherence(ctx, a.Entry.ID, "u1")
	require.NoError(t, err)
	assert.False(t, found)

	ok, err = s.DeletePlanEntry(ctx, a.Entry.Key())
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.DeletePlanEntriesRange(ctx, "2026-02-16", "2026-02-22", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, found, err = s.GetPlanEntryByID(ctx, b.Entry.ID)
	require.NoError(t, err)
	assert.False(t, found)

	ok, err = s.DeletePlanEntryByID(ctx, c.Entry.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func testNearestPlanDate(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, found, err := s.NearestPlanDate(ctx, "2026-02-22", nil)
	require.NoError(t, err)
	assert.False(t, found)

	for _, d := range []string{"2026-02-19", "2026-02-25", "2026-03-10"} {
		_, err := s.UpsertPlanEntry(ctx, entry(d, storage.MealLunch, storage.ScopeEveryone, "x"), t0)
		require.NoError(t, err)
	}
	_, err = s.UpsertPlanEntry(ctx, entry("2026-02-22", storage.MealLunch, "private", "x"), t0)
	require.NoError(t, err)

	// 19th and 25th are both 3 days away: earlier wins
	got, found, err := s.NearestPlanDate(ctx, "2026-02-22", []string{storage.ScopeEveryone})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2026-02-19", got)

	got, _, err = s.NearestPlanDate(ctx, "2026-03-08", []string{storage.ScopeEveryone})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", got)
}

func testAdherence(t *testing.T, s storage.Store) {
	ctx := context.Background()

	res, err := s.UpsertPlanEntry(ctx, entry("2026-02-22", storage.MealDinner, storage.ScopeEveryone, "Salmon"), t0)
	require.NoError(t, err)
	id := res.Entry.ID

	rec, prev, err := s.SetAdherence(ctx, id, "u1", storage.StatusPrepared, t0)
	require.NoError(t, err)
	assert.Nil(t, prev)
	assert.Equal(t, int64(1), rec.Revision)

	rec2, prev, err := s.SetAdherence(ctx, id, "u1", storage.StatusPrepared, t0.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, int64(1), prev.Revision)
	assert.Equal(t, int64(2), rec2.Revision)
	assert.True(t, rec2.StatusChangedAt.Equal(t0), "same status keeps changed_at")

	rec3, _, err := s.SetAdherence(ctx, id, "u1", storage.StatusMissed, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, rec3.StatusChangedAt.Equal(t0.Add(2*time.Hour)))

	recs, err := s.ListAdherence(ctx, "u1", []uuid.UUID{id, uuid.New()})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, storage.StatusMissed, recs[id].Status)

	ok, err := s.DeleteAdherence(ctx, id, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	_, found, err := s.GetAdherence(ctx, id, "u1")
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = s.SetAdherence(ctx, uuid.New(), "u1", storage.StatusPrepared, t0)
	assert.ErrorIs(t, err, storage.ErrEntryGone)
}

func testConcurrentAdherence(t *testing.T, s storage.Store) {
	ctx := context.Background()

	ids := make([]uuid.UUID, 0, len(storage.MealTypes))
	for _, m := range storage.MealTypes {
		res, err := s.UpsertPlanEntry(ctx, entry("2026-02-22", m, storage.ScopeEveryone, "dish "+m), t0)
		require.NoError(t, err)
		ids = append(ids, res.Entry.ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 4; i++ {
		for _, id := range ids {
			wg.Add(1)
			go func(id uuid.UUID, i int) {
				defer wg.Done()
				status := storage.StatusPrepared
				if i%2 == 1 {
					status = storage.StatusMissed
				}
				if _, _, err := s.SetAdherence(ctx, id, "u1", status, t0); err != nil {
					errs <- fmt.Errorf("set %s: %w", id, err)
				}
			}(id, i)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	recs, err := s.ListAdherence(ctx, "u1", ids)
	require.NoError(t, err)
	require.Len(t, recs, len(ids))
	for _, rec := range recs {
		assert.Contains(t, []string{storage.StatusPrepared, storage.StatusMissed}, rec.Status)
		assert.Equal(t, int64(4), rec.Revision)
	}
}

func testRecipeCacheAndLease(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, found, err := s.GetRecipeInfo(ctx, "sig")
	require.NoError(t, err)
	assert.False(t, found)

	info := storage.RecipeInfo{
		Signature:     "sig",
		DishName:      "Oatmeal",
		GeneratedText: "Boil oats.",
		Status:        storage.RecipeFresh,
		SourceModel:   "mock",
		GeneratedAt:   t0,
		ExpiresAt:     t0.Add(time.Hour),
	}
	require.NoError(t, s.PutRecipeInfo(ctx, info))
	got, found, err := s.GetRecipeInfo(ctx, "sig")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Boil oats.", got.GeneratedText)
	assert.False(t, got.Expired(t0))

	info.Status = storage.RecipeStaleFallback
	require.NoError(t, s.PutRecipeInfo(ctx, info))
	n, err := s.CountRecipeInfos(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err := s.ExpireRecipeInfo(ctx, "sig", t0)
	require.NoError(t, err)
	assert.True(t, ok)
	got, _, err = s.GetRecipeInfo(ctx, "sig")
	require.NoError(t, err)
	assert.True(t, got.Expired(t0))

	ok, err = s.AcquireRecipeLease(ctx, "sig", "a", t0, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.AcquireRecipeLease(ctx, "sig", "b", t0.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "live lease held by a")
	ok, err = s.AcquireRecipeLease(ctx, "sig", "a", t0.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "owner may renew")

	ok, err = s.AcquireRecipeLease(ctx, "sig", "b", t0.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease can be taken over")

	// release by a non-owner is a no-op
	require.NoError(t, s.ReleaseRecipeLease(ctx, "sig", "a"))
	ok, err = s.AcquireRecipeLease(ctx, "sig", "c", t0.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ReleaseRecipeLease(ctx, "sig", "b"))
	ok, err = s.AcquireRecipeLease(ctx, "sig", "c", t0.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func testProfiles(t *testing.T, s storage.Store) {
	ctx := context.Background()

	bob := storage.Profile{Name: "Bob", CreatedAt: t0}
	require.NoError(t, s.CreateProfile(ctx, &bob))
	alice := storage.Profile{Name: "Alice", CreatedAt: t0}
	require.NoError(t, s.CreateProfile(ctx, &alice))

	list, err := s.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alice", list[0].Name)

	require.NoError(t, s.TouchProfile(ctx, bob.ID, t0.Add(time.Hour)))
	got, found, err := s.GetProfile(ctx, bob.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.LastSeenAt.Equal(t0.Add(time.Hour)))

	// private plan and adherence go away with the profile
	priv, err := s.UpsertPlanEntry(ctx, entry("2026-02-22", storage.MealLunch, bob.ID.String(), "Private"), t0)
	require.NoError(t, err)
	shared, err := s.UpsertPlanEntry(ctx, entry("2026-02-22", storage.MealLunch, storage.ScopeEveryone, "Shared"), t0)
	require.NoError(t, err)
	_, _, err = s.SetAdherence(ctx, shared.Entry.ID, bob.ID.String(), storage.StatusPrepared, t0)
	require.NoError(t, err)

	ok, err := s.DeleteProfile(ctx, bob.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, found, err = s.GetPlanEntryByID(ctx, priv.Entry.ID)
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = s.GetAdherence(ctx, shared.Entry.ID, bob.ID.String())
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = s.GetPlanEntryByID(ctx, shared.Entry.ID)
	require.NoError(t, err)
	assert.True(t, found)
}

func testAIModels(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, found, err := s.GetDefaultAIModel(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	groq := storage.AIModel{Provider: "groq", ModelID: "openai/gpt-oss-120b", DisplayName: "GPT-OSS", IsDefault: true, CreatedAt: t0}
	require.NoError(t, s.CreateAIModel(ctx, &groq))
	or := storage.AIModel{Provider: "openrouter", ModelID: "arcee-ai/trinity-large-preview:free", DisplayName: "Trinity", CreatedAt: t0.Add(time.Second)}
	require.NoError(t, s.CreateAIModel(ctx, &or))

	dup := storage.AIModel{Provider: "groq", ModelID: "openai/gpt-oss-120b", DisplayName: "again"}
	assert.ErrorIs(t, s.CreateAIModel(ctx, &dup), storage.ErrDuplicate)

	ok, err := s.SetDefaultAIModel(ctx, or.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	def, found, err := s.GetDefaultAIModel(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, or.ID, def.ID)

	list, err := s.ListAIModels(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, or.ID, list[0].ID)
	assert.False(t, list[1].IsDefault)

	ok, err = s.SetDefaultAIModel(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.DeleteAIModel(ctx, groq.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	_, found, err = s.GetAIModel(ctx, groq.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func testActivity(t *testing.T, s storage.Store) {
	ctx := context.Background()
	pid := uuid.New()

	for i := 0; i < 5; i++ {
		e := storage.ActivityEvent{Action: fmt.Sprintf("a%d", i), CreatedAt: t0.Add(time.Duration(i) * time.Minute)}
		if i%2 == 0 {
			e.ProfileID = &pid
		}
		require.NoError(t, s.AddActivity(ctx, &e))
	}

	page, total, err := s.ListActivity(ctx, nil, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "a4", page[0].Action)

	page, total, err = s.ListActivity(ctx, &pid, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "a2", page[0].Action)
	require.NotNil(t, page[0].ProfileID)
	assert.Equal(t, pid, *page[0].ProfileID)

	n, err := s.CountActivitySince(ctx, t0.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testAdmin(t *testing.T, s storage.Store) {
	ctx := context.Background()

	created, err := s.CreateAdminIfMissing(ctx, storage.AdminAccount{Username: "admin", PasswordHash: "h1", UpdatedAt: t0})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = s.CreateAdminIfMissing(ctx, storage.AdminAccount{Username: "admin", PasswordHash: "h2", UpdatedAt: t0})
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, s.UpdateAdminPassword(ctx, "admin", "h3", t0.Add(time.Hour)))
	a, found, err := s.GetAdmin(ctx, "admin")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "h3", a.PasswordHash)

	assert.Error(t, s.UpdateAdminPassword(ctx, "nobody", "x", t0))
}

func testExports(t *testing.T, s storage.Store) {
	ctx := context.Background()
	pid := uuid.New()

	key := "exports/x.pdf"
	inline := storage.ExportMeta{ProfileID: pid, Format: "csv", FromDate: "2026-02-16", ToDate: "2026-02-22", Data: []byte("a,b\n"), SizeBytes: 4, CreatedAt: t0}
	remote := storage.ExportMeta{ProfileID: pid, Format: "pdf", FromDate: "2026-02-16", ToDate: "2026-02-22", ObjectKey: &key, SizeBytes: 100, CreatedAt: t0.Add(time.Minute)}
	require.NoError(t, s.CreateExport(ctx, &inline))
	require.NoError(t, s.CreateExport(ctx, &remote))

	got, found, err := s.GetExport(ctx, inline.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("a,b\n"), got.Data)
	assert.Nil(t, got.ObjectKey)

	list, err := s.ListExports(ctx, pid, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, remote.ID, list[0].ID)
	require.NotNil(t, list[0].ObjectKey)
	assert.Equal(t, key, *list[0].ObjectKey)

	ok, err := s.DeleteExport(ctx, inline.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
