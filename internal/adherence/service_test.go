package adherence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fdg312/meal-tracker/internal/clock"
	"github.com/fdg312/meal-tracker/internal/importer"
	"github.com/fdg312/meal-tracker/internal/planentries"
	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/fdg312/meal-tracker/internal/storage/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const csvHeader = "plan_date,meal_type,dish_name,description,calories,protein_g,carbs_g,fat_g,fiber_g\n"

type fixture struct {
	svc      *Service
	store    *memory.MemoryStorage
	entries  *planentries.Service
	importer *importer.Service
	clock    *clock.Fixed
	user     string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := memory.New()
	clk := clock.AtDate("2026-02-22")
	entries := planentries.NewService(st, clk, zap.NewNop())
	return fixture{
		svc:      NewService(st, clk, zap.NewNop()),
		store:    st,
		entries:  entries,
		importer: importer.NewService(entries, st, nil, clk, zap.NewNop()),
		clock:    clk,
		user:     uuid.NewString(),
	}
}

func (f fixture) add(t *testing.T, date, meal, dish string, calories float64) storage.PlanEntry {
	t.Helper()
	res, err := f.entries.Upsert(context.Background(), storage.PlanEntry{
		Scope: storage.ScopeEveryone, PlanDate: date, MealType: meal, DishName: dish, Calories: calories,
	})
	require.NoError(t, err)
	return res.Entry
}

func (f fixture) importCSV(t *testing.T, rows ...string) importer.Report {
	t.Helper()
	data := csvHeader
	for _, r := range rows {
		data += r + "\n"
	}
	report, err := f.importer.Import(context.Background(), importer.Request{Data: []byte(data), Filename: "plan.csv"})
	require.NoError(t, err)
	return report
}

func TestEffective(t *testing.T) {
	at := time.Date(2026, 2, 20, 8, 0, 0, 0, time.UTC)
	prepared := &storage.AdherenceRecord{Status: storage.StatusPrepared, StatusChangedAt: at}
	missed := &storage.AdherenceRecord{Status: storage.StatusMissed, StatusChangedAt: at}

	cases := []struct {
		name     string
		rec      *storage.AdherenceRecord
		planDate string
		want     Kind
		mat      bool
	}{
		{"past without record", nil, "2026-02-21", KindMissed, false},
		{"today without record", nil, "2026-02-22", KindPending, false},
		{"future without record", nil, "2026-02-23", KindPending, false},
		{"past prepared", prepared, "2026-02-01", KindPrepared, true},
		{"future prepared", prepared, "2026-03-01", KindPrepared, true},
		{"today missed", missed, "2026-02-22", KindMissed, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := Effective(tc.rec, tc.planDate, "2026-02-22")
			assert.Equal(t, tc.want, st.Kind)
			assert.Equal(t, tc.mat, st.Materialized)
			if tc.mat {
				require.NotNil(t, st.ChangedAt)
				assert.Equal(t, at, *st.ChangedAt)
			}
		})
	}
}

func TestParseMarkStatus(t *testing.T) {
	s, err := ParseMarkStatus(" Prepared ")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusPrepared, s)

	for _, bad := range []string{"pending", "", "done"} {
		_, err := ParseMarkStatus(bad)
		assert.ErrorIs(t, err, ErrInvalidStatus, bad)
	}
}

func TestImportThenTodayViewIsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report := f.importCSV(t, "2026-02-22,breakfast,Oatmeal with Berries,Warm oatmeal,350,12,55,8,6")
	assert.Equal(t, 1, report.Accepted)
	assert.Empty(t, report.Rejected)

	view, err := f.svc.TodayView(ctx, f.user, "2026-02-22")
	require.NoError(t, err)
	require.Len(t, view, 1)
	assert.Equal(t, "Oatmeal with Berries", view[0].Entry.DishName)
	assert.Equal(t, KindPending, view[0].Status.Kind)
	assert.False(t, view[0].Status.Materialized)
}

func TestNutritionReimportKeepsPrepared(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.importCSV(t, "2026-02-22,breakfast,Oatmeal with Berries,Warm oatmeal,350,12,55,8,6")
	key := storage.PlanKey{PlanDate: "2026-02-22", MealType: storage.MealBreakfast, Scope: storage.ScopeEveryone}
	_, err := f.svc.Mark(ctx, key, f.user, storage.StatusPrepared)
	require.NoError(t, err)

	report := f.importCSV(t, "2026-02-22,breakfast,Oatmeal with Berries,Warm oatmeal,400,12,55,8,6")
	assert.Equal(t, 1, report.Accepted)
	assert.Equal(t, 0, report.Effects.AdherenceReset)

	view, err := f.svc.TodayView(ctx, f.user, "2026-02-22")
	require.NoError(t, err)
	require.Len(t, view, 1)
	assert.Equal(t, 400.0, view[0].Entry.Calories)
	assert.Equal(t, KindPrepared, view[0].Status.Kind)
}

func TestDishChangeResetsToPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.importCSV(t, "2026-02-22,lunch,Soup,,200,,,,")
	key := storage.PlanKey{PlanDate: "2026-02-22", MealType: storage.MealLunch, Scope: storage.ScopeEveryone}
	_, err := f.svc.Mark(ctx, key, f.user, storage.StatusPrepared)
	require.NoError(t, err)

	report := f.importCSV(t, "2026-02-22,lunch,Borscht,,200,,,,")
	assert.Equal(t, 1, report.Effects.AdherenceReset)

	view, err := f.svc.TodayView(ctx, f.user, "2026-02-22")
	require.NoError(t, err)
	require.Len(t, view, 1)
	assert.Equal(t, KindPending, view[0].Status.Kind)
}

func TestReimportUnchangedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rows := []string{
		"2026-02-21,breakfast,Eggs,,300,,,,",
		"2026-02-22,dinner,Fish,,500,,,,",
	}

	first := f.importCSV(t, rows...)
	entry, _, err := f.store.GetPlanEntry(ctx, storage.PlanKey{PlanDate: "2026-02-22", MealType: storage.MealDinner, Scope: storage.ScopeEveryone})
	require.NoError(t, err)
	_, err = f.svc.MarkByID(ctx, entry.ID, f.user, storage.StatusMissed, nil)
	require.NoError(t, err)
	before, err := f.svc.WeeklyView(ctx, f.user, "2026-02-16")
	require.NoError(t, err)

	second := f.importCSV(t, rows...)
	assert.Equal(t, first.Accepted, second.Accepted)
	assert.Equal(t, len(first.Replaced), len(second.Replaced))
	assert.Equal(t, 2, second.Effects.Unchanged)

	after, err := f.svc.WeeklyView(ctx, f.user, "2026-02-16")
	require.NoError(t, err)
	assert.Equal(t, before.Totals, after.Totals)
	rec, err := f.svc.MaterializedStatus(ctx, entry.ID, f.user)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(1), rec.Revision)
}

func TestMaterializedVsEffective(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := f.add(t, "2026-02-20", storage.MealLunch, "Pasta", 600)

	rec, err := f.svc.MaterializedStatus(ctx, past.ID, f.user)
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, st, err := f.svc.EffectiveStatus(ctx, past.ID, f.user)
	require.NoError(t, err)
	assert.Equal(t, KindMissed, st.Kind)
	assert.False(t, st.Materialized)

	// inferred missed is never written
	_, found, err := f.store.GetAdherence(ctx, past.ID, f.user)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMarkAndUnmark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.add(t, "2026-02-22", storage.MealDinner, "Salmon", 480)

	res, err := f.svc.MarkByID(ctx, e.ID, f.user, "prepared", nil)
	require.NoError(t, err)
	assert.Nil(t, res.Previous)
	assert.Nil(t, res.Conflict)
	assert.Equal(t, storage.StatusPrepared, res.Record.Status)
	assert.Equal(t, f.clock.Now().UTC(), res.Record.StatusChangedAt)

	deleted, err := f.svc.Unmark(ctx, e.ID, f.user)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, st, err := f.svc.EffectiveStatus(ctx, e.ID, f.user)
	require.NoError(t, err)
	assert.Equal(t, KindPending, st.Kind)

	_, err = f.svc.MarkByID(ctx, e.ID, f.user, "pending", nil)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestMarkUnknownOrForeignEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.MarkByID(ctx, uuid.New(), f.user, "prepared", nil)
	assert.ErrorIs(t, err, planentries.ErrEntryNotFound)

	other := uuid.NewString()
	res, err := f.entries.Upsert(ctx, storage.PlanEntry{
		Scope: other, PlanDate: "2026-02-22", MealType: storage.MealLunch, DishName: "Private",
	})
	require.NoError(t, err)

	_, err = f.svc.MarkByID(ctx, res.Entry.ID, f.user, "prepared", nil)
	assert.ErrorIs(t, err, planentries.ErrEntryNotFound)

	_, err = f.svc.Mark(ctx, res.Entry.Key(), f.user, "prepared")
	assert.ErrorIs(t, err, planentries.ErrEntryNotFound)

	_, err = f.svc.MarkByID(ctx, res.Entry.ID, other, "prepared", nil)
	assert.NoError(t, err)
}

func TestMarkExpectedRevisionConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.add(t, "2026-02-22", storage.MealLunch, "Salad", 420)

	zero := int64(0)
	res, err := f.svc.MarkByID(ctx, e.ID, f.user, "prepared", &zero)
	require.NoError(t, err)
	assert.Nil(t, res.Conflict)
	assert.Equal(t, int64(1), res.Record.Revision)

	// второй писатель работал с той же ревизией 0
	res, err = f.svc.MarkByID(ctx, e.ID, f.user, "missed", &zero)
	require.NoError(t, err)
	require.NotNil(t, res.Conflict)
	assert.Equal(t, int64(1), res.Conflict.ActualRevision)
	assert.Equal(t, storage.StatusPrepared, res.Conflict.OverwrittenState)
	assert.Contains(t, res.Conflict.Error(), "expected revision 0")

	// last writer wins
	rec, err := f.svc.MaterializedStatus(ctx, e.ID, f.user)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, storage.StatusMissed, rec.Status)
}

func TestConcurrentMarksDistinctEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []uuid.UUID
	for i, meal := range storage.MealTypes {
		e := f.add(t, "2026-02-22", meal, fmt.Sprintf("Dish %d", i), 100)
		ids = append(ids, e.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, err := f.svc.MarkByID(ctx, id, f.user, "prepared", nil)
				assert.NoError(t, err)
			}
		}(id)
	}
	wg.Wait()

	view, err := f.svc.Dashboard(ctx, f.user, "2026-02-22")
	require.NoError(t, err)
	assert.Equal(t, Counts{Prepared: len(ids)}, view.Counts)
	for _, id := range ids {
		rec, err := f.svc.MaterializedStatus(ctx, id, f.user)
		require.NoError(t, err)
		assert.Equal(t, int64(20), rec.Revision)
	}
}

func TestConcurrentMarksSameEntryConverge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.add(t, "2026-02-22", storage.MealLunch, "Soup", 200)

	statuses := []string{"prepared", "missed"}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(status string) {
			defer wg.Done()
			_, err := f.svc.MarkByID(ctx, e.ID, f.user, status, nil)
			assert.NoError(t, err)
		}(statuses[i%2])
	}
	wg.Wait()

	rec, err := f.svc.MaterializedStatus(ctx, e.ID, f.user)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Contains(t, statuses, rec.Status)
	assert.Equal(t, int64(16), rec.Revision)
}

func TestDashboardFallsBackToNearestDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "2026-02-25", storage.MealDinner, "Steak", 700)
	f.add(t, "2026-02-10", storage.MealDinner, "Rice", 300)

	view, err := f.svc.Dashboard(ctx, f.user, "")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-25", view.Date)
	assert.True(t, view.Fallback)
	assert.False(t, view.IsToday)
	assert.Equal(t, "2026-02-24", view.PrevDate)
	assert.Equal(t, "2026-02-26", view.NextDate)
	require.Len(t, view.Entries, 1)

	// явная дата без плана не подменяется
	view, err = f.svc.Dashboard(ctx, f.user, "2026-02-22")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-22", view.Date)
	assert.False(t, view.Fallback)
	assert.True(t, view.IsToday)
	assert.Empty(t, view.Entries)

	_, err = f.svc.Dashboard(ctx, f.user, "22.02.2026")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestDashboardCalories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.add(t, "2026-02-22", storage.MealBreakfast, "Oatmeal", 350)
	f.add(t, "2026-02-22", storage.MealLunch, "Salad", 420)

	_, err := f.svc.MarkByID(ctx, a.ID, f.user, "prepared", nil)
	require.NoError(t, err)

	view, err := f.svc.Dashboard(ctx, f.user, "")
	require.NoError(t, err)
	assert.False(t, view.Fallback)
	assert.Equal(t, 770.0, view.TotalCalories)
	assert.Equal(t, 350.0, view.PreparedCalories)
	assert.Equal(t, Counts{Prepared: 1, Pending: 1}, view.Counts)
	assert.Equal(t, storage.MealBreakfast, view.Entries[0].Entry.MealType)
}

func TestWeeklyView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mon := f.add(t, "2026-02-16", storage.MealBreakfast, "Eggs", 300)
	f.add(t, "2026-02-17", storage.MealLunch, "Soup", 200)
	f.add(t, "2026-02-22", storage.MealDinner, "Fish", 500)
	f.add(t, "2026-02-23", storage.MealDinner, "Next week", 500)

	_, err := f.svc.MarkByID(ctx, mon.ID, f.user, "prepared", nil)
	require.NoError(t, err)

	start := f.svc.WeekStartFor(0)
	assert.Equal(t, "2026-02-16", start)
	assert.Equal(t, "2026-02-23", f.svc.WeekStartFor(1))
	assert.Equal(t, "2026-02-09", f.svc.WeekStartFor(-1))

	week, err := f.svc.WeeklyView(ctx, f.user, start)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-22", week.WeekEnd)
	require.Len(t, week.Days, 7)
	assert.Equal(t, Counts{Prepared: 1}, week.Days[0].Counts)
	assert.Equal(t, Counts{Missed: 1}, week.Days[1].Counts)
	assert.Empty(t, week.Days[2].Entries)
	assert.Equal(t, Counts{Pending: 1}, week.Days[6].Counts)
	assert.Equal(t, Counts{Prepared: 1, Missed: 1, Pending: 1}, week.Totals)

	_, err = f.svc.WeeklyView(ctx, f.user, "bad")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestPersonalScopeVisibleOnlyToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "2026-02-22", storage.MealLunch, "Shared", 100)
	_, err := f.entries.Upsert(ctx, storage.PlanEntry{
		Scope: f.user, PlanDate: "2026-02-22", MealType: storage.MealDinner, DishName: "Mine",
	})
	require.NoError(t, err)

	mine, err := f.svc.TodayView(ctx, f.user, "2026-02-22")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := f.svc.TodayView(ctx, uuid.NewString(), "2026-02-22")
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, "Shared", theirs[0].Entry.DishName)
}
