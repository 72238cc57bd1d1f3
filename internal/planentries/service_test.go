package planentries

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/fdg312/meal-tracker/internal/clock"
	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/fdg312/meal-tracker/internal/storage/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *memory.MemoryStorage) {
	t.Helper()
	st := memory.New()
	return NewService(st, clock.AtDate("2026-02-22"), zap.NewNop()), st
}

func oatmeal() RawEntry {
	return RawEntry{
		PlanDate:    "2026-02-22",
		MealType:    "Breakfast ",
		DishName:    " Oatmeal with Berries",
		Description: "Warm oatmeal",
		Calories:    "350",
		ProteinG:    "12",
		CarbsG:      "55",
		FatG:        "8",
		FiberG:      "6",
	}
}

func TestValidate_OrderOfReasons(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RawEntry)
		want   Reason
	}{
		{"bad date wins over everything", func(r *RawEntry) {
			r.PlanDate = "2026-02-30"
			r.MealType = "brunch"
			r.DishName = ""
			r.Calories = "-1"
		}, ReasonInvalidDate},
		{"meal type before dish", func(r *RawEntry) {
			r.MealType = "brunch"
			r.DishName = "  "
		}, ReasonInvalidMealType},
		{"dish before numbers", func(r *RawEntry) {
			r.DishName = "\t"
			r.FatG = "abc"
		}, ReasonMissingDish},
		{"negative number", func(r *RawEntry) { r.FiberG = "-0.5" }, ReasonInvalidNumber},
		{"nan", func(r *RawEntry) { r.Calories = "NaN" }, ReasonInvalidNumber},
		{"inf", func(r *RawEntry) { r.ProteinG = "+Inf" }, ReasonInvalidNumber},
		{"not iso date", func(r *RawEntry) { r.PlanDate = "22.02.2026" }, ReasonInvalidDate},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := oatmeal()
			tc.mutate(&raw)
			_, verr := Validate(raw)
			require.NotNil(t, verr)
			assert.Equal(t, tc.want, verr.Reason)
		})
	}
}

func TestValidate_Normalizes(t *testing.T) {
	raw := oatmeal()
	raw.CarbsG = ""
	raw.FatG = "  "

	e, verr := Validate(raw)
	require.Nil(t, verr)
	assert.Equal(t, storage.MealBreakfast, e.MealType)
	assert.Equal(t, "Oatmeal with Berries", e.DishName)
	assert.Equal(t, 350.0, e.Calories)
	assert.Equal(t, 0.0, e.CarbsG)
	assert.Equal(t, 0.0, e.FatG)
}

func TestNormalizeScope(t *testing.T) {
	s, verr := NormalizeScope("")
	require.Nil(t, verr)
	assert.Equal(t, storage.ScopeEveryone, s)

	s, verr = NormalizeScope("EVERYONE")
	require.Nil(t, verr)
	assert.Equal(t, storage.ScopeEveryone, s)

	s, verr = NormalizeScope("6F9619FF-8B86-D011-B42D-00C04FC964FF")
	require.Nil(t, verr)
	assert.Equal(t, "6f9619ff-8b86-d011-b42d-00c04fc964ff", s)

	_, verr = NormalizeScope("bob")
	require.NotNil(t, verr)
	assert.Equal(t, ReasonInvalidScope, verr.Reason)
}

func TestAddManualAndEdit(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	res, err := svc.AddManual(ctx, storage.ScopeEveryone, oatmeal())
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeCreated, res.Outcome)
	id := res.Entry.ID

	_, _, err = st.SetAdherence(ctx, id, "u1", storage.StatusPrepared, clock.AtDate("2026-02-22").Now())
	require.NoError(t, err)

	// nutrition-only edit keeps the mark
	cal := 400.0
	res, err = svc.Edit(ctx, id, EditRequest{Calories: &cal})
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeUpdated, res.Outcome)
	assert.Equal(t, 0, res.AdherenceReset)
	_, found, err := st.GetAdherence(ctx, id, "u1")
	require.NoError(t, err)
	assert.True(t, found)

	// renaming the dish resets it
	name := "Porridge"
	res, err = svc.Edit(ctx, id, EditRequest{DishName: &name})
	require.NoError(t, err)
	assert.Equal(t, 1, res.AdherenceReset)

	// bad edit is a validation error
	neg := -1.0
	_, err = svc.Edit(ctx, id, EditRequest{FatG: &neg})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ReasonInvalidNumber, verr.Reason)
}

func TestEdit_MoveReplacesTarget(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.AddManual(ctx, storage.ScopeEveryone, oatmeal())
	require.NoError(t, err)
	lunch := oatmeal()
	lunch.MealType = "lunch"
	lunch.DishName = "Salad"
	b, err := svc.AddManual(ctx, storage.ScopeEveryone, lunch)
	require.NoError(t, err)

	meal := "lunch"
	moved, err := svc.Edit(ctx, a.Entry.ID, EditRequest{MealType: &meal})
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeUpdated, moved.Outcome)
	assert.Equal(t, b.Entry.ID, moved.Entry.ID, "target key keeps its identity")
	assert.Equal(t, "Oatmeal with Berries", moved.Entry.DishName)

	_, found, err := svc.GetByID(ctx, a.Entry.ID)
	require.NoError(t, err)
	assert.False(t, found)

	entries, err := svc.ListRange(ctx, "2026-02-22", "2026-02-22", nil)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

type failingUpserts struct {
	storage.PlanEntriesStorage
}

func (failingUpserts) UpsertPlanEntry(ctx context.Context, entry storage.PlanEntry, now time.Time) (storage.PlanUpsertResult, error) {
	return storage.PlanUpsertResult{}, errors.New("disk full")
}

func TestEdit_FailedMoveKeepsOriginal(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	clk := clock.AtDate("2026-02-22")

	added, err := NewService(st, clk, zap.NewNop()).AddManual(ctx, storage.ScopeEveryone, oatmeal())
	require.NoError(t, err)
	id := added.Entry.ID
	_, _, err = st.SetAdherence(ctx, id, "u1", storage.StatusPrepared, clk.Now())
	require.NoError(t, err)

	svc := NewService(failingUpserts{st}, clk, zap.NewNop())
	date := "2026-02-23"
	_, err = svc.Edit(ctx, id, EditRequest{PlanDate: &date})
	require.Error(t, err)

	kept, found, err := st.GetPlanEntryByID(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2026-02-22", kept.PlanDate)
	_, found, err = st.GetAdherence(ctx, id, "u1")
	require.NoError(t, err)
	assert.True(t, found, "mark survives a failed move")
}

func TestEdit_MoveToFreeKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	added, err := svc.AddManual(ctx, storage.ScopeEveryone, oatmeal())
	require.NoError(t, err)

	date := "2026-02-23"
	moved, err := svc.Edit(ctx, added.Entry.ID, EditRequest{PlanDate: &date})
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeCreated, moved.Outcome)
	assert.NotEqual(t, added.Entry.ID, moved.Entry.ID)

	entries, err := svc.ListRange(ctx, "2026-02-22", "2026-02-23", nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2026-02-23", entries[0].PlanDate)
}

func TestEditMissing(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Edit(context.Background(), uuid.New(), EditRequest{})
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestCopyAndNearest(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	src, err := svc.AddManual(ctx, storage.ScopeEveryone, oatmeal())
	require.NoError(t, err)

	cp, err := svc.Copy(ctx, src.Entry.ID, "2026-02-24")
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeCreated, cp.Outcome)
	assert.NotEqual(t, src.Entry.ID, cp.Entry.ID)
	assert.Equal(t, storage.MealBreakfast, cp.Entry.MealType)

	_, err = svc.Copy(ctx, src.Entry.ID, "tomorrow")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	date, found, err := svc.NearestDate(ctx, "2026-02-23", []string{storage.ScopeEveryone})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2026-02-22", date)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.PlanStats{Entries: 2, Days: 2}, stats)
}

func TestDeleteRange(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, d := range []string{"2026-02-16", "2026-02-18", "2026-02-23"} {
		raw := oatmeal()
		raw.PlanDate = d
		_, err := svc.AddManual(ctx, storage.ScopeEveryone, raw)
		require.NoError(t, err)
	}

	_, err := svc.DeleteRange(ctx, "2026-02-22", "2026-02-16", nil)
	require.Error(t, err)

	n, err := svc.DeleteRange(ctx, "2026-02-16", "2026-02-22", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTemplate(t *testing.T) {
	data, err := Template()
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, Header, rows[0])

	for _, row := range rows[1:] {
		e, verr := Validate(RawEntry{row[0], row[1], row[2], row[3], row[4], row[5], row[6], row[7], row[8]})
		require.Nil(t, verr)
		assert.Equal(t, "2026-02-22", e.PlanDate)
	}
	assert.Equal(t, "Salmon with Vegetables", rows[3][2])
}
