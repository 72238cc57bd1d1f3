package importer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fdg312/meal-tracker/internal/blob"
	"github.com/fdg312/meal-tracker/internal/clock"
	"github.com/fdg312/meal-tracker/internal/planentries"
	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/fdg312/meal-tracker/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc     *Service
	store   *memory.MemoryStorage
	archive *blob.MemStore
	clock   *clock.Fixed
}

func newFixture(t *testing.T, wrap func(storage.PlanEntriesStorage) storage.PlanEntriesStorage) fixture {
	t.Helper()
	st := memory.New()
	clk := clock.AtDate("2026-02-22")
	var plans storage.PlanEntriesStorage = st
	if wrap != nil {
		plans = wrap(st)
	}
	archive := blob.NewMemStore()
	entries := planentries.NewService(plans, clk, zap.NewNop())
	return fixture{
		svc:     NewService(entries, st, archive, clk, zap.NewNop()),
		store:   st,
		archive: archive,
		clock:   clk,
	}
}

func csvFile(lines ...string) []byte {
	return []byte(header + strings.Join(lines, "\n") + "\n")
}

func (f fixture) run(t *testing.T, data []byte, dryRun bool) Report {
	t.Helper()
	report, err := f.svc.Import(context.Background(), Request{Data: data, Filename: "plan.csv", DryRun: dryRun})
	require.NoError(t, err)
	return report
}

func (f fixture) all(t *testing.T) []storage.PlanEntry {
	t.Helper()
	entries, err := f.store.ListPlanEntries(context.Background(), "2000-01-01", "2100-01-01", nil)
	require.NoError(t, err)
	return entries
}

func TestImport_SingleRow(t *testing.T) {
	f := newFixture(t, nil)

	report := f.run(t, csvFile("2026-02-22,breakfast,Oatmeal with Berries,Warm oatmeal,350,12,55,8,6"), false)
	assert.Equal(t, 1, report.Accepted)
	assert.Empty(t, report.Rejected)
	assert.Empty(t, report.Replaced)
	assert.Equal(t, Effects{Created: 1}, report.Effects)

	entries := f.all(t)
	require.Len(t, entries, 1)
	assert.Equal(t, storage.ScopeEveryone, entries[0].Scope)
	assert.Equal(t, 350.0, entries[0].Calories)
}

func TestImport_InvalidMealTypeLeavesStoreUnchanged(t *testing.T) {
	f := newFixture(t, nil)

	report := f.run(t, csvFile("2026-02-22,brunch,Pancakes,,,,,,"), false)
	assert.Equal(t, 0, report.Accepted)
	assert.Equal(t, []RowError{{Row: 2, Reason: ReasonInvalidMealType, Field: "meal_type", Value: "brunch"}}, report.Rejected)
	assert.Empty(t, f.all(t))
	assert.Empty(t, f.archive.Keys("imports/"), "nothing accepted, nothing archived")
}

func TestImport_ReasonsPerRow(t *testing.T) {
	f := newFixture(t, nil)

	report := f.run(t, csvFile(
		"2026-02-30,lunch,Soup,,,,,,",
		"2026-02-22,LUNCH ,Soup,,,,,,",
		"2026-02-22,dinner,  ,,,,,,",
		"2026-02-22,dinner,Fish,,-5,,,,",
		"2026-02-22,dinner,Fish,,abc,,,,",
	), false)

	reasons := make(map[int]Reason)
	for _, r := range report.Rejected {
		reasons[r.Row] = r.Reason
	}
	assert.Equal(t, map[int]Reason{
		2: ReasonInvalidDate,
		4: ReasonMissingDish,
		5: ReasonInvalidNumber,
		6: ReasonInvalidNumber,
	}, reasons)
	assert.Equal(t, 1, report.Accepted)
}

func TestImport_StrayQuoteDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t, nil)

	report := f.run(t, csvFile(
		"2026-02-22,breakfast,Oatmeal with Berries,Warm oatmeal,350,12,55,8,6",
		"2026-02-22,lunch,6\" Turkey Sub,Toasted,410,25,45,12,3",
		"2026-02-22,dinner,Salmon with Vegetables,,480,38,20,28,5",
		"2026-02-23,lu\"nch,Soup,,,,,,",
	), false)

	assert.Equal(t, 3, report.Accepted)
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, RowError{Row: 5, Reason: ReasonInvalidMealType, Field: "meal_type", Value: `lu"nch`}, report.Rejected[0])

	entries := f.all(t)
	require.Len(t, entries, 3)
	assert.Equal(t, `6" Turkey Sub`, entries[1].DishName)
}

func TestImport_MalformedRowIsRejected(t *testing.T) {
	rows := []RawRow{
		{Row: 2, Entry: planentries.RawEntry{PlanDate: "2026-02-22", MealType: "lunch", DishName: "Soup"}},
		{Row: 3, Malformed: "bare \" in non-quoted-field"},
	}
	report := Report{Rejected: []RowError{}}
	survivors := validateRows(rows, "", &report)

	assert.Len(t, survivors, 1)
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, ReasonMalformedRow, report.Rejected[0].Reason)
	assert.Equal(t, 3, report.Rejected[0].Row)
}

func TestImport_LastRowWins(t *testing.T) {
	f := newFixture(t, nil)

	report := f.run(t, csvFile(
		"2026-02-22,lunch,First,,100,,,,",
		"2026-02-22,dinner,Fish,,,,,,",
		"2026-02-22,lunch,Second,,200,,,,",
		"2026-02-22,Lunch,Third,,300,,,,",
	), false)

	assert.Equal(t, 2, report.Accepted)
	assert.Equal(t, []ReplacedRow{{Row: 2, ReplacedBy: 5}, {Row: 4, ReplacedBy: 5}}, report.Replaced)

	entries := f.all(t)
	require.Len(t, entries, 2)
	assert.Equal(t, "Third", entries[0].DishName)
	assert.Equal(t, 300.0, entries[0].Calories)
}

func TestImport_IdempotentReimport(t *testing.T) {
	f := newFixture(t, nil)
	data := csvFile(
		"2026-02-22,breakfast,Oatmeal,Warm,350,12,55,8,6",
		"2026-02-22,breakfast,Oatmeal,Warm,350,12,55,8,6",
		"2026-02-23,lunch,Salad,,420,35,15,22,4",
	)

	first := f.run(t, data, false)
	before := f.all(t)

	second := f.run(t, data, false)
	assert.Equal(t, first.Accepted, second.Accepted)
	assert.Equal(t, first.Replaced, second.Replaced)
	assert.Equal(t, Effects{Unchanged: 2}, second.Effects)
	assert.Equal(t, before, f.all(t))
}

func TestImport_NutritionChangeKeepsStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.run(t, csvFile("2026-02-22,breakfast,Oatmeal with Berries,Warm oatmeal,350,12,55,8,6"), false)
	entry := f.all(t)[0]
	_, _, err := f.store.SetAdherence(ctx, entry.ID, "u1", storage.StatusPrepared, f.clock.Now())
	require.NoError(t, err)

	report := f.run(t, csvFile("2026-02-22,breakfast,Oatmeal with Berries,Warm oatmeal,400,12,55,8,6"), false)
	assert.Equal(t, Effects{Updated: 1}, report.Effects)

	rec, found, err := f.store.GetAdherence(ctx, entry.ID, "u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, storage.StatusPrepared, rec.Status)

	report = f.run(t, csvFile("2026-02-22,breakfast,Granola,Warm oatmeal,400,12,55,8,6"), false)
	assert.Equal(t, Effects{Updated: 1, DishChanged: 1, AdherenceReset: 1}, report.Effects)
	_, found, err = f.store.GetAdherence(ctx, entry.ID, "u1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestImport_DryRunWritesNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.run(t, csvFile("2026-02-22,breakfast,Oatmeal,,350,,,,"), false)
	before := f.all(t)
	archived := len(f.archive.Keys("imports/"))

	report := f.run(t, csvFile(
		"2026-02-22,breakfast,Oatmeal,,350,,,,",
		"2026-02-22,lunch,Salad,,,,,,",
		"2026-02-22,dinner,Fish,,,,,,",
		"2026-02-22,dinner,Steak,,,,,,",
		"bad,dinner,Fish,,,,,,",
	), true)

	assert.True(t, report.DryRun)
	assert.Equal(t, 3, report.Accepted)
	assert.Len(t, report.Replaced, 1)
	assert.Len(t, report.Rejected, 1)
	assert.Equal(t, Effects{Created: 2, Unchanged: 1}, report.Effects)
	assert.Empty(t, report.ArchiveKey)

	assert.Equal(t, before, f.all(t))
	assert.Len(t, f.archive.Keys("imports/"), archived)
}

func TestImport_DryRunPreviewsDishChange(t *testing.T) {
	f := newFixture(t, nil)
	f.run(t, csvFile("2026-02-22,breakfast,Oatmeal,,350,,,,"), false)

	report := f.run(t, csvFile("2026-02-22,breakfast,Porridge,,350,,,,"), true)
	assert.Equal(t, Effects{Updated: 1, DishChanged: 1}, report.Effects)
	assert.Equal(t, "Oatmeal", f.all(t)[0].DishName)
}

func TestImport_ArchivesCommittedUpload(t *testing.T) {
	f := newFixture(t, nil)

	report := f.run(t, csvFile("2026-02-22,breakfast,Oatmeal,,350,,,,"), false)
	require.NotEmpty(t, report.ArchiveKey)
	assert.True(t, strings.HasPrefix(report.ArchiveKey, "imports/everyone/20260222T120000Z_"))

	data, err := f.archive.GetObject(context.Background(), report.ArchiveKey)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Oatmeal")
}

func TestImport_Scope(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Import(ctx, Request{Data: csvFile("2026-02-22,lunch,Soup,,,,,,"), Filename: "p.csv", Scope: "bob"})
	var verr *planentries.ValidationError
	require.ErrorAs(t, err, &verr)

	pid := "6f9619ff-8b86-d011-b42d-00c04fc964ff"
	report, err := f.svc.Import(ctx, Request{Data: csvFile("2026-02-22,lunch,Soup,,,,,,"), Filename: "p.csv", Scope: pid})
	require.NoError(t, err)
	assert.Equal(t, pid, report.Scope)

	// a member plan and the household plan coexist for the same date and meal
	f.run(t, csvFile("2026-02-22,lunch,Salad,,,,,,"), false)
	assert.Len(t, f.all(t), 2)
}

type flakyPlans struct {
	storage.PlanEntriesStorage
	failDish string
}

func (s flakyPlans) UpsertPlanEntry(ctx context.Context, e storage.PlanEntry, now time.Time) (storage.PlanUpsertResult, error) {
	if e.DishName == s.failDish {
		return storage.PlanUpsertResult{}, errors.New("disk full")
	}
	return s.PlanEntriesStorage.UpsertPlanEntry(ctx, e, now)
}

func TestImport_StorageErrorIsPerRow(t *testing.T) {
	f := newFixture(t, func(st storage.PlanEntriesStorage) storage.PlanEntriesStorage {
		return flakyPlans{PlanEntriesStorage: st, failDish: "Soup"}
	})

	report := f.run(t, csvFile(
		"2026-02-22,breakfast,Oatmeal,,,,,,",
		"2026-02-22,lunch,Soup,,,,,,",
		"2026-02-22,dinner,brunch?,,-1,,,,",
		"2026-02-22,evening_snack,Tea,,,,,,",
	), false)

	assert.Equal(t, 2, report.Accepted)
	assert.Equal(t, []RowError{
		{Row: 3, Reason: ReasonStorageError},
		{Row: 4, Reason: ReasonInvalidNumber, Field: "calories", Value: "-1"},
	}, report.Rejected)
	assert.Len(t, f.all(t), 2)
}

func TestImport_FileErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Import(ctx, Request{Data: []byte("a,b\n1,2\n"), Filename: "plan.csv"})
	assert.ErrorIs(t, err, ErrInvalidHeader)

	_, err = f.svc.Import(ctx, Request{Data: []byte("x"), Filename: "plan.pdf"})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestImport_AtMostOneEntryPerKey(t *testing.T) {
	f := newFixture(t, nil)
	batches := [][]byte{
		csvFile("2026-02-22,lunch,A,,,,,,", "2026-02-22,lunch,B,,,,,,"),
		csvFile("2026-02-22,lunch,C,,,,,,", "2026-02-22,dinner,D,,,,,,"),
		csvFile("2026-02-22,LUNCH,A,,,,,,"),
	}
	for _, b := range batches {
		f.run(t, b, false)
	}

	seen := make(map[storage.PlanKey]bool)
	for _, e := range f.all(t) {
		assert.False(t, seen[e.Key()], "duplicate key %v", e.Key())
		seen[e.Key()] = true
	}
	assert.Len(t, seen, 2)
}
