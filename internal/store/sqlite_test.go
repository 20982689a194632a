package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ecoledger/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testActivity(fp, date, typ string, co2e string) model.Activity {
	return model.Activity{
		Fingerprint:  model.Fingerprint(fp),
		BatchID:      "batch-1",
		Date:         day(date),
		Description:  "Electricity bill " + fp,
		Quantity:     decimal.RequireFromString("1000"),
		Unit:         "kWh",
		ActivityType: typ,
		CO2e:         decimal.RequireFromString(co2e),
		Confidence:   model.LevelHigh,
		Details: model.Details{
			EmissionFactor:   decimal.RequireFromString("0.385"),
			FactorKey:        "electricity",
			FactorSource:     "EPA eGRID",
			UnitApplied:      "kWh",
			ConversionFactor: decimal.NewFromInt(1),
			Formula:          "1000 kWh × 0.385 kgCO2e/kWh = 385 kgCO2e [EPA eGRID]",
			Method:           model.MethodKeyword,
		},
		CreatedAt: time.Date(2024, 2, 1, 12, 0, 0, 123, time.UTC),
	}
}

func TestSQLite_AppendAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := testActivity("fp1", "2024-01-15", "Energy", "385.0001")
	res, err := st.AppendActivities(ctx, []model.Activity{a})
	require.NoError(t, err)
	require.Len(t, res.Inserted, 1)
	assert.Empty(t, res.Duplicates)

	id := res.Inserted[0].ID
	assert.Positive(t, id)

	got, err := st.GetActivity(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint, got.Fingerprint)
	assert.True(t, a.Date.Equal(got.Date))
	assert.Equal(t, "385.0001", got.CO2e.String())
	assert.True(t, a.Quantity.Equal(got.Quantity))
	assert.Equal(t, a.Details.Formula, got.Details.Formula)
	assert.True(t, a.Details.EmissionFactor.Equal(got.Details.EmissionFactor))
	assert.Equal(t, model.LevelHigh, got.Confidence)
	assert.True(t, a.CreatedAt.Equal(got.CreatedAt))
	assert.Nil(t, got.Supersedes)
}

func TestSQLite_GetActivity_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetActivity(context.Background(), 42)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSQLite_Append_SkipsDuplicates(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.AppendActivities(ctx, []model.Activity{testActivity("fp1", "2024-01-15", "Energy", "1")})
	require.NoError(t, err)

	res, err := st.AppendActivities(ctx, []model.Activity{
		testActivity("fp2", "2024-01-16", "Energy", "2"),
		testActivity("fp1", "2024-01-15", "Energy", "1"),
		testActivity("fp2", "2024-01-16", "Energy", "2"),
	})
	require.NoError(t, err)
	assert.Len(t, res.Inserted, 1)
	assert.Equal(t, []int{1, 2}, res.Duplicates)

	n, err := st.CountActivities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLite_IDsMonotonic(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var last int64
	for i := range 5 {
		res, err := st.AppendActivities(ctx, []model.Activity{
			testActivity(fmt.Sprintf("fp%d", i), "2024-01-01", "Energy", "1"),
		})
		require.NoError(t, err)
		require.Len(t, res.Inserted, 1)
		assert.Greater(t, res.Inserted[0].ID, last)
		last = res.Inserted[0].ID
	}
}

func TestSQLite_ListActivities(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.AppendActivities(ctx, []model.Activity{
		testActivity("a", "2024-03-01", "Energy", "1"),
		testActivity("b", "2024-01-01", "Transport", "2"),
		testActivity("c", "2024-02-01", "Energy", "3"),
		testActivity("d", "2024-02-01", "Water", "4"),
	})
	require.NoError(t, err)

	all, err := st.ListActivities(ctx, ActivityFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []model.Fingerprint{"b", "c", "d", "a"}, fingerprints(all))

	desc, err := st.ListActivities(ctx, ActivityFilter{Desc: true})
	require.NoError(t, err)
	assert.Equal(t, []model.Fingerprint{"a", "d", "c", "b"}, fingerprints(desc))

	from, to := day("2024-02-01"), day("2024-02-29")
	window, err := st.ListActivities(ctx, ActivityFilter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Equal(t, []model.Fingerprint{"c", "d"}, fingerprints(window))

	energy, err := st.ListActivities(ctx, ActivityFilter{ActivityType: "Energy"})
	require.NoError(t, err)
	assert.Equal(t, []model.Fingerprint{"c", "a"}, fingerprints(energy))

	page, err := st.ListActivities(ctx, ActivityFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []model.Fingerprint{"c", "d"}, fingerprints(page))
}

func TestSQLite_Supersedes(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	res, err := st.AppendActivities(ctx, []model.Activity{testActivity("orig", "2024-01-01", "Energy", "10")})
	require.NoError(t, err)
	origID := res.Inserted[0].ID

	superseded, err := st.IsSuperseded(ctx, origID)
	require.NoError(t, err)
	assert.False(t, superseded)

	fix := testActivity("fix", "2024-01-01", "Energy", "12")
	fix.Supersedes = &origID
	res, err = st.AppendActivities(ctx, []model.Activity{fix})
	require.NoError(t, err)
	require.Len(t, res.Inserted, 1)

	superseded, err = st.IsSuperseded(ctx, origID)
	require.NoError(t, err)
	assert.True(t, superseded)

	current, err := st.ListActivities(ctx, ActivityFilter{})
	require.NoError(t, err)
	assert.Equal(t, []model.Fingerprint{"fix"}, fingerprints(current))

	history, err := st.ListActivities(ctx, ActivityFilter{IncludeSuperseded: true})
	require.NoError(t, err)
	assert.Equal(t, []model.Fingerprint{"orig", "fix"}, fingerprints(history))

	got, err := st.GetActivity(ctx, res.Inserted[0].ID)
	require.NoError(t, err)
	require.NotNil(t, got.Supersedes)
	assert.Equal(t, origID, *got.Supersedes)

	// Only one correction may reference an entry.
	again := testActivity("fix2", "2024-01-01", "Energy", "13")
	again.Supersedes = &origID
	_, err = st.AppendActivities(ctx, []model.Activity{again})
	require.Error(t, err)
}

func TestSQLite_Append_RollsBackOnError(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	missing := int64(999)
	bad := testActivity("bad", "2024-01-01", "Energy", "1")
	bad.Supersedes = &missing

	_, err := st.AppendActivities(ctx, []model.Activity{
		testActivity("good", "2024-01-01", "Energy", "1"),
		bad,
	})
	require.Error(t, err)

	n, err := st.CountActivities(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_ExistingFingerprints(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var entries []model.Activity
	var fps []model.Fingerprint
	for i := range 1200 {
		fp := fmt.Sprintf("fp-%04d", i)
		fps = append(fps, model.Fingerprint(fp))
		if i%2 == 0 {
			entries = append(entries, testActivity(fp, "2024-01-01", "Energy", "1"))
		}
	}
	_, err := st.AppendActivities(ctx, entries)
	require.NoError(t, err)

	found, err := st.ExistingFingerprints(ctx, fps)
	require.NoError(t, err)
	assert.Len(t, found, 600)
	assert.True(t, found["fp-0000"])
	assert.False(t, found["fp-0001"])

	none, err := st.ExistingFingerprints(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Ping(context.Background()))
}

func fingerprints(as []model.Activity) []model.Fingerprint {
	out := make([]model.Fingerprint, len(as))
	for i, a := range as {
		out[i] = a.Fingerprint
	}
	return out
}
