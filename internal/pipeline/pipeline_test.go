package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ecoledger/internal/calc"
	"github.com/sells-group/ecoledger/internal/classify"
	"github.com/sells-group/ecoledger/internal/factor"
	"github.com/sells-group/ecoledger/internal/ledger"
	"github.com/sells-group/ecoledger/internal/model"
	"github.com/sells-group/ecoledger/internal/normalize"
	"github.com/sells-group/ecoledger/internal/store"
)

type fixture struct {
	pipeline *Pipeline
	ledger   *ledger.Ledger
	table    *factor.Table
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	tbl, err := factor.Default()
	require.NoError(t, err)

	l := ledger.New(st)
	p := New(normalize.New(tbl, normalize.Options{}), classify.New(tbl), calc.NewEngine(tbl), l, Options{Workers: 4})
	return &fixture{pipeline: p, ledger: l, table: tbl}
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	n, err := f.ledger.Count(context.Background())
	require.NoError(t, err)
	return n
}

const header = "date,description,quantity,unit\n"

func TestIngest_DuplicateRowsInOneFile(t *testing.T) {
	f := newFixture(t)
	csv := header +
		"2024-01-01,Diesel generator fuel,100,L\n" +
		"2024-01-01,Diesel generator fuel,100,L\n"

	res, err := f.pipeline.Ingest(context.Background(), []byte(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Committed)
	assert.Equal(t, 1, res.DuplicatesSkipped)
	assert.Empty(t, res.RowErrors)
	require.Len(t, res.IDs, 1)

	a, err := f.ledger.Get(context.Background(), res.IDs[0])
	require.NoError(t, err)
	assert.Equal(t, "Energy", a.ActivityType)
	assert.Equal(t, model.LevelHigh, a.Confidence)

	fac, ok := f.table.Factor("diesel_stationary")
	require.True(t, ok)
	assert.True(t, a.CO2e.Equal(a.Quantity.Mul(fac.Value)))
	assert.NoError(t, calc.Verify(*a))
	assert.Equal(t, res.BatchID, a.BatchID)
}

func TestIngest_ReuploadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	csv := header +
		"2024-01-01,Electricity bill,1000,kWh\n" +
		"2024-01-02,Truck delivery,120,km\n" +
		"2024-01-03,Office water,12,m3\n"

	first, err := f.pipeline.Ingest(context.Background(), []byte(csv))
	require.NoError(t, err)
	assert.Equal(t, 3, first.Committed)
	size := f.count(t)

	second, err := f.pipeline.Ingest(context.Background(), []byte(csv))
	require.NoError(t, err)
	assert.Zero(t, second.Committed)
	assert.Equal(t, 3, second.DuplicatesSkipped)
	assert.Equal(t, size, f.count(t))
	assert.NotEqual(t, first.BatchID, second.BatchID)
}

func TestIngest_NormalizationVariantsDeduplicate(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Ingest(context.Background(), []byte(header+"2024-01-01,Electricity bill,1000,kWh\n"))
	require.NoError(t, err)

	res, err := f.pipeline.Ingest(context.Background(), []byte(header+"01/01/2024,  ELECTRICITY   bill ,\"1,000.00\",KWH\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.DuplicatesSkipped)
	assert.Equal(t, 1, f.count(t))
}

func TestIngest_BadQuantityDoesNotBlockBatch(t *testing.T) {
	f := newFixture(t)
	csv := header +
		"2024-01-01,Electricity bill,1000,kWh\n" +
		"2024-01-02,Electricity bill,abc,kWh\n" +
		"2024-01-03,Electricity bill,900,kWh\n"

	res, err := f.pipeline.Ingest(context.Background(), []byte(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Committed)
	require.Len(t, res.RowErrors, 1)
	assert.Equal(t, 2, res.RowErrors[0].Row)
	assert.Contains(t, res.RowErrors[0].Reason, "invalid quantity")
}

func TestIngest_SchemaErrorCommitsNothing(t *testing.T) {
	f := newFixture(t)
	csv := "date,description,amount\n2024-01-01,Electricity bill,1000\n"

	_, err := f.pipeline.Ingest(context.Background(), []byte(csv))
	var schemaErr *model.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, []string{"quantity", "unit"}, schemaErr.Missing)
	assert.Zero(t, f.count(t))
}

func TestIngest_FallbackIsLowConfidence(t *testing.T) {
	f := newFixture(t)
	res, err := f.pipeline.Ingest(context.Background(), []byte(header+"2024-01-01,Misc sundries,3,item\n"))
	require.NoError(t, err)
	require.Len(t, res.IDs, 1)

	a, err := f.ledger.Get(context.Background(), res.IDs[0])
	require.NoError(t, err)
	assert.Equal(t, factor.CategoryOther, a.ActivityType)
	assert.Equal(t, model.LevelLow, a.Confidence)
	assert.Equal(t, model.MethodFallback, a.Details.Method)
}

func TestIngest_KeepsInputOrder(t *testing.T) {
	f := newFixture(t)
	var b strings.Builder
	b.WriteString(header)
	for i := range 50 {
		b.WriteString("2024-01-01,Electricity bill,")
		b.WriteString(strings.Repeat("1", i%5+1))
		b.WriteString(string(rune('0' + i%10)))
		b.WriteString(",kWh\n")
	}

	res, err := f.pipeline.Ingest(context.Background(), []byte(b.String()))
	require.NoError(t, err)
	for i := 1; i < len(res.IDs); i++ {
		assert.Greater(t, res.IDs[i], res.IDs[i-1])
	}
	assert.Equal(t, 50, res.Committed+res.DuplicatesSkipped)
}

func TestIngest_ConcurrentUploadsOfSameFile(t *testing.T) {
	f := newFixture(t)
	csv := header +
		"2024-01-01,Electricity bill,1000,kWh\n" +
		"2024-01-02,Diesel generator fuel,100,L\n" +
		"2024-01-03,Flight to Berlin,900,km\n"

	const uploads = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
	)
	for range uploads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.pipeline.Ingest(context.Background(), []byte(csv))
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, 3, res.Committed+res.DuplicatesSkipped)
			mu.Lock()
			committed += res.Committed
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, committed)
	assert.Equal(t, 3, f.count(t))
}

func TestIngest_EmptyBody(t *testing.T) {
	f := newFixture(t)
	res, err := f.pipeline.Ingest(context.Background(), []byte(header))
	require.NoError(t, err)
	assert.Zero(t, res.Committed)
	assert.Empty(t, res.RowErrors)
	assert.NotNil(t, res.IDs)
}

func TestIngest_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.Ingest(ctx, []byte(header+"2024-01-01,Electricity bill,1000,kWh\n"))
	require.Error(t, err)
	assert.Zero(t, f.count(t))
}

func TestCorrect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.pipeline.Ingest(ctx, []byte(header+"2024-01-01,Electricity bill,1000,kWh\n"))
	require.NoError(t, err)

	rec, err := normalize.New(f.table, normalize.Options{}).Record("2024-01-01", "Electricity bill", "1100", "kWh")
	require.NoError(t, err)
	entry, err := f.pipeline.Correct(rec)
	require.NoError(t, err)

	fixed, err := f.ledger.Supersede(ctx, res.IDs[0], entry)
	require.NoError(t, err)
	assert.Equal(t, res.IDs[0], *fixed.Supersedes)
	assert.Equal(t, "423.5", fixed.CO2e.String())
}
