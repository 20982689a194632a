package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ecoledger/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var activityRowColumns = []string{
	"id", "fingerprint", "batch_id", "date", "description", "quantity", "unit",
	"activity_type", "co2e", "confidence", "details", "supersedes", "created_at",
}

func activityRow(id int64, a model.Activity) []any {
	details, err := marshalDetails(a.Details)
	if err != nil {
		panic(err)
	}
	return []any{
		id, string(a.Fingerprint), a.BatchID, a.Date, a.Description, a.Quantity.String(), a.Unit,
		a.ActivityType, a.CO2e.String(), string(a.Confidence), details, a.Supersedes, a.CreatedAt,
	}
}

func TestPostgresStore_InsertSQL(t *testing.T) {
	assert.Contains(t, pgInsert, `ON CONFLICT ("fingerprint") DO NOTHING RETURNING "id"`)
	assert.Contains(t, pgInsert, `$5::numeric`)
	assert.Contains(t, pgInsert, `$10::jsonb`)
}

func TestPostgresStore_AppendActivities(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	a := testActivity("fp1", "2024-01-15", "Energy", "385")
	b := testActivity("fp2", "2024-01-16", "Energy", "10")

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "activities"`).
		WithArgs("fp1", "batch-1", a.Date, a.Description, "1000", "kWh", "Energy", "385",
			"High", pgxmock.AnyArg(), pgxmock.AnyArg(), a.CreatedAt).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery(`INSERT INTO "activities"`).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectCommit()

	res, err := s.AppendActivities(context.Background(), []model.Activity{a, b})
	require.NoError(t, err)
	require.Len(t, res.Inserted, 1)
	assert.Equal(t, int64(7), res.Inserted[0].ID)
	assert.Equal(t, []int{1}, res.Duplicates)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendActivities_RollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "activities"`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := s.AppendActivities(context.Background(), []model.Activity{testActivity("fp1", "2024-01-15", "Energy", "1")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert activity fp1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendActivities_BeginError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("db down"))

	_, err := s.AppendActivities(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin append")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetActivity(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	a := testActivity("fp1", "2024-01-15", "Energy", "385.125")

	mock.ExpectQuery(`SELECT id, fingerprint, .* FROM activities WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows(activityRowColumns).AddRow(activityRow(3, a)...))

	got, err := s.GetActivity(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.ID)
	assert.Equal(t, "385.125", got.CO2e.String())
	assert.Equal(t, "electricity", got.Details.FactorKey)
	assert.Equal(t, model.LevelHigh, got.Confidence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetActivity_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, fingerprint, .* FROM activities WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetActivity(context.Background(), 99)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Contains(t, err.Error(), "get activity 99")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListActivities(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	a := testActivity("fp1", "2024-01-15", "Energy", "1")
	b := testActivity("fp2", "2024-01-16", "Energy", "2")
	from := day("2024-01-01")

	mock.ExpectQuery(`FROM activities WHERE date >= \$1 AND activity_type = \$2 AND id NOT IN .* ORDER BY date DESC, id DESC$`).
		WithArgs(from, "Energy").
		WillReturnRows(pgxmock.NewRows(activityRowColumns).
			AddRow(activityRow(2, b)...).
			AddRow(activityRow(1, a)...))

	got, err := s.ListActivities(context.Background(), ActivityFilter{From: &from, ActivityType: "Energy", Desc: true})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.Fingerprint("fp2"), got[0].Fingerprint)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListActivities_Paged(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	a := testActivity("fp1", "2024-01-15", "Energy", "1")

	mock.ExpectQuery(`ORDER BY date ASC, id ASC LIMIT \$1 OFFSET \$2`).
		WithArgs(10, 20).
		WillReturnRows(pgxmock.NewRows(activityRowColumns).AddRow(activityRow(21, a)...))

	got, err := s.ListActivities(context.Background(), ActivityFilter{Limit: 10, Offset: 20})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListActivities_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM activities`).WillReturnError(errors.New("boom"))

	_, err := s.ListActivities(context.Background(), ActivityFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list activities")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExistingFingerprints(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT fingerprint FROM activities WHERE fingerprint = ANY\(\$1\)`).
		WithArgs([]string{"a", "b"}).
		WillReturnRows(pgxmock.NewRows([]string{"fingerprint"}).AddRow("b"))

	found, err := s.ExistingFingerprints(context.Background(), []model.Fingerprint{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[model.Fingerprint]bool{"b": true}, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExistingFingerprints_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	found, err := s.ExistingFingerprints(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_IsSuperseded(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.IsSuperseded(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountActivities(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM activities`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(12))

	n, err := s.CountActivities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS activities`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CloseWithoutPool(t *testing.T) {
	s := &PostgresStore{}
	assert.NoError(t, s.Close())
}
