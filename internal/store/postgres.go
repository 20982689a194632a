package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/ecoledger/internal/db"
	"github.com/sells-group/ecoledger/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var pgInsert = mustInsertSQL()

var pgSelect = `SELECT id, fingerprint, batch_id, date, description, quantity::text, unit,
	activity_type, co2e::text, confidence, details, supersedes, created_at FROM activities`

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_activity":       pgInsert,
	"get_activity":          pgSelect + ` WHERE id = $1`,
	"existing_fingerprints": `SELECT fingerprint FROM activities WHERE fingerprint = ANY($1)`,
	"is_superseded":         `SELECT EXISTS (SELECT 1 FROM activities WHERE supersedes = $1)`,
}

func mustInsertSQL() string {
	sql, err := db.InsertIgnoreSQL(db.InsertConfig{
		Table:        "activities",
		Columns:      insertColumns,
		Casts:        map[string]string{"quantity": "numeric", "co2e": "numeric", "details": "jsonb"},
		ConflictKeys: []string{"fingerprint"},
		Returning:    []string{"id"},
	})
	if err != nil {
		panic(err)
	}
	return sql
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS activities (
	id            BIGSERIAL PRIMARY KEY,
	fingerprint   TEXT NOT NULL UNIQUE,
	batch_id      TEXT NOT NULL,
	date          DATE NOT NULL,
	description   TEXT NOT NULL,
	quantity      NUMERIC NOT NULL CHECK (quantity >= 0),
	unit          TEXT NOT NULL,
	activity_type TEXT NOT NULL,
	co2e          NUMERIC NOT NULL,
	confidence    TEXT NOT NULL CHECK (confidence IN ('High', 'Medium', 'Low')),
	details       JSONB NOT NULL,
	supersedes    BIGINT UNIQUE REFERENCES activities(id),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_activities_date ON activities(date);
CREATE INDEX IF NOT EXISTS idx_activities_type ON activities(activity_type);
CREATE INDEX IF NOT EXISTS idx_activities_batch ON activities(batch_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) AppendActivities(ctx context.Context, entries []model.Activity) (*AppendResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin append")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res := &AppendResult{}
	for i, a := range entries {
		details, err := marshalDetails(a.Details)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: append")
		}

		var id int64
		err = tx.QueryRow(ctx, pgInsert,
			string(a.Fingerprint), a.BatchID, a.Date.UTC(), a.Description,
			a.Quantity.String(), a.Unit, a.ActivityType, a.CO2e.String(),
			string(a.Confidence), details, a.Supersedes, a.CreatedAt.UTC(),
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			res.Duplicates = append(res.Duplicates, i)
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: insert activity %s", a.Fingerprint)
		}
		a.ID = id
		res.Inserted = append(res.Inserted, a)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit append")
	}
	return res, nil
}

func (s *PostgresStore) GetActivity(ctx context.Context, id int64) (*model.Activity, error) {
	a, err := scanPostgresActivity(s.pool.QueryRow(ctx, pgSelect+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "postgres: get activity %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get activity %d", id)
	}
	return a, nil
}

func (s *PostgresStore) ListActivities(ctx context.Context, filter ActivityFilter) ([]model.Activity, error) {
	where, args := whereClause(filter, dollar, func(t time.Time) any { return t.UTC() })
	page, pageArgs := pageClause(filter, dollar, len(args), "ALL")
	query := pgSelect + where + orderClause(filter) + page
	args = append(args, pageArgs...)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list activities")
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		a, err := scanPostgresActivity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list activities")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list activities iterate")
}

func (s *PostgresStore) CountActivities(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activities`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count activities")
}

func (s *PostgresStore) ExistingFingerprints(ctx context.Context, fps []model.Fingerprint) (map[model.Fingerprint]bool, error) {
	found := make(map[model.Fingerprint]bool, len(fps))
	if len(fps) == 0 {
		return found, nil
	}
	keys := make([]string, len(fps))
	for i, fp := range fps {
		keys[i] = string(fp)
	}

	rows, err := s.pool.Query(ctx, `SELECT fingerprint FROM activities WHERE fingerprint = ANY($1)`, keys)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: existing fingerprints")
	}
	defer rows.Close()

	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fingerprint")
		}
		found[model.Fingerprint(fp)] = true
	}
	return found, eris.Wrap(rows.Err(), "postgres: existing fingerprints iterate")
}

func (s *PostgresStore) IsSuperseded(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM activities WHERE supersedes = $1)`, id,
	).Scan(&exists)
	return exists, eris.Wrapf(err, "postgres: is superseded %d", id)
}

func scanPostgresActivity(row pgx.Row) (*model.Activity, error) {
	var (
		a                  model.Activity
		fp, qty, co2e, lvl string
		details            []byte
	)
	err := row.Scan(&a.ID, &fp, &a.BatchID, &a.Date, &a.Description, &qty, &a.Unit,
		&a.ActivityType, &co2e, &lvl, &details, &a.Supersedes, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	a.Fingerprint = model.Fingerprint(fp)
	a.Confidence = model.Level(lvl)
	a.Date = a.Date.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	if a.Quantity, err = decimal.NewFromString(strings.TrimSpace(qty)); err != nil {
		return nil, eris.Wrap(err, "parse quantity")
	}
	if a.CO2e, err = decimal.NewFromString(strings.TrimSpace(co2e)); err != nil {
		return nil, eris.Wrap(err, "parse co2e")
	}
	if err := unmarshalDetails(details, &a.Details); err != nil {
		return nil, err
	}
	return &a, nil
}
