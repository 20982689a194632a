package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/sells-group/ecoledger/internal/model"
)

// sqliteInChunk bounds the number of bind parameters per IN list.
const sqliteInChunk = 500

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection keeps pragmas and transactions on one handle.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Decimals are stored as TEXT so SQLite's numeric affinity never rounds them
// through a float.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS activities (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	fingerprint   TEXT NOT NULL UNIQUE,
	batch_id      TEXT NOT NULL,
	date          TEXT NOT NULL,
	description   TEXT NOT NULL,
	quantity      TEXT NOT NULL,
	unit          TEXT NOT NULL,
	activity_type TEXT NOT NULL,
	co2e          TEXT NOT NULL,
	confidence    TEXT NOT NULL,
	details       TEXT NOT NULL,
	supersedes    INTEGER UNIQUE REFERENCES activities(id),
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activities_date ON activities(date);
CREATE INDEX IF NOT EXISTS idx_activities_type ON activities(activity_type);
CREATE INDEX IF NOT EXISTS idx_activities_batch ON activities(batch_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

var sqliteInsert = `INSERT INTO activities (` + strings.Join(insertColumns, ", ") + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(fingerprint) DO NOTHING
	RETURNING id`

var sqliteSelect = `SELECT ` + strings.Join(activityColumns, ", ") + ` FROM activities`

func (s *SQLiteStore) AppendActivities(ctx context.Context, entries []model.Activity) (*AppendResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin append")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteInsert)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	res := &AppendResult{}
	for i, a := range entries {
		details, err := marshalDetails(a.Details)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: append")
		}
		var supersedes sql.NullInt64
		if a.Supersedes != nil {
			supersedes = sql.NullInt64{Int64: *a.Supersedes, Valid: true}
		}

		var id int64
		err = stmt.QueryRowContext(ctx,
			string(a.Fingerprint), a.BatchID, a.Date.UTC().Format(model.DateLayout),
			a.Description, a.Quantity.String(), a.Unit, a.ActivityType,
			a.CO2e.String(), string(a.Confidence), string(details), supersedes,
			a.CreatedAt.UTC().Format(time.RFC3339Nano),
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			res.Duplicates = append(res.Duplicates, i)
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert activity %s", a.Fingerprint)
		}
		a.ID = id
		res.Inserted = append(res.Inserted, a)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit append")
	}
	return res, nil
}

func (s *SQLiteStore) GetActivity(ctx context.Context, id int64) (*model.Activity, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelect+` WHERE id = ?`, id)
	a, err := scanSQLiteActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "sqlite: get activity %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get activity %d", id)
	}
	return a, nil
}

func (s *SQLiteStore) ListActivities(ctx context.Context, filter ActivityFilter) ([]model.Activity, error) {
	where, args := whereClause(filter, questionMark, func(t time.Time) any {
		return t.UTC().Format(model.DateLayout)
	})
	page, pageArgs := pageClause(filter, questionMark, len(args), "-1")
	query := sqliteSelect + where + orderClause(filter) + page
	args = append(args, pageArgs...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list activities")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Activity
	for rows.Next() {
		a, err := scanSQLiteActivity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: list activities")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list activities iterate")
}

func (s *SQLiteStore) CountActivities(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count activities")
}

func (s *SQLiteStore) ExistingFingerprints(ctx context.Context, fps []model.Fingerprint) (map[model.Fingerprint]bool, error) {
	found := make(map[model.Fingerprint]bool, len(fps))
	for _, part := range chunk(fps, sqliteInChunk) {
		args := make([]any, len(part))
		for i, fp := range part {
			args[i] = string(fp)
		}
		query := `SELECT fingerprint FROM activities WHERE fingerprint IN (?` +
			strings.Repeat(", ?", len(part)-1) + `)`

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: existing fingerprints")
		}
		for rows.Next() {
			var fp string
			if err := rows.Scan(&fp); err != nil {
				rows.Close() //nolint:errcheck
				return nil, eris.Wrap(err, "sqlite: scan fingerprint")
			}
			found[model.Fingerprint(fp)] = true
		}
		err = rows.Err()
		rows.Close() //nolint:errcheck
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: existing fingerprints iterate")
		}
	}
	return found, nil
}

func (s *SQLiteStore) IsSuperseded(ctx context.Context, id int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM activities WHERE supersedes = ?`, id,
	).Scan(&n)
	return n > 0, eris.Wrapf(err, "sqlite: is superseded %d", id)
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteActivity(row scannable) (*model.Activity, error) {
	var (
		a                                 model.Activity
		fp, date, qty, co2e, conf, detail string
		createdAt                         string
		supersedes                        sql.NullInt64
	)
	err := row.Scan(&a.ID, &fp, &a.BatchID, &date, &a.Description, &qty, &a.Unit,
		&a.ActivityType, &co2e, &conf, &detail, &supersedes, &createdAt)
	if err != nil {
		return nil, err
	}

	a.Fingerprint = model.Fingerprint(fp)
	a.Confidence = model.Level(conf)
	if a.Date, err = time.Parse(model.DateLayout, date); err != nil {
		return nil, eris.Wrap(err, "parse date")
	}
	if a.Quantity, err = decimal.NewFromString(qty); err != nil {
		return nil, eris.Wrap(err, "parse quantity")
	}
	if a.CO2e, err = decimal.NewFromString(co2e); err != nil {
		return nil, eris.Wrap(err, "parse co2e")
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, eris.Wrap(err, "parse created_at")
	}
	if supersedes.Valid {
		id := supersedes.Int64
		a.Supersedes = &id
	}
	if err := unmarshalDetails([]byte(detail), &a.Details); err != nil {
		return nil, err
	}
	return &a, nil
}
