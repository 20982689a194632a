// Package store persists ledger entries. Two backends are provided: SQLite
// for single-node deployments and tests, and Postgres for shared databases.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ecoledger/internal/model"
)

// ActivityFilter specifies criteria for listing activities. From and To are
// inclusive calendar dates. A Limit of zero returns every matching entry.
type ActivityFilter struct {
	From              *time.Time `json:"from,omitempty"`
	To                *time.Time `json:"to,omitempty"`
	ActivityType      string     `json:"activity_type,omitempty"`
	IncludeSuperseded bool       `json:"include_superseded,omitempty"`
	Desc              bool       `json:"desc,omitempty"`
	Limit             int        `json:"limit,omitempty"`
	Offset            int        `json:"offset,omitempty"`
}

// AppendResult reports the outcome of AppendActivities. Inserted holds the
// stored entries with their assigned ids, in input order. Duplicates holds
// the input indexes skipped because their fingerprint was already stored.
type AppendResult struct {
	Inserted   []model.Activity
	Duplicates []int
}

// Store defines the persistence interface for the activity ledger. Entries
// are append-only: there is no update or delete.
type Store interface {
	// AppendActivities inserts entries in a single transaction. Entries whose
	// fingerprint already exists are skipped, not failed.
	AppendActivities(ctx context.Context, entries []model.Activity) (*AppendResult, error)
	GetActivity(ctx context.Context, id int64) (*model.Activity, error)
	ListActivities(ctx context.Context, filter ActivityFilter) ([]model.Activity, error)
	CountActivities(ctx context.Context) (int, error)
	ExistingFingerprints(ctx context.Context, fps []model.Fingerprint) (map[model.Fingerprint]bool, error)
	// IsSuperseded reports whether a later correction references id.
	IsSuperseded(ctx context.Context, id int64) (bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// activityColumns is the column order shared by every SELECT.
var activityColumns = []string{
	"id", "fingerprint", "batch_id", "date", "description", "quantity", "unit",
	"activity_type", "co2e", "confidence", "details", "supersedes", "created_at",
}

// insertColumns is the column order shared by every INSERT.
var insertColumns = activityColumns[1:]

// placeholder renders the n-th (1-based) bind parameter for a dialect.
type placeholder func(n int) string

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

// whereClause renders the filter predicates and returns the clause plus its
// arguments. Dates are bound through dateArg so each backend can pick its
// representation.
func whereClause(f ActivityFilter, ph placeholder, dateArg func(time.Time) any) (string, []any) {
	var (
		conds []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return ph(len(args))
	}
	if f.From != nil {
		conds = append(conds, "date >= "+next(dateArg(*f.From)))
	}
	if f.To != nil {
		conds = append(conds, "date <= "+next(dateArg(*f.To)))
	}
	if f.ActivityType != "" {
		conds = append(conds, "activity_type = "+next(f.ActivityType))
	}
	if !f.IncludeSuperseded {
		conds = append(conds, "id NOT IN (SELECT supersedes FROM activities WHERE supersedes IS NOT NULL)")
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// orderClause sorts by calendar date, then by id so entries sharing a date
// keep append order.
func orderClause(f ActivityFilter) string {
	if f.Desc {
		return " ORDER BY date DESC, id DESC"
	}
	return " ORDER BY date ASC, id ASC"
}

// pageClause renders LIMIT/OFFSET starting at bind parameter n+1. unbounded
// is the dialect's spelling of "no limit".
func pageClause(f ActivityFilter, ph placeholder, n int, unbounded string) (string, []any) {
	if f.Limit > 0 {
		return " LIMIT " + ph(n+1) + " OFFSET " + ph(n+2), []any{f.Limit, f.Offset}
	}
	if f.Offset > 0 {
		return " LIMIT " + unbounded + " OFFSET " + ph(n+1), []any{f.Offset}
	}
	return "", nil
}

func marshalDetails(d model.Details) ([]byte, error) {
	b, err := json.Marshal(d)
	return b, eris.Wrap(err, "marshal details")
}

func unmarshalDetails(b []byte, d *model.Details) error {
	return eris.Wrap(json.Unmarshal(b, d), "unmarshal details")
}

// chunk splits fps into slices of at most n elements.
func chunk(fps []model.Fingerprint, n int) [][]model.Fingerprint {
	var out [][]model.Fingerprint
	for len(fps) > n {
		out = append(out, fps[:n])
		fps = fps[n:]
	}
	if len(fps) > 0 {
		out = append(out, fps)
	}
	return out
}
