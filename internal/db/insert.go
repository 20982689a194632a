package db

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// InsertConfig describes a single-row insert that silently skips rows
// violating a unique constraint.
type InsertConfig struct {
	Table        string   // target table (e.g., "ledger.activities")
	Columns      []string // columns being inserted, in argument order
	Casts        map[string]string
	ConflictKeys []string // columns forming the unique constraint
	Returning    []string // columns returned for inserted rows
}

// InsertIgnoreSQL builds
// INSERT INTO t (cols) VALUES ($1..) ON CONFLICT (keys) DO NOTHING RETURNING ...
// A conflicting row returns no result row, which callers read as pgx.ErrNoRows.
func InsertIgnoreSQL(cfg InsertConfig) (string, error) {
	if len(cfg.Columns) == 0 {
		return "", eris.New("db: insert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return "", eris.New("db: insert: no conflict keys specified")
	}

	placeholders := make([]string, len(cfg.Columns))
	for i, c := range cfg.Columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if cast, ok := cfg.Casts[c]; ok {
			placeholders[i] += "::" + cast
		}
	}

	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		sanitizeTable(cfg.Table),
		quoteAndJoin(cfg.Columns),
		strings.Join(placeholders, ", "),
		quoteAndJoin(cfg.ConflictKeys),
	)
	if len(cfg.Returning) > 0 {
		sql += " RETURNING " + quoteAndJoin(cfg.Returning)
	}
	return sql, nil
}

// sanitizeTable handles schema-qualified table names like "ledger.activities".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
