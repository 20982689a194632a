package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/ecoledger/internal/model"
)

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestWhereClause(t *testing.T) {
	from, to := day("2024-01-01"), day("2024-01-31")
	identity := func(t time.Time) any { return t }

	tests := []struct {
		name     string
		filter   ActivityFilter
		ph       placeholder
		wantSQL  string
		wantArgs int
	}{
		{
			name:    "superseded only",
			filter:  ActivityFilter{},
			ph:      questionMark,
			wantSQL: " WHERE id NOT IN (SELECT supersedes FROM activities WHERE supersedes IS NOT NULL)",
		},
		{
			name:    "include superseded",
			filter:  ActivityFilter{IncludeSuperseded: true},
			ph:      questionMark,
			wantSQL: "",
		},
		{
			name:     "window and type with dollars",
			filter:   ActivityFilter{From: &from, To: &to, ActivityType: "Energy", IncludeSuperseded: true},
			ph:       dollar,
			wantSQL:  " WHERE date >= $1 AND date <= $2 AND activity_type = $3",
			wantArgs: 3,
		},
		{
			name:     "from only",
			filter:   ActivityFilter{From: &from, IncludeSuperseded: true},
			ph:       questionMark,
			wantSQL:  " WHERE date >= ?",
			wantArgs: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := whereClause(tt.filter, tt.ph, identity)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Len(t, args, tt.wantArgs)
		})
	}
}

func TestOrderClause(t *testing.T) {
	assert.Equal(t, " ORDER BY date ASC, id ASC", orderClause(ActivityFilter{}))
	assert.Equal(t, " ORDER BY date DESC, id DESC", orderClause(ActivityFilter{Desc: true}))
}

func TestPageClause(t *testing.T) {
	tests := []struct {
		name     string
		filter   ActivityFilter
		ph       placeholder
		wantSQL  string
		wantArgs []any
	}{
		{name: "unbounded", filter: ActivityFilter{}, ph: dollar, wantSQL: ""},
		{name: "limit", filter: ActivityFilter{Limit: 5}, ph: dollar, wantSQL: " LIMIT $3 OFFSET $4", wantArgs: []any{5, 0}},
		{name: "limit offset sqlite", filter: ActivityFilter{Limit: 5, Offset: 10}, ph: questionMark, wantSQL: " LIMIT ? OFFSET ?", wantArgs: []any{5, 10}},
		{name: "offset only postgres", filter: ActivityFilter{Offset: 10}, ph: dollar, wantSQL: " LIMIT ALL OFFSET $3", wantArgs: []any{10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unbounded := "ALL"
			if tt.ph(1) == "?" {
				unbounded = "-1"
			}
			sql, args := pageClause(tt.filter, tt.ph, 2, unbounded)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestChunk(t *testing.T) {
	fps := []model.Fingerprint{"a", "b", "c", "d", "e"}
	parts := chunk(fps, 2)
	assert.Len(t, parts, 3)
	assert.Equal(t, []model.Fingerprint{"e"}, parts[2])
	assert.Empty(t, chunk(nil, 2))
}
