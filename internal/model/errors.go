package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when an activity id is unknown to the ledger.
	ErrNotFound = errors.New("activity not found")

	// ErrDuplicate is returned when an append carries a fingerprint the
	// ledger already holds.
	ErrDuplicate = errors.New("duplicate fingerprint")

	// ErrSuperseded is returned when a correction targets an entry that a
	// later correction already replaced.
	ErrSuperseded = errors.New("activity already superseded")
)

// SchemaError reports a missing or malformed header. It is fatal to a batch.
type SchemaError struct {
	Missing []string
	Reason  string
}

func (e *SchemaError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("schema: missing required columns: %s", strings.Join(e.Missing, ", "))
	}
	return "schema: " + e.Reason
}

// RowError reports a single rejected data row. Row is 1-based and counts data
// rows only, so the first row after the header is row 1.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// UnitConversionError means no conversion path exists between two units.
type UnitConversionError struct {
	From string
	To   string
}

func (e *UnitConversionError) Error() string {
	return fmt.Sprintf("no conversion from %q to %q", e.From, e.To)
}
