// Package model defines the core domain types shared by the ingestion engine,
// the ledger, and the read-side views built on top of it.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Level is a qualitative tier used for both classification confidence and
// recommendation impact.
type Level string

const (
	LevelHigh   Level = "High"
	LevelMedium Level = "Medium"
	LevelLow    Level = "Low"
)

// Rank orders levels so that High > Medium > Low. Unknown levels rank 0.
func (l Level) Rank() int {
	switch l {
	case LevelHigh:
		return 3
	case LevelMedium:
		return 2
	case LevelLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	return l.Rank() > 0
}

// Method records which classification strategy resolved an activity.
type Method string

const (
	MethodKeyword  Method = "keyword"
	MethodUnit     Method = "unit"
	MethodFallback Method = "fallback"
)

// DateLayout is the canonical calendar-date rendering used on the wire and in
// fingerprints.
const DateLayout = "2006-01-02"

// RawRecord is one normalized CSV row. It only lives for the duration of an
// ingestion batch.
type RawRecord struct {
	Row         int             `json:"row"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
}

// Fingerprint is the hex digest identifying a logical activity record.
type Fingerprint string

// FactorEntry is one row of emission-factor reference data. Value is expressed
// in kg CO2e per Unit.
type FactorEntry struct {
	Key             string          `json:"key"`
	Category        string          `json:"category"`
	Value           decimal.Decimal `json:"value"`
	Unit            string          `json:"unit"`
	Source          string          `json:"source"`
	FormulaTemplate string          `json:"formula_template"`
	IndustryAverage bool            `json:"industry_average"`
}

// Details is the calculation trace embedded in every ledger entry. It holds
// enough to recompute CO2e without consulting the factor table.
type Details struct {
	EmissionFactor   decimal.Decimal `json:"emission_factor"`
	FactorKey        string          `json:"factor_key"`
	FactorSource     string          `json:"factor_source"`
	UnitApplied      string          `json:"unit_applied"`
	ConversionFactor decimal.Decimal `json:"conversion_factor"`
	Formula          string          `json:"formula"`
	CalculationNotes string          `json:"calculation_notes"`
	Method           Method          `json:"method"`
}

// Activity is a classified ledger entry. Entries are immutable once appended.
type Activity struct {
	ID           int64           `json:"id"`
	Fingerprint  Fingerprint     `json:"fingerprint"`
	BatchID      string          `json:"batch_id"`
	Date         time.Time       `json:"date"`
	Description  string          `json:"description"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit"`
	ActivityType string          `json:"activity_type"`
	CO2e         decimal.Decimal `json:"co2e"`
	Confidence   Level           `json:"confidence_score"`
	Details      Details         `json:"details"`
	Supersedes   *int64          `json:"supersedes,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// UploadResult reports the outcome of one ingestion batch.
type UploadResult struct {
	BatchID           string     `json:"batch_id"`
	Committed         int        `json:"committed"`
	DuplicatesSkipped int        `json:"duplicates_skipped"`
	RowErrors         []RowError `json:"row_errors"`
	IDs               []int64    `json:"ids"`
}
