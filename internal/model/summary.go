package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CategoryShare is one slice of the category distribution. Percent is the
// rounded share of the total; the shares of a summary sum to 100.
type CategoryShare struct {
	Name    string          `json:"name"`
	Percent float64         `json:"value"`
	CO2e    decimal.Decimal `json:"co2e"`
}

// TrendPoint is the CO2e total for one period bucket.
type TrendPoint struct {
	Period string          `json:"date"`
	Start  time.Time       `json:"start"`
	CO2e   decimal.Decimal `json:"co2e"`
}

// Hotspot is a high-emitting ledger entry.
type Hotspot struct {
	ID           int64           `json:"id"`
	Description  string          `json:"description"`
	ActivityType string          `json:"activity_type"`
	Date         time.Time       `json:"date"`
	CO2e         decimal.Decimal `json:"co2e"`
	Impact       Level           `json:"impact,omitempty"`
}

// Summary is derived from a ledger snapshot and never stored.
type Summary struct {
	TotalCO2e            decimal.Decimal `json:"total_co2e"`
	ActivityCount        int             `json:"activity_count"`
	CategoryDistribution []CategoryShare `json:"category_distribution"`
	TrendData            []TrendPoint    `json:"trend_data"`
	Hotspots             []Hotspot       `json:"hotspots"`
}

// Recommendation is a ranked improvement suggestion.
type Recommendation struct {
	Title      string  `json:"title"`
	Suggestion string  `json:"suggestion"`
	Impact     Level   `json:"impact"`
	Category   string  `json:"category"`
	Share      float64 `json:"share"`
}

// ScenarioRequest describes a what-if change to an existing activity.
type ScenarioRequest struct {
	ActivityID  int64            `json:"activity_id"`
	NewQuantity *decimal.Decimal `json:"new_quantity,omitempty"`
	NewType     *string          `json:"new_type,omitempty"`
}

// ScenarioResult compares stored and simulated emissions.
type ScenarioResult struct {
	OriginalCO2e        decimal.Decimal `json:"original_co2e"`
	SimulatedCO2e       decimal.Decimal `json:"simulated_co2e"`
	Difference          decimal.Decimal `json:"difference"`
	ReductionPercentage decimal.Decimal `json:"reduction_percentage"`
}
