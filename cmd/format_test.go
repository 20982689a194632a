package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/ecoledger/internal/explain"
	"github.com/sells-group/ecoledger/internal/model"
)

func TestFormatUploadResult(t *testing.T) {
	var buf bytes.Buffer
	formatUploadResult(&buf, "jan.csv", &model.UploadResult{
		BatchID:           "b-1",
		Committed:         3,
		DuplicatesSkipped: 1,
		RowErrors:         []model.RowError{{Row: 4, Reason: "invalid quantity"}},
	})

	out := buf.String()
	assert.Contains(t, out, "jan.csv: batch b-1")
	assert.Contains(t, out, "committed:          3")
	assert.Contains(t, out, "duplicates skipped: 1")
	assert.Contains(t, out, "row 4: invalid quantity")
}

func TestFormatSummary(t *testing.T) {
	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	s := model.Summary{
		TotalCO2e:     decimal.RequireFromString("1234.5"),
		ActivityCount: 2,
		CategoryDistribution: []model.CategoryShare{
			{Name: "Energy", Percent: 80, CO2e: decimal.RequireFromString("987.6")},
			{Name: "Transport", Percent: 20, CO2e: decimal.RequireFromString("246.9")},
		},
		TrendData: []model.TrendPoint{{Period: "2024-02", Start: day, CO2e: decimal.RequireFromString("1234.5")}},
		Hotspots: []model.Hotspot{{
			ID: 7, Description: "A very long description of a diesel generator that ran all month",
			ActivityType: "Energy", Date: day, CO2e: decimal.RequireFromString("987.6"), Impact: model.LevelHigh,
		}},
	}

	var buf bytes.Buffer
	formatSummary(&buf, s, "t", 3)
	out := buf.String()
	assert.Contains(t, out, "Total: 1.23 t CO2e across 2 activities")
	assert.Contains(t, out, "Energy")
	assert.Contains(t, out, "80.0%")
	assert.Contains(t, out, "2024-02")
	assert.Contains(t, out, "2024-02-01")
	assert.Contains(t, out, "...")
	assert.Contains(t, out, "High")
}

func TestFormatSummary_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatSummary(&buf, model.Summary{}, "kg", 0)
	assert.Equal(t, "Total: 0 kg CO2e across 0 activities\n", buf.String())
}

func TestFormatRecommendations(t *testing.T) {
	var buf bytes.Buffer
	formatRecommendations(&buf, nil)
	assert.Contains(t, buf.String(), "No recommendations")

	buf.Reset()
	formatRecommendations(&buf, []model.Recommendation{{
		Title: "Energy efficiency audit", Suggestion: "Audit HVAC.", Impact: model.LevelHigh,
		Category: "Energy", Share: 72.5,
	}})
	assert.Contains(t, buf.String(), "1. [High] Energy efficiency audit (Energy, 72.5% of total)")
	assert.Contains(t, buf.String(), "Audit HVAC.")
}

func TestFormatExplanation(t *testing.T) {
	prev := int64(3)
	e := &explain.Explanation{
		Activity: model.Activity{
			ID:           4,
			Fingerprint:  "abc123",
			BatchID:      "b-2",
			Date:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Description:  "Office electricity",
			Quantity:     decimal.RequireFromString("1100"),
			Unit:         "kWh",
			ActivityType: "Energy",
			CO2e:         decimal.RequireFromString("423.5"),
			Confidence:   model.LevelHigh,
			Details: model.Details{
				EmissionFactor: decimal.RequireFromString("0.385"),
				FactorKey:      "electricity",
				FactorSource:   "EPA eGRID 2022",
				UnitApplied:    "kWh",
				Formula:        "1100 kWh × 0.385 kg CO2e/kWh = 423.5 kg CO2e",
				Method:         model.MethodKeyword,
			},
			Supersedes: &prev,
			CreatedAt:  time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		Verified: true,
	}

	var buf bytes.Buffer
	formatExplanation(&buf, e, "kg", 0)
	out := buf.String()
	assert.Contains(t, out, "423.5 kg")
	assert.Contains(t, out, "0.385 kg CO2e/kWh")
	assert.Contains(t, out, "EPA eGRID 2022")
	assert.Contains(t, out, "keyword")
	assert.Contains(t, out, "Supersedes")
	assert.Contains(t, out, "2024-06-01T12:00:00Z")
	assert.NotContains(t, out, "Notes")
}

func TestFormatFactors(t *testing.T) {
	var buf bytes.Buffer
	formatFactors(&buf, []model.FactorEntry{
		{Key: "electricity", Category: "Energy", Value: decimal.RequireFromString("0.385"), Unit: "kWh", Source: "eGRID"},
		{Key: "spend_other", Category: "Other", Value: decimal.RequireFromString("0.3"), Unit: "USD", Source: "EEIO", IndustryAverage: true},
	})
	out := buf.String()
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "0.385")
	assert.Contains(t, out, "EEIO (industry average)")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdef...", truncate("abcdefghijklmnop", 9))
}
