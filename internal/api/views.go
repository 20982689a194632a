package api

import (
	"github.com/shopspring/decimal"

	"github.com/sells-group/ecoledger/internal/aggregate"
	"github.com/sells-group/ecoledger/internal/explain"
	"github.com/sells-group/ecoledger/internal/model"
)

// Views convert stored kg values for presentation. Nothing here feeds back
// into the ledger.

type activityView struct {
	ID           int64       `json:"id"`
	Date         string      `json:"date"`
	Description  string      `json:"description"`
	Quantity     float64     `json:"quantity"`
	Unit         string      `json:"unit"`
	ActivityType string      `json:"activity_type"`
	CO2e         float64     `json:"co2e"`
	Confidence   model.Level `json:"confidence_score"`
	Supersedes   *int64      `json:"supersedes,omitempty"`
}

type detailsView struct {
	EmissionFactor   float64      `json:"emission_factor"`
	FactorKey        string       `json:"factor_key"`
	FactorSource     string       `json:"factor_source"`
	UnitApplied      string       `json:"unit_applied"`
	ConversionFactor float64      `json:"conversion_factor"`
	Formula          string       `json:"formula"`
	CalculationNotes string       `json:"calculation_notes"`
	Method           model.Method `json:"method"`
}

type explainView struct {
	activityView
	Fingerprint string      `json:"fingerprint"`
	BatchID     string      `json:"batch_id"`
	CreatedAt   string      `json:"created_at"`
	Details     detailsView `json:"details"`
	// StoredCO2e is the full-precision kg value as recorded.
	StoredCO2e string `json:"stored_co2e"`
	Verified   bool   `json:"verified"`
	Superseded bool   `json:"superseded"`
}

type shareView struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	CO2e  float64 `json:"co2e"`
}

type trendView struct {
	Date string  `json:"date"`
	CO2e float64 `json:"co2e"`
}

type hotspotView struct {
	ID           int64       `json:"id"`
	Description  string      `json:"description"`
	ActivityType string      `json:"activity_type"`
	Date         string      `json:"date"`
	CO2e         float64     `json:"co2e"`
	Impact       model.Level `json:"impact,omitempty"`
}

type summaryView struct {
	TotalCO2e            float64       `json:"total_co2e"`
	Unit                 string        `json:"unit"`
	ActivityCount        int           `json:"activity_count"`
	CategoryDistribution []shareView   `json:"category_distribution"`
	TrendData            []trendView   `json:"trend_data"`
	Hotspots             []hotspotView `json:"hotspots"`
}

type scenarioView struct {
	OriginalCO2e        float64 `json:"original_co2e"`
	SimulatedCO2e       float64 `json:"simulated_co2e"`
	Difference          float64 `json:"difference"`
	ReductionPercentage float64 `json:"reduction_percentage"`
}

type factorView struct {
	Key             string  `json:"key"`
	Category        string  `json:"category"`
	Value           float64 `json:"value"`
	Unit            string  `json:"unit"`
	Source          string  `json:"source"`
	IndustryAverage bool    `json:"industry_average"`
}

type uploadView struct {
	Message           string           `json:"message"`
	BatchID           string           `json:"batch_id"`
	Committed         int              `json:"committed"`
	DuplicatesSkipped int              `json:"duplicates_skipped"`
	RowErrors         []model.RowError `json:"row_errors"`
	IDs               []int64          `json:"ids"`
}

func (s *Server) co2e(kg decimal.Decimal) float64 {
	return aggregate.Present(kg, s.cfg.CO2eUnit, s.cfg.Precision).InexactFloat64()
}

func (s *Server) activityView(a model.Activity) activityView {
	return activityView{
		ID:           a.ID,
		Date:         a.Date.Format(model.DateLayout),
		Description:  a.Description,
		Quantity:     a.Quantity.InexactFloat64(),
		Unit:         a.Unit,
		ActivityType: a.ActivityType,
		CO2e:         s.co2e(a.CO2e),
		Confidence:   a.Confidence,
		Supersedes:   a.Supersedes,
	}
}

func (s *Server) explainView(e *explain.Explanation) explainView {
	d := e.Details
	return explainView{
		activityView: s.activityView(e.Activity),
		Fingerprint:  string(e.Fingerprint),
		BatchID:      e.BatchID,
		CreatedAt:    e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		Details: detailsView{
			EmissionFactor:   d.EmissionFactor.InexactFloat64(),
			FactorKey:        d.FactorKey,
			FactorSource:     d.FactorSource,
			UnitApplied:      d.UnitApplied,
			ConversionFactor: d.ConversionFactor.InexactFloat64(),
			Formula:          d.Formula,
			CalculationNotes: d.CalculationNotes,
			Method:           d.Method,
		},
		StoredCO2e: e.CO2e.String(),
		Verified:   e.Verified,
		Superseded: e.Superseded,
	}
}

func (s *Server) summaryView(sum model.Summary) summaryView {
	v := summaryView{
		TotalCO2e:            s.co2e(sum.TotalCO2e),
		Unit:                 s.cfg.CO2eUnit,
		ActivityCount:        sum.ActivityCount,
		CategoryDistribution: make([]shareView, len(sum.CategoryDistribution)),
		TrendData:            make([]trendView, len(sum.TrendData)),
		Hotspots:             make([]hotspotView, len(sum.Hotspots)),
	}
	for i, c := range sum.CategoryDistribution {
		v.CategoryDistribution[i] = shareView{Name: c.Name, Value: c.Percent, CO2e: s.co2e(c.CO2e)}
	}
	for i, p := range sum.TrendData {
		v.TrendData[i] = trendView{Date: p.Period, CO2e: s.co2e(p.CO2e)}
	}
	for i, h := range sum.Hotspots {
		v.Hotspots[i] = hotspotView{
			ID:           h.ID,
			Description:  h.Description,
			ActivityType: h.ActivityType,
			Date:         h.Date.Format(model.DateLayout),
			CO2e:         s.co2e(h.CO2e),
			Impact:       h.Impact,
		}
	}
	return v
}

func (s *Server) scenarioView(r *model.ScenarioResult) scenarioView {
	return scenarioView{
		OriginalCO2e:        s.co2e(r.OriginalCO2e),
		SimulatedCO2e:       s.co2e(r.SimulatedCO2e),
		Difference:          s.co2e(r.Difference),
		ReductionPercentage: aggregate.RoundSignificant(r.ReductionPercentage, 4).InexactFloat64(),
	}
}
