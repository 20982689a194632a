// Package recommend turns a summary into ranked improvement suggestions.
package recommend

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/ecoledger/internal/aggregate"
	"github.com/sells-group/ecoledger/internal/model"
)

// DefaultTopK is the number of categories that get a recommendation.
const DefaultTopK = 3

// Recommender derives recommendations from summaries. It holds no state
// beyond its configuration.
type Recommender struct {
	TopK       int
	Thresholds aggregate.Thresholds
}

// New creates a Recommender. Zero arguments select defaults.
func New(topK int, th aggregate.Thresholds) *Recommender {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if th == (aggregate.Thresholds{}) {
		th = aggregate.DefaultThresholds
	}
	return &Recommender{TopK: topK, Thresholds: th}
}

// Recommend returns one recommendation per top category, in the summary's
// distribution order (largest share first). A summary with no emissions
// yields none.
func (r *Recommender) Recommend(s model.Summary) []model.Recommendation {
	out := []model.Recommendation{}
	if s.TotalCO2e.IsZero() {
		return out
	}
	for _, share := range s.CategoryDistribution {
		if len(out) == r.TopK {
			break
		}
		if share.CO2e.IsZero() {
			continue
		}
		rule := ruleFor(share.Name)
		out = append(out, model.Recommendation{
			Title:      rule.Title,
			Suggestion: rule.Suggestion,
			Impact:     r.Thresholds.Level(share.Percent / 100),
			Category:   share.Name,
			Share:      share.Percent,
		})
	}
	return out
}

// Narrative renders a markdown executive summary of s.
func (r *Recommender) Narrative(s model.Summary, unit string, precision int32) string {
	if s.ActivityCount == 0 || len(s.CategoryDistribution) == 0 {
		return "No data available to analyze. Please upload your emission records."
	}
	if unit == "" {
		unit = "kg"
	}

	top := s.CategoryDistribution[0]
	var b strings.Builder
	b.WriteString("**Executive Summary:**\n")
	fmt.Fprintf(&b, "Your organization's total carbon footprint is currently **%s %sCO2e** across %d activities.\n\n",
		formatAmount(s.TotalCO2e, unit, precision), unit, s.ActivityCount)
	b.WriteString("**Critical Hotspot Identified:**\n")
	fmt.Fprintf(&b, "The **%s** category accounts for **%.1f%%** of your total emissions.\n", top.Name, top.Percent)
	for _, action := range ruleFor(top.Name).Actions {
		b.WriteString("• " + action + "\n")
	}

	if len(s.Hotspots) > 0 {
		h := s.Hotspots[0]
		b.WriteString("\n**Largest Single Activity:**\n")
		fmt.Fprintf(&b, "%s on %s (%s %sCO2e).\n",
			h.Description, h.Date.Format(model.DateLayout), formatAmount(h.CO2e, unit, precision), unit)
	}

	if n := len(s.TrendData); n >= 2 {
		prev, last := s.TrendData[n-2], s.TrendData[n-1]
		b.WriteString("\n**Trend:**\n")
		if prev.CO2e.IsZero() {
			fmt.Fprintf(&b, "Emissions in %s were %s %sCO2e.\n", last.Period, formatAmount(last.CO2e, unit, precision), unit)
		} else {
			change := last.CO2e.Sub(prev.CO2e).Div(prev.CO2e).Mul(decimal.NewFromInt(100))
			switch {
			case change.IsZero():
				fmt.Fprintf(&b, "Emissions were flat from %s to %s.\n", prev.Period, last.Period)
			case change.IsNegative():
				fmt.Fprintf(&b, "Emissions fell by %s%% from %s to %s.\n", change.Abs().StringFixed(1), prev.Period, last.Period)
			default:
				fmt.Fprintf(&b, "Emissions rose by %s%% from %s to %s.\n", change.StringFixed(1), prev.Period, last.Period)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func ruleFor(category string) Rule {
	if rule, ok := Rules[category]; ok {
		return rule
	}
	return Rule{
		Title:      fmt.Sprintf(genericRule.Title, strings.ToLower(category)),
		Suggestion: fmt.Sprintf(genericRule.Suggestion, strings.ToLower(category)),
		Actions:    genericRule.Actions,
	}
}

// formatAmount converts kg to unit and rounds for display.
func formatAmount(kg decimal.Decimal, unit string, precision int32) string {
	return aggregate.Present(kg, unit, precision).String()
}
