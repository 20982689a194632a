package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sells-group/ecoledger/internal/aggregate"
	"github.com/sells-group/ecoledger/internal/explain"
	"github.com/sells-group/ecoledger/internal/model"
)

// co2eText renders a stored kg value in the configured unit.
func co2eText(kg decimal.Decimal, unit string, precision int32) string {
	return aggregate.Present(kg, unit, precision).String() + " " + unit
}

func formatUploadResult(w io.Writer, name string, res *model.UploadResult) {
	fmt.Fprintf(w, "%s: batch %s\n", name, res.BatchID)
	fmt.Fprintf(w, "  committed:          %d\n", res.Committed)
	fmt.Fprintf(w, "  duplicates skipped: %d\n", res.DuplicatesSkipped)
	fmt.Fprintf(w, "  row errors:         %d\n", len(res.RowErrors))
	for _, e := range res.RowErrors {
		fmt.Fprintf(w, "    row %d: %s\n", e.Row, e.Reason)
	}
}

func formatSummary(w io.Writer, s model.Summary, unit string, precision int32) {
	fmt.Fprintf(w, "Total: %s CO2e across %d activities\n", co2eText(s.TotalCO2e, unit, precision), s.ActivityCount)
	if s.ActivityCount == 0 {
		return
	}

	fmt.Fprintln(w, "\nCategories:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  CATEGORY\tSHARE\tCO2E")
	for _, c := range s.CategoryDistribution {
		fmt.Fprintf(tw, "  %s\t%.1f%%\t%s\n", c.Name, c.Percent, co2eText(c.CO2e, unit, precision))
	}
	tw.Flush() //nolint:errcheck

	fmt.Fprintln(w, "\nTrend:")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, p := range s.TrendData {
		fmt.Fprintf(tw, "  %s\t%s\n", p.Period, co2eText(p.CO2e, unit, precision))
	}
	tw.Flush() //nolint:errcheck

	fmt.Fprintln(w, "\nHotspots:")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tDATE\tDESCRIPTION\tTYPE\tCO2E\tIMPACT")
	for _, h := range s.Hotspots {
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\t%s\n",
			h.ID, h.Date.Format(model.DateLayout), truncate(h.Description, 40), h.ActivityType,
			co2eText(h.CO2e, unit, precision), h.Impact)
	}
	tw.Flush() //nolint:errcheck
}

func formatRecommendations(w io.Writer, recs []model.Recommendation) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No recommendations: the ledger has no emissions in scope.")
		return
	}
	for i, r := range recs {
		fmt.Fprintf(w, "%d. [%s] %s (%s, %.1f%% of total)\n", i+1, r.Impact, r.Title, r.Category, r.Share)
		fmt.Fprintf(w, "   %s\n", r.Suggestion)
	}
}

func formatExplanation(w io.Writer, e *explain.Explanation, unit string, precision int32) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(k, v string) { fmt.Fprintf(tw, "%s\t%s\n", k, v) }

	row("ID", fmt.Sprint(e.ID))
	row("Date", e.Date.Format(model.DateLayout))
	row("Description", e.Description)
	row("Quantity", e.Quantity.String()+" "+e.Unit)
	row("Activity type", e.ActivityType)
	row("CO2e", co2eText(e.CO2e, unit, precision))
	row("Stored CO2e (kg)", e.CO2e.String())
	row("Confidence", string(e.Confidence))
	row("Method", string(e.Details.Method))
	row("Emission factor", e.Details.EmissionFactor.String()+" kg CO2e/"+e.Details.UnitApplied)
	row("Factor key", e.Details.FactorKey)
	row("Factor source", e.Details.FactorSource)
	row("Formula", e.Details.Formula)
	if e.Details.CalculationNotes != "" {
		row("Notes", e.Details.CalculationNotes)
	}
	row("Fingerprint", string(e.Fingerprint))
	row("Batch", e.BatchID)
	row("Recorded", e.CreatedAt.Format(time.RFC3339))
	if e.Supersedes != nil {
		row("Supersedes", fmt.Sprint(*e.Supersedes))
	}
	row("Verified", yesNo(e.Verified))
	row("Superseded", yesNo(e.Superseded))
	tw.Flush() //nolint:errcheck
}

func formatFactors(w io.Writer, factors []model.FactorEntry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tCATEGORY\tKG CO2E\tPER\tSOURCE")
	for _, f := range factors {
		src := f.Source
		if f.IndustryAverage {
			src += " (industry average)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", f.Key, f.Category, f.Value.String(), f.Unit, src)
	}
	tw.Flush() //nolint:errcheck
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-3])) + "..."
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
