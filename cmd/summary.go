package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ecoledger/internal/aggregate"
	"github.com/sells-group/ecoledger/internal/config"
	"github.com/sells-group/ecoledger/internal/model"
	"github.com/sells-group/ecoledger/internal/recommend"
)

var (
	summaryFrom   string
	summaryTo     string
	summaryPeriod string
	summaryJSON   bool

	insightsNarrative bool
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize ledger emissions by category, period, and hotspot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sum, err := currentSummary(cmd)
		if err != nil {
			return err
		}
		if summaryJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		}
		formatSummary(cmd.OutOrStdout(), sum, presentUnit(), cfg.Aggregate.Precision)
		return nil
	},
}

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Rank reduction recommendations for the largest categories",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sum, err := currentSummary(cmd)
		if err != nil {
			return err
		}
		rec := recommend.New(cfg.Recommend.TopK, cfg.Recommend.Thresholds())
		if insightsNarrative {
			fmt.Fprintln(cmd.OutOrStdout(), rec.Narrative(sum, presentUnit(), cfg.Aggregate.Precision))
			return nil
		}
		formatRecommendations(cmd.OutOrStdout(), rec.Recommend(sum))
		return nil
	},
}

// currentSummary summarizes the ledger for the window flags.
func currentSummary(cmd *cobra.Command) (model.Summary, error) {
	ctx := cmd.Context()

	from, err := parseDateFlag(summaryFrom)
	if err != nil {
		return model.Summary{}, err
	}
	to, err := parseDateFlag(summaryTo)
	if err != nil {
		return model.Summary{}, err
	}
	opts, err := aggregateOptions(cfg, summaryPeriod, from, to)
	if err != nil {
		return model.Summary{}, err
	}

	env, err := initEngine(ctx, config.ModeCLI)
	if err != nil {
		return model.Summary{}, err
	}
	defer env.Close()

	acts, err := env.Ledger.Snapshot(ctx, from, to)
	if err != nil {
		return model.Summary{}, eris.Wrap(err, "summary")
	}
	return aggregate.Summarize(acts, opts), nil
}

func parseDateFlag(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(model.DateLayout, v)
	if err != nil {
		return nil, eris.Errorf("invalid date %q: expected YYYY-MM-DD", v)
	}
	return &t, nil
}

func presentUnit() string {
	unit, err := aggregate.ParseUnit(cfg.Aggregate.CO2eUnit)
	if err != nil {
		return aggregate.UnitKg
	}
	return unit
}

func addWindowFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&summaryFrom, "from", "", "first date in scope (YYYY-MM-DD)")
	cmd.Flags().StringVar(&summaryTo, "to", "", "last date in scope (YYYY-MM-DD)")
	cmd.Flags().StringVar(&summaryPeriod, "period", "", "trend bucket: day, week, or month (default from config)")
}

func init() {
	addWindowFlags(summaryCmd)
	summaryCmd.Flags().BoolVar(&summaryJSON, "json", false, "print the summary as JSON")
	addWindowFlags(insightsCmd)
	insightsCmd.Flags().BoolVar(&insightsNarrative, "narrative", false, "print the markdown executive summary")
	rootCmd.AddCommand(summaryCmd, insightsCmd)
}
