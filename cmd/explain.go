package main

import (
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ecoledger/internal/config"
)

var explainJSON bool

var explainCmd = &cobra.Command{
	Use:   "explain <activity-id>",
	Short: "Show how an entry's CO2e was calculated",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return eris.Errorf("invalid activity id %q", args[0])
		}

		env, err := initEngine(ctx, config.ModeCLI)
		if err != nil {
			return err
		}
		defer env.Close()

		e, err := env.Explainer.Explain(ctx, id)
		if err != nil {
			return err
		}
		if explainJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(e)
		}
		formatExplanation(cmd.OutOrStdout(), e, presentUnit(), cfg.Aggregate.Precision)
		return nil
	},
}

func init() {
	explainCmd.Flags().BoolVar(&explainJSON, "json", false, "print the entry as JSON")
	rootCmd.AddCommand(explainCmd)
}
