package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ecoledger/internal/config"
	"github.com/sells-group/ecoledger/internal/model"
)

var ingestJSON bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.csv>...",
	Short: "Ingest activity CSV files into the ledger",
	Long: "Each file is normalized, deduplicated, classified, and appended as one batch. " +
		"Re-ingesting a file adds nothing.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, config.ModeCLI)
		if err != nil {
			return err
		}
		defer env.Close()

		results := make(map[string]*model.UploadResult, len(args))
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return eris.Wrapf(err, "read %s", path)
			}
			res, err := env.Pipeline.Ingest(ctx, data)
			if err != nil {
				return eris.Wrapf(err, "ingest %s", path)
			}
			results[path] = res
			if !ingestJSON {
				formatUploadResult(cmd.OutOrStdout(), filepath.Base(path), res)
			}
		}

		if ingestJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(ingestCmd)
}
