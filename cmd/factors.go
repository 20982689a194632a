package main

import (
	"github.com/spf13/cobra"
)

var factorsCmd = &cobra.Command{
	Use:   "factors",
	Short: "List the loaded emission factor table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		tbl, err := loadFactors()
		if err != nil {
			return err
		}
		formatFactors(cmd.OutOrStdout(), tbl.Factors())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(factorsCmd)
}
