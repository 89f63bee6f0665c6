package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var leaksCmd = &cobra.Command{
	Use:   "leaks",
	Short: "Ingest pending secret-scan reports and reconcile leak records",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, run, err := setup()
		if err != nil {
			return err
		}
		return run.ReconcileLeaks(context.Background(), flagSource, flagRepoURL)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate compliance rules against repositories and projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, run, err := setup()
		if err != nil {
			return err
		}
		return run.EvaluateCompliance(context.Background(), flagSource, flagRepoURL)
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Recompute repository classification tiers and project aggregates",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, run, err := setup()
		if err != nil {
			return err
		}
		return run.Classify(context.Background(), flagSource, flagRepoURL)
	},
}

func init() {
	rootCmd.AddCommand(leaksCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(classifyCmd)
}
