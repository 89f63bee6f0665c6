package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile remote state into the local store",
}

var syncPermissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Sync repository and project permissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, run, err := setup()
		if err != nil {
			return err
		}
		return run.SyncPermissions(context.Background(), flagSource, flagRepoURL)
	},
}

var syncSettingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Sync repository settings and their member lists",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, run, err := setup()
		if err != nil {
			return err
		}
		return run.SyncSettings(context.Background(), flagSource, flagRepoURL)
	},
}

var syncBranchesCmd = &cobra.Command{
	Use:   "branches",
	Short: "Sync repository branches and their restrictions",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, run, err := setup()
		if err != nil {
			return err
		}
		return run.SyncBranches(context.Background(), flagSource, flagRepoURL)
	},
}

func init() {
	syncCmd.AddCommand(syncPermissionsCmd)
	syncCmd.AddCommand(syncSettingsCmd)
	syncCmd.AddCommand(syncBranchesCmd)
	rootCmd.AddCommand(syncCmd)
}
