package cmd

import (
	"fmt"

	"github.com/gitwarden/gitwarden/internal/config"
	"github.com/gitwarden/gitwarden/internal/db"
	"github.com/gitwarden/gitwarden/internal/logger"
	"github.com/gitwarden/gitwarden/internal/runner"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	flagSource  string
	flagRepoURL string
)

var rootCmd = &cobra.Command{
	Use:   "gitwarden",
	Short: "GitWarden - audits source-control platforms for access drift, leaked secrets and policy compliance",
	Long: `GitWarden reconciles remotely fetched permissions, settings and secret-scan
results into its store, classifies repositories by leak severity, evaluates
compliance rules and emits deduplicated notifications.

Examples:
  # Run the scheduler and API server
  gitwarden serve

  # One-off permission sync for Bitbucket
  gitwarden sync permissions --source bitbucket

  # Reconcile pending secret-scan reports
  gitwarden leaks

  # Evaluate compliance rules for a single repository
  gitwarden check --repo-url https://git.example.com/projects/SEC/repos/vault-config`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSource, "source", "", "Restrict to one platform source (bitbucket, github)")
	rootCmd.PersistentFlags().StringVar(&flagRepoURL, "repo-url", "", "Restrict to a single repository by HTTP URL")
}

// setup loads configuration, initializes logging and the database, and
// builds a runner. Shared by every subcommand.
func setup() (*config.Config, *gorm.DB, *runner.Runner, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	logger.Init(cfg.Log.Format, cfg.Log.Level)

	database, err := db.New(cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialize database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return nil, nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	return cfg, database, runner.New(database, cfg, nil), nil
}
