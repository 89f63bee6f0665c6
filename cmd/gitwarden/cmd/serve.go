package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gitwarden/gitwarden/internal/config"
	"github.com/gitwarden/gitwarden/internal/runner"
	"github.com/gitwarden/gitwarden/internal/server"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and the batch scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, database, run, err := setup()
		if err != nil {
			return err
		}
		slog.Info("Starting GitWarden", "mode", cfg.Server.Mode)

		scheduler, err := buildScheduler(cfg, run)
		if err != nil {
			return err
		}
		scheduler.Start()

		router := server.NewRouter(cfg, database, run)
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		srv := &http.Server{
			Addr:    addr,
			Handler: router,
		}

		go func() {
			slog.Info("Server listening", "address", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Server failed", "error", err)
				os.Exit(1)
			}
		}()

		// Wait for interrupt signal for graceful shutdown
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("Shutting down...")

		// Stop() waits for in-flight jobs before returning
		<-scheduler.Stop().Done()
		slog.Info("Scheduler stopped")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		slog.Info("Server stopped")
		return nil
	},
}

// buildScheduler registers every batch job whose cron expression is
// configured. Empty expressions disable the job.
func buildScheduler(cfg *config.Config, run *runner.Runner) (*cron.Cron, error) {
	scheduler := cron.New()

	jobs := []struct {
		name string
		spec string
		fn   func(context.Context, string, string) error
	}{
		{"permissions", cfg.Scheduler.Permissions, run.SyncPermissions},
		{"settings", cfg.Scheduler.Settings, run.SyncSettings},
		{"branches", cfg.Scheduler.Branches, run.SyncBranches},
		{"leaks", cfg.Scheduler.Leaks, run.ReconcileLeaks},
		{"checkers", cfg.Scheduler.Checkers, run.EvaluateCompliance},
		{"classification", cfg.Scheduler.Classification, run.Classify},
	}

	for _, job := range jobs {
		if job.spec == "" {
			slog.Info("Job disabled", "job", job.name)
			continue
		}
		name, fn := job.name, job.fn
		_, err := scheduler.AddFunc(job.spec, func() {
			if err := fn(context.Background(), "", ""); err != nil {
				slog.Error("Scheduled job failed", "job", name, "error", err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("schedule %s job: %w", job.name, err)
		}
		slog.Info("Job scheduled", "job", job.name, "cron", job.spec)
	}

	return scheduler, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
