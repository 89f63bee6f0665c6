// Package runner drives the batch jobs: one job category per run
// (permissions, settings, branches, leaks, checkers, classification),
// each iterating resources strictly sequentially. Every resource is
// reconciled inside its own transaction and committed immediately, so
// a crash loses at most the in-flight resource. No error from one
// resource ever aborts the batch.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gitwarden/gitwarden/internal/classify"
	"github.com/gitwarden/gitwarden/internal/config"
	"github.com/gitwarden/gitwarden/internal/leaks"
	"github.com/gitwarden/gitwarden/internal/models"
	"github.com/gitwarden/gitwarden/internal/notify"
	"github.com/gitwarden/gitwarden/internal/principal"
	"github.com/gitwarden/gitwarden/internal/remote"
	"github.com/gitwarden/gitwarden/internal/rules"
	gwsync "github.com/gitwarden/gitwarden/internal/sync"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Runner executes batch jobs against the store.
type Runner struct {
	db      *gorm.DB
	cfg     *config.Config
	clients map[string]remote.Client
}

// New creates a runner. The clients map may pre-seed platform clients
// per source; missing sources are resolved lazily through the remote
// factory registry.
func New(db *gorm.DB, cfg *config.Config, clients map[string]remote.Client) *Runner {
	if clients == nil {
		clients = make(map[string]remote.Client)
	}
	return &Runner{db: db, cfg: cfg, clients: clients}
}

// clientFor returns the platform client for a source, resolving and
// caching it on first use.
func (r *Runner) clientFor(source string) (remote.Client, error) {
	if c, ok := r.clients[source]; ok {
		return c, nil
	}
	c, err := remote.New(source)
	if err != nil {
		return nil, err
	}
	r.clients[source] = c
	return c, nil
}

// SyncPermissions fetches and reconciles permission grants for every
// processable repository and project of the source. An empty source
// means all sources; a non-empty repoURL restricts the run to one
// repository.
func (r *Runner) SyncPermissions(ctx context.Context, source, repoURL string) error {
	run := uuid.New()
	slog.Info("Starting permission sync", "run", run, "source", source)

	// Denied repositories are retried here: a successful fetch is the
	// signal that admin access has been restored.
	repos, err := r.repositories(source, repoURL, true, "Project")
	if err != nil {
		return err
	}
	for i := range repos {
		repo := &repos[i]
		if repo.IsPersonal() {
			slog.Debug("Skipping personal repository", "repo", repo.Slug)
			continue
		}

		client, err := r.clientFor(repo.Source)
		if err != nil {
			slog.Error("No client for repository source", "repo", repo.Slug, "source", repo.Source, "error", err)
			continue
		}

		entries, err := client.RepoPermissions(ctx, repo)
		if r.handleRepoFetchError(repo, err) {
			continue
		}

		err = r.db.Transaction(func(tx *gorm.DB) error {
			// Fetch succeeded, so admin access is back if it was gone.
			if err := tx.Model(repo).Update("access_denied_to_admin", false).Error; err != nil {
				return err
			}
			outbox := notify.NewOutbox(tx)
			resolver := principal.NewResolver(tx, client, r.cfg.BestPractices.ExternalGroups)
			return gwsync.NewPermissions(tx, outbox, resolver).SyncRepository(ctx, repo, entries)
		})
		if err != nil {
			slog.Error("Permission sync failed", "run", run, "repo", repo.Slug, "error", err)
		}
	}

	if repoURL != "" {
		return nil
	}

	projects, err := r.projects(source)
	if err != nil {
		return err
	}
	for i := range projects {
		project := &projects[i]

		client, err := r.clientFor(project.Source)
		if err != nil {
			slog.Error("No client for project source", "project", project.Key, "source", project.Source, "error", err)
			continue
		}

		entries, err := client.ProjectPermissions(ctx, project)
		if r.handleProjectFetchError(project, err) {
			continue
		}

		err = r.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(project).Update("access_denied_to_admin", false).Error; err != nil {
				return err
			}
			outbox := notify.NewOutbox(tx)
			resolver := principal.NewResolver(tx, client, r.cfg.BestPractices.ExternalGroups)
			return gwsync.NewPermissions(tx, outbox, resolver).SyncProject(ctx, project, entries)
		})
		if err != nil {
			slog.Error("Permission sync failed", "run", run, "project", project.Key, "error", err)
		}
	}

	slog.Info("Permission sync done", "run", run)
	return nil
}

// SyncSettings fetches and reconciles policy settings. Orphan settings
// are removed in a final pass across all repositories processed this
// run.
func (r *Runner) SyncSettings(ctx context.Context, source, repoURL string) error {
	run := uuid.New()
	slog.Info("Starting settings sync", "run", run, "source", source)

	repos, err := r.repositories(source, repoURL, false, "Project")
	if err != nil {
		return err
	}

	var seen []uint
	var processed []uint
	for i := range repos {
		repo := &repos[i]
		if repo.IsPersonal() {
			continue
		}

		client, err := r.clientFor(repo.Source)
		if err != nil {
			slog.Error("No client for repository source", "repo", repo.Slug, "source", repo.Source, "error", err)
			continue
		}

		entries, err := client.RepoSettings(ctx, repo)
		if r.handleRepoFetchError(repo, err) {
			continue
		}

		err = r.db.Transaction(func(tx *gorm.DB) error {
			outbox := notify.NewOutbox(tx)
			resolver := principal.NewResolver(tx, client, r.cfg.BestPractices.ExternalGroups)
			ids, err := gwsync.NewSettings(tx, outbox, resolver).SyncRepository(ctx, repo, entries)
			if err != nil {
				return err
			}
			seen = append(seen, ids...)
			return nil
		})
		if err != nil {
			slog.Error("Settings sync failed", "run", run, "repo", repo.Slug, "error", err)
			continue
		}
		processed = append(processed, repo.ID)
	}

	err = r.db.Transaction(func(tx *gorm.DB) error {
		outbox := notify.NewOutbox(tx)
		// Orphan deletion never resolves principals, no client needed.
		return gwsync.NewSettings(tx, outbox, nil).DeleteOrphans(processed, seen)
	})
	if err != nil {
		slog.Error("Settings orphan cleanup failed", "run", run, "error", err)
	}

	slog.Info("Settings sync done", "run", run)
	return nil
}

// SyncBranches refreshes the stored branch protection state.
func (r *Runner) SyncBranches(ctx context.Context, source, repoURL string) error {
	run := uuid.New()
	slog.Info("Starting branch sync", "run", run, "source", source)

	repos, err := r.repositories(source, repoURL, false, "Project")
	if err != nil {
		return err
	}
	for i := range repos {
		repo := &repos[i]
		if repo.IsPersonal() {
			continue
		}

		client, err := r.clientFor(repo.Source)
		if err != nil {
			slog.Error("No client for repository source", "repo", repo.Slug, "source", repo.Source, "error", err)
			continue
		}

		entries, err := client.RepoBranches(ctx, repo)
		if r.handleRepoFetchError(repo, err) {
			continue
		}

		err = r.db.Transaction(func(tx *gorm.DB) error {
			return gwsync.NewBranches(tx).SyncRepository(repo, entries)
		})
		if err != nil {
			slog.Error("Branch sync failed", "run", run, "repo", repo.Slug, "error", err)
		}
	}

	slog.Info("Branch sync done", "run", run)
	return nil
}

// ReconcileLeaks ingests the scan report of each repository (written
// by the external scanner under scanner.report_folder as <slug>.json)
// and reconciles the findings. Reports are removed after a successful
// pass.
func (r *Runner) ReconcileLeaks(ctx context.Context, source, repoURL string) error {
	run := uuid.New()
	slog.Info("Starting leak reconciliation", "run", run, "source", source)

	repos, err := r.repositories(source, repoURL, true, "Project")
	if err != nil {
		return err
	}
	for i := range repos {
		repo := &repos[i]
		if repo.IsPersonal() {
			continue
		}

		reportPath := filepath.Join(r.cfg.Scanner.ReportFolder, repo.Slug+".json")
		if _, err := os.Stat(reportPath); os.IsNotExist(err) {
			slog.Debug("No scan report, skipping", "repo", repo.Slug)
			continue
		}

		if err := r.reconcileRepoLeaks(repo, reportPath); err != nil {
			slog.Error("Leak reconciliation failed", "run", run, "repo", repo.Slug, "error", err)
			continue
		}
		if err := os.Remove(reportPath); err != nil {
			slog.Warn("Could not remove processed scan report", "path", reportPath, "error", err)
		}
	}

	slog.Info("Leak reconciliation done", "run", run)
	return nil
}

func (r *Runner) reconcileRepoLeaks(repo *models.Repository, reportPath string) error {
	findings, err := leaks.ReadReport(reportPath)
	if err != nil {
		return err
	}
	findings = leaks.Filter(findings, r.cfg.Scanner, repo.Slug)

	scanned := make([]models.Leak, 0, len(findings))
	for _, f := range findings {
		scanned = append(scanned, leaks.ToLeak(f, repo))
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		outbox := notify.NewOutbox(tx)
		return leaks.NewTracker(tx, outbox).Reconcile(repo, scanned)
	})
}

// EvaluateCompliance runs the registered compliance rules over every
// repository and project of the source. Access-denied resources are
// included so the access-to-admin rule can flag them.
func (r *Runner) EvaluateCompliance(ctx context.Context, source, repoURL string) error {
	run := uuid.New()
	slog.Info("Starting compliance checks", "run", run, "source", source)

	repos, err := r.repositories(source, repoURL, true,
		"Project", "Branches", "Permissions.User.Groups", "Permissions.Group")
	if err != nil {
		return err
	}
	for i := range repos {
		repo := &repos[i]
		if repo.IsPersonal() {
			continue
		}

		err := r.db.Transaction(func(tx *gorm.DB) error {
			outbox := notify.NewOutbox(tx)
			return rules.NewEvaluator(tx, outbox, r.cfg).EvaluateRepository(repo)
		})
		if err != nil {
			slog.Error("Compliance check failed", "run", run, "repo", repo.Slug, "error", err)
		}
	}

	if repoURL != "" {
		return nil
	}

	projects, err := r.projectsWith(source, "Permissions.User.Groups", "Permissions.Group")
	if err != nil {
		return err
	}
	for i := range projects {
		project := &projects[i]
		err := r.db.Transaction(func(tx *gorm.DB) error {
			outbox := notify.NewOutbox(tx)
			return rules.NewEvaluator(tx, outbox, r.cfg).EvaluateProject(project)
		})
		if err != nil {
			slog.Error("Compliance check failed", "run", run, "project", project.Key, "error", err)
		}
	}

	slog.Info("Compliance checks done", "run", run)
	return nil
}

// Classify recomputes repository classifications from open leaks, then
// aggregates the maxima up to projects.
func (r *Runner) Classify(ctx context.Context, source, repoURL string) error {
	run := uuid.New()
	slog.Info("Starting classification", "run", run, "source", source)

	repos, err := r.repositories(source, repoURL, true)
	if err != nil {
		return err
	}
	for i := range repos {
		repo := &repos[i]
		err := r.db.Transaction(func(tx *gorm.DB) error {
			outbox := notify.NewOutbox(tx)
			return classify.NewClassifier(tx, outbox).ClassifyRepository(repo)
		})
		if err != nil {
			slog.Error("Classification failed", "run", run, "repo", repo.Slug, "error", err)
		}
	}

	err = r.db.Transaction(func(tx *gorm.DB) error {
		outbox := notify.NewOutbox(tx)
		return classify.NewClassifier(tx, outbox).AggregateProjects()
	})
	if err != nil {
		slog.Error("Project aggregation failed", "run", run, "error", err)
	}

	slog.Info("Classification done", "run", run)
	return nil
}

// handleRepoFetchError applies the failure policy for a remote fetch
// and reports whether the repository should be skipped. Access denied
// and not-found set their flags; anything else is logged. The batch
// continues in every case.
func (r *Runner) handleRepoFetchError(repo *models.Repository, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, remote.ErrAccessDenied):
		slog.Warn("Access denied, flagging repository", "repo", repo.Slug)
		if dberr := r.db.Model(repo).Update("access_denied_to_admin", true).Error; dberr != nil {
			slog.Error("Could not flag repository", "repo", repo.Slug, "error", dberr)
		}
	case errors.Is(err, remote.ErrNotFound):
		slog.Warn("Repository deleted upstream, flagging", "repo", repo.Slug)
		if dberr := r.db.Model(repo).Update("deleted", true).Error; dberr != nil {
			slog.Error("Could not flag repository", "repo", repo.Slug, "error", dberr)
		}
	default:
		slog.Error("Fetch failed, skipping repository", "repo", repo.Slug, "error", err)
	}
	return true
}

func (r *Runner) handleProjectFetchError(project *models.Project, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, remote.ErrAccessDenied):
		slog.Warn("Access denied, flagging project", "project", project.Key)
		if dberr := r.db.Model(project).Update("access_denied_to_admin", true).Error; dberr != nil {
			slog.Error("Could not flag project", "project", project.Key, "error", dberr)
		}
	case errors.Is(err, remote.ErrNotFound):
		slog.Warn("Project deleted upstream, flagging", "project", project.Key)
		if dberr := r.db.Model(project).Update("deleted", true).Error; dberr != nil {
			slog.Error("Could not flag project", "project", project.Key, "error", dberr)
		}
	default:
		slog.Error("Fetch failed, skipping project", "project", project.Key, "error", err)
	}
	return true
}

// repositories loads the processable repositories for a job:
// not deleted, not archived, and unless includeDenied is set, not
// flagged access-denied.
func (r *Runner) repositories(source, repoURL string, includeDenied bool, preloads ...string) ([]models.Repository, error) {
	q := r.db.Where("deleted = ? AND archived = ?", false, false)
	if source != "" {
		q = q.Where("source = ?", source)
	}
	if repoURL != "" {
		q = q.Where("url_http = ?", repoURL)
	}
	if !includeDenied {
		q = q.Where("access_denied_to_admin = ?", false)
	}
	for _, p := range preloads {
		q = q.Preload(p)
	}

	var repos []models.Repository
	if err := q.Find(&repos).Error; err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	return repos, nil
}

func (r *Runner) projects(source string) ([]models.Project, error) {
	return r.projectsWith(source)
}

func (r *Runner) projectsWith(source string, preloads ...string) ([]models.Project, error) {
	q := r.db.Where("deleted = ? AND archived = ?", false, false)
	if source != "" {
		q = q.Where("source = ?", source)
	}
	for _, p := range preloads {
		q = q.Preload(p)
	}

	var projects []models.Project
	if err := q.Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}
