package leaks

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gitwarden/gitwarden/internal/models"
	"github.com/gitwarden/gitwarden/internal/notify"
	"gorm.io/gorm"
)

// Gitleaks refines this rule label over time; two findings matching on
// everything else adopt the newer label instead of counting as new.
const ruleGenericAPIKey = "Generic API Key"

// Tracker drives discovered leaks through their lifecycle:
// New -> Open -> Fixed -> Reopened. Matching across scans uses the
// composite content key (file, rule, date, branch, commit, repository);
// the complement pass uses the weaker leak-URL identity.
type Tracker struct {
	db     *gorm.DB
	outbox *notify.Outbox
	now    func() time.Time
}

// NewTracker creates a tracker bound to the given database handle.
func NewTracker(db *gorm.DB, outbox *notify.Outbox) *Tracker {
	return &Tracker{db: db, outbox: outbox, now: time.Now}
}

// Reconcile merges the findings of one scan into the stored leaks for
// the repository: creates new findings (with an "add" notification),
// updates line pointers in place, silently reopens previously fixed
// findings, and finally marks open leaks absent from the scan as fixed
// (with a resolution notification each). Safe to re-invoke with the
// same scan results.
func (t *Tracker) Reconcile(repo *models.Repository, scanned []models.Leak) error {
	for i := range scanned {
		if err := t.processFinding(repo, &scanned[i]); err != nil {
			return err
		}
	}

	if repo == nil {
		return nil
	}

	if err := t.markFixed(repo, scanned); err != nil {
		return err
	}

	return t.updateScanStats(repo)
}

func (t *Tracker) processFinding(repo *models.Repository, leak *models.Leak) error {
	// Map condition so GORM quotes the identifiers; "commit" is a
	// reserved word on sqlite.
	var stored models.Leak
	q := t.db.Where(map[string]interface{}{
		"file":   leak.File,
		"rule":   leak.Rule,
		"date":   leak.Date,
		"branch": leak.Branch,
		"commit": leak.Commit,
	})
	if repo != nil {
		q = q.Where("repository_id = ?", repo.ID)
	} else {
		q = q.Where("repository_id IS NULL")
	}

	err := q.First(&stored).Error
	if err == nil {
		return t.updateExisting(&stored, leak)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("look up leak: %w", err)
	}

	// New finding. Without repository context the record stays
	// unlinked, kept only as a report for manual triage.
	if repo == nil {
		slog.Error("No repository to link new leak with, keeping report only", "file", leak.File, "rule", leak.Rule)
		return nil
	}

	leak.RepositoryID = &repo.ID
	if err := t.db.Create(leak).Error; err != nil {
		return fmt.Errorf("create leak: %w", err)
	}
	slog.Info("New leak found", "repo", repo.Slug, "file", leak.File, "rule", leak.Rule)

	n := models.Notification{
		RepositoryID: &repo.ID,
		LeakID:       &leak.ID,
		Action:       models.ActionAdd,
		Type:         models.NotificationLeak,
		Content:      fmt.Sprintf("A new leak has been found in repository %s. URL: %s", repo.Slug, leak.LeakURL),
	}
	_, err = t.outbox.Submit(&n)
	return err
}

func (t *Tracker) updateExisting(stored, scanned *models.Leak) error {
	// A shifted line pointer is the same finding, not a new or
	// resolved one.
	if stored.LineNumber != scanned.LineNumber {
		slog.Warn("Leak line number changed, updating pointer", "leak", stored.ID,
			"from", stored.LineNumber, "to", scanned.LineNumber)
		return t.db.Model(stored).Update("line_number", scanned.LineNumber).Error
	}

	// Reopened: the finding came back after being marked fixed. The
	// reopening is silent; no new notification is emitted.
	if stored.Fixed {
		slog.Warn("Previously fixed leak found again, reopening", "leak", stored.ID)
		return t.db.Model(stored).Updates(map[string]interface{}{
			"fixed":      false,
			"fixed_date": nil,
		}).Error
	}

	return nil
}

// markFixed computes the complement: open leaks for the repository
// with no corresponding scan entry become fixed, each announced once.
// False positives never enter the comparison set, so a dismissed
// finding is not resurrected as "fixed" noise.
func (t *Tracker) markFixed(repo *models.Repository, scanned []models.Leak) error {
	var open []models.Leak
	err := t.db.Where("repository_id = ? AND fixed = ? AND is_false_positive = ?",
		repo.ID, false, false).Find(&open).Error
	if err != nil {
		return fmt.Errorf("list open leaks: %w", err)
	}

	for i := range open {
		leak := &open[i]
		found := false
		for j := range scanned {
			if leak.SameURL(&scanned[j]) {
				if leak.Rule == ruleGenericAPIKey && scanned[j].Rule != leak.Rule {
					if err := t.db.Model(leak).Update("rule", scanned[j].Rule).Error; err != nil {
						return fmt.Errorf("refine leak rule: %w", err)
					}
				}
				found = true
				break
			}
		}
		if found {
			continue
		}

		slog.Info("Leak no longer found, marking fixed", "leak", leak.ID, "repo", repo.Slug)
		n := models.Notification{
			RepositoryID: &repo.ID,
			LeakID:       &leak.ID,
			Action:       models.ActionDelete,
			Type:         models.NotificationLeak,
			Notified:     true,
			Resolved:     true,
			Content:      fmt.Sprintf("Leak %d has not been found in the latest scan and is marked fixed", leak.ID),
		}
		if _, err := t.outbox.Submit(&n); err != nil {
			return err
		}

		err := t.db.Model(leak).Updates(map[string]interface{}{
			"fixed":      true,
			"fixed_date": t.now().UTC(),
		}).Error
		if err != nil {
			return fmt.Errorf("mark leak %d fixed: %w", leak.ID, err)
		}
	}
	return nil
}

func (t *Tracker) updateScanStats(repo *models.Repository) error {
	var count int64
	err := t.db.Model(&models.Leak{}).
		Where("repository_id = ? AND fixed = ? AND is_false_positive = ?", repo.ID, false, false).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("count open leaks: %w", err)
	}

	return t.db.Model(repo).Updates(map[string]interface{}{
		"last_scan_date": t.now().UTC(),
		"leak_count":     count,
	}).Error
}
