// Package classify derives data-sensitivity classification from
// unresolved leaks and propagates the maximum severity from
// repositories up to their owning projects.
package classify

import (
	"fmt"
	"log/slog"

	"github.com/gitwarden/gitwarden/internal/models"
	"github.com/gitwarden/gitwarden/internal/notify"
	"gorm.io/gorm"
)

// Severity tiers. The repository's stored classification is floored to
// {TierInternal, TierConfidential}; the reason string records the finer
// tier including vault secrets.
const (
	TierInternal     = 0
	TierConfidential = 1
	TierVaultSecret  = 2
)

var tierReasons = map[int]string{
	TierInternal:     "internal",
	TierConfidential: "confidential",
	TierVaultSecret:  "vault secret",
}

// Classifier computes repository classifications and aggregates them
// per project.
type Classifier struct {
	db     *gorm.DB
	outbox *notify.Outbox
}

// NewClassifier creates a classifier bound to the given database
// handle.
func NewClassifier(db *gorm.DB, outbox *notify.Outbox) *Classifier {
	return &Classifier{db: db, outbox: outbox}
}

// ClassifyRepository recomputes the repository classification from its
// unresolved leaks: a vault-tagged leak forces the vault tier, any
// other leak the confidential tier. A change to the stored value is
// recorded as a history-only notification.
func (c *Classifier) ClassifyRepository(repo *models.Repository) error {
	var leaks []models.Leak
	err := c.db.Where("repository_id = ? AND fixed = ? AND is_false_positive = ?",
		repo.ID, false, false).Find(&leaks).Error
	if err != nil {
		return fmt.Errorf("list open leaks for repository %s: %w", repo.Slug, err)
	}

	severity := TierInternal
	for i := range leaks {
		if leaks[i].HasTag("vault") {
			severity = TierVaultSecret
			break
		}
		severity = TierConfidential
	}

	stored := severity
	if stored > TierConfidential {
		stored = TierConfidential
	}

	if stored != repo.Classification {
		content := fmt.Sprintf("%s classification has been updated from %d to %d",
			repo.Name, repo.Classification, stored)
		slog.Debug(content)
		n := models.Notification{
			RepositoryID: &repo.ID,
			Type:         models.NotificationLeak,
			Action:       models.ActionUpdate,
			Notified:     true,
			Content:      content,
		}
		if _, err := c.outbox.Submit(&n); err != nil {
			return err
		}
	}

	repo.Classification = stored
	repo.ClassificationReason = tierReasons[severity]
	err = c.db.Model(repo).Updates(map[string]interface{}{
		"classification":        stored,
		"classification_reason": repo.ClassificationReason,
	}).Error
	if err != nil {
		return fmt.Errorf("update classification for repository %s: %w", repo.Slug, err)
	}
	return nil
}

// AggregateProjects raises each project's classification to the
// maximum over its member repositories, copying the reason from the
// repository supplying the new maximum. Monotonic: a project's
// classification is never lowered through this path.
func (c *Classifier) AggregateProjects() error {
	var projects []models.Project
	if err := c.db.Preload("Repositories").Find(&projects).Error; err != nil {
		return fmt.Errorf("list projects: %w", err)
	}

	for i := range projects {
		project := &projects[i]
		classification := project.Classification
		reason := project.ClassificationReason

		for j := range project.Repositories {
			repo := &project.Repositories[j]
			if repo.Classification > classification {
				classification = repo.Classification
				reason = repo.ClassificationReason
			}
		}

		if classification == project.Classification {
			continue
		}
		slog.Info("Raising project classification", "project", project.Key,
			"from", project.Classification, "to", classification)
		err := c.db.Model(project).Updates(map[string]interface{}{
			"classification":        classification,
			"classification_reason": reason,
		}).Error
		if err != nil {
			return fmt.Errorf("update classification for project %s: %w", project.Key, err)
		}
	}
	return nil
}
