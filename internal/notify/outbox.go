// Package notify implements the notification outbox: the single
// chokepoint through which every reconciliation component emits
// notifications, deduplicated against unresolved entries so repeated
// runs stay idempotent with respect to alert volume.
package notify

import (
	"fmt"
	"log/slog"

	"github.com/gitwarden/gitwarden/internal/models"
	"gorm.io/gorm"
)

// Outbox persists and serves notifications. Construct with the
// transaction handle of the current reconciliation pass so submissions
// commit atomically with the state they describe.
type Outbox struct {
	db *gorm.DB
}

// NewOutbox creates an outbox bound to the given database handle.
func NewOutbox(db *gorm.DB) *Outbox {
	return &Outbox{db: db}
}

// Submit persists the candidate unless an unresolved notification with
// identical (project, repository, type, content) already exists.
// Returns true when the candidate was stored, false when suppressed.
func (o *Outbox) Submit(n *models.Notification) (bool, error) {
	q := o.db.Model(&models.Notification{}).
		Where("resolved = ?", false).
		Where("type = ?", n.Type).
		Where("content = ?", n.Content)
	if n.ProjectID != nil {
		q = q.Where("project_id = ?", *n.ProjectID)
	} else {
		q = q.Where("project_id IS NULL")
	}
	if n.RepositoryID != nil {
		q = q.Where("repository_id = ?", *n.RepositoryID)
	} else {
		q = q.Where("repository_id IS NULL")
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("check existing notification: %w", err)
	}
	if count > 0 {
		slog.Debug("Suppressing duplicate notification", "type", n.Type, "content", n.Content)
		return false, nil
	}

	if err := o.db.Create(n).Error; err != nil {
		return false, fmt.Errorf("create notification: %w", err)
	}
	return true, nil
}

// Pending returns undelivered, unresolved notifications ordered by
// project then repository, the order the delivery collaborator groups
// them in.
func (o *Outbox) Pending() ([]models.Notification, error) {
	var notifications []models.Notification
	err := o.db.
		Where("notified = ? AND resolved = ?", false, false).
		Order("project_id").Order("repository_id").
		Preload("Project").Preload("Repository").Preload("User").Preload("Group").Preload("Leak").
		Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	return notifications, nil
}

// MarkNotified records that the delivery collaborator has sent the
// notification.
func (o *Outbox) MarkNotified(id uint) error {
	res := o.db.Model(&models.Notification{}).Where("id = ?", id).Update("notified", true)
	if res.Error != nil {
		return fmt.Errorf("mark notification %d notified: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
