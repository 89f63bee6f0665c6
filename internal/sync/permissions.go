package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gitwarden/gitwarden/internal/models"
	"github.com/gitwarden/gitwarden/internal/notify"
	"github.com/gitwarden/gitwarden/internal/principal"
	"github.com/gitwarden/gitwarden/internal/remote"
	"gorm.io/gorm"
)

// Permissions merges freshly fetched permission grants into the store
// for one resource at a time. After a run exactly one row exists per
// (resource, principal); revoked grants are announced through the
// outbox before their rows are deleted.
type Permissions struct {
	db       *gorm.DB
	outbox   *notify.Outbox
	resolver *principal.Resolver
}

// NewPermissions creates a permission synchronizer bound to the given
// database handle, typically the transaction of the current resource.
func NewPermissions(db *gorm.DB, outbox *notify.Outbox, resolver *principal.Resolver) *Permissions {
	return &Permissions{db: db, outbox: outbox, resolver: resolver}
}

// SyncRepository reconciles the remote entries for one repository.
func (s *Permissions) SyncRepository(ctx context.Context, repo *models.Repository, entries []remote.PermissionEntry) error {
	return s.sync(ctx, entries, permScope{repo: repo})
}

// SyncProject reconciles the remote entries for one project.
func (s *Permissions) SyncProject(ctx context.Context, project *models.Project, entries []remote.PermissionEntry) error {
	return s.sync(ctx, entries, permScope{project: project})
}

func (s *Permissions) sync(ctx context.Context, entries []remote.PermissionEntry, sc permScope) error {
	seen := make(map[uint]struct{}, len(entries))

	for _, entry := range entries {
		if entry.User == nil && entry.Group == nil {
			slog.Debug("Permission entry without principal, skipping", "resource", sc.label())
			continue
		}

		var userID, groupID *uint
		if entry.User != nil {
			user, err := s.resolver.ResolveUser(ctx, *entry.User)
			if err != nil {
				return err
			}
			userID = &user.ID
		} else {
			group, err := s.resolver.ResolveGroup(*entry.Group)
			if err != nil {
				return err
			}
			groupID = &group.ID
		}

		perm, err := s.upsert(sc, userID, groupID, entry.Grant)
		if err != nil {
			return err
		}
		seen[perm.ID] = struct{}{}
	}

	return s.deleteOrphans(sc, seen)
}

// upsert finds the row for (resource, principal) and overwrites its
// grant in place, creating the row when absent.
func (s *Permissions) upsert(sc permScope, userID, groupID *uint, grant remote.Grant) (*models.Permission, error) {
	q := sc.apply(s.db)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	} else {
		q = q.Where("user_id IS NULL AND group_id = ?", *groupID)
	}

	var perm models.Permission
	err := q.First(&perm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		perm = models.Permission{
			UserID:       userID,
			GroupID:      groupID,
			RepositoryID: sc.repositoryID(),
			ProjectID:    sc.projectID(),
			Active:       true,
		}
		slog.Debug("Adding new permission", "resource", sc.label())
	} else if err != nil {
		return nil, fmt.Errorf("look up permission on %s: %w", sc.label(), err)
	}

	// Exactly one shape is populated; clear the other so a grant that
	// switches shape leaves no stale value behind.
	if grant.IsSet() {
		perm.Permissions = models.StringList(grant.Set)
		perm.Permission = ""
	} else {
		perm.Permission = grant.Single
		perm.Permissions = nil
	}

	if err := s.db.Save(&perm).Error; err != nil {
		return nil, fmt.Errorf("save permission on %s: %w", sc.label(), err)
	}
	return &perm, nil
}

// deleteOrphans removes every persisted row for the resource whose ID
// was not touched this run. Each removal is announced first so the
// notification still references the row being deleted.
func (s *Permissions) deleteOrphans(sc permScope, seen map[uint]struct{}) error {
	var orphans []models.Permission
	err := sc.apply(s.db).Preload("User").Preload("Group").Find(&orphans).Error
	if err != nil {
		return fmt.Errorf("list permissions on %s: %w", sc.label(), err)
	}

	for i := range orphans {
		orphan := &orphans[i]
		if _, ok := seen[orphan.ID]; ok {
			continue
		}

		n := models.Notification{
			RepositoryID:   sc.repositoryID(),
			ProjectID:      sc.projectID(),
			UserID:         orphan.UserID,
			GroupID:        orphan.GroupID,
			PermissionType: orphan.Permission,
			Action:         models.ActionDelete,
			Type:           models.NotificationPermissions,
			Notified:       true,
			Content: fmt.Sprintf("Permission on %s has been removed for %s",
				sc.label(), principalName(orphan)),
		}
		if _, err := s.outbox.Submit(&n); err != nil {
			return err
		}
		if err := s.db.Delete(orphan).Error; err != nil {
			return fmt.Errorf("delete orphan permission %d: %w", orphan.ID, err)
		}
		slog.Info("Removed revoked permission", "resource", sc.label(), "principal", principalName(orphan))
	}
	return nil
}

func principalName(p *models.Permission) string {
	if p.User != nil {
		return fmt.Sprintf("user %s", p.User.Name)
	}
	if p.Group != nil {
		return fmt.Sprintf("group %s", p.Group.Name)
	}
	return "unknown principal"
}

// permScope selects the resource side of the ternary permission
// relation: exactly one of repo/project is set.
type permScope struct {
	repo    *models.Repository
	project *models.Project
}

func (sc permScope) apply(q *gorm.DB) *gorm.DB {
	if sc.repo != nil {
		return q.Where("repository_id = ?", sc.repo.ID)
	}
	return q.Where("project_id = ?", sc.project.ID)
}

func (sc permScope) repositoryID() *uint {
	if sc.repo != nil {
		return &sc.repo.ID
	}
	return nil
}

func (sc permScope) projectID() *uint {
	if sc.project != nil {
		return &sc.project.ID
	}
	return nil
}

func (sc permScope) label() string {
	if sc.repo != nil {
		return fmt.Sprintf("repository %s", sc.repo.Slug)
	}
	return fmt.Sprintf("project %s", sc.project.Key)
}
