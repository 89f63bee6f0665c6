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

// Settings reconciles policy records (branch restrictions and similar)
// with the same upsert/orphan-delete discipline as permissions, plus an
// inner reconciliation of each setting's bypass-principal lists.
type Settings struct {
	db       *gorm.DB
	outbox   *notify.Outbox
	resolver *principal.Resolver
}

// NewSettings creates a settings synchronizer bound to the given
// database handle.
func NewSettings(db *gorm.DB, outbox *notify.Outbox, resolver *principal.Resolver) *Settings {
	return &Settings{db: db, outbox: outbox, resolver: resolver}
}

// SyncRepository upserts the remote setting entries for one repository
// and returns the IDs of every touched row. Orphan detection runs at
// batch level across all processed repositories (DeleteOrphans), since
// project-scoped settings surface through several repositories.
func (s *Settings) SyncRepository(ctx context.Context, repo *models.Repository, entries []remote.SettingEntry) ([]uint, error) {
	seen := make([]uint, 0, len(entries))

	for _, entry := range entries {
		setting, err := s.upsert(repo, entry)
		if err != nil {
			return nil, err
		}
		if err := s.reconcileMembers(ctx, setting, entry); err != nil {
			return nil, err
		}
		seen = append(seen, setting.ID)
	}
	return seen, nil
}

func (s *Settings) upsert(repo *models.Repository, entry remote.SettingEntry) (*models.Setting, error) {
	q := s.db.Where("type = ? AND repository_id = ? AND matcher_id = ?",
		entry.Type, repo.ID, entry.MatcherID)
	if entry.ProjectID != nil {
		q = q.Where("project_id = ?", *entry.ProjectID)
	} else {
		q = q.Where("project_id IS NULL")
	}

	var setting models.Setting
	err := q.First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		setting = models.Setting{
			RepositoryID: &repo.ID,
			ProjectID:    entry.ProjectID,
		}
		slog.Debug("Adding new setting", "repo", repo.Slug, "type", entry.Type, "matcher", entry.MatcherID)
	} else if err != nil {
		return nil, fmt.Errorf("look up setting on repository %s: %w", repo.Slug, err)
	}

	setting.Type = entry.Type
	setting.Active = entry.Active
	setting.AccessKeys = entry.AccessKeys
	setting.MatcherID = entry.MatcherID
	setting.MatcherType = entry.MatcherType
	setting.MatcherActive = entry.MatcherActive
	setting.ScopeType = entry.ScopeType

	if err := s.db.Save(&setting).Error; err != nil {
		return nil, fmt.Errorf("save setting on repository %s: %w", repo.Slug, err)
	}
	return &setting, nil
}

// reconcileMembers adds newly reported bypass principals and removes
// the ones the latest fetch no longer lists, independent of whether
// the setting's own fields changed.
func (s *Settings) reconcileMembers(ctx context.Context, setting *models.Setting, entry remote.SettingEntry) error {
	var current models.Setting
	err := s.db.Preload("Users").Preload("Groups").First(&current, setting.ID).Error
	if err != nil {
		return fmt.Errorf("load setting members: %w", err)
	}

	for i := range current.Users {
		member := &current.Users[i]
		found := false
		for _, u := range entry.Users {
			if member.Source == u.Source && member.RemoteID == u.ID {
				found = true
				break
			}
		}
		if !found {
			slog.Debug("Removing user from setting", "user", member.Name, "setting", setting.ID)
			if err := s.db.Model(setting).Association("Users").Delete(member); err != nil {
				return fmt.Errorf("remove setting user: %w", err)
			}
		}
	}

	for i := range current.Groups {
		member := &current.Groups[i]
		found := false
		for _, g := range entry.Groups {
			if member.Name == g.Name {
				found = true
				break
			}
		}
		if !found {
			slog.Debug("Removing group from setting", "group", member.Name, "setting", setting.ID)
			if err := s.db.Model(setting).Association("Groups").Delete(member); err != nil {
				return fmt.Errorf("remove setting group: %w", err)
			}
		}
	}

	for _, u := range entry.Users {
		user, err := s.resolver.ResolveUser(ctx, u)
		if err != nil {
			return err
		}
		if err := s.db.Model(setting).Association("Users").Append(user); err != nil {
			return fmt.Errorf("add setting user: %w", err)
		}
	}
	for _, g := range entry.Groups {
		group, err := s.resolver.ResolveGroup(g)
		if err != nil {
			return err
		}
		if err := s.db.Model(setting).Association("Groups").Append(group); err != nil {
			return fmt.Errorf("add setting group: %w", err)
		}
	}
	return nil
}

// DeleteOrphans removes settings belonging to the processed
// repositories whose IDs were never seen this run, announcing each
// removal before deletion.
func (s *Settings) DeleteOrphans(repoIDs []uint, seen []uint) error {
	if len(repoIDs) == 0 {
		return nil
	}

	seenSet := make(map[uint]struct{}, len(seen))
	for _, id := range seen {
		seenSet[id] = struct{}{}
	}

	var candidates []models.Setting
	err := s.db.Preload("Repository").Where("repository_id IN ?", repoIDs).Find(&candidates).Error
	if err != nil {
		return fmt.Errorf("list settings for orphan check: %w", err)
	}

	for i := range candidates {
		setting := &candidates[i]
		if _, ok := seenSet[setting.ID]; ok {
			continue
		}

		name := ""
		if setting.Repository != nil {
			name = setting.Repository.Slug
		}
		n := models.Notification{
			RepositoryID: setting.RepositoryID,
			Action:       models.ActionDelete,
			Type:         models.NotificationSettings,
			Notified:     true,
			Content:      fmt.Sprintf("Setting %s on repository %s has been removed", setting.Type, name),
		}
		if _, err := s.outbox.Submit(&n); err != nil {
			return err
		}

		if err := s.db.Model(setting).Association("Users").Clear(); err != nil {
			return fmt.Errorf("clear setting users: %w", err)
		}
		if err := s.db.Model(setting).Association("Groups").Clear(); err != nil {
			return fmt.Errorf("clear setting groups: %w", err)
		}
		if err := s.db.Delete(setting).Error; err != nil {
			return fmt.Errorf("delete orphan setting %d: %w", setting.ID, err)
		}
		slog.Info("Removed stale setting", "type", setting.Type, "repo", name)
	}
	return nil
}
