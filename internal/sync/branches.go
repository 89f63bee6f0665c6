package sync

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gitwarden/gitwarden/internal/models"
	"github.com/gitwarden/gitwarden/internal/remote"
	"gorm.io/gorm"
)

// Branches keeps the stored branch protection state of a repository in
// step with the platform. Branch rows feed the default-branch
// restriction rule; removals are not announced, only permission and
// setting drift is.
type Branches struct {
	db *gorm.DB
}

// NewBranches creates a branch synchronizer bound to the given
// database handle.
func NewBranches(db *gorm.DB) *Branches {
	return &Branches{db: db}
}

// SyncRepository upserts the remotely reported branches (keyed by
// name) and drops stored branches absent from the fetch.
func (s *Branches) SyncRepository(repo *models.Repository, entries []remote.BranchEntry) error {
	seen := make(map[uint]struct{}, len(entries))

	for _, entry := range entries {
		var branch models.Branch
		err := s.db.Where("repository_id = ? AND name = ?", repo.ID, entry.Name).First(&branch).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			branch = models.Branch{RepositoryID: repo.ID, Name: entry.Name}
		} else if err != nil {
			return fmt.Errorf("look up branch %s on repository %s: %w", entry.Name, repo.Slug, err)
		}

		branch.Type = entry.Type
		branch.Active = entry.Active
		branch.ReviewersRequired = entry.ReviewersRequired
		branch.Permissions = models.StringList(entry.Permissions)

		if err := s.db.Save(&branch).Error; err != nil {
			return fmt.Errorf("save branch %s on repository %s: %w", entry.Name, repo.Slug, err)
		}
		seen[branch.ID] = struct{}{}
	}

	var stored []models.Branch
	if err := s.db.Where("repository_id = ?", repo.ID).Find(&stored).Error; err != nil {
		return fmt.Errorf("list branches on repository %s: %w", repo.Slug, err)
	}
	for i := range stored {
		if _, ok := seen[stored[i].ID]; ok {
			continue
		}
		if err := s.db.Delete(&stored[i]).Error; err != nil {
			return fmt.Errorf("delete stale branch %d: %w", stored[i].ID, err)
		}
		slog.Debug("Removed stale branch", "repo", repo.Slug, "branch", stored[i].Name)
	}
	return nil
}
