package rules

import (
	"fmt"
	"strings"

	"github.com/gitwarden/gitwarden/internal/config"
	"github.com/gitwarden/gitwarden/internal/models"
)

// repoAdminCount flags repositories whose admin head-count exceeds the
// configured ceiling.
type repoAdminCount struct{}

func (r *repoAdminCount) Name() string { return "admin_count" }

func (r *repoAdminCount) Check(repo *models.Repository, cfg config.RuleConfig, _ Env) ([]models.Notification, error) {
	if cfg.Max <= 0 {
		return nil, &ConfigError{Rule: r.Name(), Param: "max"}
	}

	admins := 0
	for i := range repo.Permissions {
		p := &repo.Permissions[i]
		if p.UserID != nil && p.GrantsAdmin() {
			admins++
		}
	}

	if admins <= cfg.Max {
		return nil, nil
	}
	return []models.Notification{{
		RepositoryID: &repo.ID,
		Type:         models.NotificationCompliance,
		Content:      fmt.Sprintf("Repository %s has %d admins", repo.Name, admins),
	}}, nil
}

// repoAccessToAdmin flags repositories the tool itself cannot
// administer.
type repoAccessToAdmin struct{}

func (r *repoAccessToAdmin) Name() string { return "access_to_admin" }

func (r *repoAccessToAdmin) Check(repo *models.Repository, _ config.RuleConfig, _ Env) ([]models.Notification, error) {
	if !repo.AccessDeniedToAdmin {
		return nil, nil
	}
	return []models.Notification{{
		RepositoryID: &repo.ID,
		Type:         models.NotificationCompliance,
		Content:      fmt.Sprintf("Repository %s: GitWarden doesn't have ADMIN access", repo.Name),
	}}, nil
}

// repoExternalAdmin flags external users holding admin-tier
// permissions.
type repoExternalAdmin struct{}

func (r *repoExternalAdmin) Name() string { return "external_user_as_admin" }

func (r *repoExternalAdmin) Check(repo *models.Repository, _ config.RuleConfig, env Env) ([]models.Notification, error) {
	var ns []models.Notification
	for i := range repo.Permissions {
		p := &repo.Permissions[i]
		if p.User == nil || !p.GrantsAdmin() {
			continue
		}
		if p.User.IsExternal(env.ExternalGroups) {
			ns = append(ns, models.Notification{
				RepositoryID: &repo.ID,
				UserID:       p.UserID,
				Type:         models.NotificationCompliance,
				Content:      fmt.Sprintf("%s is external and has REPO_ADMIN on repository %s", p.User.Name, repo.Name),
			})
		}
	}
	return ns, nil
}

// repoNoGroups flags repositories with group-level grants; access
// should be governed at the project level. GitHub repositories are
// exempt (teams are the normal grant shape there).
type repoNoGroups struct{}

func (r *repoNoGroups) Name() string { return "no_groups" }

func (r *repoNoGroups) Check(repo *models.Repository, _ config.RuleConfig, _ Env) ([]models.Notification, error) {
	if repo.Source == models.SourceGitHub {
		return nil, nil
	}

	var groups []string
	for i := range repo.Permissions {
		p := &repo.Permissions[i]
		if p.GroupID != nil && p.Group != nil {
			groups = append(groups, p.Group.Name)
		}
	}

	if len(groups) == 0 {
		return nil, nil
	}
	return []models.Notification{{
		RepositoryID: &repo.ID,
		Type:         models.NotificationCompliance,
		Content: fmt.Sprintf("%s has groups granted directly (%s). A repository should have no groups specified.",
			repo.Name, strings.Join(groups, ",")),
	}}, nil
}

// repoExternalConfidential flags external users with any access to a
// classified repository.
type repoExternalConfidential struct{}

func (r *repoExternalConfidential) Name() string { return "external_user_confidential" }

func (r *repoExternalConfidential) Check(repo *models.Repository, _ config.RuleConfig, env Env) ([]models.Notification, error) {
	if repo.Classification == 0 {
		return nil, nil
	}

	var ns []models.Notification
	for i := range repo.Permissions {
		p := &repo.Permissions[i]
		if p.User == nil {
			continue
		}
		if p.User.IsExternal(env.ExternalGroups) {
			ns = append(ns, models.Notification{
				RepositoryID: &repo.ID,
				UserID:       p.UserID,
				Type:         models.NotificationCompliance,
				Content: fmt.Sprintf("%s is external and has access to the confidential repository %s",
					p.User.Name, repo.Name),
			})
		}
	}
	return ns, nil
}

// Branch protection flags a platform must not report on the default
// branch.
var forbiddenBranchPermissions = []string{
	"allow_force_pushes",
	"bypass_pull_request_allowances",
	"allow_deletions",
}

// repoBranchRestriction flags missing protections on the default
// branch, and the absence of a default branch entirely.
type repoBranchRestriction struct{}

func (r *repoBranchRestriction) Name() string { return "branch_restriction" }

func (r *repoBranchRestriction) Check(repo *models.Repository, cfg config.RuleConfig, _ Env) ([]models.Notification, error) {
	if repo.DefaultBranch == "" {
		return []models.Notification{{
			RepositoryID: &repo.ID,
			Type:         models.NotificationCompliance,
			Content:      fmt.Sprintf("%s has no default branch.", repo.Name),
		}}, nil
	}

	var ns []models.Notification
	for i := range repo.Branches {
		branch := &repo.Branches[i]
		if branch.Name != repo.DefaultBranch {
			continue
		}

		var forbidden []string
		for _, f := range forbiddenBranchPermissions {
			if branch.Permissions.Contains(f) {
				forbidden = append(forbidden, f)
			}
		}
		if len(forbidden) > 0 {
			ns = append(ns, models.Notification{
				RepositoryID: &repo.ID,
				Type:         models.NotificationCompliance,
				Content: fmt.Sprintf("%s has forbidden permissions on the default branch: %s",
					repo.Name, strings.Join(forbidden, ",")),
			})
		}

		var missing []string
		if cfg.MinApproval && branch.ReviewersRequired == 0 {
			missing = append(missing, "reviewers_required_count>0")
		}
		if cfg.PullRequestOnly && !branch.Permissions.Contains("pull-request-only") {
			missing = append(missing, "pull_request_only")
		}
		if cfg.NoDeletes && !branch.Permissions.Contains("no-deletes") {
			missing = append(missing, "no_deletes")
		}
		if cfg.FastForwardOnly && !branch.Permissions.Contains("fast-forward-only") {
			missing = append(missing, "fast_forward_only")
		}
		if len(missing) > 0 {
			ns = append(ns, models.Notification{
				RepositoryID: &repo.ID,
				Type:         models.NotificationCompliance,
				Content: fmt.Sprintf("%s has missing restrictions on the default branch: %s",
					repo.Name, strings.Join(missing, ",")),
			})
		}
	}
	return ns, nil
}
