// Package remote defines the contract consumed from the platform API
// wrapper: normalized fetch payloads and the error taxonomy the
// reconciliation engine reacts to. The HTTP clients implementing this
// contract live outside the engine.
package remote

import (
	"context"
	"errors"

	"github.com/gitwarden/gitwarden/internal/models"
)

// ErrAccessDenied indicates the platform revoked the tool's admin
// rights on the resource. Recoverable: the resource is flagged and
// skipped for the run.
var ErrAccessDenied = errors.New("access denied by platform")

// ErrNotFound indicates the resource no longer exists upstream.
// Recoverable: the resource is flagged deleted and skipped.
var ErrNotFound = errors.New("resource not found upstream")

// Principal identifies a remote user in a fetch result.
type Principal struct {
	Source   string
	ID       int64
	Name     string
	Slug     string
	Email    string
	Active   bool
	External bool
}

// GroupRef identifies a remote group by name.
type GroupRef struct {
	Source string
	Name   string
}

// Grant is the normalized permission payload. Bitbucket reports a
// single permission level, GitHub a list of permission flags; exactly
// one of the two fields is populated.
type Grant struct {
	Single string
	Set    []string
}

// IsSet reports whether the grant carries the list shape.
func (g Grant) IsSet() bool { return len(g.Set) > 0 }

// PermissionEntry is one remotely reported permission: a principal
// (user or group, exactly one set) and its grant.
type PermissionEntry struct {
	User  *Principal
	Group *GroupRef
	Grant Grant
}

// SettingEntry is one remotely reported policy record, typically a
// branch restriction, with the principals allowed to bypass it.
type SettingEntry struct {
	Type          string
	MatcherID     string
	MatcherType   string
	MatcherActive bool
	Active        bool
	AccessKeys    string
	ScopeType     string // "REPOSITORY" or "PROJECT"
	ProjectID     *uint  // set when the setting is inherited from a project
	Users         []Principal
	Groups        []GroupRef
}

// BranchEntry is one remotely reported branch with its protection
// flags (for example "pull-request-only", "no-deletes").
type BranchEntry struct {
	Name              string
	Type              string
	Active            bool
	ReviewersRequired int
	Permissions       []string
}

// Client is the API-wrapper collaborator. Implementations translate
// vendor responses into the normalized shapes above and map vendor
// errors onto ErrAccessDenied / ErrNotFound; any other error is
// treated as a transport failure and the resource is skipped.
type Client interface {
	RepoPermissions(ctx context.Context, repo *models.Repository) ([]PermissionEntry, error)
	ProjectPermissions(ctx context.Context, project *models.Project) ([]PermissionEntry, error)
	RepoSettings(ctx context.Context, repo *models.Repository) ([]SettingEntry, error)
	RepoBranches(ctx context.Context, repo *models.Repository) ([]BranchEntry, error)

	// UserGroups returns the group names the user belongs to, used to
	// refresh membership and the external flag during principal
	// resolution.
	UserGroups(ctx context.Context, slug string) ([]string, error)
}
