package models

import "time"

// Permission level identifiers as reported by the platforms.
const (
	PermRepoRead      = "REPO_READ"
	PermRepoWrite     = "REPO_WRITE"
	PermRepoAdmin     = "REPO_ADMIN"
	PermProjectView   = "PROJECT_VIEW"
	PermProjectRead   = "PROJECT_READ"
	PermProjectWrite  = "PROJECT_WRITE"
	PermProjectAdmin  = "PROJECT_ADMIN"
	PermProjectCreate = "PROJECT_CREATE"
	PermLicensedUser  = "LICENSED_USER"
	PermAdmin         = "ADMIN"
	PermSysAdmin      = "SYS_ADMIN"
	PermNoAccess      = "NO_ACCESS"
)

// Permission is the ternary relation between a resource (repository or
// project), a principal (user or group, exactly one set) and a grant.
// Bitbucket reports a single permission level, GitHub a list of
// permission flags; the two shapes live in Permission and Permissions
// respectively, normalized at the remote boundary.
//
// Invariant, maintained by the synchronizer: at most one row per
// (resource, user, group) tuple.
type Permission struct {
	ID           uint        `gorm:"primarykey" json:"id"`
	Permission   string      `json:"permission"`
	Permissions  StringList  `gorm:"type:text" json:"permissions"`
	UserID       *uint       `gorm:"index" json:"user_id"`
	User         *User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	GroupID      *uint       `gorm:"index" json:"group_id"`
	Group        *Group      `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"group,omitempty"`
	RepositoryID *uint       `gorm:"index" json:"repository_id"`
	Repository   *Repository `gorm:"foreignKey:RepositoryID;constraint:OnDelete:CASCADE" json:"repository,omitempty"`
	ProjectID    *uint       `gorm:"index" json:"project_id"`
	Project      *Project    `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"project,omitempty"`
	Active       bool        `gorm:"default:true" json:"active"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// GrantsAdmin reports whether the grant carries an admin-tier
// permission in either shape. GitHub reports lowercase "admin" in the
// permission list.
func (p *Permission) GrantsAdmin() bool {
	if p.Permission == PermRepoAdmin || p.Permission == PermProjectAdmin {
		return true
	}
	return p.Permissions.Contains(PermRepoAdmin) || p.Permissions.Contains("admin")
}
