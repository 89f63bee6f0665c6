package models

import (
	"strings"
	"time"
)

// Repository is the primary audit subject: permissions, settings,
// leaks, classification and compliance all hang off it.
type Repository struct {
	ID                   uint         `gorm:"primarykey" json:"id"`
	Slug                 string       `gorm:"index" json:"slug"`
	Name                 string       `json:"name"`
	Description          string       `gorm:"type:text" json:"description"`
	DefaultBranch        string       `json:"default_branch"`
	URL                  string       `json:"url"`
	URLHTTP              string       `gorm:"index" json:"url_http"`
	URLSSH               string       `json:"url_ssh"`
	Source               string       `gorm:"index" json:"source"`
	LastScanDate         *time.Time   `json:"last_scan_date"`
	ProjectID            *uint        `gorm:"index" json:"project_id"`
	Project              *Project     `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Classification       int          `gorm:"default:0" json:"classification"`
	ClassificationReason string       `json:"classification_reason"`
	AccessDeniedToAdmin  bool         `gorm:"default:false" json:"access_denied_to_admin"`
	Deleted              bool         `gorm:"default:false" json:"deleted"`
	Archived             bool         `gorm:"default:false" json:"archived"`
	Compliant            bool         `gorm:"default:true" json:"compliant"`
	ComplianceReason     string       `gorm:"type:text" json:"compliance_reason"`
	LeakCount            int          `gorm:"default:0" json:"leak_count"`
	Branches             []Branch     `gorm:"foreignKey:RepositoryID" json:"branches,omitempty"`
	Permissions          []Permission `gorm:"foreignKey:RepositoryID" json:"permissions,omitempty"`
	Settings             []Setting    `gorm:"foreignKey:RepositoryID" json:"settings,omitempty"`
	Leaks                []Leak       `gorm:"foreignKey:RepositoryID" json:"leaks,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

// IsPersonal reports whether the repository belongs to a personal
// Bitbucket project (key starting with "~"). Personal repositories are
// excluded from batch processing.
func (r *Repository) IsPersonal() bool {
	if r.Source != SourceBitbucket {
		return false
	}
	if r.Project != nil && strings.HasPrefix(r.Project.Key, "~") {
		return true
	}
	return strings.Contains(r.URLHTTP, "~")
}

// Platform source identifiers.
const (
	SourceBitbucket = "bitbucket"
	SourceGitHub    = "github"
)

// Branch holds the protection state of a repository branch as last
// fetched from the platform. The permissions list carries platform
// restriction flags (for example "pull-request-only", "no-deletes").
type Branch struct {
	ID                uint       `gorm:"primarykey" json:"id"`
	Name              string     `json:"name"`
	Type              string     `json:"type"`
	Active            bool       `gorm:"default:false" json:"active"`
	ReviewersRequired int        `gorm:"default:0" json:"reviewers_required"`
	Permissions       StringList `gorm:"type:text" json:"permissions"`
	RepositoryID      uint       `gorm:"index" json:"repository_id"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
