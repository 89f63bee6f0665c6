package models

import "time"

// Project groups repositories on the platform side (a Bitbucket
// project or GitHub organization). It aggregates the classification of
// its member repositories and carries its own compliance status.
type Project struct {
	ID                   uint         `gorm:"primarykey" json:"id"`
	Key                  string       `gorm:"index" json:"key"`
	Name                 string       `json:"name"`
	URL                  string       `json:"url"`
	Description          string       `json:"description"`
	Source               string       `json:"source"`
	DefaultPermission    string       `json:"default_permission"`
	Classification       int          `gorm:"default:0" json:"classification"`
	ClassificationReason string       `json:"classification_reason"`
	AccessDeniedToAdmin  bool         `gorm:"default:false" json:"access_denied_to_admin"`
	Deleted              bool         `gorm:"default:false" json:"deleted"`
	Archived             bool         `gorm:"default:false" json:"archived"`
	Compliant            bool         `gorm:"default:true" json:"compliant"`
	ComplianceReason     string       `gorm:"type:text" json:"compliance_reason"`
	Repositories         []Repository `gorm:"foreignKey:ProjectID" json:"repositories,omitempty"`
	Permissions          []Permission `gorm:"foreignKey:ProjectID" json:"permissions,omitempty"`
	Settings             []Setting    `gorm:"foreignKey:ProjectID" json:"settings,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}
