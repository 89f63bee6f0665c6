package models

import "time"

// Setting is a resource- or project-scoped policy record, typically a
// branch restriction. Identity key is (type, resource, matcher_id).
// The Users and Groups lists hold principals allowed to bypass the
// restriction; they are reconciled independently of the scalar fields.
type Setting struct {
	ID            uint        `gorm:"primarykey" json:"id"`
	Type          string      `gorm:"index" json:"type"`
	Active        bool        `gorm:"default:false" json:"active"`
	AccessKeys    string      `json:"access_keys"`
	MatcherID     string      `gorm:"index" json:"matcher_id"`
	MatcherType   string      `json:"matcher_type"`
	MatcherActive bool        `gorm:"default:true" json:"matcher_active"`
	ScopeType     string      `json:"scope_type"`
	RepositoryID  *uint       `gorm:"index" json:"repository_id"`
	Repository    *Repository `gorm:"foreignKey:RepositoryID;constraint:OnDelete:CASCADE" json:"repository,omitempty"`
	ProjectID     *uint       `gorm:"index" json:"project_id"`
	Project       *Project    `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"project,omitempty"`
	Users         []User      `gorm:"many2many:setting_users" json:"users,omitempty"`
	Groups        []Group     `gorm:"many2many:setting_groups" json:"groups,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}
