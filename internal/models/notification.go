package models

import "time"

// Notification categories.
const (
	NotificationCompliance  = "compliance"
	NotificationSettings    = "settings"
	NotificationPermissions = "permissions"
	NotificationLeak        = "leak"
)

// Notification actions.
const (
	ActionAdd    = "add"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Notification is an event record produced by the reconciliation
// components and consumed by the delivery collaborator through the
// outbox. No two unresolved notifications may share
// (project, repository, type, content); the outbox enforces this at
// creation time.
type Notification struct {
	ID             uint        `gorm:"primarykey" json:"id"`
	ProjectID      *uint       `gorm:"index" json:"project_id"`
	Project        *Project    `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"project,omitempty"`
	RepositoryID   *uint       `gorm:"index" json:"repository_id"`
	Repository     *Repository `gorm:"foreignKey:RepositoryID;constraint:OnDelete:CASCADE" json:"repository,omitempty"`
	UserID         *uint       `gorm:"index" json:"user_id"`
	User           *User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	GroupID        *uint       `gorm:"index" json:"group_id"`
	Group          *Group      `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"group,omitempty"`
	LeakID         *uint       `gorm:"index" json:"leak_id"`
	Leak           *Leak       `gorm:"foreignKey:LeakID;constraint:OnDelete:CASCADE" json:"leak,omitempty"`
	PermissionType string      `json:"permission_type"`
	Content        string      `gorm:"type:text" json:"content"`
	Action         string      `json:"action"`
	Type           string      `gorm:"index" json:"type"`
	Notified       bool        `gorm:"default:false" json:"notified"`
	Resolved       bool        `gorm:"default:false" json:"resolved"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}
