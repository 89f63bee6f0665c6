package models

import "time"

// Group represents a platform group. Identity key is the group name;
// groups are shared across repositories and never deleted by the engine.
type Group struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Source    string    `json:"source"`
	Name      string    `gorm:"not null;index" json:"name"`
	Slug      string    `json:"slug"`
	RemoteID  int64     `json:"remote_id"`
	Active    bool      `gorm:"default:true" json:"active"`
	Users     []User    `gorm:"many2many:user_groups" json:"users,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
