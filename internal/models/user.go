package models

import (
	"strings"
	"time"
)

// User represents a platform account discovered through permission or
// setting synchronization. Identity key is (source, remote_id).
// Users are never deleted by the engine.
type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Source    string    `gorm:"not null;index:idx_user_identity" json:"source"`
	RemoteID  int64     `gorm:"index:idx_user_identity" json:"remote_id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Email     string    `json:"email"`
	Active    bool      `gorm:"default:true" json:"active"`
	External  bool      `gorm:"default:false" json:"external"`
	Groups    []Group   `gorm:"many2many:user_groups" json:"groups,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExternal reports whether the user is external, either via the
// sticky flag or through membership in one of the configured external
// groups. Group names are compared case-insensitively.
func (u *User) IsExternal(externalGroups []string) bool {
	if u.External {
		return true
	}
	for _, g := range u.Groups {
		name := strings.ToLower(g.Name)
		for _, ext := range externalGroups {
			if name == strings.ToLower(ext) {
				return true
			}
		}
	}
	return false
}
