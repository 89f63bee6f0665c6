package models

import (
	"strings"
	"time"
)

// Leak is a secret occurrence discovered by a scan. A leak is the same
// finding across scans when its composite key matches; the weaker
// LeakURL identity is used only for cross-scan existence checks where
// line numbers may have shifted.
type Leak struct {
	ID              uint        `gorm:"primarykey" json:"id"`
	LineNumber      int         `json:"line_number"`
	Secret          string      `gorm:"type:text" json:"secret"`
	Entropy         string      `json:"entropy"`
	Commit          string      `json:"commit"`
	LeakURL         string      `gorm:"type:text" json:"leak_url"`
	Rule            string      `json:"rule"`
	Branch          string      `json:"branch"`
	CommitMessage   string      `gorm:"type:text" json:"commit_message"`
	Author          string      `json:"author"`
	Email           string      `json:"email"`
	File            string      `json:"file"`
	Date            time.Time   `json:"date"`
	Tags            string      `json:"tags"`
	Fixed           bool        `gorm:"default:false" json:"fixed"`
	FixedDate       *time.Time  `json:"fixed_date"`
	IsFalsePositive bool        `gorm:"default:false" json:"is_false_positive"`
	RepositoryID    *uint       `gorm:"index" json:"repository_id"`
	Repository      *Repository `gorm:"foreignKey:RepositoryID" json:"repository,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// LeakKey is the composite identity of a finding across scans.
type LeakKey struct {
	File   string
	Rule   string
	Branch string
	Commit string
	Date   time.Time
}

// Key returns the composite identity of the leak.
func (l *Leak) Key() LeakKey {
	return LeakKey{
		File:   l.File,
		Rule:   l.Rule,
		Branch: l.Branch,
		Commit: l.Commit,
		Date:   l.Date,
	}
}

// SameURL reports the weaker leakURL-only identity used when comparing
// stored findings against a fresh scan.
func (l *Leak) SameURL(other *Leak) bool {
	return l.LeakURL != "" && l.LeakURL == other.LeakURL
}

// HasTag reports whether the leak carries the given scanner tag.
func (l *Leak) HasTag(tag string) bool {
	return strings.Contains(strings.ToLower(l.Tags), strings.ToLower(tag))
}
