// Package sync reconciles remotely fetched permission and setting
// collections into the store: upsert by principal identity, then
// orphan-delete everything the latest fetch no longer reports.
package sync

import "github.com/gitwarden/gitwarden/internal/models"

// MatchPermission returns the permission row held by the given
// principal, or nil when absent. The user and group branches are
// mutually exclusive: a row with a user set never matches a group key
// and vice versa. Pure lookup, no side effects.
func MatchPermission(perms []models.Permission, userID, groupID *uint) *models.Permission {
	for i := range perms {
		p := &perms[i]
		if userID != nil {
			if p.UserID != nil && *p.UserID == *userID {
				return p
			}
			continue
		}
		if groupID != nil && p.UserID == nil && p.GroupID != nil && *p.GroupID == *groupID {
			return p
		}
	}
	return nil
}

// MatchSetting returns the setting row with the given identity key
// (type, matcher), or nil when absent.
func MatchSetting(settings []models.Setting, settingType, matcherID string) *models.Setting {
	for i := range settings {
		s := &settings[i]
		if s.Type == settingType && s.MatcherID == matcherID {
			return s
		}
	}
	return nil
}
