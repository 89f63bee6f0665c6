// Package principal resolves remotely reported users and groups into
// persisted records. Principals are created on first sighting and never
// deleted; the external flag is re-evaluated on every resolution.
package principal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gitwarden/gitwarden/internal/models"
	"github.com/gitwarden/gitwarden/internal/remote"
	"gorm.io/gorm"
)

// Resolver finds or creates principals. On first sighting of a user it
// also pulls the user's group memberships from the platform.
type Resolver struct {
	db             *gorm.DB
	client         remote.Client
	externalGroups []string
}

// NewResolver creates a resolver bound to the given database handle.
func NewResolver(db *gorm.DB, client remote.Client, externalGroups []string) *Resolver {
	return &Resolver{db: db, client: client, externalGroups: externalGroups}
}

// ResolveUser returns the persisted user for a remote principal,
// creating it (with its group memberships) when unseen. The external
// flag is refreshed from group membership on every call and is sticky:
// once external, a user stays external.
func (r *Resolver) ResolveUser(ctx context.Context, p remote.Principal) (*models.User, error) {
	var user models.User
	err := r.db.Preload("Groups").
		Where("source = ? AND remote_id = ?", p.Source, p.ID).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.createUser(ctx, p)
	}
	if err != nil {
		return nil, fmt.Errorf("look up user %s/%d: %w", p.Source, p.ID, err)
	}

	external := user.IsExternal(r.externalGroups) || p.External
	if external != user.External {
		if err := r.db.Model(&user).Update("external", external).Error; err != nil {
			return nil, fmt.Errorf("update external flag for user %d: %w", user.ID, err)
		}
		user.External = external
	}
	return &user, nil
}

func (r *Resolver) createUser(ctx context.Context, p remote.Principal) (*models.User, error) {
	user := models.User{
		Source:   p.Source,
		RemoteID: p.ID,
		Name:     p.Name,
		Slug:     p.Slug,
		Email:    p.Email,
		Active:   p.Active,
		External: p.External,
	}

	groups, err := r.client.UserGroups(ctx, p.Slug)
	if err != nil {
		return nil, fmt.Errorf("fetch groups for user %s: %w", p.Slug, err)
	}
	slog.Debug("Adding new user", "name", p.Name, "groups", len(groups))
	for _, name := range groups {
		group, err := r.ResolveGroup(remote.GroupRef{Source: p.Source, Name: name})
		if err != nil {
			return nil, err
		}
		user.Groups = append(user.Groups, *group)
	}
	user.External = user.IsExternal(r.externalGroups) || p.External

	if err := r.db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create user %s: %w", p.Slug, err)
	}
	return &user, nil
}

// ResolveGroup returns the persisted group for a remote group
// reference, creating it when unseen. Groups are keyed by name.
func (r *Resolver) ResolveGroup(g remote.GroupRef) (*models.Group, error) {
	var group models.Group
	err := r.db.Where("name = ?", g.Name).First(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		group = models.Group{Source: g.Source, Name: g.Name, Active: true}
		if err := r.db.Create(&group).Error; err != nil {
			return nil, fmt.Errorf("create group %s: %w", g.Name, err)
		}
		slog.Debug("Adding new group", "name", g.Name)
		return &group, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up group %s: %w", g.Name, err)
	}
	return &group, nil
}
