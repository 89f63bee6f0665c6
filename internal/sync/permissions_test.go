package sync

import (
	"context"
	"testing"

	"github.com/gitwarden/gitwarden/internal/models"
	"github.com/gitwarden/gitwarden/internal/remote"
)

func TestSyncRepositoryCreatesPermissions(t *testing.T) {
	db, outbox, resolver := testSetup(t)
	repo := createRepo(t, db, "api")
	s := NewPermissions(db, outbox, resolver)

	entries := []remote.PermissionEntry{
		userEntry(1, "alice", models.PermRepoAdmin),
		userEntry(2, "bob", models.PermRepoRead),
		{
			Group: &remote.GroupRef{Source: models.SourceBitbucket, Name: "developers"},
			Grant: remote.Grant{Single: models.PermRepoWrite},
		},
	}
	if err := s.SyncRepository(context.Background(), repo, entries); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if got := countPermissions(t, db); got != 3 {
		t.Fatalf("expected 3 permissions, got %d", got)
	}

	var alice models.User
	if err := db.Where("slug = ?", "alice").First(&alice).Error; err != nil {
		t.Fatalf("load alice: %v", err)
	}
	var perm models.Permission
	if err := db.Where("user_id = ?", alice.ID).First(&perm).Error; err != nil {
		t.Fatalf("load alice permission: %v", err)
	}
	if perm.Permission != models.PermRepoAdmin {
		t.Errorf("expected REPO_ADMIN, got %q", perm.Permission)
	}
	if perm.RepositoryID == nil || *perm.RepositoryID != repo.ID {
		t.Error("permission not linked to repository")
	}
}

func TestSyncRepositoryIsIdempotent(t *testing.T) {
	db, outbox, resolver := testSetup(t)
	repo := createRepo(t, db, "api")
	s := NewPermissions(db, outbox, resolver)

	entries := []remote.PermissionEntry{
		userEntry(1, "alice", models.PermRepoAdmin),
		userEntry(2, "bob", models.PermRepoRead),
	}
	for i := 0; i < 3; i++ {
		if err := s.SyncRepository(context.Background(), repo, entries); err != nil {
			t.Fatalf("sync run %d: %v", i, err)
		}
	}

	if got := countPermissions(t, db); got != 2 {
		t.Errorf("expected 2 permissions after repeated sync, got %d", got)
	}
	if got := countNotifications(t, db, models.NotificationPermissions); got != 0 {
		t.Errorf("repeated identical sync emitted %d notifications", got)
	}
}

func TestSyncRepositoryUpdatesGrantInPlace(t *testing.T) {
	db, outbox, resolver := testSetup(t)
	repo := createRepo(t, db, "api")
	s := NewPermissions(db, outbox, resolver)

	if err := s.SyncRepository(context.Background(), repo, []remote.PermissionEntry{
		userEntry(1, "alice", models.PermRepoRead),
	}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	var before models.Permission
	db.First(&before)

	if err := s.SyncRepository(context.Background(), repo, []remote.PermissionEntry{
		userEntry(1, "alice", models.PermRepoAdmin),
	}); err != nil {
		t.Fatalf("sync: %v", err)
	}

	var after models.Permission
	db.First(&after)
	if after.ID != before.ID {
		t.Error("grant change replaced the row instead of updating it")
	}
	if after.Permission != models.PermRepoAdmin {
		t.Errorf("expected REPO_ADMIN, got %q", after.Permission)
	}
}

func TestSyncRepositoryDeletesOrphans(t *testing.T) {
	db, outbox, resolver := testSetup(t)
	repo := createRepo(t, db, "api")
	s := NewPermissions(db, outbox, resolver)

	full := []remote.PermissionEntry{
		userEntry(1, "alice", models.PermRepoAdmin),
		userEntry(2, "bob", models.PermRepoWrite),
		userEntry(3, "carol", models.PermRepoRead),
	}
	if err := s.SyncRepository(context.Background(), repo, full); err != nil {
		t.Fatalf("initial sync: %v", err)
	}

	// bob's grant is revoked upstream
	reduced := []remote.PermissionEntry{full[0], full[2]}
	if err := s.SyncRepository(context.Background(), repo, reduced); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	if got := countPermissions(t, db); got != 2 {
		t.Errorf("expected 2 permissions after revocation, got %d", got)
	}
	if got := countNotifications(t, db, models.NotificationPermissions); got != 1 {
		t.Errorf("expected exactly 1 deletion notification, got %d", got)
	}

	var n models.Notification
	db.Where("type = ?", models.NotificationPermissions).First(&n)
	if n.Action != models.ActionDelete {
		t.Errorf("expected delete action, got %q", n.Action)
	}
	if !n.Notified {
		t.Error("deletion notification must be history-only")
	}

	var bob models.User
	db.Where("slug = ?", "bob").First(&bob)
	if n.UserID == nil || *n.UserID != bob.ID {
		t.Error("deletion notification does not reference the revoked user")
	}
}

func TestSyncRepositoryGrantSetShape(t *testing.T) {
	db, outbox, resolver := testSetup(t)
	repo := createRepo(t, db, "web")
	repo.Source = models.SourceGitHub
	s := NewPermissions(db, outbox, resolver)

	entries := []remote.PermissionEntry{{
		User:  &remote.Principal{Source: models.SourceGitHub, ID: 7, Slug: "dana", Active: true},
		Grant: remote.Grant{Set: []string{"pull", "push", "admin"}},
	}}
	if err := s.SyncRepository(context.Background(), repo, entries); err != nil {
		t.Fatalf("sync: %v", err)
	}

	var perm models.Permission
	db.First(&perm)
	if perm.Permission != "" {
		t.Errorf("single grant set for list-shaped entry: %q", perm.Permission)
	}
	if !perm.Permissions.Contains("admin") {
		t.Errorf("permission list lost entries: %v", perm.Permissions)
	}
	if !perm.GrantsAdmin() {
		t.Error("admin flag in list not recognized")
	}
}

func TestSyncRepositoryGrantShapeSwitch(t *testing.T) {
	db, outbox, resolver := testSetup(t)
	repo := createRepo(t, db, "api")
	s := NewPermissions(db, outbox, resolver)

	if err := s.SyncRepository(context.Background(), repo, []remote.PermissionEntry{
		userEntry(1, "alice", models.PermRepoAdmin),
	}); err != nil {
		t.Fatalf("sync: %v", err)
	}

	// The platform starts reporting the list shape for the same
	// principal; the single value must not linger.
	set := []remote.PermissionEntry{{
		User:  &remote.Principal{Source: models.SourceBitbucket, ID: 1, Slug: "alice", Active: true},
		Grant: remote.Grant{Set: []string{"pull", "push"}},
	}}
	if err := s.SyncRepository(context.Background(), repo, set); err != nil {
		t.Fatalf("set-shape sync: %v", err)
	}

	var perm models.Permission
	if err := db.First(&perm).Error; err != nil {
		t.Fatalf("load permission: %v", err)
	}
	if perm.Permission != "" {
		t.Errorf("stale single grant survived shape switch: %q", perm.Permission)
	}
	if !perm.Permissions.Contains("push") {
		t.Errorf("list grant not stored: %v", perm.Permissions)
	}

	// And back to the single shape
	if err := s.SyncRepository(context.Background(), repo, []remote.PermissionEntry{
		userEntry(1, "alice", models.PermRepoRead),
	}); err != nil {
		t.Fatalf("single-shape sync: %v", err)
	}

	var back models.Permission
	if err := db.First(&back).Error; err != nil {
		t.Fatalf("reload permission: %v", err)
	}
	if back.Permission != models.PermRepoRead {
		t.Errorf("single grant = %q, want REPO_READ", back.Permission)
	}
	if len(back.Permissions) != 0 {
		t.Errorf("stale list grant survived shape switch: %v", back.Permissions)
	}

	if got := countPermissions(t, db); got != 1 {
		t.Errorf("shape switches duplicated the row: %d", got)
	}
}

func TestSyncProjectScopesRows(t *testing.T) {
	db, outbox, resolver := testSetup(t)
	repo := createRepo(t, db, "api")
	project := createProject(t, db, "SEC")
	s := NewPermissions(db, outbox, resolver)

	// Same user holds a grant on both scopes; the rows must not collide.
	if err := s.SyncRepository(context.Background(), repo, []remote.PermissionEntry{
		userEntry(1, "alice", models.PermRepoAdmin),
	}); err != nil {
		t.Fatalf("repo sync: %v", err)
	}
	if err := s.SyncProject(context.Background(), project, []remote.PermissionEntry{
		userEntry(1, "alice", models.PermProjectAdmin),
	}); err != nil {
		t.Fatalf("project sync: %v", err)
	}

	if got := countPermissions(t, db); got != 2 {
		t.Fatalf("expected 2 scoped permissions, got %d", got)
	}

	var projPerm models.Permission
	db.Where("project_id = ?", project.ID).First(&projPerm)
	if projPerm.Permission != models.PermProjectAdmin {
		t.Errorf("expected PROJECT_ADMIN, got %q", projPerm.Permission)
	}
	if projPerm.RepositoryID != nil {
		t.Error("project-scoped row carries a repository id")
	}
}

func TestMatchPermissionMutualExclusion(t *testing.T) {
	userID := uint(1)
	groupID := uint(1)
	perms := []models.Permission{
		{ID: 10, UserID: &userID},
		{ID: 20, GroupID: &groupID},
	}

	// A group key must never match a user row even when the IDs
	// coincide numerically.
	if got := MatchPermission(perms, nil, &groupID); got == nil || got.ID != 20 {
		t.Errorf("group lookup matched wrong row: %+v", got)
	}
	if got := MatchPermission(perms, &userID, nil); got == nil || got.ID != 10 {
		t.Errorf("user lookup matched wrong row: %+v", got)
	}
	if got := MatchPermission(perms, nil, nil); got != nil {
		t.Errorf("nil principal matched row %d", got.ID)
	}
}
