package sync

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gitwarden/gitwarden/internal/models"
	"github.com/gitwarden/gitwarden/internal/notify"
	"github.com/gitwarden/gitwarden/internal/principal"
	"github.com/gitwarden/gitwarden/internal/remote"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeClient satisfies the platform client contract for resolver
// lookups during sync tests.
type fakeClient struct {
	groupsByUser map[string][]string
}

func (f *fakeClient) RepoPermissions(ctx context.Context, repo *models.Repository) ([]remote.PermissionEntry, error) {
	return nil, nil
}

func (f *fakeClient) ProjectPermissions(ctx context.Context, project *models.Project) ([]remote.PermissionEntry, error) {
	return nil, nil
}

func (f *fakeClient) RepoSettings(ctx context.Context, repo *models.Repository) ([]remote.SettingEntry, error) {
	return nil, nil
}

func (f *fakeClient) RepoBranches(ctx context.Context, repo *models.Repository) ([]remote.BranchEntry, error) {
	return nil, nil
}

func (f *fakeClient) UserGroups(ctx context.Context, slug string) ([]string, error) {
	return f.groupsByUser[slug], nil
}

func testSetup(t *testing.T) (*gorm.DB, *notify.Outbox, *principal.Resolver) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.Project{},
		&models.Repository{},
		&models.Branch{},
		&models.Permission{},
		&models.Setting{},
		&models.Leak{},
		&models.Notification{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	outbox := notify.NewOutbox(db)
	resolver := principal.NewResolver(db, &fakeClient{}, nil)
	return db, outbox, resolver
}

func createRepo(t *testing.T, db *gorm.DB, slug string) *models.Repository {
	t.Helper()
	repo := models.Repository{Slug: slug, Name: slug, Source: models.SourceBitbucket}
	if err := db.Create(&repo).Error; err != nil {
		t.Fatalf("create repo: %v", err)
	}
	return &repo
}

func createProject(t *testing.T, db *gorm.DB, key string) *models.Project {
	t.Helper()
	project := models.Project{Key: key, Name: key, Source: models.SourceBitbucket}
	if err := db.Create(&project).Error; err != nil {
		t.Fatalf("create project: %v", err)
	}
	return &project
}

func userEntry(id int64, slug, grant string) remote.PermissionEntry {
	return remote.PermissionEntry{
		User:  &remote.Principal{Source: models.SourceBitbucket, ID: id, Name: slug, Slug: slug, Active: true},
		Grant: remote.Grant{Single: grant},
	}
}

func countPermissions(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&models.Permission{}).Count(&count).Error; err != nil {
		t.Fatalf("count permissions: %v", err)
	}
	return count
}

func countNotifications(t *testing.T, db *gorm.DB, typ string) int64 {
	t.Helper()
	var count int64
	err := db.Model(&models.Notification{}).Where("type = ?", typ).Count(&count).Error
	if err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	return count
}
