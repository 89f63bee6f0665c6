package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8470 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("default driver = %q", cfg.Database.Driver)
	}
	if cfg.Scheduler.Permissions == "" {
		t.Error("permission schedule has no default")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
server:
  port: 9000
log:
  level: debug
best_practices:
  external_groups:
    - contractors
  repository:
    admin_count:
      enable: true
      notification: true
      max: 3
  project:
    required_group_admin:
      enable: true
      groups:
        - security
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	if len(cfg.BestPractices.ExternalGroups) != 1 {
		t.Errorf("external groups not loaded: %v", cfg.BestPractices.ExternalGroups)
	}

	rc := cfg.RepositoryRule("admin_count")
	if !rc.Enable || rc.Max != 3 {
		t.Errorf("repository rule config not loaded: %+v", rc)
	}

	pc := cfg.ProjectRule("required_group_admin")
	if !pc.Enable || len(pc.Groups) != 1 || pc.Groups[0] != "security" {
		t.Errorf("project rule config not loaded: %+v", pc)
	}

	// Unconfigured rules come back disabled
	if cfg.RepositoryRule("no_groups").Enable {
		t.Error("unconfigured rule reported enabled")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	t.Setenv("GITWARDEN_SERVER_PORT", "7777")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("env override ignored, port = %d", cfg.Server.Port)
	}
}
