package rules

import (
	"strings"
	"testing"

	"github.com/gitwarden/gitwarden/internal/config"
	"github.com/gitwarden/gitwarden/internal/models"
)

func TestProjectAdminCount(t *testing.T) {
	rule := &projectAdminCount{}
	project := &models.Project{Name: "Security", Permissions: []models.Permission{
		{Permission: models.PermProjectAdmin, UserID: up(1)},
		{Permission: models.PermProjectAdmin, UserID: up(2)},
		{Permission: models.PermProjectWrite, UserID: up(3)},
	}}

	ns, err := rule.Check(project, config.RuleConfig{Enable: true, Max: 1}, Env{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(ns) != 1 || !strings.Contains(ns[0].Content, "2 admins") {
		t.Errorf("admin count not flagged: %v", ns)
	}

	ns, err = rule.Check(project, config.RuleConfig{Enable: true, Max: 2}, Env{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(ns) != 0 {
		t.Errorf("count within ceiling flagged: %v", ns)
	}
}

func TestProjectDefaultPermission(t *testing.T) {
	rule := &projectDefaultPermission{}

	if _, err := rule.Check(&models.Project{}, config.RuleConfig{Enable: true}, Env{}); err == nil {
		t.Fatal("expected config error for missing default_value")
	}

	project := &models.Project{Name: "Security", DefaultPermission: models.PermProjectRead}
	cfg := config.RuleConfig{Enable: true, DefaultValue: models.PermNoAccess}

	ns, err := rule.Check(project, cfg, Env{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(ns) != 1 {
		t.Fatalf("open default permission not flagged: %v", ns)
	}

	project.DefaultPermission = models.PermNoAccess
	ns, err = rule.Check(project, cfg, Env{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(ns) != 0 {
		t.Errorf("matching default permission flagged: %v", ns)
	}
}

func TestProjectRequiredGroupCaseInsensitive(t *testing.T) {
	rule := &projectRequiredGroup{name: "required_group_admin", permission: models.PermProjectAdmin}
	project := &models.Project{Name: "Security", Permissions: []models.Permission{
		{Permission: models.PermProjectAdmin, GroupID: up(1), Group: &models.Group{ID: 1, Name: "security"}},
	}}

	// Configured "Security" matches the stored "security" group
	ns, err := rule.Check(project, config.RuleConfig{Enable: true, Groups: []string{"Security"}}, Env{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(ns) != 0 {
		t.Errorf("case difference reported as missing group: %v", ns)
	}
}

func TestProjectRequiredGroupMissing(t *testing.T) {
	rule := &projectRequiredGroup{name: "required_group_write", permission: models.PermProjectWrite}
	project := &models.Project{Name: "Security", Permissions: []models.Permission{
		// Right group, wrong tier
		{Permission: models.PermProjectRead, GroupID: up(1), Group: &models.Group{ID: 1, Name: "developers"}},
	}}

	ns, err := rule.Check(project, config.RuleConfig{Enable: true, Groups: []string{"developers", "release"}}, Env{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(ns) != 2 {
		t.Fatalf("expected 2 missing groups, got %d: %v", len(ns), ns)
	}
	if !strings.Contains(ns[0].Content, "developers") || !strings.Contains(ns[1].Content, "release") {
		t.Errorf("violations out of order or incomplete: %v", ns)
	}
}

func TestProjectRequiredGroupRequiresGroups(t *testing.T) {
	rule := &projectRequiredGroup{name: "required_group_read", permission: models.PermProjectRead}
	if _, err := rule.Check(&models.Project{}, config.RuleConfig{Enable: true}, Env{}); err == nil {
		t.Fatal("expected config error for empty groups")
	}
}

func TestProjectExternalAdmin(t *testing.T) {
	rule := &projectExternalAdmin{}
	env := Env{ExternalGroups: []string{"partners"}}

	project := &models.Project{ID: 1, Name: "Security", Permissions: []models.Permission{
		{Permission: models.PermProjectAdmin, UserID: up(1),
			User: &models.User{ID: 1, Name: "Mallory", Groups: []models.Group{{Name: "Partners"}}}},
		{Permission: models.PermProjectWrite, UserID: up(2),
			User: &models.User{ID: 2, Name: "Eve", External: true}},
	}}

	ns, err := rule.Check(project, config.RuleConfig{Enable: true}, env)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(ns) != 1 || !strings.Contains(ns[0].Content, "Mallory") {
		t.Errorf("external admin not flagged correctly: %v", ns)
	}
}
