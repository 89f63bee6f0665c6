package rules

import (
	"fmt"
	"strings"

	"github.com/gitwarden/gitwarden/internal/config"
	"github.com/gitwarden/gitwarden/internal/models"
)

// projectAdminCount flags projects whose admin head-count exceeds the
// configured ceiling.
type projectAdminCount struct{}

func (r *projectAdminCount) Name() string { return "admin_count" }

func (r *projectAdminCount) Check(project *models.Project, cfg config.RuleConfig, _ Env) ([]models.Notification, error) {
	if cfg.Max <= 0 {
		return nil, &ConfigError{Rule: r.Name(), Param: "max"}
	}

	admins := 0
	for i := range project.Permissions {
		p := &project.Permissions[i]
		if p.UserID != nil && p.Permission == models.PermProjectAdmin {
			admins++
		}
	}

	if admins <= cfg.Max {
		return nil, nil
	}
	return []models.Notification{{
		ProjectID: &project.ID,
		Type:      models.NotificationCompliance,
		Content:   fmt.Sprintf("Project %s has %d admins", project.Name, admins),
	}}, nil
}

// projectAccessToAdmin flags projects the tool itself cannot
// administer.
type projectAccessToAdmin struct{}

func (r *projectAccessToAdmin) Name() string { return "access_to_admin" }

func (r *projectAccessToAdmin) Check(project *models.Project, _ config.RuleConfig, _ Env) ([]models.Notification, error) {
	if !project.AccessDeniedToAdmin {
		return nil, nil
	}
	return []models.Notification{{
		ProjectID: &project.ID,
		Type:      models.NotificationCompliance,
		Content:   fmt.Sprintf("Project %s: GitWarden doesn't have ADMIN access", project.Name),
	}}, nil
}

// projectExternalAdmin flags external users holding project admin.
type projectExternalAdmin struct{}

func (r *projectExternalAdmin) Name() string { return "external_user_as_admin" }

func (r *projectExternalAdmin) Check(project *models.Project, _ config.RuleConfig, env Env) ([]models.Notification, error) {
	var ns []models.Notification
	for i := range project.Permissions {
		p := &project.Permissions[i]
		if p.User == nil || p.Permission != models.PermProjectAdmin {
			continue
		}
		if p.User.IsExternal(env.ExternalGroups) {
			ns = append(ns, models.Notification{
				ProjectID: &project.ID,
				UserID:    p.UserID,
				Type:      models.NotificationCompliance,
				Content:   fmt.Sprintf("%s is external and has PROJECT_ADMIN on project %s", p.User.Name, project.Name),
			})
		}
	}
	return ns, nil
}

// projectDefaultPermission flags projects whose default permission
// differs from the configured value (typically NO_ACCESS).
type projectDefaultPermission struct{}

func (r *projectDefaultPermission) Name() string { return "default_permission" }

func (r *projectDefaultPermission) Check(project *models.Project, cfg config.RuleConfig, _ Env) ([]models.Notification, error) {
	if cfg.DefaultValue == "" {
		return nil, &ConfigError{Rule: r.Name(), Param: "default_value"}
	}
	if project.DefaultPermission == cfg.DefaultValue {
		return nil, nil
	}
	return []models.Notification{{
		ProjectID: &project.ID,
		Type:      models.NotificationCompliance,
		Content:   fmt.Sprintf("Project %s hasn't a %s default setting", project.Name, cfg.DefaultValue),
	}}, nil
}

// projectRequiredGroup flags every configured required group absent
// from the given permission tier. Group names match
// case-insensitively.
type projectRequiredGroup struct {
	name       string
	permission string
}

func (r *projectRequiredGroup) Name() string { return r.name }

func (r *projectRequiredGroup) Check(project *models.Project, cfg config.RuleConfig, _ Env) ([]models.Notification, error) {
	if len(cfg.Groups) == 0 {
		return nil, &ConfigError{Rule: r.Name(), Param: "groups"}
	}

	missing := make(map[string]struct{}, len(cfg.Groups))
	for _, g := range cfg.Groups {
		missing[strings.ToLower(g)] = struct{}{}
	}

	for i := range project.Permissions {
		p := &project.Permissions[i]
		if p.GroupID == nil || p.Group == nil || p.Permission != r.permission {
			continue
		}
		delete(missing, strings.ToLower(p.Group.Name))
	}

	var ns []models.Notification
	for _, g := range cfg.Groups {
		if _, absent := missing[strings.ToLower(g)]; !absent {
			continue
		}
		ns = append(ns, models.Notification{
			ProjectID: &project.ID,
			Type:      models.NotificationCompliance,
			Content:   fmt.Sprintf("%s hasn't %s permission on project %s", g, r.permission, project.Name),
		})
	}
	return ns, nil
}
