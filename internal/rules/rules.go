// Package rules evaluates pluggable compliance rules against
// repositories and projects. Rules are registered in an explicit
// registry and run in registration order; violations become
// notifications and drive the entity's compliant/compliance_reason
// fields.
package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gitwarden/gitwarden/internal/config"
	"github.com/gitwarden/gitwarden/internal/models"
	"github.com/gitwarden/gitwarden/internal/notify"
	"gorm.io/gorm"
)

// ConfigError reports a rule missing a required configuration
// parameter. It is fatal to that rule's evaluation only; the remaining
// rules still run.
type ConfigError struct {
	Rule  string
	Param string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("rule %s: missing required parameter %q", e.Rule, e.Param)
}

// Env carries evaluation-wide settings shared by all rules.
type Env struct {
	ExternalGroups []string
}

// RepositoryRule is one compliance predicate over a repository. Check
// receives the repository with Permissions (incl. User.Groups, Group)
// and Branches preloaded and returns zero or more violation
// notifications.
type RepositoryRule interface {
	Name() string
	Check(repo *models.Repository, cfg config.RuleConfig, env Env) ([]models.Notification, error)
}

// ProjectRule is one compliance predicate over a project, with
// Permissions preloaded.
type ProjectRule interface {
	Name() string
	Check(project *models.Project, cfg config.RuleConfig, env Env) ([]models.Notification, error)
}

var (
	repositoryRules []RepositoryRule
	projectRules    []ProjectRule
)

// RegisterRepositoryRule appends a rule to the repository registry.
// Evaluation iterates in registration order.
func RegisterRepositoryRule(r RepositoryRule) {
	repositoryRules = append(repositoryRules, r)
}

// RegisterProjectRule appends a rule to the project registry.
func RegisterProjectRule(r ProjectRule) {
	projectRules = append(projectRules, r)
}

// RepositoryRules returns the registered repository rules in order.
func RepositoryRules() []RepositoryRule { return repositoryRules }

// ProjectRules returns the registered project rules in order.
func ProjectRules() []ProjectRule { return projectRules }

func init() {
	RegisterRepositoryRule(&repoAdminCount{})
	RegisterRepositoryRule(&repoAccessToAdmin{})
	RegisterRepositoryRule(&repoExternalAdmin{})
	RegisterRepositoryRule(&repoNoGroups{})
	RegisterRepositoryRule(&repoExternalConfidential{})
	RegisterRepositoryRule(&repoBranchRestriction{})

	RegisterProjectRule(&projectAdminCount{})
	RegisterProjectRule(&projectAccessToAdmin{})
	RegisterProjectRule(&projectExternalAdmin{})
	RegisterProjectRule(&projectDefaultPermission{})
	RegisterProjectRule(&projectRequiredGroup{name: "required_group_admin", permission: models.PermProjectAdmin})
	RegisterProjectRule(&projectRequiredGroup{name: "required_group_write", permission: models.PermProjectWrite})
	RegisterProjectRule(&projectRequiredGroup{name: "required_group_read", permission: models.PermProjectRead})
}

// Evaluator runs the registered rules for an entity and materializes
// the results: notifications through the outbox, and the entity's
// compliant flag plus ordered compliance_reason list.
type Evaluator struct {
	db     *gorm.DB
	outbox *notify.Outbox
	cfg    *config.Config
}

// NewEvaluator creates an evaluator bound to the given database
// handle.
func NewEvaluator(db *gorm.DB, outbox *notify.Outbox, cfg *config.Config) *Evaluator {
	return &Evaluator{db: db, outbox: outbox, cfg: cfg}
}

func (e *Evaluator) env() Env {
	return Env{ExternalGroups: e.cfg.BestPractices.ExternalGroups}
}

// EvaluateRepository runs all enabled repository rules. Expects
// Permissions and Branches preloaded.
func (e *Evaluator) EvaluateRepository(repo *models.Repository) error {
	var violations []models.Notification

	for _, rule := range RepositoryRules() {
		cfg := e.cfg.RepositoryRule(rule.Name())
		if !cfg.Enable {
			continue
		}
		ns, err := rule.Check(repo, cfg, e.env())
		if err != nil {
			var cfgErr *ConfigError
			if errors.As(err, &cfgErr) {
				slog.Warn("Skipping misconfigured rule", "rule", rule.Name(), "error", err)
				continue
			}
			return fmt.Errorf("rule %s on repository %s: %w", rule.Name(), repo.Slug, err)
		}
		for i := range ns {
			// A rule with notification off records history silently.
			ns[i].Notified = !cfg.Notification
		}
		violations = append(violations, ns...)
	}

	for i := range violations {
		if _, err := e.outbox.Submit(&violations[i]); err != nil {
			return err
		}
	}

	return e.saveCompliance(&repo.Compliant, &repo.ComplianceReason, violations, func(compliant bool, reason string) error {
		return e.db.Model(repo).Updates(map[string]interface{}{
			"compliant":         compliant,
			"compliance_reason": reason,
		}).Error
	})
}

// EvaluateProject runs all enabled project rules. Expects Permissions
// preloaded.
func (e *Evaluator) EvaluateProject(project *models.Project) error {
	var violations []models.Notification

	for _, rule := range ProjectRules() {
		cfg := e.cfg.ProjectRule(rule.Name())
		if !cfg.Enable {
			continue
		}
		ns, err := rule.Check(project, cfg, e.env())
		if err != nil {
			var cfgErr *ConfigError
			if errors.As(err, &cfgErr) {
				slog.Warn("Skipping misconfigured rule", "rule", rule.Name(), "error", err)
				continue
			}
			return fmt.Errorf("rule %s on project %s: %w", rule.Name(), project.Key, err)
		}
		for i := range ns {
			ns[i].Notified = !cfg.Notification
		}
		violations = append(violations, ns...)
	}

	for i := range violations {
		if _, err := e.outbox.Submit(&violations[i]); err != nil {
			return err
		}
	}

	return e.saveCompliance(&project.Compliant, &project.ComplianceReason, violations, func(compliant bool, reason string) error {
		return e.db.Model(project).Updates(map[string]interface{}{
			"compliant":         compliant,
			"compliance_reason": reason,
		}).Error
	})
}

func (e *Evaluator) saveCompliance(compliant *bool, reasonField *string, violations []models.Notification, save func(bool, string) error) error {
	reasons := make([]string, 0, len(violations))
	for i := range violations {
		reasons = append(reasons, violations[i].Content)
	}
	encoded, err := json.Marshal(reasons)
	if err != nil {
		return fmt.Errorf("encode compliance reasons: %w", err)
	}

	*compliant = len(violations) == 0
	*reasonField = string(encoded)
	return save(*compliant, *reasonField)
}
