package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Scanner       ScannerConfig       `mapstructure:"scanner"`
	BestPractices BestPracticesConfig `mapstructure:"best_practices"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // "development" or "production"
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`            // "sqlite" or "postgres"
	DSN             string `mapstructure:"dsn"`               // Connection string
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`    // Maximum idle connections (Postgres)
	MaxOpenConns    int    `mapstructure:"max_open_conns"`    // Maximum open connections (Postgres)
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // Connection max lifetime in minutes (Postgres)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Format string `mapstructure:"format"` // "json" or "text"
	Level  string `mapstructure:"level"`  // "debug", "info", "warn", "error"
}

// SchedulerConfig holds the cron expressions for each batch job
// category. An empty expression disables the job.
type SchedulerConfig struct {
	Permissions    string `mapstructure:"permissions"`
	Settings       string `mapstructure:"settings"`
	Branches       string `mapstructure:"branches"`
	Leaks          string `mapstructure:"leaks"`
	Checkers       string `mapstructure:"checkers"`
	Classification string `mapstructure:"classification"`
}

// ScannerConfig holds secret-scan ingestion configuration
type ScannerConfig struct {
	TmpGitFolder     string   `mapstructure:"tmp_git_folder"`    // Workdir prefix stripped from leak file paths
	ReportFolder     string   `mapstructure:"report_folder"`     // Where scan reports are written
	IgnoreExtensions []string `mapstructure:"ignore_extensions"` // File extensions excluded from findings
	IgnoreFiles      []string `mapstructure:"ignore_files"`      // File names excluded from findings
	IgnoreFolders    []string `mapstructure:"ignore_folders"`    // Directories excluded from findings
}

// BestPracticesConfig holds compliance rule configuration
type BestPracticesConfig struct {
	ExternalGroups []string              `mapstructure:"external_groups"` // Groups whose members count as external users
	Repository     map[string]RuleConfig `mapstructure:"repository"`      // Per-rule config, keyed by rule name
	Project        map[string]RuleConfig `mapstructure:"project"`
}

// RuleConfig configures a single compliance rule. Enable gates the
// rule entirely; Notification=false records violations silently
// (history only, no delivery).
type RuleConfig struct {
	Enable          bool     `mapstructure:"enable"`
	Notification    bool     `mapstructure:"notification"`
	Max             int      `mapstructure:"max"`
	Groups          []string `mapstructure:"groups"`
	DefaultValue    string   `mapstructure:"default_value"`
	MinApproval     bool     `mapstructure:"min_approval"`
	PullRequestOnly bool     `mapstructure:"pull_request_only"`
	NoDeletes       bool     `mapstructure:"no_deletes"`
	FastForwardOnly bool     `mapstructure:"fast_forward_only"`
}

// RepositoryRule returns the configuration for a repository rule.
// Unconfigured rules are disabled.
func (c *Config) RepositoryRule(name string) RuleConfig {
	return c.BestPractices.Repository[name]
}

// ProjectRule returns the configuration for a project rule.
func (c *Config) ProjectRule(name string) RuleConfig {
	return c.BestPractices.Project[name]
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults for local development
	v.SetDefault("server.port", 8470)
	v.SetDefault("server.mode", "development")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./gitwarden.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60) // 60 minutes
	v.SetDefault("log.format", "text")
	v.SetDefault("log.level", "info")
	v.SetDefault("scheduler.permissions", "0 2 * * *")
	v.SetDefault("scheduler.settings", "30 2 * * *")
	v.SetDefault("scheduler.branches", "0 3 * * *")
	v.SetDefault("scheduler.leaks", "0 4 * * *")
	v.SetDefault("scheduler.checkers", "0 6 * * *")
	v.SetDefault("scheduler.classification", "30 5 * * *")
	v.SetDefault("scanner.tmp_git_folder", "/tmp/gitwarden/git/")
	v.SetDefault("scanner.report_folder", "/tmp/gitwarden/reports/")

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/gitwarden/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, using defaults
	}

	// Environment variables override
	v.SetEnvPrefix("GITWARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}
