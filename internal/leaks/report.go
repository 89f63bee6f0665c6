// Package leaks ingests secret-scan reports and tracks each finding's
// lifecycle across repeated scans: New, Open, Fixed, Reopened.
package leaks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gitwarden/gitwarden/internal/config"
	"github.com/gitwarden/gitwarden/internal/models"
)

// Finding mirrors one entry of a gitleaks JSON report.
type Finding struct {
	Description string   `json:"Description"`
	StartLine   int      `json:"StartLine"`
	EndLine     int      `json:"EndLine"`
	File        string   `json:"File"`
	Commit      string   `json:"Commit"`
	Secret      string   `json:"Secret"`
	Entropy     float64  `json:"Entropy"`
	Author      string   `json:"Author"`
	Email       string   `json:"Email"`
	Date        string   `json:"Date"`
	Message     string   `json:"Message"`
	Tags        []string `json:"Tags"`
}

// ReadReport parses a gitleaks JSON report file.
func ReadReport(path string) ([]Finding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scan report: %w", err)
	}
	var findings []Finding
	if err := json.Unmarshal(data, &findings); err != nil {
		return nil, fmt.Errorf("parse scan report %s: %w", path, err)
	}
	return findings, nil
}

// Filter drops findings in ignored extensions, file names and folders,
// and strips the scan workdir prefix plus the repository slug from file
// paths so stored paths are repository-relative.
func Filter(findings []Finding, cfg config.ScannerConfig, repoSlug string) []Finding {
	filtered := make([]Finding, 0, len(findings))

	for _, f := range findings {
		f.File = strings.Replace(strings.TrimPrefix(f.File, cfg.TmpGitFolder), repoSlug+"/", "", 1)

		ext := strings.ToLower(filepath.Ext(f.File))
		if containsFold(cfg.IgnoreExtensions, ext) {
			continue
		}
		base := strings.TrimSuffix(filepath.Base(f.File), ext)
		if containsFold(cfg.IgnoreFiles, base) {
			continue
		}
		if inIgnoredFolder(f.File, cfg.IgnoreFolders) {
			continue
		}
		filtered = append(filtered, f)
	}
	return filtered
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func inIgnoredFolder(file string, folders []string) bool {
	for _, dir := range folders {
		if strings.HasPrefix(file, dir) || strings.Contains(file, "/"+dir+"/") {
			return true
		}
	}
	return false
}

// ToLeak converts a report finding into an unsaved leak record for the
// repository, on its default branch.
func ToLeak(f Finding, repo *models.Repository) models.Leak {
	date, err := time.Parse(time.RFC3339, f.Date)
	if err != nil {
		date = time.Time{}
	}
	return models.Leak{
		LineNumber:    f.StartLine,
		Secret:        f.Secret,
		Entropy:       strconv.FormatFloat(f.Entropy, 'f', -1, 64),
		Commit:        f.Commit,
		LeakURL:       leakURL(repo, f),
		Rule:          f.Description,
		Branch:        repo.DefaultBranch,
		CommitMessage: f.Message,
		Author:        f.Author,
		Email:         f.Email,
		File:          f.File,
		Date:          date,
		Tags:          strings.Join(f.Tags, ","),
	}
}

// leakURL builds the browse URL of the finding. The URL is the weaker
// cross-scan identity of a leak, so it deliberately omits the line
// number: a finding whose line shifted keeps the same URL.
func leakURL(repo *models.Repository, f Finding) string {
	base := strings.TrimSuffix(repo.URLHTTP, ".git")
	if repo.Source == models.SourceGitHub {
		return fmt.Sprintf("%s/blob/%s/%s", base, f.Commit, f.File)
	}
	return fmt.Sprintf("%s/browse/%s?at=%s", base, f.File, f.Commit)
}
