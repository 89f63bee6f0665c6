package models

import (
	"testing"
	"time"
)

func TestStringListRoundTrip(t *testing.T) {
	list := StringList{"REPO_READ", "REPO_WRITE"}

	v, err := list.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if v != "REPO_READ,REPO_WRITE" {
		t.Errorf("expected comma-joined value, got %q", v)
	}

	var scanned StringList
	if err := scanned.Scan(v); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(scanned) != 2 || scanned[0] != "REPO_READ" || scanned[1] != "REPO_WRITE" {
		t.Errorf("unexpected scan result: %v", scanned)
	}
}

func TestStringListScanEmpty(t *testing.T) {
	var list StringList
	if err := list.Scan(""); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty list, got %v", list)
	}

	if err := list.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if list != nil {
		t.Errorf("expected nil list, got %v", list)
	}
}

func TestStringListContains(t *testing.T) {
	list := StringList{"no-deletes", "pull-request-only"}
	if !list.Contains("no-deletes") {
		t.Error("expected list to contain no-deletes")
	}
	if list.Contains("fast-forward-only") {
		t.Error("did not expect fast-forward-only")
	}
}

func TestUserIsExternal(t *testing.T) {
	external := []string{"Contractors", "partners"}

	u := User{Groups: []Group{{Name: "developers"}}}
	if u.IsExternal(external) {
		t.Error("internal group member reported external")
	}

	// Group comparison is case-insensitive
	u = User{Groups: []Group{{Name: "contractors"}}}
	if !u.IsExternal(external) {
		t.Error("contractor not reported external")
	}

	// The stored flag is sticky regardless of groups
	u = User{External: true}
	if !u.IsExternal(nil) {
		t.Error("flagged user not reported external")
	}
}

func TestPermissionGrantsAdmin(t *testing.T) {
	cases := []struct {
		name string
		perm Permission
		want bool
	}{
		{"repo admin", Permission{Permission: PermRepoAdmin}, true},
		{"project admin", Permission{Permission: PermProjectAdmin}, true},
		{"repo write", Permission{Permission: PermRepoWrite}, false},
		{"list with admin", Permission{Permissions: StringList{"push", "admin"}}, true},
		{"list without admin", Permission{Permissions: StringList{"push", "pull"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.perm.GrantsAdmin(); got != tc.want {
				t.Errorf("GrantsAdmin() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRepositoryIsPersonal(t *testing.T) {
	repo := Repository{Source: SourceBitbucket, Project: &Project{Key: "~jdoe"}}
	if !repo.IsPersonal() {
		t.Error("personal bitbucket project not detected")
	}

	repo = Repository{Source: SourceBitbucket, URLHTTP: "https://git.example.com/users/~jdoe/repos/sandbox"}
	if !repo.IsPersonal() {
		t.Error("personal URL not detected")
	}

	repo = Repository{Source: SourceGitHub, Project: &Project{Key: "~jdoe"}}
	if repo.IsPersonal() {
		t.Error("github repository can never be personal")
	}

	repo = Repository{Source: SourceBitbucket, Project: &Project{Key: "SEC"}}
	if repo.IsPersonal() {
		t.Error("regular project reported personal")
	}
}

func TestLeakKeyAndURL(t *testing.T) {
	date := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a := Leak{File: "config.yaml", Rule: "AWS", Branch: "main", Commit: "abc", Date: date, LeakURL: "https://x/browse/config.yaml?at=abc"}
	b := Leak{File: "config.yaml", Rule: "AWS", Branch: "main", Commit: "abc", Date: date, LeakURL: "https://x/browse/config.yaml?at=abc"}

	if a.Key() != b.Key() {
		t.Error("identical findings have different keys")
	}
	if !a.SameURL(&b) {
		t.Error("identical URLs not matched")
	}

	empty := Leak{}
	if empty.SameURL(&Leak{}) {
		t.Error("empty URLs must never match")
	}
}

func TestLeakHasTag(t *testing.T) {
	leak := Leak{Tags: "key,Vault,aws"}
	if !leak.HasTag("vault") {
		t.Error("vault tag not found")
	}
	if leak.HasTag("gcp") {
		t.Error("unexpected gcp tag")
	}
}
