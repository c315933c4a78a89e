// Package gittest builds throwaway git repositories for tests.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Run executes git in dir and fails the test on error
func Run(t testing.TB, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test", "GIT_AUTHOR_EMAIL=test@test.com",
		"GIT_COMMITTER_NAME=Test", "GIT_COMMITTER_EMAIL=test@test.com",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %s", args, out)
	}
	return strings.TrimSpace(string(out))
}

// NewRepo creates a non-bare repository on branch main with one commit
func NewRepo(t testing.TB) string {
	t.Helper()
	dir := t.TempDir()

	Run(t, dir, "init", "--initial-branch=main")
	Run(t, dir, "config", "user.email", "test@test.com")
	Run(t, dir, "config", "user.name", "Test")

	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Test\n"), 0644); err != nil {
		t.Fatal(err)
	}
	Run(t, dir, "add", ".")
	Run(t, dir, "commit", "-m", "Initial commit")

	return dir
}

// NewRemote creates a bare repository seeded with one commit on main.
// The returned path can be used as a clone URL.
func NewRemote(t testing.TB) string {
	t.Helper()
	src := NewRepo(t)
	bare := filepath.Join(t.TempDir(), "remote.git")
	Run(t, "", "clone", "--bare", src, bare)
	return bare
}

// Branches lists the branch names of a repository
func Branches(t testing.TB, dir string) []string {
	t.Helper()
	out := Run(t, dir, "for-each-ref", "--format=%(refname:short)", "refs/heads")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

// CommitCount returns the number of commits reachable from ref
func CommitCount(t testing.TB, dir, ref string) string {
	t.Helper()
	return Run(t, dir, "rev-list", "--count", ref)
}
