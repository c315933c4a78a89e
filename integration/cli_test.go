//go:build integration

package integration

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/hochfrequenz/pr-fanout/internal/gittest"
)

// TestCLI_RunWithoutToken runs a full batch against a local remote. Without a
// token nothing is pushed and the repository is reported as skipped.
func TestCLI_RunWithoutToken(t *testing.T) {
	remote := gittest.NewRemote(t)
	dbPath := TempDBPath(t)
	configPath := writeConfig(t, dbPath, filepath.Join(t.TempDir(), "work"), writeAgent(t, "yes"))

	out, code := runCLI(t, "run", "--config", configPath,
		"--prompt", "add CHANGED.md",
		"--relevance-prompt", "does the repository have a README?",
		"--change-id", "OPS-7",
		"--repo", remote)
	if code != 0 {
		t.Fatalf("run exited %d:\n%s", code, out)
	}
	if !strings.Contains(out, "1 repository: 1 skipped") {
		t.Errorf("Expected skipped summary, got: %s", out)
	}

	out, code = runCLI(t, "history", "--config", configPath)
	if code != 0 {
		t.Fatalf("history exited %d:\n%s", code, out)
	}
	if !strings.Contains(out, "OPS-7") {
		t.Errorf("Expected OPS-7 in history, got: %s", out)
	}
}

// TestCLI_NotRelevant stops at the relevance gate
func TestCLI_NotRelevant(t *testing.T) {
	remote := gittest.NewRemote(t)
	configPath := writeConfig(t, TempDBPath(t), filepath.Join(t.TempDir(), "work"), writeAgent(t, "no"))

	out, code := runCLI(t, "run", "--config", configPath,
		"--prompt", "add CHANGED.md",
		"--relevance-prompt", "is this a Java project?",
		"--repo", remote)
	if code != 0 {
		t.Fatalf("run exited %d:\n%s", code, out)
	}
	if !strings.Contains(out, "1 not_relevant") {
		t.Errorf("Expected not_relevant, got: %s", out)
	}
}

// TestCLI_FailedRepoExitsZero keeps going when one repository fails
func TestCLI_FailedRepoExitsZero(t *testing.T) {
	remote := gittest.NewRemote(t)
	missing := filepath.Join(t.TempDir(), "does-not-exist.git")
	configPath := writeConfig(t, TempDBPath(t), filepath.Join(t.TempDir(), "work"), writeAgent(t, "yes"))

	out, code := runCLI(t, "run", "--config", configPath,
		"--prompt", "add CHANGED.md",
		"--repo", missing,
		"--repo", remote)
	if code != 0 {
		t.Fatalf("run exited %d:\n%s", code, out)
	}
	if !strings.Contains(out, "2 repositories: 1 skipped, 1 failed") {
		t.Errorf("Expected one failure and one skip, got: %s", out)
	}
}

// TestCLI_ConfigurationError exits non-zero before any repository is touched
func TestCLI_ConfigurationError(t *testing.T) {
	configPath := writeConfig(t, TempDBPath(t), t.TempDir(), writeAgent(t, "yes"))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no prompt", []string{"--repo", "/tmp/x"}, "prompt is required"},
		{"no repos", []string{"--prompt", "x"}, "no repositories"},
		{"prompt config and ticket", []string{"--prompt-config-file", "p.yaml", "--jira-ticket", "OPS-1", "--repo", "/tmp/x"}, "only one prompt source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"run", "--config", configPath}, tt.args...)
			out, code := runCLI(t, args...)
			if code != 2 {
				t.Errorf("exit code = %d, want 2\n%s", code, out)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("Expected %q in output, got: %s", tt.want, out)
			}
		})
	}
}

// TestCLI_InvalidCommand tests error handling for invalid commands
func TestCLI_InvalidCommand(t *testing.T) {
	out, code := runCLI(t, "invalidcommand")
	if code == 0 {
		t.Error("Expected error for invalid command")
	}
	if !strings.Contains(out, "unknown command") {
		t.Errorf("Expected unknown command error, got: %s", out)
	}
}
