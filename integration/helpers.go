//go:build integration

package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// binaryPath builds the CLI once per test binary and returns its path
func binaryPath(t *testing.T) string {
	t.Helper()
	if p := os.Getenv("PR_FANOUT_BIN"); p != "" {
		return p
	}
	abs, _ := filepath.Abs("../pr-fanout")
	if _, err := os.Stat(abs); err == nil {
		return abs
	}

	t.Log("Binary not found, building...")
	cmd := exec.Command("go", "build", "-o", abs, "../cmd/pr-fanout")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, out)
	}
	return abs
}

// TempDBPath creates a temporary database path for testing
func TempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "history.db")
}

// writeConfig writes a config that runs agentPath as every agent role
func writeConfig(t *testing.T, dbPath, workDir, agentPath string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.toml")

	config := `[general]
working_dir = "` + workDir + `"
database_path = "` + dbPath + `"

[agent]
change = "command"
evaluate = "command"
naming = "none"
review = "none"
command = ["` + agentPath + `"]
timeout_seconds = 60
`
	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return configPath
}

// writeAgent writes a shell agent. As evaluator it answers with verdict, as
// change agent it creates CHANGED.md.
func writeAgent(t *testing.T, verdict string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.sh")
	script := `#!/bin/sh
cat > /dev/null
case "$PR_FANOUT_ROLE" in
  evaluate) echo "**` + verdict + `**" ;;
  change) echo "changed" > CHANGED.md ;;
esac
`
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("Failed to write agent: %v", err)
	}
	return path
}

// cliEnv is the test process environment without credentials
func cliEnv() []string {
	var env []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "GITHUB_TOKEN=") || strings.HasPrefix(kv, "SLACK_WEBHOOK_URL=") {
			continue
		}
		env = append(env, kv)
	}
	return env
}

// runCLI runs the binary and returns its combined output and exit code
func runCLI(t *testing.T, args ...string) (string, int) {
	t.Helper()
	cmd := exec.Command(binaryPath(t), args...)
	cmd.Env = cliEnv()
	out, err := cmd.CombinedOutput()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return string(out), exitErr.ExitCode()
		}
		t.Fatalf("running CLI: %v", err)
	}
	return string(out), 0
}
