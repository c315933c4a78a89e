package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.General.Parallel != 1 {
		t.Errorf("Parallel = %d, want 1", cfg.General.Parallel)
	}
	if cfg.General.BranchPrefix != "pr-fanout" {
		t.Errorf("BranchPrefix = %q, want pr-fanout", cfg.General.BranchPrefix)
	}
	if cfg.Workflow.ReviewMaxAttempts != 2 {
		t.Errorf("ReviewMaxAttempts = %d, want 2", cfg.Workflow.ReviewMaxAttempts)
	}
	if cfg.Agent.Timeout() != 30*time.Minute {
		t.Errorf("Agent.Timeout() = %v, want 30m", cfg.Agent.Timeout())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Agent.Change != "cursor" {
		t.Errorf("Agent.Change = %q, want cursor", cfg.Agent.Change)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[general]
working_dir = "/srv/work"
parallel = 4

[agent]
change = "command"
command = ["my-agent", "--yes"]
timeout_seconds = 60

[workflow]
wait_for_checks = true
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.WorkingDir != "/srv/work" {
		t.Errorf("WorkingDir = %q, want /srv/work", cfg.General.WorkingDir)
	}
	if cfg.General.Parallel != 4 {
		t.Errorf("Parallel = %d, want 4", cfg.General.Parallel)
	}
	if cfg.Agent.Change != "command" {
		t.Errorf("Agent.Change = %q, want command", cfg.Agent.Change)
	}
	if len(cfg.Agent.Command) != 2 || cfg.Agent.Command[0] != "my-agent" {
		t.Errorf("Agent.Command = %v", cfg.Agent.Command)
	}
	if cfg.Agent.Timeout() != time.Minute {
		t.Errorf("Agent.Timeout() = %v, want 1m", cfg.Agent.Timeout())
	}
	if !cfg.Workflow.WaitForChecks {
		t.Error("WaitForChecks should be true")
	}
	// untouched sections keep defaults
	if cfg.Agent.Evaluate != "cursor" {
		t.Errorf("Agent.Evaluate = %q, want cursor", cfg.Agent.Evaluate)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[general\nparallel = "), 0644)

	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"GITHUB_TOKEN":              "ghp_x",
		"GITHUB_DEFAULT_ORG":        "acme",
		"CHANGE_AGENT":              "command",
		"CURSOR_RUNNER":             "cli",
		"REVIEW_MAX_ATTEMPTS":       "0",
		"CI_ACCEPTABLE_CONCLUSIONS": "SUCCESS, neutral",
		"AGENT_CONTEXT_ROOTS":       "/ctx/a, ,/ctx/b",
		"JIRA_BASE_URL":             "   ",
	}))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.GitHub.Token != "ghp_x" {
		t.Errorf("GitHub.Token = %q", cfg.GitHub.Token)
	}
	if cfg.GitHub.DefaultOrg != "acme" {
		t.Errorf("GitHub.DefaultOrg = %q", cfg.GitHub.DefaultOrg)
	}
	if cfg.Agent.Change != "command" {
		t.Errorf("Agent.Change = %q", cfg.Agent.Change)
	}
	if cfg.Agent.CursorMode != "cli" {
		t.Errorf("Agent.CursorMode = %q", cfg.Agent.CursorMode)
	}
	if cfg.Workflow.ReviewMaxAttempts != 0 {
		t.Errorf("ReviewMaxAttempts = %d, want 0", cfg.Workflow.ReviewMaxAttempts)
	}
	if got := cfg.Workflow.AcceptableConclusions; len(got) != 2 || got[0] != "success" || got[1] != "neutral" {
		t.Errorf("AcceptableConclusions = %v", got)
	}
	if got := cfg.General.ContextRoots; len(got) != 2 || got[0] != "/ctx/a" || got[1] != "/ctx/b" {
		t.Errorf("ContextRoots = %v", got)
	}
	if cfg.Jira.BaseURL != "" {
		t.Errorf("blank JIRA_BASE_URL should be ignored, got %q", cfg.Jira.BaseURL)
	}
}

func TestApplyEnv_InvalidNumber(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{"REVIEW_MAX_ATTEMPTS": "lots"}))
	if err == nil {
		t.Fatal("expected error for non-numeric REVIEW_MAX_ATTEMPTS")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		got := ExpandPath(tt.input)
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero poll", func(c *Config) { c.Workflow.ChecksPollSeconds = 0 }, true},
		{"negative poll", func(c *Config) { c.Workflow.ChecksPollSeconds = -5 }, true},
		{"negative checks timeout", func(c *Config) { c.Workflow.ChecksTimeoutSeconds = -1 }, true},
		{"negative review attempts", func(c *Config) { c.Workflow.ReviewMaxAttempts = -1 }, true},
		{"zero review attempts", func(c *Config) { c.Workflow.ReviewMaxAttempts = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ZeroPollFromEnv(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyEnv(envMap(map[string]string{"CI_WAIT_POLL_SECONDS": "0"})); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for CI_WAIT_POLL_SECONDS=0")
	}
}

func TestValidate_ZeroPollFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[workflow]\nchecks_poll_seconds = 0\n"), 0644)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for checks_poll_seconds = 0")
	}
}
