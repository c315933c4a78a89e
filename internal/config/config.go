package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
// It is built once at startup and never mutated afterwards.
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Agent         AgentConfig         `toml:"agent"`
	GitHub        GitHubConfig        `toml:"github"`
	Jira          JiraConfig          `toml:"jira"`
	Datadog       DatadogConfig       `toml:"datadog"`
	Workflow      WorkflowConfig      `toml:"workflow"`
	Notifications NotificationsConfig `toml:"notifications"`
	Log           LogConfig           `toml:"log"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	WorkingDir   string   `toml:"working_dir"`
	DatabasePath string   `toml:"database_path"`
	BranchPrefix string   `toml:"branch_prefix"`
	Parallel     int      `toml:"parallel"`
	ContextRoots []string `toml:"context_roots"`
}

// AgentConfig selects the backend per role and configures the cursor backend
type AgentConfig struct {
	Change         string            `toml:"change"`
	Evaluate       string            `toml:"evaluate"`
	Naming         string            `toml:"naming"`
	Review         string            `toml:"review"`
	CursorMode     string            `toml:"cursor_mode"`
	CursorImage    string            `toml:"cursor_image"`
	CursorModel    string            `toml:"cursor_model"`
	CursorCLIBin   string            `toml:"cursor_cli_bin"`
	CursorAPIKey   string            `toml:"cursor_api_key"`
	Command        []string          `toml:"command"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	Env            map[string]string `toml:"env"`
}

// Timeout returns the per-invocation agent timeout
func (a AgentConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// GitHubConfig holds GitHub API and pull request settings
type GitHubConfig struct {
	Token      string `toml:"token"`
	APIURL     string `toml:"api_url"`
	DefaultOrg string `toml:"default_org"`
	BaseBranch string `toml:"base_branch"`
	PRTitle    string `toml:"pr_title"`
	PRBody     string `toml:"pr_body"`
}

// JiraConfig holds ticket tracker credentials
type JiraConfig struct {
	BaseURL  string `toml:"base_url"`
	Email    string `toml:"email"`
	APIToken string `toml:"api_token"`
}

// DatadogConfig holds service catalog credentials for discovery
type DatadogConfig struct {
	APIKey string `toml:"api_key"`
	AppKey string `toml:"app_key"`
	Site   string `toml:"site"`
}

// WorkflowConfig holds per-repository workflow knobs
type WorkflowConfig struct {
	ReviewMaxAttempts     int      `toml:"review_max_attempts"`
	PostEvaluateRetries   int      `toml:"post_evaluate_retries"`
	WaitForChecks         bool     `toml:"wait_for_checks"`
	ChecksTimeoutSeconds  int      `toml:"checks_timeout_seconds"`
	ChecksPollSeconds     int      `toml:"checks_poll_seconds"`
	AcceptableConclusions []string `toml:"acceptable_conclusions"`
}

// ChecksTimeout returns how long to wait for CI checks
func (w WorkflowConfig) ChecksTimeout() time.Duration {
	return time.Duration(w.ChecksTimeoutSeconds) * time.Second
}

// ChecksPoll returns the CI polling interval
func (w WorkflowConfig) ChecksPoll() time.Duration {
	return time.Duration(w.ChecksPollSeconds) * time.Second
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhook string `toml:"slack_webhook"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			WorkingDir:   filepath.Join(home, ".pr-fanout", "workspaces"),
			DatabasePath: filepath.Join(home, ".pr-fanout", "history.db"),
			BranchPrefix: "pr-fanout",
			Parallel:     1,
		},
		Agent: AgentConfig{
			Change:         "cursor",
			Evaluate:       "cursor",
			Naming:         "cursor",
			Review:         "cursor",
			CursorMode:     "docker",
			CursorImage:    "cursor-agent:latest",
			CursorModel:    "auto",
			CursorCLIBin:   "cursor-agent",
			TimeoutSeconds: 30 * 60,
		},
		GitHub: GitHubConfig{
			PRTitle: "Automated change",
			PRBody:  "This pull request was opened automatically by pr-fanout.",
		},
		Datadog: DatadogConfig{
			Site: "datadoghq.com",
		},
		Workflow: WorkflowConfig{
			ReviewMaxAttempts:     2,
			ChecksTimeoutSeconds:  30 * 60,
			ChecksPollSeconds:     15,
			AcceptableConclusions: []string{"success", "skipped", "neutral"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.General.WorkingDir = ExpandPath(cfg.General.WorkingDir)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	for i, root := range cfg.General.ContextRoots {
		cfg.General.ContextRoots[i] = ExpandPath(root)
	}

	return cfg, nil
}

// LookupFunc matches os.LookupEnv
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment variables onto the config.
// Empty values are treated as unset.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return fmt.Errorf("%s must be a non-negative integer, got %q", key, v)
		}
		*dst = n
		return nil
	}

	str("GITHUB_TOKEN", &c.GitHub.Token)
	str("GITHUB_API_URL", &c.GitHub.APIURL)
	str("GITHUB_DEFAULT_ORG", &c.GitHub.DefaultOrg)
	str("SUBMIT_PR_BASE", &c.GitHub.BaseBranch)

	str("CHANGE_AGENT", &c.Agent.Change)
	str("EVALUATE_AGENT", &c.Agent.Evaluate)
	str("NAMING_AGENT", &c.Agent.Naming)
	str("REVIEW_AGENT", &c.Agent.Review)
	str("CURSOR_RUNNER", &c.Agent.CursorMode)
	str("CURSOR_IMAGE", &c.Agent.CursorImage)
	str("CURSOR_MODEL", &c.Agent.CursorModel)
	str("CURSOR_CLI_BIN", &c.Agent.CursorCLIBin)
	str("CURSOR_API_KEY", &c.Agent.CursorAPIKey)
	if err := num("AGENT_TIMEOUT_SECONDS", &c.Agent.TimeoutSeconds); err != nil {
		return err
	}

	str("JIRA_BASE_URL", &c.Jira.BaseURL)
	str("JIRA_EMAIL", &c.Jira.Email)
	str("JIRA_API_TOKEN", &c.Jira.APIToken)

	str("DATADOG_API_KEY", &c.Datadog.APIKey)
	str("DATADOG_APP_KEY", &c.Datadog.AppKey)
	str("DATADOG_SITE", &c.Datadog.Site)

	if err := num("REVIEW_MAX_ATTEMPTS", &c.Workflow.ReviewMaxAttempts); err != nil {
		return err
	}
	if err := num("CI_WAIT_TIMEOUT_SECONDS", &c.Workflow.ChecksTimeoutSeconds); err != nil {
		return err
	}
	if err := num("CI_WAIT_POLL_SECONDS", &c.Workflow.ChecksPollSeconds); err != nil {
		return err
	}
	if v, ok := lookup("CI_ACCEPTABLE_CONCLUSIONS"); ok && strings.TrimSpace(v) != "" {
		c.Workflow.AcceptableConclusions = SplitList(strings.ToLower(v))
	}

	str("SLACK_WEBHOOK_URL", &c.Notifications.SlackWebhook)
	str("LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("AGENT_CONTEXT_ROOTS"); ok {
		c.General.ContextRoots = append(c.General.ContextRoots, SplitList(v)...)
	}

	return nil
}

// Validate rejects settings that cannot be used as given
func (c *Config) Validate() error {
	w := c.Workflow
	if w.ChecksPollSeconds <= 0 {
		return fmt.Errorf("checks poll interval must be positive, got %d", w.ChecksPollSeconds)
	}
	if w.ChecksTimeoutSeconds < 0 {
		return fmt.Errorf("checks timeout must not be negative, got %d", w.ChecksTimeoutSeconds)
	}
	if w.ReviewMaxAttempts < 0 {
		return fmt.Errorf("review max attempts must not be negative, got %d", w.ReviewMaxAttempts)
	}
	if c.Agent.TimeoutSeconds < 0 {
		return fmt.Errorf("agent timeout must not be negative, got %d", c.Agent.TimeoutSeconds)
	}
	return nil
}

// SplitList splits a comma-separated list, dropping blanks
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "pr-fanout", "config.toml")
}
