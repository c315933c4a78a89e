package main

import (
	"github.com/spf13/pflag"

	"github.com/hochfrequenz/pr-fanout/internal/config"
	"github.com/hochfrequenz/pr-fanout/internal/prompt"
)

// runOptions are the flags shared by run and watch
type runOptions struct {
	prompt prompt.Options

	repos        []string
	team         string
	workingDir   string
	contextRoots []string
	secrets      []string
	secretEnv    []string
	parallel     int
	postEvaluate string
	base         string
	waitChecks   bool
}

func addRunFlags(fs *pflag.FlagSet, o *runOptions) {
	fs.StringVar(&o.prompt.Inline, "prompt", "", "change instruction, or a tail appended to a prompt config or ticket")
	fs.StringVar(&o.prompt.Relevance, "relevance-prompt", "", "question deciding whether a repository needs the change")
	fs.StringVar(&o.prompt.ChangeID, "change-id", "", "stable change identity; makes branches and workspaces reusable")

	fs.StringVar(&o.prompt.ConfigOwner, "prompt-config-owner", "", "owner of the repository holding the prompt config")
	fs.StringVar(&o.prompt.ConfigRepo, "prompt-config-repo", "", "repository holding the prompt config")
	fs.StringVar(&o.prompt.ConfigRef, "prompt-config-ref", "", "ref of the prompt config (default main)")
	fs.StringVar(&o.prompt.ConfigPath, "prompt-config-path", "", "path of the prompt config in its repository")
	fs.StringVar(&o.prompt.ConfigFile, "prompt-config-file", "", "local prompt config file")
	fs.StringVar(&o.prompt.TicketID, "jira-ticket", "", "ticket whose summary and description form the change instruction")

	fs.StringArrayVar(&o.repos, "repo", nil, "target repository (owner/repo, repo, URL or local path); repeatable")
	fs.StringVar(&o.team, "datadog-team", "", "discover target repositories owned by this team")
	fs.StringVar(&o.workingDir, "working-dir", "", "root directory for workspaces")
	fs.StringArrayVar(&o.contextRoots, "context-root", nil, "read-only directory shown to agents; repeatable")
	fs.StringArrayVar(&o.secrets, "secret", nil, "KEY=VALUE passed to agents; repeatable")
	fs.StringArrayVar(&o.secretEnv, "secret-env", nil, "environment variable passed to agents; repeatable")
	fs.IntVar(&o.parallel, "parallel", 0, "number of repositories processed at once")
	fs.StringVar(&o.postEvaluate, "post-evaluate-prompt", "", "criterion the change is evaluated against before submission")
	fs.StringVar(&o.base, "base", "", "pull request base branch (default: repository default branch)")
	fs.BoolVar(&o.waitChecks, "wait-for-checks", false, "wait for CI checks after submitting")
}

// applyTo overlays flags that were set on the command line onto cfg
func (o *runOptions) applyTo(cfg *config.Config, fs *pflag.FlagSet) {
	if fs.Changed("working-dir") {
		cfg.General.WorkingDir = config.ExpandPath(o.workingDir)
	}
	if fs.Changed("parallel") {
		cfg.General.Parallel = o.parallel
	}
	if fs.Changed("base") {
		cfg.GitHub.BaseBranch = o.base
	}
	if fs.Changed("wait-for-checks") {
		cfg.Workflow.WaitForChecks = o.waitChecks
	}
}
