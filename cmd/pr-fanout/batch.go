package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/pr-fanout/internal/agent"
	"github.com/hochfrequenz/pr-fanout/internal/batch"
	"github.com/hochfrequenz/pr-fanout/internal/config"
	"github.com/hochfrequenz/pr-fanout/internal/discovery"
	"github.com/hochfrequenz/pr-fanout/internal/domain"
	"github.com/hochfrequenz/pr-fanout/internal/ghapi"
	"github.com/hochfrequenz/pr-fanout/internal/notify"
	"github.com/hochfrequenz/pr-fanout/internal/prompt"
	"github.com/hochfrequenz/pr-fanout/internal/prompts"
	"github.com/hochfrequenz/pr-fanout/internal/report"
	"github.com/hochfrequenz/pr-fanout/internal/runstore"
	"github.com/hochfrequenz/pr-fanout/internal/submit"
	"github.com/hochfrequenz/pr-fanout/internal/ticket"
	"github.com/hochfrequenz/pr-fanout/internal/vcs"
	"github.com/hochfrequenz/pr-fanout/internal/workflow"
	"github.com/hochfrequenz/pr-fanout/internal/workspace"
)

// plannedBatch is a batch whose configuration has been fully validated
type plannedBatch struct {
	cfg      *config.Config
	bundle   domain.PromptBundle
	targets  []domain.RepositoryTarget
	registry *agent.Registry
	runner   *agent.Runner
	github   *ghapi.Client
	postEval string
	logger   *slog.Logger
}

// planBatch resolves the prompt, the targets and the agents. Every error it
// returns is a ConfigurationError.
func planBatch(ctx context.Context, cfg *config.Config, o runOptions, logger *slog.Logger) (*plannedBatch, error) {
	gh, err := ghapi.New(ctx, cfg.GitHub.Token, cfg.GitHub.APIURL, logger)
	if err != nil {
		return nil, domain.Configf("%v", err)
	}

	resolver := &prompt.Resolver{Files: gh, Logger: logger}
	if cfg.Jira.BaseURL != "" {
		tc, err := ticket.New(cfg.Jira.BaseURL, cfg.Jira.Email, cfg.Jira.APIToken, logger)
		if err != nil {
			return nil, domain.Configf("%v", err)
		}
		resolver.Tickets = tc
	}
	bundle, err := resolver.Resolve(ctx, o.prompt)
	if err != nil {
		return nil, err
	}

	var disc batch.Discoverer
	if o.team != "" && cfg.Datadog.APIKey != "" && cfg.Datadog.AppKey != "" {
		dd, err := discovery.NewDatadog(discovery.Config{
			APIKey: cfg.Datadog.APIKey,
			AppKey: cfg.Datadog.AppKey,
			Site:   cfg.Datadog.Site,
			Logger: logger,
		})
		if err != nil {
			return nil, domain.Configf("%v", err)
		}
		disc = dd
	}
	targets, err := batch.ResolveTargets(ctx, o.repos, o.team, disc, cfg.GitHub.DefaultOrg, logger)
	if err != nil {
		return nil, err
	}

	secrets, err := agent.BuildSecrets(o.secrets, o.secretEnv, os.LookupEnv)
	if err != nil {
		return nil, err
	}
	roots := agent.MergeContextRoots(cfg.General.ContextRoots, o.contextRoots)

	loader := prompts.DefaultLoader()
	reg, err := agent.FromConfig(cfg.Agent, loader, os.Stderr, logger)
	if err != nil {
		return nil, domain.Configf("%v", err)
	}

	return &plannedBatch{
		cfg:      cfg,
		bundle:   bundle,
		targets:  targets,
		registry: reg,
		runner:   agent.NewRunner(reg, loader, roots, secrets),
		github:   gh,
		postEval: o.postEvaluate,
		logger:   logger,
	}, nil
}

// openStore opens the history database. Failure disables history.
func openStore(path string, logger *slog.Logger) *runstore.Store {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logger.Warn("history disabled", "path", path, "error", err)
		return nil
	}
	store, err := runstore.New(path)
	if err != nil {
		logger.Warn("history disabled", "path", path, "error", err)
		return nil
	}
	return store
}

// run executes the batch, records it and prints the summary to out
func (p *plannedBatch) run(ctx context.Context, out io.Writer) []domain.RunResult {
	cfg := p.cfg
	logger := p.logger

	rec := &domain.Batch{
		ID:        uuid.NewString(),
		ChangeID:  p.bundle.ChangeID,
		Source:    p.bundle.Source,
		StartedAt: time.Now(),
	}
	logger = logger.With("batch", rec.ID)

	store := openStore(cfg.General.DatabasePath, logger)
	if store != nil {
		defer store.Close()
		if err := store.CreateBatch(rec); err != nil {
			logger.Warn("recording batch failed", "error", err)
		}
		p.registry.SetRecorder(store, rec.ID)
	}

	shortDesc := workflow.Describe(ctx, p.runner, p.bundle.ChangeInstruction, logger)

	git := vcs.NewGit()
	var prs submit.PullRequests
	var checks workflow.Checks
	if cfg.GitHub.Token != "" {
		prs = p.github
		checks = p.github
	}

	wf := &workflow.Workflow{
		Workspaces: workspace.NewManager(cfg.General.WorkingDir, git, cfg.GitHub.Token, logger),
		Agents:     p.runner,
		Submitter:  submit.New(git, prs, logger),
		Checks:     checks,
		Bundle:     p.bundle,
		Settings: workflow.Settings{
			BranchPrefix:          cfg.General.BranchPrefix,
			ShortDesc:             shortDesc,
			Base:                  cfg.GitHub.BaseBranch,
			Title:                 workflow.Title(cfg.GitHub.PRTitle, shortDesc),
			Body:                  cfg.GitHub.PRBody,
			Credential:            cfg.GitHub.Token,
			PostEvaluatePrompt:    p.postEval,
			PostEvaluateRetries:   cfg.Workflow.PostEvaluateRetries,
			ReviewMaxAttempts:     cfg.Workflow.ReviewMaxAttempts,
			WaitForChecks:         cfg.Workflow.WaitForChecks,
			ChecksPoll:            cfg.Workflow.ChecksPoll(),
			ChecksTimeout:         cfg.Workflow.ChecksTimeout(),
			AcceptableConclusions: cfg.Workflow.AcceptableConclusions,
		},
		Logger: logger,
	}
	if cfg.GitHub.Token == "" {
		logger.Warn("GITHUB_TOKEN not set, changes will not be pushed")
	}

	driver := &batch.Driver{
		Workflow: wf,
		Parallel: cfg.General.Parallel,
		Logger:   logger,
		OnResult: func(res domain.RunResult) {
			if store == nil {
				return
			}
			if err := store.SaveResult(rec.ID, res); err != nil {
				logger.Warn("recording result failed", "repo", res.Repository.URL, "error", err)
			}
		},
	}
	results := driver.Run(ctx, p.targets)

	if store != nil {
		if err := store.FinishBatch(rec.ID, time.Now()); err != nil {
			logger.Warn("recording batch end failed", "error", err)
		}
	}

	if cfg.Notifications.SlackWebhook != "" {
		slack := notify.NewSlackNotifier(cfg.Notifications.SlackWebhook)
		if err := slack.Notify(ctx, notify.Summarize(p.bundle.ChangeID, results)); err != nil {
			logger.Warn("slack notification failed", "error", err)
		}
	}

	report.Summary(out, results)
	return results
}
