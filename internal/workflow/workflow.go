// Package workflow runs the per-repository state machine: acquire a
// workspace, gate on relevance, generate the change, optionally review and
// evaluate it, then submit.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hochfrequenz/pr-fanout/internal/agent"
	"github.com/hochfrequenz/pr-fanout/internal/branch"
	"github.com/hochfrequenz/pr-fanout/internal/domain"
	"github.com/hochfrequenz/pr-fanout/internal/repo"
	"github.com/hochfrequenz/pr-fanout/internal/submit"
	"github.com/hochfrequenz/pr-fanout/internal/workspace"
)

// Workspaces acquires and releases working copies
type Workspaces interface {
	Acquire(ctx context.Context, target domain.RepositoryTarget, identity string) (*workspace.Handle, error)
	Release(h *workspace.Handle) error
}

// Agents runs the agent roles
type Agents interface {
	Has(role domain.Role) bool
	Relevant(ctx context.Context, repo, workspace, objective string) (bool, error)
	Change(ctx context.Context, repo, workspace, task, feedback string) error
	Verify(ctx context.Context, repo, workspace, criterion, task string) (bool, string, error)
	Review(ctx context.Context, repo, workspace, task string) (agent.ReviewVerdict, error)
}

// Submitter is the ChangeSubmitter
type Submitter interface {
	CheckoutBranch(ctx context.Context, workspace, branch string) error
	Submit(ctx context.Context, req submit.Request) (*submit.Result, error)
}

// Checks waits for CI on a pushed ref
type Checks interface {
	WaitForChecks(ctx context.Context, owner, repo, ref string, poll, timeout time.Duration, acceptable []string) (domain.ChecksStatus, []string, error)
}

// Settings are the batch-wide knobs of every run
type Settings struct {
	BranchPrefix string
	// ShortDesc is the naming agent's summary, used in ephemeral branch names
	ShortDesc  string
	Base       string
	Title      string
	Body       string
	Credential string

	PostEvaluatePrompt  string
	PostEvaluateRetries int
	ReviewMaxAttempts   int

	WaitForChecks         bool
	ChecksPoll            time.Duration
	ChecksTimeout         time.Duration
	AcceptableConclusions []string
}

// StageFunc is called whenever a run enters a new stage
type StageFunc func(target domain.RepositoryTarget, stage domain.Stage)

// Workflow composes the collaborators for one batch. It holds no per-run
// state, so Run may be called concurrently for different repositories.
type Workflow struct {
	Workspaces Workspaces
	Agents     Agents
	Submitter  Submitter
	Checks     Checks
	Bundle     domain.PromptBundle
	Settings   Settings
	OnStage    StageFunc
	Logger     *slog.Logger
	Now        func() time.Time
}

// run is the state of one repository run
type run struct {
	w      *Workflow
	res    domain.RunResult
	logger *slog.Logger
}

func (r *run) enter(stage domain.Stage) {
	r.res.StageReached = stage
	r.logger.Debug("stage", "stage", stage)
	if r.w.OnStage != nil {
		r.w.OnStage(r.res.Repository, stage)
	}
}

func (r *run) finish(outcome domain.Outcome, err error) domain.RunResult {
	r.res.Outcome = outcome
	r.res.Err = err
	r.res.FinishedAt = r.w.now()
	if err != nil {
		r.logger.Warn("run finished", "outcome", outcome, "stage", r.res.StageReached, "error", err)
	} else {
		r.logger.Info("run finished", "outcome", outcome, "stage", r.res.StageReached)
	}
	return r.res
}

func (w *Workflow) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Run executes the workflow for one repository and always returns a result.
// The workspace is released on every exit path, panics included.
func (w *Workflow) Run(ctx context.Context, target domain.RepositoryTarget) domain.RunResult {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &run{
		w:      w,
		res:    domain.RunResult{Repository: target, StartedAt: w.now()},
		logger: logger.With("component", "workflow", "repo", target.URL),
	}
	identity := w.Bundle.ChangeID
	r.res.Branch = branch.NameWithDescription(w.Settings.BranchPrefix, identity, w.Settings.ShortDesc)

	r.enter(domain.StageAcquiring)
	h, err := w.Workspaces.Acquire(ctx, target, identity)
	if err != nil {
		return r.finish(domain.OutcomeFailed, err)
	}
	defer func() {
		if err := w.Workspaces.Release(h); err != nil {
			r.logger.Warn("releasing workspace", "path", h.Path, "error", err)
		}
	}()
	r.res.Workspace = h.Path
	if h.Retain {
		r.logger.Info("workspace acquired", "path", h.Path, "reused", h.Reused)
	}

	if err := w.Submitter.CheckoutBranch(ctx, h.Path, r.res.Branch); err != nil {
		return r.finish(domain.OutcomeFailed, err)
	}

	if w.Bundle.HasRelevance() {
		r.enter(domain.StageRelevanceCheck)
		relevant, err := w.Agents.Relevant(ctx, target.URL, h.Path, w.Bundle.RelevanceInstruction)
		if err != nil {
			return r.finish(domain.OutcomeFailed, err)
		}
		if !relevant {
			return r.finish(domain.OutcomeNotRelevant, nil)
		}
	}

	r.enter(domain.StageChangeGeneration)
	if err := w.Agents.Change(ctx, target.URL, h.Path, w.Bundle.ChangeInstruction, ""); err != nil {
		return r.finish(domain.OutcomeFailed, err)
	}

	if err := r.review(ctx, h.Path); err != nil {
		return r.finish(domain.OutcomeFailed, err)
	}

	if w.Settings.PostEvaluatePrompt != "" {
		r.enter(domain.StagePostEvaluation)
		passed, err := r.postEvaluate(ctx, h.Path)
		if err != nil {
			return r.finish(domain.OutcomeFailed, err)
		}
		if !passed {
			return r.finish(domain.OutcomeNeedsReview, nil)
		}
	}

	r.enter(domain.StageSubmission)
	sub, err := w.Submitter.Submit(ctx, submit.Request{
		Workspace:  h.Path,
		Repository: target,
		Branch:     r.res.Branch,
		Base:       w.Settings.Base,
		Title:      w.Settings.Title,
		Body:       w.Settings.Body,
		Prompt:     w.Bundle.ChangeInstruction,
		Credential: w.Settings.Credential,
	})
	var noChanges *domain.NoChangesError
	switch {
	case errors.As(err, &noChanges):
		return r.finish(domain.OutcomeNoOp, nil)
	case err != nil:
		return r.finish(domain.OutcomeFailed, err)
	case sub.Skipped:
		return r.finish(domain.OutcomeSkipped, nil)
	}
	if sub.PullRequest != nil {
		r.res.PullRequestURL = sub.PullRequest.URL
	}

	if w.Settings.WaitForChecks && w.Checks != nil {
		r.enter(domain.StageChecksWait)
		r.res.Checks = r.waitForChecks(ctx)
	}

	r.enter(domain.StageDone)
	return r.finish(domain.OutcomeSubmitted, nil)
}

// review lets the review agent send the change back with feedback, up to
// ReviewMaxAttempts times. Submission proceeds once attempts run out.
func (r *run) review(ctx context.Context, path string) error {
	w := r.w
	if w.Settings.ReviewMaxAttempts <= 0 || !w.Agents.Has(domain.RoleReview) {
		return nil
	}
	r.enter(domain.StageReview)
	for attempt := 1; attempt <= w.Settings.ReviewMaxAttempts; attempt++ {
		verdict, err := w.Agents.Review(ctx, r.res.Repository.URL, path, w.Bundle.ChangeInstruction)
		if err != nil {
			return err
		}
		if verdict.Ready {
			r.logger.Info("review passed", "attempt", attempt)
			return nil
		}
		r.logger.Info("review requested changes", "attempt", attempt, "max", w.Settings.ReviewMaxAttempts)
		if err := w.Agents.Change(ctx, r.res.Repository.URL, path, w.Bundle.ChangeInstruction, verdict.Feedback); err != nil {
			return err
		}
	}
	r.logger.Warn("review attempts exhausted, submitting anyway")
	return nil
}

// postEvaluate asks the evaluate agent to judge the change. A negative
// verdict re-runs the change agent with the verdict as feedback, at most
// PostEvaluateRetries times.
func (r *run) postEvaluate(ctx context.Context, path string) (bool, error) {
	w := r.w
	for try := 0; ; try++ {
		ok, out, err := w.Agents.Verify(ctx, r.res.Repository.URL, path, w.Settings.PostEvaluatePrompt, w.Bundle.ChangeInstruction)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if try >= w.Settings.PostEvaluateRetries {
			r.logger.Warn("post-change evaluation failed, stopping without submitting", "workspace", path)
			return false, nil
		}
		r.logger.Info("post-change evaluation failed, retrying change", "retry", try+1)
		if err := w.Agents.Change(ctx, r.res.Repository.URL, path, w.Bundle.ChangeInstruction, out); err != nil {
			return false, err
		}
	}
}

func (r *run) waitForChecks(ctx context.Context) domain.ChecksStatus {
	w := r.w
	owner, name, err := repo.OwnerName(r.res.Repository.URL)
	if err != nil {
		r.logger.Warn("cannot wait for checks on a local repository")
		return domain.ChecksUnknown
	}
	status, failed, err := w.Checks.WaitForChecks(ctx, owner, name, r.res.Branch,
		w.Settings.ChecksPoll, w.Settings.ChecksTimeout, w.Settings.AcceptableConclusions)
	if err != nil {
		r.logger.Warn("checking CI status", "error", err)
		return domain.ChecksUnknown
	}
	if len(failed) > 0 {
		r.logger.Warn("checks failed", "checks", failed)
	}
	return status
}

// Namer produces a short description of a change
type Namer interface {
	Has(role domain.Role) bool
	ShortDescription(ctx context.Context, task string) (string, error)
}

// Describe asks the naming agent for a short description of the change.
// Any failure is logged and yields "".
func Describe(ctx context.Context, namer Namer, task string, logger *slog.Logger) string {
	if namer == nil || !namer.Has(domain.RoleNaming) {
		return ""
	}
	desc, err := namer.ShortDescription(ctx, task)
	if err != nil {
		if logger != nil {
			logger.Warn("naming agent failed, using default branch name", "error", err)
		}
		return ""
	}
	return desc
}

// Title is the pull request title for a change
func Title(base, shortDesc string) string {
	if shortDesc == "" {
		return base
	}
	return "[pr-fanout] " + shortDesc
}
