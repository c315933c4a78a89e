package agent

import (
	"context"
	"errors"

	"github.com/hochfrequenz/pr-fanout/internal/domain"
	"github.com/hochfrequenz/pr-fanout/internal/prompts"
)

// Runner wraps a Registry with the prompts and verdict parsing of each role.
// ContextRoots and Secrets are shared by every invocation of a batch.
type Runner struct {
	Registry     *Registry
	Prompts      *prompts.Loader
	ContextRoots []string
	Secrets      map[string]string
}

// NewRunner creates a Runner
func NewRunner(reg *Registry, loader *prompts.Loader, contextRoots []string, secrets map[string]string) *Runner {
	if loader == nil {
		loader = prompts.NewLoader()
	}
	return &Runner{Registry: reg, Prompts: loader, ContextRoots: contextRoots, Secrets: secrets}
}

// Has reports whether role has a backend
func (r *Runner) Has(role domain.Role) bool {
	return r.Registry.Has(role)
}

// Relevant asks the evaluate agent whether the repository needs the change
func (r *Runner) Relevant(ctx context.Context, repo, workspace, objective string) (bool, error) {
	prompt, err := r.Prompts.BuildRelevance(objective)
	if err != nil {
		return false, err
	}
	out, err := r.Registry.Run(ctx, Invocation{
		Role:        domain.RoleEvaluate,
		Instruction: prompt,
		Workspace:   workspace,
		Repository:  repo,
		Stream:      true,
	})
	if err != nil {
		return false, err
	}
	return r.verdict(out)
}

// Change runs the change agent; feedback from an earlier review is appended
// when non-empty.
func (r *Runner) Change(ctx context.Context, repo, workspace, task, feedback string) error {
	prompt, err := r.Prompts.BuildChange(task, feedback)
	if err != nil {
		return err
	}
	_, err = r.Registry.Run(ctx, Invocation{
		Role:         domain.RoleChange,
		Instruction:  prompt,
		Workspace:    workspace,
		ContextRoots: r.ContextRoots,
		Secrets:      r.Secrets,
		Repository:   repo,
		Stream:       true,
	})
	return err
}

// Verify asks the evaluate agent whether the uncommitted changes meet
// criterion. The raw output is returned for use as feedback.
func (r *Runner) Verify(ctx context.Context, repo, workspace, criterion, task string) (bool, string, error) {
	prompt, err := r.Prompts.BuildVerify(criterion, task)
	if err != nil {
		return false, "", err
	}
	out, err := r.Registry.Run(ctx, Invocation{
		Role:         domain.RoleEvaluate,
		Instruction:  prompt,
		Workspace:    workspace,
		ContextRoots: r.ContextRoots,
		Secrets:      r.Secrets,
		Repository:   repo,
		Stream:       true,
	})
	if err != nil {
		return false, out, err
	}
	ok, err := r.verdict(out)
	return ok, out, err
}

// Review asks the review agent whether the workspace is ready to submit
func (r *Runner) Review(ctx context.Context, repo, workspace, task string) (ReviewVerdict, error) {
	prompt, err := r.Prompts.BuildReview(task)
	if err != nil {
		return ReviewVerdict{}, err
	}
	out, err := r.Registry.Run(ctx, Invocation{
		Role:         domain.RoleReview,
		Instruction:  prompt,
		Workspace:    workspace,
		ContextRoots: r.ContextRoots,
		Secrets:      r.Secrets,
		Repository:   repo,
	})
	if err != nil {
		return ReviewVerdict{}, err
	}
	return ParseReview(out), nil
}

// ShortDescription asks the naming agent for a kebab-case summary of task
func (r *Runner) ShortDescription(ctx context.Context, task string) (string, error) {
	prompt, err := r.Prompts.BuildNaming(task)
	if err != nil {
		return "", err
	}
	out, err := r.Registry.Run(ctx, Invocation{Role: domain.RoleNaming, Instruction: prompt})
	if err != nil {
		return "", err
	}
	desc, err := ParseShortDesc(out)
	if err != nil {
		return "", &domain.AgentError{Role: domain.RoleNaming, Backend: r.Registry.BackendName(domain.RoleNaming), Output: out, Err: err}
	}
	return desc, nil
}

func (r *Runner) verdict(out string) (bool, error) {
	ok, err := ParseVerdict(out)
	if errors.Is(err, ErrMalformedVerdict) {
		return false, &domain.AgentError{
			Role:    domain.RoleEvaluate,
			Backend: r.Registry.BackendName(domain.RoleEvaluate),
			Output:  out,
			Err:     err,
		}
	}
	return ok, err
}
