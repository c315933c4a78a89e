// Package submit commits a workspace, pushes its branch and opens or
// refreshes the pull request for it.
package submit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hochfrequenz/pr-fanout/internal/domain"
	"github.com/hochfrequenz/pr-fanout/internal/ghapi"
	"github.com/hochfrequenz/pr-fanout/internal/repo"
	"github.com/hochfrequenz/pr-fanout/internal/vcs"
)

// PlaceholderAuthor is used when no author is configured anywhere
var PlaceholderAuthor = vcs.Author{Name: "pr-creator", Email: "pr-creator@example.com"}

// Git is the VCS collaborator
type Git interface {
	CheckoutOrCreateBranch(ctx context.Context, path, name string) error
	StageAll(ctx context.Context, path string) error
	HasStagedChanges(ctx context.Context, path string) (bool, error)
	StagedDiff(ctx context.Context, path string) (string, error)
	Commit(ctx context.Context, path string, author vcs.Author, message string) error
	Push(ctx context.Context, path, branch, credential string) error
	AheadBehind(ctx context.Context, path, branch string) (ahead, behind int, err error)
	ConfiguredAuthor(ctx context.Context, path string) (vcs.Author, bool)
}

// PullRequests is the code review API
type PullRequests interface {
	DefaultBranch(ctx context.Context, owner, repo string) (string, error)
	CreateOrUpdatePullRequest(ctx context.Context, in ghapi.PullRequestInput) (*ghapi.PullRequest, error)
	AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error
}

// Request describes one submission
type Request struct {
	Workspace  string
	Repository domain.RepositoryTarget
	Branch     string
	Base       string // empty means the repository default branch
	Title      string
	Body       string
	Prompt     string
	Credential string
}

// Result is the outcome of Submit
type Result struct {
	Skipped     bool
	Category    Category
	PullRequest *ghapi.PullRequest
}

// Submitter stages, commits, pushes and opens pull requests
type Submitter struct {
	git    Git
	prs    PullRequests
	lookup func(string) (string, bool)
	logger *slog.Logger
}

// New creates a Submitter. prs may be nil when no credential is configured.
func New(git Git, prs PullRequests, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{
		git:    git,
		prs:    prs,
		lookup: os.LookupEnv,
		logger: logger.With("component", "submit"),
	}
}

// CheckoutBranch switches the workspace to branch, creating it if needed
func (s *Submitter) CheckoutBranch(ctx context.Context, workspace, branch string) error {
	if err := s.git.CheckoutOrCreateBranch(ctx, workspace, branch); err != nil {
		return &domain.SubmissionError{Step: "checkout", Err: err}
	}
	return nil
}

// Submit commits all changes in the workspace and opens a pull request. With
// no credential nothing is pushed and the result is Skipped. A clean working
// tree still pushes commits origin does not have yet; only when there is
// nothing to commit and nothing to push is a NoChangesError returned.
func (s *Submitter) Submit(ctx context.Context, req Request) (*Result, error) {
	logger := s.logger.With("repo", req.Repository.URL, "branch", req.Branch)

	if req.Credential == "" {
		logger.Info("no credential configured, skipping submission")
		return &Result{Skipped: true}, nil
	}
	if s.prs == nil {
		return nil, &domain.SubmissionError{Step: "pull_request", Err: fmt.Errorf("no pull request API configured")}
	}

	if err := s.git.StageAll(ctx, req.Workspace); err != nil {
		return nil, &domain.SubmissionError{Step: "stage", Err: err}
	}
	changed, err := s.git.HasStagedChanges(ctx, req.Workspace)
	if err != nil {
		return nil, &domain.SubmissionError{Step: "stage", Err: err}
	}

	category := CategoryRoutine
	if changed {
		diff, err := s.git.StagedDiff(ctx, req.Workspace)
		if err != nil {
			logger.Warn("could not read staged diff", "error", err)
		}
		files := ChangedFiles(diff)
		category = AnalyzeDiff(diff)

		author := s.author(ctx, req.Workspace)
		if err := s.git.Commit(ctx, req.Workspace, author, commitMessage(req.Title, files)); err != nil {
			return nil, &domain.SubmissionError{Step: "commit", Err: err}
		}
		logger.Info("committed changes", "files", len(files), "category", category, "author", author.String())
	} else {
		ahead, behind, err := s.git.AheadBehind(ctx, req.Workspace, req.Branch)
		if err != nil {
			return nil, &domain.SubmissionError{Step: "push", Err: err}
		}
		if behind > 0 {
			logger.Warn("local branch is behind origin, not pushing", "ahead", ahead, "behind", behind)
			return nil, &domain.NoChangesError{Path: req.Workspace}
		}
		if ahead == 0 {
			return nil, &domain.NoChangesError{Path: req.Workspace}
		}
		logger.Info("working tree clean, pushing unpublished commits", "ahead", ahead)
	}

	if err := s.git.Push(ctx, req.Workspace, req.Branch, req.Credential); err != nil {
		return nil, &domain.SubmissionError{Step: "push", Err: err}
	}

	owner, name := repo.Slug(req.Repository.URL)
	base := req.Base
	if base == "" {
		base, err = s.prs.DefaultBranch(ctx, owner, name)
		if err != nil {
			return nil, &domain.SubmissionError{Step: "pull_request", Err: err}
		}
	}

	pr, err := s.prs.CreateOrUpdatePullRequest(ctx, ghapi.PullRequestInput{
		Owner: owner,
		Repo:  name,
		Head:  req.Branch,
		Base:  base,
		Title: req.Title,
		Body:  BuildBody(req.Body, req.Prompt, category),
	})
	if err != nil {
		return nil, &domain.SubmissionError{Step: "pull_request", Err: err}
	}

	if labels := Labels(category); len(labels) > 0 {
		if err := s.prs.AddLabels(ctx, owner, name, pr.Number, labels); err != nil {
			logger.Warn("could not label pull request", "number", pr.Number, "error", err)
		}
	}

	logger.Info("submitted", "url", pr.URL, "created", pr.Created)
	return &Result{Category: category, PullRequest: pr}, nil
}

// author picks GIT_AUTHOR_NAME/GIT_AUTHOR_EMAIL, then git config, then the placeholder
func (s *Submitter) author(ctx context.Context, workspace string) vcs.Author {
	name, _ := s.lookup("GIT_AUTHOR_NAME")
	email, _ := s.lookup("GIT_AUTHOR_EMAIL")
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name != "" && email != "" {
		return vcs.Author{Name: name, Email: email}
	}
	if a, ok := s.git.ConfiguredAuthor(ctx, workspace); ok {
		return a
	}
	return PlaceholderAuthor
}

func commitMessage(title string, files []string) string {
	if title == "" {
		title = "Automated change"
	}
	return title + "\n\n" + Summary(files)
}

// BuildBody appends the change prompt to the configured pull request body
func BuildBody(base, prompt string, category Category) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(base))
	if category != CategoryRoutine && category != "" {
		fmt.Fprintf(&b, "\n\n> Touches %s-sensitive files, please review carefully.", category)
	}
	b.WriteString("\n\n## Change Prompt\n\n")
	b.WriteString(strings.TrimSpace(prompt))
	return strings.TrimLeft(b.String(), "\n")
}
