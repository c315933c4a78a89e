// Package ghapi is the GitHub REST collaborator: pull requests, repository
// files and check runs.
package ghapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"

	"github.com/hochfrequenz/pr-fanout/internal/domain"
)

// Client wraps the go-github client
type Client struct {
	gh     *github.Client
	logger *slog.Logger
}

// New creates a client authenticated with token (may be empty for public
// reads). apiURL overrides the API base, e.g. for GitHub Enterprise.
func New(ctx context.Context, token, apiURL string, logger *slog.Logger) (*Client, error) {
	var hc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(ctx, ts)
	}
	gh := github.NewClient(hc)
	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		u, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("parsing GitHub API URL: %w", err)
		}
		gh.BaseURL = u
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{gh: gh, logger: logger.With("component", "github")}, nil
}

// DefaultBranch returns the repository's default branch
func (c *Client) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	r, _, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return "", fmt.Errorf("get repository %s/%s: %w", owner, repo, err)
	}
	if b := r.GetDefaultBranch(); b != "" {
		return b, nil
	}
	return "main", nil
}

// GetFile returns the decoded content of path at ref
func (c *Client) GetFile(ctx context.Context, owner, repo, ref, path string) (string, error) {
	file, _, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return "", fmt.Errorf("get %s from %s/%s@%s: %w", path, owner, repo, ref, err)
	}
	if file == nil {
		return "", fmt.Errorf("%s in %s/%s is a directory", path, owner, repo)
	}
	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", path, err)
	}
	return content, nil
}

// PullRequestInput describes the pull request to open or refresh
type PullRequestInput struct {
	Owner string
	Repo  string
	Head  string // branch name in Owner/Repo
	Base  string
	Title string
	Body  string
}

// PullRequest is the reference returned to callers
type PullRequest struct {
	Number  int
	URL     string
	HeadSHA string
	State   string
	Created bool
}

func toRef(pr *github.PullRequest, created bool) *PullRequest {
	return &PullRequest{
		Number:  pr.GetNumber(),
		URL:     pr.GetHTMLURL(),
		HeadSHA: pr.GetHead().GetSHA(),
		State:   pr.GetState(),
		Created: created,
	}
}

// CreateOrUpdatePullRequest opens a pull request for in.Head, or refreshes the
// title and body of the open one that already exists for that branch.
func (c *Client) CreateOrUpdatePullRequest(ctx context.Context, in PullRequestInput) (*PullRequest, error) {
	existing, err := c.findPullRequest(ctx, in, "open")
	if err != nil {
		return nil, err
	}
	if existing != nil {
		c.logger.Info("updating existing pull request", "repo", in.Owner+"/"+in.Repo, "number", existing.GetNumber())
		updated, _, err := c.gh.PullRequests.Edit(ctx, in.Owner, in.Repo, existing.GetNumber(), &github.PullRequest{
			Title: github.Ptr(in.Title),
			Body:  github.Ptr(in.Body),
		})
		if err != nil {
			return nil, fmt.Errorf("update pull request #%d: %w", existing.GetNumber(), err)
		}
		return toRef(updated, false), nil
	}

	created, _, err := c.gh.PullRequests.Create(ctx, in.Owner, in.Repo, &github.NewPullRequest{
		Title: github.Ptr(in.Title),
		Head:  github.Ptr(in.Head),
		Base:  github.Ptr(in.Base),
		Body:  github.Ptr(in.Body),
	})
	if err == nil {
		c.logger.Info("opened pull request", "repo", in.Owner+"/"+in.Repo, "number", created.GetNumber())
		return toRef(created, true), nil
	}

	// 422 usually means a pull request for this head already exists
	if isStatus(err, http.StatusUnprocessableEntity) {
		pr, findErr := c.findPullRequest(ctx, in, "all")
		if findErr == nil && pr != nil {
			c.logger.Warn("pull request already exists", "repo", in.Owner+"/"+in.Repo, "number", pr.GetNumber(), "state", pr.GetState())
			return toRef(pr, false), nil
		}
	}
	return nil, fmt.Errorf("create pull request: %w", err)
}

func (c *Client) findPullRequest(ctx context.Context, in PullRequestInput, state string) (*github.PullRequest, error) {
	prs, _, err := c.gh.PullRequests.List(ctx, in.Owner, in.Repo, &github.PullRequestListOptions{
		State: state,
		Head:  in.Owner + ":" + in.Head,
		Base:  in.Base,
	})
	if err != nil {
		return nil, fmt.Errorf("list pull requests: %w", err)
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return prs[0], nil
}

func isStatus(err error, code int) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == code
}

// ChecksSummary is the state of all check runs on one commit
type ChecksSummary struct {
	Total   int
	Pending int
	Failed  []string
}

// Done reports whether every check run has completed
func (s ChecksSummary) Done() bool {
	return s.Total > 0 && s.Pending == 0
}

// Checks summarizes the check runs on ref. A completed run whose conclusion
// is not in acceptable counts as failed.
func (c *Client) Checks(ctx context.Context, owner, repo, ref string, acceptable []string) (ChecksSummary, error) {
	ok := make(map[string]bool, len(acceptable))
	for _, a := range acceptable {
		ok[strings.ToLower(a)] = true
	}

	var sum ChecksSummary
	opts := &github.ListCheckRunsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		res, resp, err := c.gh.Checks.ListCheckRunsForRef(ctx, owner, repo, ref, opts)
		if err != nil {
			return sum, fmt.Errorf("list check runs for %s: %w", ref, err)
		}
		for _, run := range res.CheckRuns {
			sum.Total++
			if run.GetStatus() != "completed" {
				sum.Pending++
				continue
			}
			if !ok[strings.ToLower(run.GetConclusion())] {
				sum.Failed = append(sum.Failed, run.GetName())
			}
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return sum, nil
}

const defaultChecksPoll = 15 * time.Second

// WaitForChecks polls the check runs on ref until all complete or timeout
// elapses. It returns the final status and the names of failed checks. A
// non-positive poll falls back to the default interval.
func (c *Client) WaitForChecks(ctx context.Context, owner, repo, ref string, poll, timeout time.Duration, acceptable []string) (domain.ChecksStatus, []string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if poll <= 0 {
		poll = defaultChecksPoll
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		sum, err := c.Checks(ctx, owner, repo, ref, acceptable)
		if err != nil && ctx.Err() == nil {
			return domain.ChecksUnknown, nil, err
		}
		if err == nil && sum.Done() {
			if len(sum.Failed) > 0 {
				return domain.ChecksFailed, sum.Failed, nil
			}
			return domain.ChecksPassed, nil, nil
		}
		c.logger.Debug("waiting for checks", "repo", owner+"/"+repo, "ref", ref, "total", sum.Total, "pending", sum.Pending)

		select {
		case <-ctx.Done():
			return domain.ChecksTimeout, sum.Failed, nil
		case <-ticker.C:
		}
	}
}

// AddLabels adds labels to a pull request. Missing labels are created by GitHub.
func (c *Client) AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	if _, _, err := c.gh.Issues.AddLabelsToIssue(ctx, owner, repo, number, labels); err != nil {
		return fmt.Errorf("add labels to #%d: %w", number, err)
	}
	return nil
}
