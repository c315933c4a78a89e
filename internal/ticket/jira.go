// Package ticket loads change instructions from Jira issues.
package ticket

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	jira "github.com/andygrunwald/go-jira"
)

// Ticket is the part of an issue used to build a change instruction
type Ticket struct {
	ID          string
	Summary     string
	Description string
}

// Prompt joins summary and description with a blank line, skipping empty parts
func (t Ticket) Prompt() string {
	var parts []string
	for _, p := range []string{t.Summary, t.Description} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Client fetches issues from one Jira site
type Client struct {
	jc     *jira.Client
	logger *slog.Logger
}

// NormalizeBaseURL trims trailing slashes and adds https:// when no scheme is given
func NormalizeBaseURL(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return ""
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + strings.TrimLeft(base, "/")
	}
	return base
}

// New creates a client using basic auth with email and API token
func New(baseURL, email, token string, logger *slog.Logger) (*Client, error) {
	base := NormalizeBaseURL(baseURL)
	if base == "" {
		return nil, fmt.Errorf("jira base URL is required")
	}
	if token != "" && email == "" {
		return nil, fmt.Errorf("jira email is required when using an API token")
	}
	tp := jira.BasicAuthTransport{Username: email, Password: token}
	jc, err := jira.NewClient(tp.Client(), base)
	if err != nil {
		return nil, fmt.Errorf("creating jira client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{jc: jc, logger: logger.With("component", "jira")}, nil
}

// GetTicket fetches the summary and description of id
func (c *Client) GetTicket(ctx context.Context, id string) (Ticket, error) {
	c.logger.Info("fetching ticket", "ticket", id)
	issue, _, err := c.jc.Issue.GetWithContext(ctx, id, &jira.GetQueryOptions{Fields: "summary,description"})
	if err != nil {
		return Ticket{}, fmt.Errorf("get jira issue %s: %w", id, err)
	}
	t := Ticket{ID: id}
	if issue.Fields != nil {
		t.Summary = issue.Fields.Summary
		t.Description = issue.Fields.Description
	}
	return t, nil
}
