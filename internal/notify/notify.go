// Package notify posts a summary of a finished batch to a Slack webhook.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/hochfrequenz/pr-fanout/internal/domain"
	"github.com/hochfrequenz/pr-fanout/internal/repo"
)

// Severity is how much attention a batch needs
type Severity int

const (
	SeverityOK Severity = iota
	SeverityAttention
	SeverityFailed
)

// outcomeOrder is the display order of outcome counts
var outcomeOrder = []domain.Outcome{
	domain.OutcomeSubmitted,
	domain.OutcomeNeedsReview,
	domain.OutcomeNoOp,
	domain.OutcomeNotRelevant,
	domain.OutcomeSkipped,
	domain.OutcomeFailed,
}

// Failure is a repository whose run ended in OutcomeFailed
type Failure struct {
	Repository string
	Stage      domain.Stage
	Error      string
}

// Summary condenses the results of one batch
type Summary struct {
	ChangeID     string
	Total        int
	Counts       map[domain.Outcome]int
	PullRequests []string
	Failures     []Failure
}

// Notifier delivers batch summaries
type Notifier interface {
	Notify(ctx context.Context, s Summary) error
}

// Summarize builds the summary of a batch from its per-repository results
func Summarize(changeID string, results []domain.RunResult) Summary {
	s := Summary{
		ChangeID: changeID,
		Total:    len(results),
		Counts:   make(map[domain.Outcome]int),
	}
	for _, r := range results {
		s.Counts[r.Outcome]++
		if r.PullRequestURL != "" {
			s.PullRequests = append(s.PullRequests, r.PullRequestURL)
		}
		if r.Outcome == domain.OutcomeFailed {
			s.Failures = append(s.Failures, Failure{
				Repository: displayName(r.Repository.URL),
				Stage:      r.StageReached,
				Error:      r.ErrorText(),
			})
		}
	}
	return s
}

// Severity is failed when any repository failed and needs attention when a
// pull request is waiting for human review
func (s Summary) Severity() Severity {
	switch {
	case s.Counts[domain.OutcomeFailed] > 0:
		return SeverityFailed
	case s.Counts[domain.OutcomeNeedsReview] > 0:
		return SeverityAttention
	default:
		return SeverityOK
	}
}

// Headline is a one-line description such as
// "pr-fanout OPS-42: 3 repositories, 2 submitted, 1 failed"
func (s Summary) Headline() string {
	var b strings.Builder
	b.WriteString("pr-fanout")
	if s.ChangeID != "" {
		b.WriteString(" " + s.ChangeID)
	}
	noun := "repositories"
	if s.Total == 1 {
		noun = "repository"
	}
	fmt.Fprintf(&b, ": %d %s", s.Total, noun)
	for _, o := range outcomeOrder {
		if n := s.Counts[o]; n > 0 {
			fmt.Fprintf(&b, ", %d %s", n, o)
		}
	}
	return b.String()
}

func displayName(url string) string {
	owner, name := repo.Slug(url)
	if owner == "" {
		return name
	}
	return owner + "/" + name
}
