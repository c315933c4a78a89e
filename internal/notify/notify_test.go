package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hochfrequenz/pr-fanout/internal/domain"
)

func result(url string, o domain.Outcome) domain.RunResult {
	return domain.RunResult{Repository: domain.RepositoryTarget{URL: url}, Outcome: o}
}

func TestSummarize(t *testing.T) {
	failed := result("https://github.com/acme/db", domain.OutcomeFailed)
	failed.StageReached = domain.StageSubmission
	failed.Err = errors.New("push rejected")

	api := result("https://github.com/acme/api", domain.OutcomeSubmitted)
	api.PullRequestURL = "https://github.com/acme/api/pull/7"

	s := Summarize("OPS-42", []domain.RunResult{
		api,
		result("https://github.com/acme/web", domain.OutcomeNotRelevant),
		failed,
	})

	if s.Total != 3 || s.Counts[domain.OutcomeSubmitted] != 1 || s.Counts[domain.OutcomeFailed] != 1 {
		t.Errorf("counts = %v, total = %d", s.Counts, s.Total)
	}
	if len(s.PullRequests) != 1 || s.PullRequests[0] != api.PullRequestURL {
		t.Errorf("PullRequests = %v", s.PullRequests)
	}
	want := Failure{Repository: "acme/db", Stage: domain.StageSubmission, Error: "push rejected"}
	if len(s.Failures) != 1 || s.Failures[0] != want {
		t.Errorf("Failures = %+v, want %+v", s.Failures, want)
	}
	if got := s.Headline(); got != "pr-fanout OPS-42: 3 repositories, 1 submitted, 1 not_relevant, 1 failed" {
		t.Errorf("Headline = %q", got)
	}
}

func TestSummary_Severity(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []domain.Outcome
		want     Severity
	}{
		{"all submitted", []domain.Outcome{domain.OutcomeSubmitted, domain.OutcomeNotRelevant}, SeverityOK},
		{"needs review", []domain.Outcome{domain.OutcomeSubmitted, domain.OutcomeNeedsReview}, SeverityAttention},
		{"failure wins", []domain.Outcome{domain.OutcomeNeedsReview, domain.OutcomeFailed}, SeverityFailed},
		{"empty batch", nil, SeverityOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var results []domain.RunResult
			for _, o := range tt.outcomes {
				results = append(results, domain.RunResult{Outcome: o})
			}
			if got := Summarize("", results).Severity(); got != tt.want {
				t.Errorf("Severity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHeadline_SingleRepository(t *testing.T) {
	s := Summarize("", []domain.RunResult{{Outcome: domain.OutcomeNoOp}})
	if got := s.Headline(); got != "pr-fanout: 1 repository, 1 changed_no_op" {
		t.Errorf("Headline = %q", got)
	}
}

func TestBuildSlackMessage(t *testing.T) {
	failed := result("https://github.com/acme/db", domain.OutcomeFailed)
	failed.StageReached = domain.StageReview
	failed.Err = errors.New("review agent exited with status 2")
	api := result("https://github.com/acme/api", domain.OutcomeSubmitted)
	api.PullRequestURL = "https://github.com/acme/api/pull/7"

	msg := BuildSlackMessage(Summarize("OPS-42", []domain.RunResult{api, failed}))

	if len(msg.Attachments) != 2 {
		t.Fatalf("attachments = %+v, want overview and failures", msg.Attachments)
	}
	overview := msg.Attachments[0]
	if overview.Color != "danger" {
		t.Errorf("overview color = %q, want danger", overview.Color)
	}
	wantFields := []SlackField{
		{Title: "submitted", Value: "1", Short: true},
		{Title: "failed", Value: "1", Short: true},
	}
	if fmt.Sprint(overview.Fields) != fmt.Sprint(wantFields) {
		t.Errorf("fields = %+v, want %+v", overview.Fields, wantFields)
	}
	if !strings.Contains(overview.Text, "https://github.com/acme/api/pull/7") {
		t.Errorf("overview text = %q", overview.Text)
	}

	failures := msg.Attachments[1]
	if failures.Title != "Failed (1)" {
		t.Errorf("failures title = %q", failures.Title)
	}
	if failures.Text != "• `acme/db` at review: review agent exited with status 2" {
		t.Errorf("failures text = %q", failures.Text)
	}
}

func TestBuildSlackMessage_ManyFailures(t *testing.T) {
	var results []domain.RunResult
	for i := 0; i < maxListedFailures+3; i++ {
		r := result(fmt.Sprintf("https://github.com/acme/r%d", i), domain.OutcomeFailed)
		r.Err = errors.New(strings.Repeat("x", maxErrorLen+50))
		results = append(results, r)
	}

	msg := BuildSlackMessage(Summarize("", results))
	text := msg.Attachments[len(msg.Attachments)-1].Text
	lines := strings.Split(text, "\n")
	if len(lines) != maxListedFailures+1 {
		t.Fatalf("got %d lines, want %d", len(lines), maxListedFailures+1)
	}
	if lines[len(lines)-1] != "• and 3 more" {
		t.Errorf("last line = %q", lines[len(lines)-1])
	}
	if !strings.HasSuffix(lines[0], "…") {
		t.Errorf("long error not truncated: %q", lines[0])
	}
}

func TestBuildSlackMessage_AllGood(t *testing.T) {
	msg := BuildSlackMessage(Summarize("", []domain.RunResult{{Outcome: domain.OutcomeNotRelevant}}))
	if len(msg.Attachments) != 1 || msg.Attachments[0].Color != "good" {
		t.Errorf("attachments = %+v", msg.Attachments)
	}
	if msg.Attachments[0].Text != "" {
		t.Errorf("no pull requests should leave the text empty, got %q", msg.Attachments[0].Text)
	}
}

func TestSlackNotifier_Notify(t *testing.T) {
	var got SlackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := Summarize("OPS-42", []domain.RunResult{result("https://github.com/acme/api", domain.OutcomeNeedsReview)})
	if err := NewSlackNotifier(server.URL).Notify(context.Background(), s); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	if got.Text != "pr-fanout OPS-42: 1 repository, 1 needs_review" {
		t.Errorf("Text = %q", got.Text)
	}
	if len(got.Attachments) != 1 || got.Attachments[0].Color != "warning" || len(got.Attachments[0].Fields) != 1 {
		t.Errorf("Attachments = %+v", got.Attachments)
	}
}

func TestSlackNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	err := NewSlackNotifier(server.URL).Notify(context.Background(), Summary{})
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("err = %v, want 403 error", err)
	}
}

func TestSlackNotifier_Disabled(t *testing.T) {
	if err := NewSlackNotifier("").Notify(context.Background(), Summary{}); err != nil {
		t.Errorf("disabled notifier returned %v", err)
	}
}
