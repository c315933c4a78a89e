// Package report renders batch results and run history for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/pr-fanout/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255"))

	submittedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dimmedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// outcomeOrder is the display order of outcomes in count lines
var outcomeOrder = []domain.Outcome{
	domain.OutcomeSubmitted,
	domain.OutcomeNeedsReview,
	domain.OutcomeNoOp,
	domain.OutcomeNotRelevant,
	domain.OutcomeSkipped,
	domain.OutcomeFailed,
}

// Metrics holds aggregated numbers for a batch
type Metrics struct {
	Total       int
	ByOutcome   map[domain.Outcome]int
	AvgDuration time.Duration
}

// Compute aggregates results. Runs without timestamps do not count towards
// the average duration.
func Compute(results []domain.RunResult) Metrics {
	m := Metrics{Total: len(results), ByOutcome: make(map[domain.Outcome]int)}
	var total time.Duration
	var timed int
	for _, r := range results {
		m.ByOutcome[r.Outcome]++
		if d := r.Duration(); d > 0 {
			total += d
			timed++
		}
	}
	if timed > 0 {
		m.AvgDuration = total / time.Duration(timed)
	}
	return m
}

// CountLine renders "3 repositories: 2 submitted, 1 failed"
func (m Metrics) CountLine() string {
	var parts []string
	for _, o := range outcomeOrder {
		if n := m.ByOutcome[o]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %s", humanize.Comma(int64(n)), o))
		}
	}
	noun := "repositories"
	if m.Total == 1 {
		noun = "repository"
	}
	line := fmt.Sprintf("%s %s", humanize.Comma(int64(m.Total)), noun)
	if len(parts) > 0 {
		line += ": " + strings.Join(parts, ", ")
	}
	return line
}

func outcomeStyle(o domain.Outcome) lipgloss.Style {
	switch o {
	case domain.OutcomeSubmitted:
		return submittedStyle
	case domain.OutcomeNeedsReview:
		return warningStyle
	case domain.OutcomeFailed:
		return failedStyle
	default:
		return dimmedStyle
	}
}

// Duration renders a run duration like "3 minutes"
func Duration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return "<1 second"
	}
	start := time.Unix(0, 0)
	return strings.TrimSpace(humanize.RelTime(start, start.Add(d), "", ""))
}

// column pads s to width, cutting it short when it would not leave a gap
func column(width int, s string) string {
	if r := []rune(s); len(r) > width-1 {
		s = string(r[:width-2]) + "…"
	}
	return lipgloss.NewStyle().Width(width).Render(s)
}

// Summary writes one line per repository followed by the outcome counts
func Summary(w io.Writer, results []domain.RunResult) {
	repoWidth := len("REPOSITORY")
	for _, r := range results {
		if n := len(r.Repository.URL); n > repoWidth {
			repoWidth = n
		}
	}
	repoWidth += 2

	fmt.Fprintln(w, titleStyle.Render("pr-fanout summary"))
	fmt.Fprintln(w, headerStyle.Render(column(repoWidth, "REPOSITORY")+column(16, "OUTCOME")+column(20, "STAGE")+column(14, "DURATION")+"DETAIL"))

	for _, r := range results {
		detail := r.PullRequestURL
		if r.Err != nil {
			detail = r.ErrorText()
		}
		if r.Checks != "" && r.PullRequestURL != "" {
			detail += " (checks " + string(r.Checks) + ")"
		}
		line := column(repoWidth, r.Repository.URL) +
			outcomeStyle(r.Outcome).Render(column(16, string(r.Outcome))) +
			column(20, string(r.StageReached)) +
			column(14, Duration(r.Duration())) +
			detail
		fmt.Fprintln(w, line)
	}

	m := Compute(results)
	fmt.Fprintln(w)
	fmt.Fprintln(w, m.CountLine())
	if m.AvgDuration > 0 {
		fmt.Fprintln(w, dimmedStyle.Render("average "+Duration(m.AvgDuration)+" per repository"))
	}
}

// History writes one line per batch, newest first as given
func History(w io.Writer, batches []*domain.Batch, results map[string][]domain.RunResult, now time.Time) {
	if len(batches) == 0 {
		fmt.Fprintln(w, dimmedStyle.Render("no batches recorded"))
		return
	}

	fmt.Fprintln(w, headerStyle.Render(column(38, "BATCH")+column(16, "CHANGE")+column(15, "SOURCE")+column(18, "STARTED")+"RESULTS"))
	for _, b := range batches {
		change := b.ChangeID
		if change == "" {
			change = "-"
		}
		status := Compute(results[b.ID]).CountLine()
		if b.FinishedAt == nil {
			status = warningStyle.Render("unfinished") + " " + status
		}
		fmt.Fprintln(w, column(38, b.ID)+
			column(16, change)+
			column(15, string(b.Source))+
			column(18, humanize.RelTime(b.StartedAt, now, "ago", "from now"))+
			status)
	}
}
