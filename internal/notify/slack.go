package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	maxListedFailures = 10
	maxErrorLen       = 300
)

// SlackNotifier posts batch summaries to a Slack incoming webhook
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

// SlackMessage is the webhook payload
type SlackMessage struct {
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment is one colored block of a message
type SlackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title,omitempty"`
	Text   string       `json:"text,omitempty"`
	Fields []SlackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
}

// SlackField is a short title/value pair rendered in columns
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

var _ Notifier = (*SlackNotifier)(nil)

// NewSlackNotifier creates a Slack notifier. An empty URL disables it.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// SlackColor returns the attachment color for a severity
func SlackColor(s Severity) string {
	switch s {
	case SeverityFailed:
		return "danger"
	case SeverityAttention:
		return "warning"
	default:
		return "good"
	}
}

// BuildSlackMessage renders a summary: outcome counts as fields, the pull
// requests as a list, and a separate block with each failed repository.
func BuildSlackMessage(s Summary) SlackMessage {
	overview := SlackAttachment{
		Color:  SlackColor(s.Severity()),
		Footer: "pr-fanout",
	}
	for _, o := range outcomeOrder {
		if n := s.Counts[o]; n > 0 {
			overview.Fields = append(overview.Fields, SlackField{Title: string(o), Value: fmt.Sprint(n), Short: true})
		}
	}
	if len(s.PullRequests) > 0 {
		overview.Title = "Pull requests"
		overview.Text = bullets(s.PullRequests)
	}
	msg := SlackMessage{Text: s.Headline(), Attachments: []SlackAttachment{overview}}

	if len(s.Failures) > 0 {
		lines := make([]string, 0, maxListedFailures)
		for i, f := range s.Failures {
			if i == maxListedFailures {
				lines = append(lines, fmt.Sprintf("and %d more", len(s.Failures)-maxListedFailures))
				break
			}
			line := "`" + f.Repository + "`"
			if f.Stage != "" {
				line += " at " + string(f.Stage)
			}
			lines = append(lines, line+": "+truncate(f.Error, maxErrorLen))
		}
		msg.Attachments = append(msg.Attachments, SlackAttachment{
			Color: SlackColor(SeverityFailed),
			Title: fmt.Sprintf("Failed (%d)", len(s.Failures)),
			Text:  bullets(lines),
		})
	}
	return msg
}

// Notify posts the summary. A disabled notifier does nothing.
func (n *SlackNotifier) Notify(ctx context.Context, s Summary) error {
	if n.webhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(BuildSlackMessage(s))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned %d", resp.StatusCode)
	}
	return nil
}

func bullets(lines []string) string {
	return "• " + strings.Join(lines, "\n• ")
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "…"
	}
	return s
}
