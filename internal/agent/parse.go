package agent

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/hochfrequenz/pr-fanout/internal/branch"
)

// ErrMalformedVerdict is returned when evaluate output holds no yes/no answer
var ErrMalformedVerdict = errors.New("agent output contains no yes/no verdict")

var (
	yesWords = map[string]bool{"yes": true, "y": true, "true": true}
	noWords  = map[string]bool{"no": true, "n": true, "false": true}
)

// ParseVerdict reads a yes/no answer. Bold markers win, then the last ten
// words scanned from the end, then the first yes/no word anywhere.
func ParseVerdict(output string) (bool, error) {
	lower := strings.ToLower(output)

	if strings.Contains(lower, "**yes**") || strings.Contains(lower, "**y**") {
		return true, nil
	}
	if strings.Contains(lower, "**no**") || strings.Contains(lower, "**n**") {
		return false, nil
	}

	words := strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == '\n' || r == '\t' || r == '\r' || r == '.' || r == ',' ||
			r == '*' || r == '!' || r == ':' || r == '"'
	})

	tail := words
	if len(tail) > 10 {
		tail = tail[len(tail)-10:]
	}
	for i := len(tail) - 1; i >= 0; i-- {
		if yesWords[tail[i]] {
			return true, nil
		}
		if noWords[tail[i]] {
			return false, nil
		}
	}

	for _, w := range words {
		if yesWords[w] {
			return true, nil
		}
		if noWords[w] {
			return false, nil
		}
	}

	return false, ErrMalformedVerdict
}

// Review verdict markers
const (
	ReadyToCommit   = "READY_TO_COMMIT"
	ChangesRequired = "CHANGES_REQUIRED"
)

// ReviewVerdict is the parsed output of a review invocation
type ReviewVerdict struct {
	Ready    bool
	Feedback string
}

// ParseReview reads review output. Anything other than a first line of
// READY_TO_COMMIT means changes are required; the rest of the output becomes
// the feedback.
func ParseReview(output string) ReviewVerdict {
	text := strings.TrimSpace(output)
	if text == "" {
		return ReviewVerdict{Feedback: "Review output was empty; re-run the review and list the required fixes."}
	}

	lines := strings.Split(text, "\n")
	first := strings.ToUpper(strings.TrimSpace(lines[0]))

	switch {
	case first == ReadyToCommit:
		return ReviewVerdict{Ready: true}
	case strings.HasPrefix(first, ChangesRequired):
		feedback := strings.TrimSpace(strings.Join(lines[1:], "\n"))
		if feedback == "" {
			feedback = "Changes required (no details provided)."
		}
		return ReviewVerdict{Feedback: feedback}
	default:
		return ReviewVerdict{Feedback: text}
	}
}

// ParseShortDesc extracts {"short_desc": "..."} from naming output and
// returns it normalized to kebab case.
func ParseShortDesc(output string) (string, error) {
	candidates := []string{strings.TrimSpace(output)}
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); strings.HasPrefix(l, "{") {
			candidates = append(candidates, l)
		}
	}
	if start, end := strings.Index(output, "{"), strings.LastIndex(output, "}"); start >= 0 && end > start {
		candidates = append(candidates, output[start:end+1])
	}

	for _, c := range candidates {
		var v struct {
			ShortDesc string `json:"short_desc"`
		}
		if err := json.Unmarshal([]byte(c), &v); err != nil {
			continue
		}
		if desc := branch.Normalize(v.ShortDesc); desc != "" {
			return desc, nil
		}
	}
	return "", errors.New("naming output has no short_desc")
}
