package agent

import (
	"encoding/json"
	"strings"
)

// streamEvent is the subset of the stream-json event shape we read
type streamEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	Text    string `json:"text"`
	Result  string `json:"result"`
	Message *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
}

// streamCollector accumulates assistant text from stream-json output. When the
// stream ends with a result event its text replaces the accumulated deltas.
type streamCollector struct {
	assistant strings.Builder
	result    string
	sawResult bool
}

func (c *streamCollector) filter(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", false
	}
	var ev streamEvent
	if err := json.Unmarshal([]byte(trimmed), &ev); err != nil {
		// plain text mixed into the stream
		c.assistant.WriteString(line + "\n")
		return "", false
	}
	switch ev.Type {
	case "result":
		c.result = ev.Result
		c.sawResult = true
	case "assistant":
		if ev.Text != "" {
			c.assistant.WriteString(ev.Text)
		} else if ev.Message != nil {
			for _, part := range ev.Message.Content {
				c.assistant.WriteString(part.Text)
			}
		}
	}
	return "", false
}

func (c *streamCollector) text() string {
	if c.sawResult && strings.TrimSpace(c.result) != "" {
		return c.result
	}
	return c.assistant.String()
}
