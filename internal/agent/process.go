package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// lineFilter turns one line of process output into agent text.
// keep=false drops the line from the returned output.
type lineFilter func(line string) (text string, keep bool)

// lineWriter splits written bytes into lines
type lineWriter struct {
	mu     *sync.Mutex
	buf    []byte
	onLine func(line string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.onLine(strings.TrimRight(string(w.buf[:i]), "\r"))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.onLine(string(w.buf))
		w.buf = nil
	}
}

// runProcess runs cmd, streams stdout and stderr line by line to logOut and
// returns the collected output. With a filter, only filtered stdout text is
// returned; stderr is still logged. cmd.WaitDelay bounds how long a killed
// process's children may hold the output pipes open.
func runProcess(cmd *exec.Cmd, filter lineFilter, logOut io.Writer) (string, error) {
	var (
		mu   sync.Mutex
		raw  []string
		text strings.Builder
	)

	handle := func(isStdout bool) func(string) {
		return func(line string) {
			raw = append(raw, line)
			if logOut != nil {
				io.WriteString(logOut, line+"\n")
			}
			if filter != nil && isStdout {
				if t, keep := filter(line); keep {
					text.WriteString(t)
				}
			}
		}
	}

	stdout := &lineWriter{mu: &mu, onLine: handle(true)}
	stderr := &lineWriter{mu: &mu, onLine: handle(false)}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("starting %s: %w", cmd.Path, err)
	}
	waitErr := cmd.Wait()
	stdout.flush()
	stderr.flush()

	mu.Lock()
	defer mu.Unlock()

	out := strings.Join(raw, "\n")
	if filter != nil {
		out = text.String()
	}

	if waitErr != nil {
		if msg := extractErrorFromOutput(raw); msg != "" {
			return out, fmt.Errorf("%w: %s", waitErr, msg)
		}
		return out, waitErr
	}
	return out, nil
}

// extractErrorFromOutput scans the tail of the output for a JSON error event
func extractErrorFromOutput(lines []string) string {
	for i := len(lines) - 1; i >= 0 && i >= len(lines)-20; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var ev struct {
			Type    string `json:"type"`
			Subtype string `json:"subtype"`
			IsError bool   `json:"is_error"`
			Error   string `json:"error"`
			Result  string `json:"result"`
		}
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		if ev.Type == "error" && ev.Error != "" {
			return ev.Error
		}
		if ev.Type == "result" && ev.IsError && ev.Result != "" {
			return ev.Result
		}
	}
	return ""
}
