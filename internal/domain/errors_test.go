package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsConfigurationError(t *testing.T) {
	wrapped := fmt.Errorf("resolving prompt: %w", Configf("no prompt source"))
	if !IsConfigurationError(wrapped) {
		t.Error("wrapped ConfigurationError not detected")
	}
	if IsConfigurationError(&NoChangesError{Path: "/tmp/x"}) {
		t.Error("NoChangesError detected as ConfigurationError")
	}
}

func TestAgentTimeoutError_Unwrap(t *testing.T) {
	err := &AgentTimeoutError{Role: RoleChange, Backend: "cursor", Err: context.DeadlineExceeded}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("AgentTimeoutError should unwrap to context.DeadlineExceeded")
	}
}

func TestRunResult_Duration(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	r := RunResult{StartedAt: start, FinishedAt: start.Add(90 * time.Second)}
	if got := r.Duration(); got != 90*time.Second {
		t.Errorf("Duration() = %v, want 90s", got)
	}
	if got := (RunResult{}).Duration(); got != 0 {
		t.Errorf("Duration() on zero result = %v, want 0", got)
	}
}

func TestRole_Mutates(t *testing.T) {
	for _, role := range Roles {
		if got := role.Mutates(); got != (role == RoleChange) {
			t.Errorf("%s.Mutates() = %v", role, got)
		}
	}
}
