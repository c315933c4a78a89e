package domain

import (
	"errors"
	"fmt"
)

// ConfigurationError aborts the whole process before any repository is touched
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Msg
}

// Configf builds a ConfigurationError
func Configf(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// WorkspaceConflictError means a workspace path is occupied by something else
type WorkspaceConflictError struct {
	Path   string
	Reason string
}

func (e *WorkspaceConflictError) Error() string {
	return fmt.Sprintf("workspace conflict at %s: %s", e.Path, e.Reason)
}

// NoChangesError means the agent left the working tree unchanged
type NoChangesError struct {
	Path string
}

func (e *NoChangesError) Error() string {
	return fmt.Sprintf("no changes to submit in %s", e.Path)
}

// AgentError is a failed or malformed agent invocation
type AgentError struct {
	Role    Role
	Backend string
	Output  string
	Err     error
}

func (e *AgentError) Error() string {
	msg := fmt.Sprintf("%s agent (%s) failed", e.Role, e.Backend)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AgentError) Unwrap() error { return e.Err }

// AgentTimeoutError means the invocation was cancelled or hit its deadline
type AgentTimeoutError struct {
	Role    Role
	Backend string
	Output  string
	Err     error
}

func (e *AgentTimeoutError) Error() string {
	return fmt.Sprintf("%s agent (%s) timed out: %v", e.Role, e.Backend, e.Err)
}

func (e *AgentTimeoutError) Unwrap() error { return e.Err }

// SubmissionError wraps a failure to commit, push or open the pull request
type SubmissionError struct {
	Step string
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit (%s): %v", e.Step, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err is or wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
