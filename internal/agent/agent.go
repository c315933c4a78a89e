// Package agent runs external coding agents for the change, evaluate, naming
// and review roles. Each role is bound to a named backend at startup.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/pr-fanout/internal/domain"
)

// Invocation is one request to an agent backend
type Invocation struct {
	Role         domain.Role
	Instruction  string
	Workspace    string // empty for roles that need no repository
	ContextRoots []string
	Secrets      map[string]string
	Repository   string // only used for records and logs
	Stream       bool   // ask the backend for incremental output
}

// Backend executes an invocation and returns the agent's text output.
// Output is returned even when err is non-nil.
type Backend interface {
	Name() string
	Run(ctx context.Context, inv Invocation) (string, error)
}

// Recorder persists invocation records
type Recorder interface {
	RecordInvocation(rec domain.InvocationRecord) error
}

// ErrRoleDisabled is returned when no backend is bound to a role
var ErrRoleDisabled = errors.New("no agent configured for role")

// Registry binds roles to backends
type Registry struct {
	backends map[domain.Role]Backend
	timeout  time.Duration
	recorder Recorder
	batchID  string
	logger   *slog.Logger
}

// NewRegistry creates an empty registry. timeout bounds every invocation; zero
// means no limit beyond the caller's context.
func NewRegistry(timeout time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		backends: make(map[domain.Role]Backend),
		timeout:  timeout,
		logger:   logger.With("component", "agent"),
	}
}

// Bind assigns a backend to a role. A nil backend disables the role.
func (r *Registry) Bind(role domain.Role, b Backend) {
	if b == nil {
		delete(r.backends, role)
		return
	}
	r.backends[role] = b
}

// SetRecorder enables invocation records tagged with batchID
func (r *Registry) SetRecorder(rec Recorder, batchID string) {
	r.recorder = rec
	r.batchID = batchID
}

// Has reports whether a backend is bound to role
func (r *Registry) Has(role domain.Role) bool {
	_, ok := r.backends[role]
	return ok
}

// BackendName returns the backend bound to role, or ""
func (r *Registry) BackendName(role domain.Role) string {
	if b, ok := r.backends[role]; ok {
		return b.Name()
	}
	return ""
}

// Run invokes the backend bound to inv.Role. Failures come back as
// *domain.AgentError, or *domain.AgentTimeoutError when the context expired.
func (r *Registry) Run(ctx context.Context, inv Invocation) (string, error) {
	b, ok := r.backends[inv.Role]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrRoleDisabled, inv.Role)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	names := secretNames(inv.Secrets)
	log := r.logger.With("role", inv.Role, "backend", b.Name(), "repo", inv.Repository)
	log.Info("invoking agent", "workspace", inv.Workspace, "context_roots", len(inv.ContextRoots), "secrets", names)

	started := time.Now()
	out, err := b.Run(ctx, inv)
	finished := time.Now()

	r.record(inv, b.Name(), names, err == nil, started, finished)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			log.Warn("agent timed out", "after", finished.Sub(started))
			return out, &domain.AgentTimeoutError{Role: inv.Role, Backend: b.Name(), Output: out, Err: ctxErr}
		}
		log.Warn("agent failed", "error", err)
		return out, &domain.AgentError{Role: inv.Role, Backend: b.Name(), Output: out, Err: err}
	}

	log.Info("agent finished", "duration", finished.Sub(started), "output_bytes", len(out))
	return out, nil
}

func (r *Registry) record(inv Invocation, backend string, names []string, ok bool, started, finished time.Time) {
	if r.recorder == nil {
		return
	}
	rec := domain.InvocationRecord{
		ID:          uuid.NewString(),
		BatchID:     r.batchID,
		Repository:  inv.Repository,
		Role:        inv.Role,
		Backend:     backend,
		Workspace:   inv.Workspace,
		SecretNames: names,
		Succeeded:   ok,
		StartedAt:   started,
		FinishedAt:  finished,
	}
	if err := r.recorder.RecordInvocation(rec); err != nil {
		r.logger.Warn("recording invocation failed", "error", err)
	}
}

func secretNames(secrets map[string]string) []string {
	names := make([]string, 0, len(secrets))
	for k := range secrets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
