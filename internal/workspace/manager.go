// Package workspace maps a repository and change identity to a working copy.
//
// With a change identity the path is deterministic and the checkout is kept
// after the run so a later run with the same identity continues where the
// previous one stopped. Without one, every run clones into a fresh directory
// that is removed when the run ends.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hochfrequenz/pr-fanout/internal/branch"
	"github.com/hochfrequenz/pr-fanout/internal/domain"
	"github.com/hochfrequenz/pr-fanout/internal/repo"
	"github.com/hochfrequenz/pr-fanout/internal/vcs"
)

// Cloner is the subset of the VCS collaborator the manager needs
type Cloner interface {
	Clone(ctx context.Context, url, path, credential string) error
	Fetch(ctx context.Context, path, credential string) error
}

// Handle is a working copy owned by one workflow run
type Handle struct {
	Path       string
	Repository domain.RepositoryTarget
	Reused     bool
	Retain     bool

	lock *fileLock
}

// Manager decides workspace paths and reuse policy
type Manager struct {
	root       string
	vcs        Cloner
	credential string
	originURL  func(path string) (string, error)
	logger     *slog.Logger
}

// NewManager creates a Manager rooted at root. credential is used for clone
// and fetch and may be empty.
func NewManager(root string, cloner Cloner, credential string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		root:       root,
		vcs:        cloner,
		credential: credential,
		originURL:  vcs.OriginURL,
		logger:     logger.With("component", "workspace"),
	}
}

// Path returns the workspace path for a repository. With an empty identity a
// new random path is returned on every call.
func (m *Manager) Path(target domain.RepositoryTarget, identity string) string {
	name := repo.DirName(target.URL)
	if id := branch.Normalize(identity); id != "" {
		return filepath.Join(m.root, name+"__"+id)
	}
	return filepath.Join(m.root, name+"__"+branch.RandomSuffix())
}

// Acquire returns a locked working copy of target
func (m *Manager) Acquire(ctx context.Context, target domain.RepositoryTarget, identity string) (*Handle, error) {
	if err := os.MkdirAll(m.root, 0755); err != nil {
		return nil, fmt.Errorf("creating working dir: %w", err)
	}

	retain := branch.Normalize(identity) != ""
	path := m.Path(target, identity)

	lock, err := acquireLock(path)
	if err != nil {
		if errors.Is(err, errLocked) {
			return nil, &domain.WorkspaceConflictError{Path: path, Reason: "another run holds the workspace lock"}
		}
		return nil, err
	}

	h := &Handle{Path: path, Repository: target, Retain: retain, lock: lock}

	if retain {
		reused, err := m.reuse(ctx, h)
		if err != nil {
			lock.release(false)
			return nil, err
		}
		if reused {
			return h, nil
		}
	}

	m.logger.Info("cloning", "repo", target.URL, "path", path)
	if err := m.vcs.Clone(ctx, target.URL, path, m.credential); err != nil {
		os.RemoveAll(path)
		lock.release(!retain)
		return nil, fmt.Errorf("cloning %s: %w", target.URL, err)
	}
	return h, nil
}

// reuse checks an existing deterministic path. It returns false when the path
// does not exist yet and a conflict error when it holds something else.
func (m *Manager) reuse(ctx context.Context, h *Handle) (bool, error) {
	if _, err := os.Stat(h.Path); os.IsNotExist(err) {
		return false, nil
	}

	origin, err := m.originURL(h.Path)
	if err != nil {
		return false, &domain.WorkspaceConflictError{Path: h.Path, Reason: err.Error()}
	}
	if !repo.Same(origin, h.Repository.URL) {
		return false, &domain.WorkspaceConflictError{
			Path:   h.Path,
			Reason: fmt.Sprintf("checkout belongs to %s, not %s", origin, h.Repository.URL),
		}
	}

	m.logger.Info("reusing workspace", "repo", h.Repository.URL, "path", h.Path)
	if err := m.vcs.Fetch(ctx, h.Path, m.credential); err != nil {
		m.logger.Warn("fetch failed, continuing with local state", "path", h.Path, "error", err)
	}
	h.Reused = true
	return true, nil
}

// Release unlocks the workspace and removes it unless it is retained.
// It is safe to call more than once.
func (m *Manager) Release(h *Handle) error {
	if h == nil {
		return nil
	}
	lockErr := h.lock.release(!h.Retain)
	h.lock = nil
	if h.Retain {
		m.logger.Debug("keeping workspace", "path", h.Path)
		return lockErr
	}
	m.logger.Debug("removing workspace", "path", h.Path)
	if err := os.RemoveAll(h.Path); err != nil {
		return fmt.Errorf("removing workspace %s: %w", h.Path, err)
	}
	return lockErr
}
