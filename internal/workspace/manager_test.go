package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hochfrequenz/pr-fanout/internal/domain"
	"github.com/hochfrequenz/pr-fanout/internal/gittest"
	"github.com/hochfrequenz/pr-fanout/internal/vcs"
)

// countingCloner wraps the real git client and records clone calls
type countingCloner struct {
	git    *vcs.Git
	clones int
}

func (c *countingCloner) Clone(ctx context.Context, url, path, credential string) error {
	c.clones++
	return c.git.Clone(ctx, url, path, credential)
}

func (c *countingCloner) Fetch(ctx context.Context, path, credential string) error {
	return c.git.Fetch(ctx, path, credential)
}

func newTestManager(t *testing.T) (*Manager, *countingCloner, domain.RepositoryTarget) {
	t.Helper()
	remote := gittest.NewRemote(t)
	cloner := &countingCloner{git: vcs.NewGit()}
	mgr := NewManager(t.TempDir(), cloner, "", nil)
	return mgr, cloner, domain.RepositoryTarget{URL: remote}
}

func TestManager_DeterministicReuse(t *testing.T) {
	mgr, cloner, target := newTestManager(t)
	ctx := context.Background()

	h1, err := mgr.Acquire(ctx, target, "PROJ-7")
	if err != nil {
		t.Fatal(err)
	}
	if h1.Reused {
		t.Error("first acquire should not be reused")
	}
	if !h1.Retain {
		t.Error("deterministic handle should be retained")
	}

	// leave an edit behind to prove the second run sees it
	marker := filepath.Join(h1.Path, "in-progress.txt")
	os.WriteFile(marker, []byte("wip"), 0644)

	if err := mgr.Release(h1); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(h1.Path); err != nil {
		t.Fatal("deterministic workspace removed on release")
	}

	h2, err := mgr.Acquire(ctx, target, "PROJ-7")
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Release(h2)

	if h2.Path != h1.Path {
		t.Errorf("paths differ: %q vs %q", h1.Path, h2.Path)
	}
	if !h2.Reused {
		t.Error("second acquire should reuse the checkout")
	}
	if cloner.clones != 1 {
		t.Errorf("clones = %d, want 1", cloner.clones)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Error("prior edits should persist in a reused workspace")
	}
}

func TestManager_PathIsStable(t *testing.T) {
	mgr, _, target := newTestManager(t)

	a := mgr.Path(target, "Change 1")
	b := mgr.Path(target, "change-1")
	if a != b {
		t.Errorf("Path not stable: %q vs %q", a, b)
	}
	if filepath.Base(a) != "remote__change-1" {
		t.Errorf("Path base = %q, want remote__change-1", filepath.Base(a))
	}
	if mgr.Path(target, "") == mgr.Path(target, "") {
		t.Error("ephemeral paths should differ")
	}
}

func TestManager_EphemeralRemovedOnRelease(t *testing.T) {
	mgr, cloner, target := newTestManager(t)

	h, err := mgr.Acquire(context.Background(), target, "")
	if err != nil {
		t.Fatal(err)
	}
	if h.Retain || h.Reused {
		t.Errorf("ephemeral handle = %+v", h)
	}
	if _, err := os.Stat(filepath.Join(h.Path, "README.md")); err != nil {
		t.Fatal("clone missing README.md")
	}

	if err := mgr.Release(h); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(h.Path); !os.IsNotExist(err) {
		t.Error("ephemeral workspace should be removed")
	}
	if _, err := os.Stat(lockPath(h.Path)); !os.IsNotExist(err) {
		t.Error("ephemeral lock file should be removed")
	}
	if cloner.clones != 1 {
		t.Errorf("clones = %d, want 1", cloner.clones)
	}
	// double release is harmless
	if err := mgr.Release(h); err != nil {
		t.Errorf("second Release: %v", err)
	}
}

func TestManager_ConflictOnMismatchedRemote(t *testing.T) {
	mgr, _, target := newTestManager(t)
	ctx := context.Background()

	h, err := mgr.Acquire(ctx, target, "shared")
	if err != nil {
		t.Fatal(err)
	}
	mgr.Release(h)

	// repoint origin so the checkout no longer belongs to target
	other := gittest.NewRemote(t)
	gittest.Run(t, h.Path, "remote", "set-url", "origin", other)

	_, err = mgr.Acquire(ctx, target, "shared")
	var conflict *domain.WorkspaceConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Acquire error = %v, want WorkspaceConflictError", err)
	}
	if conflict.Path != h.Path {
		t.Errorf("conflict path = %q, want %q", conflict.Path, h.Path)
	}
}

func TestManager_ConflictOnNonCheckout(t *testing.T) {
	mgr, _, target := newTestManager(t)

	path := mgr.Path(target, "x")
	os.MkdirAll(path, 0755)
	os.WriteFile(filepath.Join(path, "junk"), []byte("x"), 0644)

	_, err := mgr.Acquire(context.Background(), target, "x")
	var conflict *domain.WorkspaceConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Acquire error = %v, want WorkspaceConflictError", err)
	}
}

func TestManager_LockedWorkspace(t *testing.T) {
	mgr, _, target := newTestManager(t)
	ctx := context.Background()

	h, err := mgr.Acquire(ctx, target, "busy")
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Release(h)

	_, err = mgr.Acquire(ctx, target, "busy")
	var conflict *domain.WorkspaceConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Acquire while locked = %v, want WorkspaceConflictError", err)
	}
}

func TestManager_CloneFailureCleansUp(t *testing.T) {
	cloner := &countingCloner{git: vcs.NewGit()}
	mgr := NewManager(t.TempDir(), cloner, "", nil)
	target := domain.RepositoryTarget{URL: filepath.Join(t.TempDir(), "missing.git")}

	_, err := mgr.Acquire(context.Background(), target, "")
	if err == nil {
		t.Fatal("expected clone error")
	}
	entries, _ := os.ReadDir(mgr.root)
	if len(entries) != 0 {
		t.Errorf("working dir should be empty after failed clone, has %d entries", len(entries))
	}
}
