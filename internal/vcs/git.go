// Package vcs wraps the git command line for cloning, committing and pushing
// workspaces. Credentials travel through GIT_CONFIG_* environment variables so
// they never appear in argv or in .git/config.
package vcs

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Author is the identity commits are made with
type Author struct {
	Name  string
	Email string
}

func (a Author) String() string {
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

// Git runs git subcommands
type Git struct {
	bin string
}

// NewGit returns a Git using the git binary on PATH
func NewGit() *Git {
	return &Git{bin: "git"}
}

func (g *Git) run(ctx context.Context, dir, credential string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, g.bin, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if credential != "" {
		cmd.Env = append(cmd.Env, authEnv(credential)...)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("git %s: %s: %w", args[0], bytes.TrimSpace(out), err)
	}
	return out, nil
}

// authEnv injects an Authorization header for https remotes
func authEnv(token string) []string {
	basic := base64.StdEncoding.EncodeToString([]byte("x-access-token:" + token))
	return []string{
		"GIT_CONFIG_COUNT=1",
		"GIT_CONFIG_KEY_0=http.extraHeader",
		"GIT_CONFIG_VALUE_0=Authorization: Basic " + basic,
	}
}

// Clone clones url into path
func (g *Git) Clone(ctx context.Context, url, path, credential string) error {
	_, err := g.run(ctx, "", credential, "clone", url, path)
	return err
}

// Fetch updates remote-tracking refs of an existing checkout
func (g *Git) Fetch(ctx context.Context, path, credential string) error {
	_, err := g.run(ctx, path, credential, "fetch", "--prune", "origin")
	return err
}

// CheckoutOrCreateBranch switches to name, creating it when needed. A branch
// that only exists on origin is checked out from there so earlier pushes are kept.
func (g *Git) CheckoutOrCreateBranch(ctx context.Context, path, name string) error {
	if g.refExists(ctx, path, "refs/heads/"+name) {
		_, err := g.run(ctx, path, "", "checkout", name)
		return err
	}
	if g.refExists(ctx, path, "refs/remotes/origin/"+name) {
		_, err := g.run(ctx, path, "", "checkout", "-b", name, "origin/"+name)
		return err
	}
	_, err := g.run(ctx, path, "", "checkout", "-b", name)
	return err
}

func (g *Git) refExists(ctx context.Context, path, ref string) bool {
	_, err := g.run(ctx, path, "", "rev-parse", "--verify", "--quiet", ref)
	return err == nil
}

// StageAll stages every working tree change including untracked files
func (g *Git) StageAll(ctx context.Context, path string) error {
	_, err := g.run(ctx, path, "", "add", "-A")
	return err
}

// HasStagedChanges reports whether the index differs from HEAD
func (g *Git) HasStagedChanges(ctx context.Context, path string) (bool, error) {
	cmd := exec.CommandContext(ctx, g.bin, "diff", "--cached", "--quiet")
	cmd.Dir = path
	err := cmd.Run()
	if err == nil {
		return false, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, fmt.Errorf("git diff --cached: %w", err)
}

// StagedDiff returns the diff of the index against HEAD
func (g *Git) StagedDiff(ctx context.Context, path string) (string, error) {
	out, err := g.run(ctx, path, "", "diff", "--cached", "--no-color")
	return string(out), err
}

// Commit records the staged changes as author (also used as committer)
func (g *Git) Commit(ctx context.Context, path string, author Author, message string) error {
	_, err := g.run(ctx, path, "",
		"-c", "user.name="+author.Name,
		"-c", "user.email="+author.Email,
		"commit", "-m", message)
	return err
}

// Push pushes branch to origin. --force-with-lease lets a re-run with the same
// branch replace its own earlier push without clobbering someone else's.
func (g *Git) Push(ctx context.Context, path, branch, credential string) error {
	ref := "refs/heads/" + branch
	_, err := g.run(ctx, path, credential, "push", "--force-with-lease", "origin", ref+":"+ref)
	return err
}

// AheadBehind counts the commits HEAD has that origin/branch lacks and the
// reverse. Without a tracking ref, ahead counts commits not on any origin ref.
func (g *Git) AheadBehind(ctx context.Context, path, branch string) (ahead, behind int, err error) {
	remote := "refs/remotes/origin/" + branch
	if !g.refExists(ctx, path, remote) {
		ahead, err = g.count(ctx, path, "HEAD", "--not", "--remotes=origin")
		return ahead, 0, err
	}
	if ahead, err = g.count(ctx, path, remote+"..HEAD"); err != nil {
		return 0, 0, err
	}
	if behind, err = g.count(ctx, path, "HEAD.."+remote); err != nil {
		return 0, 0, err
	}
	return ahead, behind, nil
}

func (g *Git) count(ctx context.Context, path string, revs ...string) (int, error) {
	out, err := g.run(ctx, path, "", append([]string{"rev-list", "--count"}, revs...)...)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(out)))
}

// ConfiguredAuthor returns user.name and user.email from git config, if set
func (g *Git) ConfiguredAuthor(ctx context.Context, path string) (Author, bool) {
	name, err1 := g.run(ctx, path, "", "config", "user.name")
	email, err2 := g.run(ctx, path, "", "config", "user.email")
	if err1 != nil || err2 != nil {
		return Author{}, false
	}
	a := Author{Name: strings.TrimSpace(string(name)), Email: strings.TrimSpace(string(email))}
	return a, a.Name != "" && a.Email != ""
}
