// Package repo normalizes repository references into clone URLs.
package repo

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hochfrequenz/pr-fanout/internal/domain"
)

const githubHost = "github.com"

// Normalize turns "owner/repo", a bare "repo", an ssh remote or an https URL
// into a RepositoryTarget with a canonical https URL. A bare name needs
// defaultOwner. Local paths and file:// URLs are kept as absolute paths.
func Normalize(raw, defaultOwner string) (domain.RepositoryTarget, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return domain.RepositoryTarget{}, fmt.Errorf("empty repository reference")
	}

	if isLocal(s) {
		p := strings.TrimPrefix(s, "file://")
		abs, err := filepath.Abs(p)
		if err != nil {
			return domain.RepositoryTarget{}, fmt.Errorf("resolving %q: %w", raw, err)
		}
		return domain.RepositoryTarget{URL: abs}, nil
	}

	s = strings.TrimSuffix(strings.TrimRight(s, "/"), ".git")

	switch {
	case strings.HasPrefix(s, "git@"):
		hostPath := strings.TrimPrefix(s, "git@")
		host, path, ok := strings.Cut(hostPath, ":")
		if !ok {
			return domain.RepositoryTarget{}, fmt.Errorf("malformed ssh remote %q", raw)
		}
		return fromHostPath(raw, strings.ToLower(host), path)

	case strings.Contains(s, "://"):
		u, err := url.Parse(s)
		if err != nil {
			return domain.RepositoryTarget{}, fmt.Errorf("parsing %q: %w", raw, err)
		}
		return fromHostPath(raw, strings.ToLower(u.Host), u.Path)

	case strings.Count(s, "/") == 1:
		return fromHostPath(raw, githubHost, s)

	case !strings.Contains(s, "/"):
		if defaultOwner == "" {
			return domain.RepositoryTarget{}, fmt.Errorf("repository %q has no owner and no default owner is configured", raw)
		}
		t, err := fromHostPath(raw, githubHost, defaultOwner+"/"+s)
		t.OwnerDefaultApplied = true
		return t, err
	}

	return domain.RepositoryTarget{}, fmt.Errorf("unrecognized repository reference %q", raw)
}

func fromHostPath(raw, host, path string) (domain.RepositoryTarget, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return domain.RepositoryTarget{}, fmt.Errorf("repository %q is not of the form owner/repo", raw)
	}
	return domain.RepositoryTarget{
		URL: fmt.Sprintf("https://%s/%s/%s", host, parts[0], strings.TrimSuffix(parts[1], ".git")),
	}, nil
}

func isLocal(s string) bool {
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") ||
		strings.HasPrefix(s, "../") || strings.HasPrefix(s, "file://")
}

// NormalizeAll normalizes refs and drops duplicates, keeping the first
// occurrence so input order is preserved.
func NormalizeAll(refs []string, defaultOwner string) ([]domain.RepositoryTarget, error) {
	seen := make(map[string]bool)
	var out []domain.RepositoryTarget
	for _, ref := range refs {
		t, err := Normalize(ref, defaultOwner)
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(t.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out, nil
}

// OwnerName splits a normalized https URL into owner and repository name
func OwnerName(repoURL string) (owner, name string, err error) {
	u, err := url.Parse(repoURL)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("%q is not a hosted repository URL", repoURL)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%q is not of the form https://host/owner/repo", repoURL)
	}
	return parts[0], parts[1], nil
}

var unsafeDirChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// DirName is the filesystem-safe name of a repository used in workspace
// paths. Hosted repositories become "owner__name"; owners cannot contain
// underscores, so distinct repositories never share a name.
func DirName(repoURL string) string {
	if owner, name, err := OwnerName(repoURL); err == nil {
		return dirSegment(owner) + "__" + dirSegment(name)
	}
	return dirSegment(strings.TrimSuffix(filepath.Base(repoURL), ".git"))
}

func dirSegment(s string) string {
	s = unsafeDirChars.ReplaceAllString(strings.ToLower(s), "-")
	if strings.Trim(s, ".") == "" {
		return "repo"
	}
	return s
}

// Same reports whether two repository references point at the same repository
func Same(a, b string) bool {
	ta, errA := Normalize(a, "")
	tb, errB := Normalize(b, "")
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return strings.EqualFold(ta.URL, tb.URL)
}

// Slug returns owner and name for hosted repositories. Local repositories
// have no owner and are named after their directory.
func Slug(repoURL string) (owner, name string) {
	if o, n, err := OwnerName(repoURL); err == nil {
		return o, n
	}
	return "", strings.TrimSuffix(filepath.Base(repoURL), ".git")
}
