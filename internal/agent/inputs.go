package agent

import (
	"strings"

	"github.com/hochfrequenz/pr-fanout/internal/config"
	"github.com/hochfrequenz/pr-fanout/internal/domain"
)

// BuildSecrets merges --secret KEY=VALUE pairs and --secret-env KEY names
// into one map. Later values for the same key win.
func BuildSecrets(pairs, envKeys []string, lookup func(string) (string, bool)) (map[string]string, error) {
	out := make(map[string]string)
	for _, item := range pairs {
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			// the item may be a bare value, so it is not echoed
			return nil, domain.Configf("invalid --secret (expected KEY=VALUE)")
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, domain.Configf("invalid --secret: empty key")
		}
		out[key] = value
	}
	for _, key := range envKeys {
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, domain.Configf("invalid --secret-env: empty key")
		}
		v, ok := lookup(key)
		if !ok {
			return nil, domain.Configf("missing environment variable for --secret-env: %s", key)
		}
		out[key] = v
	}
	return out, nil
}

// MergeContextRoots makes every root absolute and drops duplicates, keeping
// the first occurrence.
func MergeContextRoots(groups ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range groups {
		for _, root := range group {
			root = strings.TrimSpace(root)
			if root == "" {
				continue
			}
			abs := absPath(config.ExpandPath(root))
			if seen[abs] {
				continue
			}
			seen[abs] = true
			out = append(out, abs)
		}
	}
	return out
}
