// Package branch computes branch names for a change.
package branch

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize lowercases s and collapses every run of non-alphanumeric
// characters into a single "-", trimming separators at both ends.
func Normalize(s string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// Name returns the branch name for a change.
// With an identity the result is "{prefix}-{normalized identity}" and is stable
// across runs. Without one it is "{prefix}/{random}" and differs on every call.
func Name(prefix, identity string) string {
	if id := Normalize(identity); id != "" {
		return prefix + "-" + id
	}
	return prefix + "/" + RandomSuffix()
}

// NameWithDescription is Name with a human-readable description folded into
// the ephemeral form: "{prefix}/{desc}-{random}". A deterministic identity
// ignores the description so re-runs keep their branch.
func NameWithDescription(prefix, identity, desc string) string {
	if Normalize(identity) != "" {
		return Name(prefix, identity)
	}
	if d := Normalize(desc); d != "" {
		return prefix + "/" + d + "-" + RandomSuffix()
	}
	return Name(prefix, "")
}

// RandomSuffix returns eight random hex characters
func RandomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
