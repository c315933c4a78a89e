package submit

import (
	"regexp"
	"strings"
)

// Category is the kind of change a diff contains
type Category string

const (
	CategorySecurity     Category = "security"
	CategoryArchitecture Category = "architecture"
	CategoryMigrations   Category = "migrations"
	CategoryRoutine      Category = "routine"
)

var (
	securityPatterns = compile(
		`(?i)auth`,
		`(?i)password`,
		`(?i)credential`,
		`(?i)secret`,
		`(?i)token`,
		`(?i)encrypt`,
		`(?i)decrypt`,
		`(?i)permission`,
		`(?i)oauth`,
	)

	architecturePatterns = compile(
		`go\.mod`,
		`package\.json`,
		`requirements\.txt`,
		`pyproject\.toml`,
		`(?i)dockerfile`,
		`\.github/workflows/`,
	)

	migrationPatterns = compile(
		`migrations/`,
		`(?i)CREATE\s+TABLE`,
		`(?i)ALTER\s+TABLE`,
		`(?i)DROP\s+TABLE`,
		`(?m)\.sql$`,
	)
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// AnalyzeDiff categorizes a diff by its content
func AnalyzeDiff(diff string) Category {
	// in order of priority
	if matchesAny(diff, securityPatterns) {
		return CategorySecurity
	}
	if matchesAny(diff, migrationPatterns) {
		return CategoryMigrations
	}
	if matchesAny(diff, architecturePatterns) {
		return CategoryArchitecture
	}
	return CategoryRoutine
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Labels returns the pull request labels for a category
func Labels(category Category) []string {
	switch category {
	case CategorySecurity:
		return []string{"needs-human-review", "security"}
	case CategoryArchitecture:
		return []string{"needs-human-review", "dependencies"}
	case CategoryMigrations:
		return []string{"needs-human-review", "database"}
	default:
		return nil
	}
}

// ChangedFiles lists the files touched by a diff
func ChangedFiles(diff string) []string {
	var files []string
	for _, line := range strings.Split(diff, "\n") {
		if !strings.HasPrefix(line, "diff --git") {
			continue
		}
		parts := strings.Split(line, " ")
		if len(parts) >= 4 {
			files = append(files, strings.TrimPrefix(parts[3], "b/"))
		}
	}
	return files
}

// Summary describes the changed files in one line
func Summary(files []string) string {
	switch len(files) {
	case 0:
		return "Changes made"
	case 1:
		return "Modified " + files[0]
	}
	shown := files[:min(3, len(files))]
	s := "Modified " + strings.Join(shown, ", ")
	if len(files) > len(shown) {
		s += " and more"
	}
	return s
}
