package prompts

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Loader manages prompt templates with override support.
type Loader struct {
	overrideDirs []string // Directories to check for overrides (in priority order)
	cache        map[string]*template.Template
	metaCache    map[string]*TemplateMeta
	mu           sync.RWMutex
}

// TemplateMeta holds frontmatter metadata for a template.
type TemplateMeta struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Role        string `yaml:"role"`
}

// NewLoader creates a loader with the given override directories.
// Directories are checked in order; first match wins.
func NewLoader(overrideDirs ...string) *Loader {
	return &Loader{
		overrideDirs: overrideDirs,
		cache:        make(map[string]*template.Template),
		metaCache:    make(map[string]*TemplateMeta),
	}
}

// DefaultLoader creates a loader that checks ~/.config/pr-fanout/prompts/
// before the embedded templates.
func DefaultLoader() *Loader {
	home, _ := os.UserHomeDir()
	return NewLoader(filepath.Join(home, ".config", "pr-fanout", "prompts"))
}

// loadContent loads raw content from override dirs or embedded FS.
func (l *Loader) loadContent(name string) ([]byte, error) {
	for _, dir := range l.overrideDirs {
		if data, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
			return data, nil
		}
	}
	return fs.ReadFile(embeddedFS, name)
}

// parseFrontmatter splits content into frontmatter and body.
func parseFrontmatter(content []byte) (*TemplateMeta, string, error) {
	str := string(content)

	if !strings.HasPrefix(str, "---\n") {
		return nil, str, nil
	}

	end := strings.Index(str[4:], "\n---\n")
	if end == -1 {
		return nil, str, nil // Malformed, treat as no frontmatter
	}

	frontmatter := str[4 : 4+end]
	body := str[4+end+5:]

	var meta TemplateMeta
	if err := yaml.Unmarshal([]byte(frontmatter), &meta); err != nil {
		return nil, "", fmt.Errorf("parse frontmatter: %w", err)
	}

	return &meta, body, nil
}

// LoadTemplate loads and parses a template by path (e.g., "agent/review.md").
func (l *Loader) LoadTemplate(name string) (*template.Template, *TemplateMeta, error) {
	l.mu.RLock()
	if tmpl, ok := l.cache[name]; ok {
		meta := l.metaCache[name]
		l.mu.RUnlock()
		return tmpl, meta, nil
	}
	l.mu.RUnlock()

	content, err := l.loadContent(name)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", name, err)
	}

	meta, body, err := parseFrontmatter(content)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", name, err)
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(body)
	if err != nil {
		return nil, nil, fmt.Errorf("compile template %s: %w", name, err)
	}

	l.mu.Lock()
	l.cache[name] = tmpl
	l.metaCache[name] = meta
	l.mu.Unlock()

	return tmpl, meta, nil
}

// Execute loads and executes a template with the given data.
func (l *Loader) Execute(name string, data interface{}) (string, error) {
	tmpl, _, err := l.LoadTemplate(name)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute %s: %w", name, err)
	}

	return strings.TrimSpace(buf.String()), nil
}

// List returns metadata for all embedded agent templates.
func (l *Loader) List() ([]*TemplateMeta, error) {
	entries, err := fs.ReadDir(embeddedFS, "agent")
	if err != nil {
		return nil, err
	}

	var result []*TemplateMeta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		_, meta, err := l.LoadTemplate(path.Join("agent", entry.Name()))
		if err != nil {
			return nil, err
		}
		if meta != nil {
			result = append(result, meta)
		}
	}
	return result, nil
}

// WorkspaceData holds the paths an agent is told about.
type WorkspaceData struct {
	RepoDir     string
	ContextDirs []string
}

// TaskData holds template variables for role prompts.
type TaskData struct {
	Objective string
	Task      string
	Feedback  string
}

// BuildWorkspacePrefix renders the location hint that precedes every prompt.
// It returns "" when there is nothing to point at, otherwise the hint followed
// by a blank line.
func (l *Loader) BuildWorkspacePrefix(data WorkspaceData) (string, error) {
	if data.RepoDir == "" && len(data.ContextDirs) == 0 {
		return "", nil
	}
	out, err := l.Execute("agent/workspace.md", data)
	if err != nil {
		return "", err
	}
	return out + "\n\n", nil
}

// BuildRelevance renders the relevance question for an objective.
func (l *Loader) BuildRelevance(objective string) (string, error) {
	return l.Execute("agent/relevance.md", TaskData{Objective: objective})
}

// BuildVerify renders the post-change evaluation question.
func (l *Loader) BuildVerify(criterion, task string) (string, error) {
	return l.Execute("agent/verify.md", TaskData{Objective: criterion, Task: task})
}

// BuildNaming renders the short-description request.
func (l *Loader) BuildNaming(task string) (string, error) {
	return l.Execute("agent/naming.md", TaskData{Task: task})
}

// BuildReview renders the pre-submit review request.
func (l *Loader) BuildReview(task string) (string, error) {
	return l.Execute("agent/review.md", TaskData{Task: task})
}

// BuildChange renders the change instruction, with feedback from a previous
// attempt when there is any.
func (l *Loader) BuildChange(task, feedback string) (string, error) {
	return l.Execute("agent/change.md", TaskData{Task: task, Feedback: feedback})
}

// ClearCache clears the template cache (useful for development/testing).
func (l *Loader) ClearCache() {
	l.mu.Lock()
	l.cache = make(map[string]*template.Template)
	l.metaCache = make(map[string]*TemplateMeta)
	l.mu.Unlock()
}
