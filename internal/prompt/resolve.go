// Package prompt resolves the change and relevance instructions of a batch
// from exactly one source: an inline prompt, a prompt-config document or a
// ticket.
package prompt

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/pr-fanout/internal/domain"
	"github.com/hochfrequenz/pr-fanout/internal/ticket"
)

// DefaultConfigRef is used when no prompt-config ref is given
const DefaultConfigRef = "main"

// Options are the prompt flags of one invocation
type Options struct {
	Inline    string
	Relevance string
	ChangeID  string

	ConfigOwner string
	ConfigRepo  string
	ConfigRef   string
	ConfigPath  string
	ConfigFile  string

	TicketID string
}

// HasConfig reports whether any prompt-config flag is set
func (o Options) HasConfig() bool {
	return o.ConfigOwner != "" || o.ConfigRepo != "" || o.ConfigPath != "" || o.ConfigFile != ""
}

// HasTicket reports whether a ticket is the prompt source
func (o Options) HasTicket() bool {
	return strings.TrimSpace(o.TicketID) != ""
}

// FileFetcher reads a file from a hosted repository
type FileFetcher interface {
	GetFile(ctx context.Context, owner, repo, ref, path string) (string, error)
}

// TicketGetter loads a ticket by id
type TicketGetter interface {
	GetTicket(ctx context.Context, id string) (ticket.Ticket, error)
}

// Document is the YAML prompt-config format
type Document struct {
	ChangePrompt    string `yaml:"change_prompt"`
	RelevancePrompt string `yaml:"relevance_prompt"`
	ChangeID        string `yaml:"change_id"`
}

// ParseDocument decodes a prompt-config document and checks required keys
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, domain.Configf("prompt config is not valid YAML: %v", err)
	}
	doc.ChangePrompt = strings.TrimSpace(doc.ChangePrompt)
	doc.RelevancePrompt = strings.TrimSpace(doc.RelevancePrompt)
	doc.ChangeID = strings.TrimSpace(doc.ChangeID)
	if doc.ChangePrompt == "" {
		return doc, domain.Configf("prompt config is missing change_prompt")
	}
	if doc.RelevancePrompt == "" {
		return doc, domain.Configf("prompt config is missing relevance_prompt")
	}
	return doc, nil
}

// Resolver turns Options into a PromptBundle. Files and Tickets may be nil
// when the corresponding source is not used.
type Resolver struct {
	Files   FileFetcher
	Tickets TicketGetter
	Logger  *slog.Logger
}

// Resolve returns the bundle for opts. Every failure is a ConfigurationError.
func (r *Resolver) Resolve(ctx context.Context, opts Options) (domain.PromptBundle, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "prompt")

	if opts.HasConfig() && opts.HasTicket() {
		return domain.PromptBundle{}, domain.Configf("choose only one prompt source: prompt config or ticket")
	}

	var (
		bundle domain.PromptBundle
		err    error
	)
	switch {
	case opts.HasConfig():
		bundle, err = r.fromConfig(ctx, opts)
	case opts.HasTicket():
		bundle, err = r.fromTicket(ctx, opts)
	default:
		bundle, err = fromInline(opts)
	}
	if err != nil {
		return domain.PromptBundle{}, err
	}

	if strings.TrimSpace(bundle.ChangeInstruction) == "" {
		return domain.PromptBundle{}, domain.Configf("change instruction is empty")
	}

	logger.Info("resolved prompt",
		"source", bundle.Source,
		"prompt_len", len(bundle.ChangeInstruction),
		"relevance_len", len(bundle.RelevanceInstruction),
		"change_id", bundle.ChangeID)
	return bundle, nil
}

func fromInline(opts Options) (domain.PromptBundle, error) {
	inline := strings.TrimSpace(opts.Inline)
	if inline == "" {
		return domain.PromptBundle{}, domain.Configf("a prompt is required when no prompt config or ticket is given")
	}
	return domain.PromptBundle{
		ChangeInstruction:    inline,
		RelevanceInstruction: strings.TrimSpace(opts.Relevance),
		ChangeID:             strings.TrimSpace(opts.ChangeID),
		Source:               domain.SourceInline,
	}, nil
}

func (r *Resolver) fromConfig(ctx context.Context, opts Options) (domain.PromptBundle, error) {
	data, err := r.loadConfig(ctx, opts)
	if err != nil {
		return domain.PromptBundle{}, err
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return domain.PromptBundle{}, err
	}

	id := strings.TrimSpace(opts.ChangeID)
	if doc.ChangeID != "" {
		id = doc.ChangeID
	}
	return domain.PromptBundle{
		ChangeInstruction:    AppendTail(doc.ChangePrompt, opts.Inline),
		RelevanceInstruction: doc.RelevancePrompt,
		ChangeID:             id,
		Source:               domain.SourceFromConfig,
	}, nil
}

func (r *Resolver) loadConfig(ctx context.Context, opts Options) ([]byte, error) {
	if opts.ConfigFile != "" {
		if opts.ConfigOwner != "" || opts.ConfigRepo != "" || opts.ConfigPath != "" {
			return nil, domain.Configf("use either a local prompt config file or a repository prompt config, not both")
		}
		data, err := os.ReadFile(opts.ConfigFile)
		if err != nil {
			return nil, domain.Configf("reading prompt config: %v", err)
		}
		return data, nil
	}

	if opts.ConfigOwner == "" || opts.ConfigRepo == "" || opts.ConfigPath == "" {
		return nil, domain.Configf("prompt config needs owner, repo and path")
	}
	if r.Files == nil {
		return nil, domain.Configf("no GitHub client available to fetch prompt config")
	}
	ref := strings.TrimSpace(opts.ConfigRef)
	if ref == "" {
		ref = DefaultConfigRef
	}
	content, err := r.Files.GetFile(ctx, opts.ConfigOwner, opts.ConfigRepo, ref, opts.ConfigPath)
	if err != nil {
		return nil, domain.Configf("fetching prompt config: %v", err)
	}
	return []byte(content), nil
}

func (r *Resolver) fromTicket(ctx context.Context, opts Options) (domain.PromptBundle, error) {
	if r.Tickets == nil {
		return domain.PromptBundle{}, domain.Configf("ticket source needs JIRA_BASE_URL")
	}
	id := strings.TrimSpace(opts.TicketID)
	t, err := r.Tickets.GetTicket(ctx, id)
	if err != nil {
		return domain.PromptBundle{}, domain.Configf("loading ticket %s: %v", id, err)
	}
	return domain.PromptBundle{
		ChangeInstruction:    AppendTail(t.Prompt(), opts.Inline),
		RelevanceInstruction: strings.TrimSpace(opts.Relevance),
		ChangeID:             id,
		Source:               domain.SourceFromTicket,
	}, nil
}

// AppendTail appends tail to base separated by a blank line. An empty tail
// leaves base unchanged.
func AppendTail(base, tail string) string {
	base = strings.TrimSpace(base)
	tail = strings.TrimSpace(tail)
	switch {
	case tail == "":
		return base
	case base == "":
		return tail
	}
	return base + "\n\n" + tail
}
