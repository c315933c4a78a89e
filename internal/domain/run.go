package domain

import "time"

// RepositoryTarget is one repository the batch proposes the change to.
// URL is always the normalized https form.
type RepositoryTarget struct {
	URL                 string
	OwnerDefaultApplied bool
}

// PromptBundle is the resolved set of instructions shared by every repository in a batch
type PromptBundle struct {
	ChangeInstruction    string
	RelevanceInstruction string
	ChangeID             string
	Source               PromptSource
}

// HasRelevance reports whether a relevance gate should run
func (b PromptBundle) HasRelevance() bool {
	return b.RelevanceInstruction != ""
}

// RunResult is the outcome of one repository workflow run
type RunResult struct {
	Repository     RepositoryTarget
	StageReached   Stage
	Outcome        Outcome
	Err            error
	Branch         string
	Workspace      string
	PullRequestURL string
	Checks         ChecksStatus
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Duration returns how long the run took
func (r RunResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ErrorText returns the error message or an empty string
func (r RunResult) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// InvocationRecord is the persisted trace of one agent invocation.
// Only secret names are kept, never their values.
type InvocationRecord struct {
	ID          string
	BatchID     string
	Repository  string
	Role        Role
	Backend     string
	Workspace   string
	SecretNames []string
	Succeeded   bool
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Batch is one execution of the batch driver
type Batch struct {
	ID         string
	ChangeID   string
	Source     PromptSource
	StartedAt  time.Time
	FinishedAt *time.Time
	Results    []RunResult
}
