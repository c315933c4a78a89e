package domain

// Outcome is the terminal result of one repository workflow run
type Outcome string

const (
	OutcomeSkipped     Outcome = "skipped"
	OutcomeNotRelevant Outcome = "not_relevant"
	OutcomeNoOp        Outcome = "changed_no_op"
	OutcomeSubmitted   Outcome = "submitted"
	OutcomeNeedsReview Outcome = "needs_review"
	OutcomeFailed      Outcome = "failed"
)

// Stage is a state of the repository workflow
type Stage string

const (
	StageAcquiring        Stage = "acquiring"
	StageRelevanceCheck   Stage = "relevance_check"
	StageChangeGeneration Stage = "change_generation"
	StageReview           Stage = "review"
	StagePostEvaluation   Stage = "post_evaluation"
	StageSubmission       Stage = "submission"
	StageChecksWait       Stage = "checks_wait"
	StageDone             Stage = "done"
)

// Role is the capability an agent is invoked for
type Role string

const (
	RoleChange   Role = "change"
	RoleEvaluate Role = "evaluate"
	RoleNaming   Role = "naming"
	RoleReview   Role = "review"
)

// Roles lists every agent role in a stable order
var Roles = []Role{RoleChange, RoleEvaluate, RoleNaming, RoleReview}

// Mutates reports whether invocations for the role may edit the workspace
func (r Role) Mutates() bool {
	return r == RoleChange
}

// PromptSource tags where a change instruction came from
type PromptSource string

const (
	SourceInline     PromptSource = "inline"
	SourceFromConfig PromptSource = "prompt_config"
	SourceFromTicket PromptSource = "ticket"
)

// ChecksStatus summarizes CI checks on a submitted branch
type ChecksStatus string

const (
	ChecksNotRequested ChecksStatus = ""
	ChecksPassed       ChecksStatus = "passed"
	ChecksFailed       ChecksStatus = "failed"
	ChecksTimeout      ChecksStatus = "timeout"
	ChecksUnknown      ChecksStatus = "unknown"
)
