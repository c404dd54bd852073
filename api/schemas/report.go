package schemas

import (
	"time"
)

// -- Execution Report Schemas --

// Outcome classifies the result of one executed step.
type Outcome string

const (
	// OutcomeSuccess means the step completed via its highest-priority
	// candidate (or needed no element resolution at all).
	OutcomeSuccess Outcome = "SUCCESS"
	// OutcomeResolvedFallback means the step completed, but only after the
	// resolver fell back past the primary candidate. Workflows that degrade
	// to text or coordinate matching should be flagged for review.
	OutcomeResolvedFallback Outcome = "RESOLVED_FALLBACK"
	OutcomeFailed           Outcome = "FAILED"
	OutcomeSkipped          Outcome = "SKIPPED"
)

// ErrorKind is the wire-level classification of a step failure.
type ErrorKind string

const (
	ErrKindResolutionFailure  ErrorKind = "ResolutionFailure"
	ErrKindTimeoutExceeded    ErrorKind = "TimeoutExceeded"
	ErrKindInteractionBlocked ErrorKind = "InteractionBlocked"
	ErrKindAssertionFailed    ErrorKind = "AssertionFailed"
	ErrKindNavigationFailed   ErrorKind = "NavigationFailed"
	ErrKindCancelled          ErrorKind = "Cancelled"
)

// StepResult is one entry of an execution report.
type StepResult struct {
	StepID       int        `json:"step_id"`
	Kind         ActionKind `json:"kind"`
	Outcome      Outcome    `json:"outcome"`
	StrategyUsed Strategy   `json:"strategy_used,omitempty"`
	DurationMs   int64      `json:"duration_ms"`
	Error        ErrorKind  `json:"error,omitempty"`
	ErrorDetail  string     `json:"error_detail,omitempty"`

	// ScreenshotRef points at the screenshot captured for this step, when
	// screenshots are enabled or the step failed.
	ScreenshotRef string `json:"screenshot_ref,omitempty"`

	// Extracted holds the value produced by an extract_text step.
	Extracted string `json:"extracted,omitempty"`
}

// ExecutionReport is the per-run, per-step outcome log produced by the
// player. It is created empty when a run starts, appended to as steps
// complete, and owned exclusively by the player instance that produced it
// until the run ends.
type ExecutionReport struct {
	RunID        string            `json:"run_id"`
	WorkflowName string            `json:"workflow_name"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	Bindings     map[string]string `json:"bindings,omitempty"`
	Steps        []StepResult      `json:"steps"`

	// Outputs collects named extract_text results keyed by each step's
	// Output field.
	Outputs map[string]string `json:"outputs,omitempty"`
}

// Append records the result of one completed step.
func (r *ExecutionReport) Append(res StepResult) {
	r.Steps = append(r.Steps, res)
}

// Counts tallies the report by outcome.
func (r *ExecutionReport) Counts() (succeeded, fallback, failed, skipped int) {
	for _, s := range r.Steps {
		switch s.Outcome {
		case OutcomeSuccess:
			succeeded++
		case OutcomeResolvedFallback:
			fallback++
		case OutcomeFailed:
			failed++
		case OutcomeSkipped:
			skipped++
		}
	}
	return
}

// Passed reports whether the run completed without failed or skipped steps.
func (r *ExecutionReport) Passed() bool {
	_, _, failed, skipped := r.Counts()
	return failed == 0 && skipped == 0
}

// Duration is the wall-clock span of the run.
func (r *ExecutionReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
