// internal/agent/planner.go
// The planner is the AI collaborator used while recording. It sees the goal
// and a digest of the current page and proposes the next step. It is never
// consulted during replay.
package agent

import (
	"context"
	"fmt"

	"github.com/naytrik/naytrik/api/schemas"
	"github.com/naytrik/naytrik/internal/browser"
)

// PageState is the digest of the live page handed to the planner.
type PageState struct {
	URL         string                `json:"url"`
	Title       string                `json:"title"`
	Interactive []browser.ElementInfo `json:"interactive"`
	StepsTaken  int                   `json:"steps_taken"`
}

// ProposedStep is the planner's next move. TargetRef identifies the element
// by the ref shown in PageState.Interactive; zero means no target.
type ProposedStep struct {
	Done      bool              `json:"done"`
	Kind      schemas.ActionKind `json:"kind"`
	TargetRef int               `json:"target_ref"`
	URL       string            `json:"url,omitempty"`
	Text      string            `json:"text,omitempty"`

	// Variable, when set on a type step, records the typed value as a
	// {{Variable}} placeholder instead of the literal text.
	Variable string `json:"variable,omitempty"`

	// Output names the report field for extract_text steps.
	Output string `json:"output,omitempty"`

	// Assert holds assert_state parameters (url_contains, text_contains).
	Assert map[string]string `json:"assert,omitempty"`

	// DurationMs is the pause for a timed wait_for step.
	DurationMs int `json:"duration_ms,omitempty"`

	Reasoning string `json:"reasoning,omitempty"`
}

// Validate checks that the proposal is executable before the driver acts.
func (p *ProposedStep) Validate() error {
	if p.Done {
		return nil
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("planner proposed unknown action kind %q", p.Kind)
	}
	if p.Kind.RequiresSelector() && p.TargetRef <= 0 {
		return fmt.Errorf("planner proposed %s without a target element", p.Kind)
	}
	if p.Kind == schemas.ActionNavigate && p.URL == "" {
		return fmt.Errorf("planner proposed navigate without a url")
	}
	return nil
}

// Planner proposes the next recording step toward a goal.
type Planner interface {
	PlanNextStep(ctx context.Context, goal string, state PageState) (*ProposedStep, error)
}
