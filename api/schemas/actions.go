package schemas

import (
	"fmt"
	"time"
)

// -- Action Schemas --

// ActionKind enumerates every action a workflow step can perform. The set is
// closed: the player switches exhaustively over it, so adding a kind is a
// compile-time exercise rather than a runtime string comparison.
type ActionKind string

const (
	ActionNavigate    ActionKind = "navigate"
	ActionClick       ActionKind = "click"
	ActionTypeText    ActionKind = "type"
	ActionWaitFor     ActionKind = "wait_for"
	ActionExtractText ActionKind = "extract_text"
	ActionAssertState ActionKind = "assert_state"
	ActionScreenshot  ActionKind = "screenshot"
)

// Valid reports whether the kind is one of the known action kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionNavigate, ActionClick, ActionTypeText, ActionWaitFor,
		ActionExtractText, ActionAssertState, ActionScreenshot:
		return true
	}
	return false
}

// RequiresSelector reports whether steps of this kind must carry a selector.
func (k ActionKind) RequiresSelector() bool {
	switch k {
	case ActionClick, ActionTypeText, ActionExtractText:
		return true
	}
	return false
}

// Well-known parameter keys. Parameters are stored raw (pre-interpolation);
// only string values are scanned for {{name}} placeholders at replay time.
const (
	ParamURL          = "url"           // navigate, assert_state
	ParamText         = "text"          // type, assert_state (text_contains)
	ParamClearBefore  = "clear_before"  // type: "true"/"false", defaults to true
	ParamPressEnter   = "press_enter"   // type: "true"/"false"
	ParamDurationMs   = "duration_ms"   // wait_for without a selector
	ParamTextContains = "text_contains" // assert_state
	ParamURLContains  = "url_contains"  // assert_state
)

// Action is one recorded step. The Kind tag selects the behavior; Selector is
// nil for actions that do not target an element (navigate, screenshot, timed
// wait_for). IDs are assigned by the recorder: monotonically increasing and
// contiguous within a recording session, and they define replay order.
type Action struct {
	ID         int               `json:"id" yaml:"id"`
	Kind       ActionKind        `json:"kind" yaml:"kind"`
	Selector   *Selector         `json:"selector,omitempty" yaml:"selector,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	TimeoutMs  int               `json:"timeout_ms" yaml:"timeout_ms"`
	CapturedAt time.Time         `json:"captured_at" yaml:"captured_at"`

	// Note holds the recording agent's reasoning for this step, when known.
	Note string `json:"note,omitempty" yaml:"note,omitempty"`

	// Output names the report field an extract_text step stores its result
	// under. Empty means the extraction is kept on the step result only.
	Output string `json:"output,omitempty" yaml:"output,omitempty"`
}

// Validate checks the per-step invariants.
func (a *Action) Validate() error {
	if a.ID <= 0 {
		return fmt.Errorf("step id must be positive, got %d", a.ID)
	}
	if !a.Kind.Valid() {
		return fmt.Errorf("step %d: unknown action kind %q", a.ID, a.Kind)
	}
	if a.Kind.RequiresSelector() && a.Selector == nil {
		return fmt.Errorf("step %d (%s): selector is required", a.ID, a.Kind)
	}
	if a.Selector != nil {
		if err := a.Selector.Validate(); err != nil {
			return fmt.Errorf("step %d (%s): %w", a.ID, a.Kind, err)
		}
	}
	if a.TimeoutMs < 0 {
		return fmt.Errorf("step %d (%s): negative timeout", a.ID, a.Kind)
	}
	return nil
}

// Clone returns a deep copy of the action. Interpolation operates on clones
// so the recorded workflow is never mutated.
func (a Action) Clone() Action {
	out := a
	if a.Selector != nil {
		sel := a.Selector.Clone()
		out.Selector = &sel
	}
	if a.Parameters != nil {
		out.Parameters = make(map[string]string, len(a.Parameters))
		for k, v := range a.Parameters {
			out.Parameters[k] = v
		}
	}
	return out
}

// Timeout converts the step's millisecond budget into a duration, applying
// the given default when the step carries none.
func (a Action) Timeout(def time.Duration) time.Duration {
	if a.TimeoutMs <= 0 {
		return def
	}
	return time.Duration(a.TimeoutMs) * time.Millisecond
}
