// internal/player/interpolate.go
package player

import (
	"fmt"

	"github.com/naytrik/naytrik/api/schemas"
)

// UnboundVariableError reports a placeholder with no binding. Replay refuses
// to start while any step references one.
type UnboundVariableError struct {
	Name   string
	StepID int
}

func (e *UnboundVariableError) Error() string {
	if e.StepID > 0 {
		return fmt.Sprintf("unbound variable %q referenced by step %d", e.Name, e.StepID)
	}
	return fmt.Sprintf("unbound variable %q", e.Name)
}

// ValidateBindings checks that every placeholder referenced anywhere in the
// workflow has a binding, before any step runs.
func ValidateBindings(wf *schemas.Workflow, bindings map[string]string) error {
	for _, step := range wf.Steps {
		for _, value := range step.Parameters {
			for _, name := range schemas.Placeholders(value) {
				if _, ok := bindings[name]; !ok {
					return &UnboundVariableError{Name: name, StepID: step.ID}
				}
			}
		}
	}
	return nil
}

// Interpolate returns a copy of the action with every {{name}} placeholder
// in its parameters replaced by its binding. The input action is never
// mutated, and substituted values are not rescanned, so a binding containing
// placeholder syntax passes through literally.
func Interpolate(action schemas.Action, bindings map[string]string) (schemas.Action, error) {
	out := action.Clone()
	lookup := func(name string) (string, bool) {
		v, ok := bindings[name]
		return v, ok
	}
	for key, value := range out.Parameters {
		for _, name := range schemas.Placeholders(value) {
			if _, ok := bindings[name]; !ok {
				return schemas.Action{}, &UnboundVariableError{Name: name, StepID: action.ID}
			}
		}
		expanded, err := schemas.ExpandPlaceholders(value, lookup)
		if err != nil {
			return schemas.Action{}, err
		}
		out.Parameters[key] = expanded
	}
	return out, nil
}
