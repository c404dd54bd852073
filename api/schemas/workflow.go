package schemas

import (
	"fmt"
	"regexp"
	"sort"
	"time"
)

// -- Workflow Schemas --

// placeholderPattern matches {{name}} references inside string parameters.
// Names are restricted to identifier characters so stray braces in page text
// never parse as variables.
var placeholderPattern = regexp.MustCompile(`\{\{([A-Za-z_][A-Za-z0-9_]*)\}\}`)

// Placeholders returns the distinct variable names referenced by {{name}}
// placeholders in s, in order of first appearance.
func Placeholders(s string) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, m := range placeholderPattern.FindAllStringSubmatch(s, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}

// ExpandPlaceholders substitutes every {{name}} in s using lookup. It
// performs exactly one pass: substituted values are never re-scanned, so a
// binding containing placeholder syntax cannot trigger further expansion.
// The first unresolvable name is reported through the returned error.
func ExpandPlaceholders(s string, lookup func(name string) (string, bool)) (string, error) {
	var missing string
	out := placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		if v, ok := lookup(name); ok {
			return v
		}
		if missing == "" {
			missing = name
		}
		return m
	})
	if missing != "" {
		return "", fmt.Errorf("unbound variable %q", missing)
	}
	return out, nil
}

// Workflow is a named, ordered, parameterizable sequence of recorded actions.
// It is the unit of persistence: round-tripping through serialize/deserialize
// is lossless for every field.
type Workflow struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`

	// Variables declares the parameter names a run may bind. Every {{name}}
	// referenced inside any step's parameters must appear here.
	Variables []string `json:"variables,omitempty" yaml:"variables,omitempty"`

	Steps []Action `json:"steps" yaml:"steps"`
}

// Validate enforces the workflow invariants: a name, at least one step,
// contiguous monotonically increasing step IDs, per-step validity, and every
// referenced placeholder declared in Variables.
func (w *Workflow) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if len(w.Steps) == 0 {
		return fmt.Errorf("workflow %q has no steps", w.Name)
	}

	declared := make(map[string]struct{}, len(w.Variables))
	for _, v := range w.Variables {
		declared[v] = struct{}{}
	}

	for i, step := range w.Steps {
		if step.ID != i+1 {
			return fmt.Errorf("workflow %q: step at index %d has id %d, want %d", w.Name, i, step.ID, i+1)
		}
		if err := step.Validate(); err != nil {
			return fmt.Errorf("workflow %q: %w", w.Name, err)
		}
		for _, value := range step.Parameters {
			for _, name := range Placeholders(value) {
				if _, ok := declared[name]; !ok {
					return fmt.Errorf("workflow %q: step %d references undeclared variable %q", w.Name, step.ID, name)
				}
			}
		}
	}
	return nil
}

// ReferencedVariables collects every placeholder name used across all steps,
// sorted for stable output.
func (w *Workflow) ReferencedVariables() []string {
	seen := make(map[string]struct{})
	for _, step := range w.Steps {
		for _, value := range step.Parameters {
			for _, name := range Placeholders(value) {
				seen[name] = struct{}{}
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the workflow.
func (w Workflow) Clone() Workflow {
	out := w
	if w.Variables != nil {
		out.Variables = make([]string, len(w.Variables))
		copy(out.Variables, w.Variables)
	}
	out.Steps = make([]Action, len(w.Steps))
	for i, step := range w.Steps {
		out.Steps[i] = step.Clone()
	}
	return out
}
