package schemas

import (
	"fmt"
	"strconv"
	"strings"
)

// -- Selector Schemas --

// Strategy identifies one element-location technique. Strategies are captured
// redundantly at recording time; which one proves most robust is only
// discovered at replay time, possibly against a drifted page.
type Strategy string

const (
	StrategyCSS         Strategy = "css"
	StrategyXPath       Strategy = "xpath"
	StrategyText        Strategy = "text"
	StrategyAttribute   Strategy = "attribute"
	StrategyCoordinates Strategy = "coordinates"
)

// Valid reports whether the strategy is one of the known location techniques.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyCSS, StrategyXPath, StrategyText, StrategyAttribute, StrategyCoordinates:
		return true
	}
	return false
}

// Candidate is a single locator attempt: one strategy, its value, and its
// position in the fallback chain. Lower priority means tried earlier.
type Candidate struct {
	Strategy Strategy `json:"strategy" yaml:"strategy"`
	Value    string   `json:"value" yaml:"value"`
	Priority int      `json:"priority" yaml:"priority"`
}

// Selector is the ordered set of candidate locators captured for one element.
// The candidate order is fixed at capture time and is never reordered during
// replay. Coordinates, when present, are always the last resort.
type Selector struct {
	Candidates []Candidate `json:"candidates" yaml:"candidates"`

	// TextHint carries the element's visible text at capture time. When a
	// strategy yields multiple matches, the resolver filters them against this
	// hint before falling back to document order.
	TextHint string `json:"text_hint,omitempty" yaml:"text_hint,omitempty"`

	// Tag is the element's HTML tag name at capture time (informational).
	Tag string `json:"tag,omitempty" yaml:"tag,omitempty"`
}

// Validate checks the structural invariants of a selector: at least one
// candidate, known strategies, non-decreasing priorities, and coordinates
// only in the final position.
func (s *Selector) Validate() error {
	if len(s.Candidates) == 0 {
		return fmt.Errorf("selector must carry at least one candidate")
	}
	lastPriority := -1
	for i, c := range s.Candidates {
		if !c.Strategy.Valid() {
			return fmt.Errorf("candidate %d: unknown strategy %q", i, c.Strategy)
		}
		if c.Value == "" {
			return fmt.Errorf("candidate %d (%s): empty value", i, c.Strategy)
		}
		if c.Priority < lastPriority {
			return fmt.Errorf("candidate %d (%s): priority %d out of order", i, c.Strategy, c.Priority)
		}
		lastPriority = c.Priority
		if c.Strategy == StrategyCoordinates && i != len(s.Candidates)-1 {
			return fmt.Errorf("coordinates candidate must be last in the fallback chain")
		}
	}
	return nil
}

// Clone returns a deep copy so recorded selectors can be handed off without
// sharing the candidate slice.
func (s Selector) Clone() Selector {
	out := s
	out.Candidates = make([]Candidate, len(s.Candidates))
	copy(out.Candidates, s.Candidates)
	return out
}

// ParseCoordinates decodes a coordinates candidate value of the form "x,y"
// into viewport pixel coordinates.
func ParseCoordinates(value string) (x, y float64, err error) {
	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid coordinates %q: want \"x,y\"", value)
	}
	x, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid x coordinate in %q: %w", value, err)
	}
	y, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid y coordinate in %q: %w", value, err)
	}
	if x < 0 || y < 0 {
		return 0, 0, fmt.Errorf("coordinates %q out of range", value)
	}
	return x, y, nil
}

// FormatCoordinates is the inverse of ParseCoordinates.
func FormatCoordinates(x, y float64) string {
	return fmt.Sprintf("%g,%g", x, y)
}
