// internal/resolver/resolver.go
// The resolver turns a recorded selector into a live element handle. It
// walks the selector's candidate chain strictly in recorded priority order,
// giving each strategy a weighted slice of the step's time budget, and never
// reorders or skips ahead: determinism of the walk is the whole point.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/naytrik/naytrik/api/schemas"
	"github.com/naytrik/naytrik/internal/browser"
)

// Timeout weights per strategy. Structural strategies get the largest slice
// because they are the cheapest to retry and the most likely to succeed;
// coordinates get the smallest because a point lookup either hits or it
// doesn't.
var strategyWeights = map[schemas.Strategy]int{
	schemas.StrategyCSS:         3,
	schemas.StrategyXPath:       3,
	schemas.StrategyText:        2,
	schemas.StrategyAttribute:   2,
	schemas.StrategyCoordinates: 1,
}

// Resolved is a successful resolution: the live element plus which candidate
// strategy produced it.
type Resolved struct {
	Element  browser.Element
	Strategy schemas.Strategy
	// Fallback is true when any candidate before the winning one failed.
	Fallback bool
}

// Attempt records one failed candidate for diagnostics.
type Attempt struct {
	Strategy schemas.Strategy
	Value    string
	Reason   string
}

// ResolutionError reports that every candidate in the chain failed. It keeps
// the per-candidate failure reasons so reports can show the full walk.
type ResolutionError struct {
	Attempts []Attempt
}

func (e *ResolutionError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s %q: %s", a.Strategy, a.Value, a.Reason))
	}
	return "all selector candidates failed: " + strings.Join(parts, "; ")
}

// Resolver locates elements on a live page.
type Resolver struct {
	page   browser.PageController
	logger *zap.Logger
}

// New builds a Resolver over the given page.
func New(page browser.PageController, logger *zap.Logger) *Resolver {
	return &Resolver{page: page, logger: logger.Named("resolver")}
}

// Resolve walks the candidate chain in priority order within the overall
// budget. It returns the first candidate that yields a usable element. When
// every candidate fails it returns a *ResolutionError listing each attempt;
// a canceled context surfaces as the context error instead.
func (r *Resolver) Resolve(ctx context.Context, sel *schemas.Selector, budget time.Duration) (*Resolved, error) {
	if sel == nil || len(sel.Candidates) == 0 {
		return nil, &ResolutionError{Attempts: []Attempt{{Reason: "selector has no candidates"}}}
	}
	if budget <= 0 {
		budget = 30 * time.Second
	}

	totalWeight := 0
	for _, c := range sel.Candidates {
		totalWeight += weightOf(c.Strategy)
	}

	resErr := &ResolutionError{}
	for i, cand := range sel.Candidates {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		slice := budget * time.Duration(weightOf(cand.Strategy)) / time.Duration(totalWeight)
		candCtx, candCancel := context.WithTimeout(ctx, slice)
		el, reason := r.tryCandidate(candCtx, cand, sel)
		candCancel()

		if reason == "" {
			r.logger.Debug("Selector resolved.",
				zap.String("strategy", string(cand.Strategy)),
				zap.String("value", cand.Value),
				zap.Bool("fallback", i > 0))
			return &Resolved{Element: *el, Strategy: cand.Strategy, Fallback: i > 0}, nil
		}

		r.logger.Debug("Selector candidate failed.",
			zap.String("strategy", string(cand.Strategy)),
			zap.String("value", cand.Value),
			zap.String("reason", reason))
		resErr.Attempts = append(resErr.Attempts, Attempt{
			Strategy: cand.Strategy,
			Value:    cand.Value,
			Reason:   reason,
		})
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, resErr
}

func weightOf(s schemas.Strategy) int {
	if w, ok := strategyWeights[s]; ok {
		return w
	}
	return 1
}

// tryCandidate runs one strategy and picks a usable match. An empty reason
// means success.
func (r *Resolver) tryCandidate(ctx context.Context, cand schemas.Candidate, sel *schemas.Selector) (*browser.Element, string) {
	matches, err := r.find(ctx, cand)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, "timed out"
		}
		return nil, err.Error()
	}
	if len(matches) == 0 {
		return nil, "no matches"
	}

	usable := matches[:0:0]
	for _, m := range matches {
		if m.Visible && m.Enabled {
			usable = append(usable, m)
		}
	}
	if len(usable) == 0 {
		return nil, fmt.Sprintf("%d matches, none visible and enabled", len(matches))
	}

	// Multiple usable matches: the recorded text hint breaks the tie, and
	// failing that the first match in document order wins.
	if len(usable) > 1 && sel.TextHint != "" {
		for i := range usable {
			if strings.EqualFold(strings.TrimSpace(usable[i].Text), strings.TrimSpace(sel.TextHint)) {
				return &usable[i], ""
			}
		}
	}
	return &usable[0], ""
}

func (r *Resolver) find(ctx context.Context, cand schemas.Candidate) ([]browser.Element, error) {
	switch cand.Strategy {
	case schemas.StrategyCSS:
		return r.page.FindByCSS(ctx, cand.Value)
	case schemas.StrategyXPath:
		return r.page.FindByXPath(ctx, cand.Value)
	case schemas.StrategyText:
		return r.page.FindByText(ctx, cand.Value)
	case schemas.StrategyAttribute:
		name, value, found := strings.Cut(cand.Value, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("attribute candidate %q is not name=value", cand.Value)
		}
		return r.page.FindByAttribute(ctx, name, value)
	case schemas.StrategyCoordinates:
		x, y, err := schemas.ParseCoordinates(cand.Value)
		if err != nil {
			return nil, err
		}
		return r.page.FindAtPoint(ctx, x, y)
	default:
		return nil, fmt.Errorf("unknown strategy %q", cand.Strategy)
	}
}
