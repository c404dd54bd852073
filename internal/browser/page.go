// internal/browser/page.go
// This file defines the page-level contract the rest of the application
// programs against. The resolver, player, recorder, and agent all depend on
// PageController rather than on a concrete CDP session, which keeps them
// testable with in-memory fakes.
package browser

import (
	"context"
	"time"
)

// Element is a lightweight handle to a located DOM node. The handle is only
// valid for the page state it was located on; any navigation invalidates it.
type Element struct {
	// Ref is a page-unique locator id stamped onto the node. Interactions
	// address the node through this id rather than the original selector.
	Ref int `json:"ref"`

	Tag     string  `json:"tag"`
	Text    string  `json:"text"`
	Visible bool    `json:"visible"`
	Enabled bool    `json:"enabled"`
	CenterX float64 `json:"centerX"`
	CenterY float64 `json:"centerY"`
}

// ElementInfo is the richer view of a node used when building selectors for
// a recorded step and when describing the page to the planner.
type ElementInfo struct {
	Element
	Attributes map[string]string `json:"attributes"`
}

// PageController is the single surface through which the application drives
// a live page. Every call takes a context; implementations must honor
// cancellation on all blocking operations.
type PageController interface {
	// Navigate loads a URL and waits for the load event.
	Navigate(ctx context.Context, url string) error

	// FindByCSS, FindByXPath, FindByText, and FindByAttribute locate nodes
	// with one strategy each. They return every match in document order, or
	// an empty slice when nothing matches. A malformed selector value
	// returns ErrBadSelector.
	FindByCSS(ctx context.Context, selector string) ([]Element, error)
	FindByXPath(ctx context.Context, expression string) ([]Element, error)
	FindByText(ctx context.Context, text string) ([]Element, error)
	FindByAttribute(ctx context.Context, name, value string) ([]Element, error)

	// FindAtPoint returns the topmost element rendered at the given
	// viewport coordinates, or an empty slice when the point is bare.
	FindAtPoint(ctx context.Context, x, y float64) ([]Element, error)

	// Click clicks a previously located element.
	Click(ctx context.Context, el Element) error

	// ClickAt clicks at absolute viewport coordinates. Used only as the
	// last-resort fallback when no structural strategy matched.
	ClickAt(ctx context.Context, x, y float64) error

	// TypeText fills a located element. With clearBefore the existing value
	// is removed first; with pressEnter a trailing Enter keystroke is sent.
	TypeText(ctx context.Context, el Element, text string, clearBefore, pressEnter bool) error

	// ExtractText returns the trimmed visible text of a located element.
	ExtractText(ctx context.Context, el Element) (string, error)

	// WaitForIdle blocks until the network has been quiet for quietPeriod
	// or the context is done.
	WaitForIdle(ctx context.Context, quietPeriod time.Duration) error

	// PageText returns the visible text of the whole document.
	PageText(ctx context.Context) (string, error)

	// CurrentURL and Title describe the page for assertions and planning.
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)

	// InspectElement returns the full attribute map of a located element.
	InspectElement(ctx context.Context, el Element) (ElementInfo, error)

	// ListInteractive enumerates the elements a user could plausibly act
	// on: links, buttons, form fields, and ARIA-role widgets.
	ListInteractive(ctx context.Context) ([]ElementInfo, error)

	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// Close tears the page and its browser process down.
	Close() error
}
