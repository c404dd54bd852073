// internal/browser/errors.go
package browser

import "errors"

var (
	// ErrNotFound is returned when a locate strategy matches no element.
	ErrNotFound = errors.New("browser: no element matched")

	// ErrNotInteractable is returned when an element exists but cannot
	// receive the requested interaction (hidden, disabled, or detached).
	ErrNotInteractable = errors.New("browser: element not interactable")

	// ErrBadSelector is returned when a selector value cannot be evaluated
	// by the page (malformed CSS or XPath).
	ErrBadSelector = errors.New("browser: malformed selector")

	// ErrNavigation is returned when a page load fails outright.
	ErrNavigation = errors.New("browser: navigation failed")
)
