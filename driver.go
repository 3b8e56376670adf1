package recaptchabuster

import (
	"context"
)

// Element is an opaque handle to a DOM node returned by a Driver.
// Handles are only valid for the Driver that produced them.
type Element interface{}

// Driver is the set of browser capabilities the Solver relies on.
// It mirrors the frame-switching model of WebDriver: queries and clicks apply to
// the currently selected frame, which starts out as the top-level document.
type Driver interface {
	// FindElements returns all elements matching the CSS selector in the current frame.
	// It must not wait: an empty slice with a nil error means nothing matched yet.
	FindElements(ctx context.Context, selector string) ([]Element, error)

	// Click clicks the element.
	Click(ctx context.Context, el Element) error

	// SwitchToFrame makes the document of the given iframe element the current frame.
	SwitchToFrame(ctx context.Context, frame Element) error

	// SwitchToDefaultContent selects the top-level document again.
	SwitchToDefaultContent(ctx context.Context) error
}

// TabFocuser is implemented by drivers that can detect tabs opened behind the automated one,
// which Buster does on first run, and bring the automated tab back to the front.
type TabFocuser interface {
	// FocusMainTab reports whether extra tabs were found and the main tab was re-activated.
	FocusMainTab(ctx context.Context) (bool, error)
}
