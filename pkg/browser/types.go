package browser

import (
	"context"
	"time"

	"github.com/entrhq/visreg/pkg/capability"
)

// SessionFactory opens remote browser sessions.
type SessionFactory interface {
	// Open establishes a session for the descriptor. Failures are
	// KindSessionOpen errors.
	Open(ctx context.Context, d capability.Descriptor) (Session, error)
}

// Session is one remote browser with an isolated context sized to the
// descriptor's viewport.
type Session interface {
	NewPage() (Page, error)
	Close() error
}

// Page is a single tab inside a Session. Calls block until the browser
// answers; timeouts surface as errors wrapping types.ErrTimeout.
type Page interface {
	// Goto navigates and waits for the load event.
	Goto(url string) error

	// WaitForAttached waits until selector matches an element in the DOM.
	WaitForAttached(selector string, timeout time.Duration) error

	// RemoveAll deletes every element matching selector and reports how many.
	RemoveAll(selector string) (int, error)

	// Evaluate runs expression in the page with a single argument.
	Evaluate(expression string, arg interface{}) (interface{}, error)

	// Screenshot captures the page and returns the PNG bytes.
	Screenshot(opts ScreenshotOptions) ([]byte, error)

	Close() error
}

// ScreenshotOptions configures a capture.
type ScreenshotOptions struct {
	FullPage bool
}
