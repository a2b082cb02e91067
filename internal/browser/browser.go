// Package browser talks to the managed browser provider that hosts the
// actual browser instances. The rest of the system only sees the
// Provider and Handle interfaces, so tests can substitute fakes.
package browser

import (
	"context"
	"errors"
)

// Provider-level errors
var (
	// ErrUnavailable means the provider cannot supply a browser right
	// now (connection failure, 5xx, or open circuit breaker).
	ErrUnavailable = errors.New("browser provider unavailable")

	// ErrNavigation means the browser could not load the requested URL.
	ErrNavigation = errors.New("navigation failed")
)

// Handle is one live browser session at the provider.
type Handle interface {
	// ID is the provider-side session identifier.
	ID() string

	// Navigate loads the given URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error

	// Title returns the current page title.
	Title(ctx context.Context) (string, error)

	// Content returns the full page HTML.
	Content(ctx context.Context) (string, error)

	// Screenshot returns a full-page screenshot as base64 PNG.
	Screenshot(ctx context.Context) (string, error)

	// LiveViewURL is the URL a user opens to see and drive the page,
	// e.g. to complete a login.
	LiveViewURL() string

	// Close releases the browser. Closing twice is safe.
	Close(ctx context.Context) error
}

// Provider opens browser sessions.
type Provider interface {
	Open(ctx context.Context) (Handle, error)
}
