package session

import "context"

// Driver is the low-level browser surface the session logic drives. The
// chromedp implementation is the production driver; tests substitute a
// scripted one.
type Driver interface {
	// Start boots the browser; Stop always tears it down.
	Start(ctx context.Context) error
	Stop() error

	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	WaitVisible(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	Text(ctx context.Context, selector string) (string, error)
	PageText(ctx context.Context) (string, error)
	// Enabled reports whether the element is present and interactable.
	Enabled(ctx context.Context, selector string) (bool, error)
	Screenshot(ctx context.Context) ([]byte, error)
}

// DriverFactory builds a fresh driver per session. Browsers are never
// reused across sessions; a clean profile per login avoids stale cookies
// pinning us to the wrong tenant.
type DriverFactory func() Driver
