// internal/interactor/page.go
package interactor

import (
	"context"
	"time"
)

// Page is the slice of a browser tab the interactor drives. Implementations
// live in internal/browser; tests use in-memory fakes.
type Page interface {
	// Locate returns a lazy handle; nothing is queried until a method is called on it.
	Locate(loc Locator) Element
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	// VisibleText returns the rendered text of the document body.
	VisibleText(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, path string) error
}

// Element is a lazily resolved handle to the first node matching a Locator.
type Element interface {
	// WaitVisible blocks until the element is attached and visible, or the timeout elapses.
	WaitVisible(ctx context.Context, timeout time.Duration) error
	Fill(ctx context.Context, value string) error
	Click(ctx context.Context) error
	Text(ctx context.Context) (string, error)
}
