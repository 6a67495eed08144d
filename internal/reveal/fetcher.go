package reveal

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by FindClickable when no element matched within the wait.
var ErrNotFound = errors.New("element not found")

// ClickMode selects how a located element is activated.
type ClickMode int

const (
	// ClickNative dispatches real mouse events at the element position.
	ClickNative ClickMode = iota
	// ClickScript calls element.click() from page script, bypassing overlays and visibility.
	ClickScript
)

// Selector locates one element by XPath.
type Selector struct {
	XPath string
	// Visible requires the element to be rendered and visible, not merely present.
	Visible bool
}

// Handle references an element located by FindClickable.
type Handle struct {
	XPath string
	// Ref carries the fetcher-specific node reference.
	Ref any
}

// PageFetcher drives an external rendering engine for a single page session.
type PageFetcher interface {
	// Open loads url and waits until the document is ready.
	Open(ctx context.Context, url string) error
	// FindClickable waits up to timeout for sel and returns ErrNotFound when absent.
	FindClickable(ctx context.Context, sel Selector, timeout time.Duration) (Handle, error)
	Click(ctx context.Context, h Handle, mode ClickMode) error
	ScrollToBottom(ctx context.Context) error
	DocumentHeight(ctx context.Context) (int64, error)
	// PageSource returns the current serialized DOM.
	PageSource(ctx context.Context) (string, error)
	// Close releases the renderer. It is idempotent and always safe to call.
	Close() error
}

// FetcherFactory starts a fresh renderer session for one job.
type FetcherFactory func(ctx context.Context) (PageFetcher, error)
