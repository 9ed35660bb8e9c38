// Package browser defines the narrow page contract the capture pipeline
// drives, plus a go-rod implementation of it.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a lookup matches no element.
var ErrNotFound = errors.New("element not found")

// Rect is a rectangle in CSS pixels relative to the viewport.
type Rect struct {
	X, Y, Width, Height float64
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Pad grows r by n pixels on every side and clamps the result to bounds.
func (r Rect) Pad(n float64, bounds Rect) Rect {
	x0 := max(bounds.X, r.X-n)
	y0 := max(bounds.Y, r.Y-n)
	x1 := r.X + r.Width + n
	y1 := r.Y + r.Height + n
	if !bounds.Empty() {
		x1 = min(x1, bounds.X+bounds.Width)
		y1 = min(y1, bounds.Y+bounds.Height)
	}
	return Rect{X: x0, Y: y0, Width: max(0, x1-x0), Height: max(0, y1-y0)}
}

// Scope is anything elements can be looked up in: a page or an element.
// Lookups never wait; a miss returns ErrNotFound.
type Scope interface {
	Find(selector string) (Element, error)
	FindAll(selector string) ([]Element, error)
	// FindByText returns the first selector match whose text contains text.
	FindByText(selector, text string) (Element, error)
	// FindByRole returns the first element with the ARIA role whose
	// accessible name (aria-label or text) contains name.
	FindByRole(role, name string) (Element, error)
}

// Element is a handle to a DOM node.
type Element interface {
	Scope
	Visible() bool
	Click() error
	// Fill replaces the element's value with text.
	Fill(text string) error
	PressEnter() error
	// Attribute returns the attribute value and whether it is present.
	Attribute(name string) (string, bool, error)
	Text() (string, error)
	ScrollIntoView() error
	// ScrollBy scrolls the element's own content vertically.
	ScrollBy(dy int) error
	Box() (Rect, error)
	// Screenshot writes a PNG of exactly the element's box to path.
	Screenshot(path string) error
}

// Page is a single browser tab.
type Page interface {
	Scope
	Navigate(ctx context.Context, url string) error
	URL() string
	HTML() (string, error)
	// WaitVisible blocks until selector matches a visible element or the
	// timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	// Screenshot writes a PNG of the viewport, or of clip when non-nil.
	Screenshot(path string, clip *Rect) error
	// FullScreenshot writes a PNG of the whole scrollable page.
	FullScreenshot(path string) error
	Viewport() (Rect, error)
}

// PageOptions configures a new tab.
type PageOptions struct {
	Width     int
	Height    int
	UserAgent string
	Locale    string
}

// DefaultPageOptions mirrors a desktop Chrome on Windows.
var DefaultPageOptions = PageOptions{
	Width:     1280,
	Height:    900,
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	Locale:    "en-GB",
}

// Opener hands out pages. The returned release func closes the page and
// its browser context; it is safe to call more than once.
type Opener interface {
	NewPage(ctx context.Context, opts PageOptions) (Page, func(), error)
}

// Unavailable is the Opener of a browser that could not be started. Every
// NewPage call fails with Err.
type Unavailable struct {
	Err error
}

func (u Unavailable) NewPage(_ context.Context, _ PageOptions) (Page, func(), error) {
	return nil, nil, fmt.Errorf("browser unavailable: %w", u.Err)
}

// Pause waits for d or until ctx is done.
func Pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Timestamp formats t the way artifact file names embed it.
func Timestamp(t time.Time) string {
	return t.Format("20060102_150405")
}
