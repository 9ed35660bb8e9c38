// Package capture screenshots a single review element.
package capture

import (
	"context"
	"log/slog"
	"time"

	"review_bot/internal/browser"
)

// Padding is added around the element box when falling back to a clipped
// page screenshot.
const Padding = 16

// Capturer takes element screenshots with a clipped-viewport fallback.
type Capturer struct {
	log   *slog.Logger
	pause func(ctx context.Context, d time.Duration)
}

// New returns a Capturer.
func New(log *slog.Logger) *Capturer {
	return &Capturer{log: log, pause: browser.Pause}
}

// Capture writes a PNG of el to path and reports whether it succeeded.
func (c *Capturer) Capture(ctx context.Context, page browser.Page, el browser.Element, path string) bool {
	if err := el.ScrollIntoView(); err != nil {
		c.log.Debug("scroll into view", "error", err)
	}
	c.pause(ctx, time.Second)

	err := el.Screenshot(path)
	if err == nil {
		c.log.Info("review captured", "path", path)
		return true
	}
	c.log.Warn("element screenshot failed, trying clip", "error", err)

	box, err := el.Box()
	if err != nil || box.Empty() {
		c.log.Error("review capture failed", "stage", "box", "error", err)
		return false
	}
	bounds, err := page.Viewport()
	if err != nil {
		c.log.Debug("read viewport", "error", err)
	}
	clip := box.Pad(Padding, bounds)
	if clip.Empty() {
		c.log.Error("review capture failed", "stage", "clip", "box", box)
		return false
	}
	if err := page.Screenshot(path, &clip); err != nil {
		c.log.Error("review capture failed", "stage", "clip", "error", err)
		return false
	}
	c.log.Info("review captured with clip", "path", path)
	return true
}
