// Package card renders a review into a Google Maps style PNG card.
//
// Rendering goes through a list of backends tried in order; the first that
// is available and succeeds wins. The template backend drives a browser
// over an HTML page, the raster backend draws the card procedurally and has
// no outside dependencies.
package card

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"review_bot/internal/browser"
)

// ErrNoBackend is returned when every backend failed or was unavailable.
var ErrNoBackend = errors.New("no card backend could render")

// DefaultBadge is shown under the reviewer name when none is given.
const DefaultBadge = "Local Guide"

// Card is the content of one review card.
type Card struct {
	Name   string
	Rating int
	Text   string
	Date   string
	Store  string
	Badge  string
}

// Validate checks the rating range.
func (c Card) Validate() error {
	if c.Rating < 1 || c.Rating > 5 {
		return fmt.Errorf("rating %d out of range 1-5", c.Rating)
	}
	return nil
}

func (c Card) badge() string {
	if c.Badge == "" {
		return DefaultBadge
	}
	return c.Badge
}

// Backend renders a card to a PNG file.
type Backend interface {
	Name() string
	// Available reports why the backend cannot run, or nil.
	Available(ctx context.Context) error
	Render(ctx context.Context, c Card, path string) error
}

// FileName returns the output file name for a card rendered at t.
func FileName(t time.Time) string {
	return "review_card_" + browser.Timestamp(t) + ".png"
}

// Renderer dispatches to the first working backend.
type Renderer struct {
	backends []Backend
	dir      string
	log      *slog.Logger
	now      func() time.Time
}

// NewRenderer returns a Renderer writing into dir.
func NewRenderer(dir string, log *slog.Logger, backends ...Backend) *Renderer {
	return &Renderer{backends: backends, dir: dir, log: log, now: time.Now}
}

// Render draws c and returns the PNG path.
func (r *Renderer) Render(ctx context.Context, c Card) (string, error) {
	if err := c.Validate(); err != nil {
		return "", fmt.Errorf("render card: %w", err)
	}
	path, err := r.reserve(r.now())
	if err != nil {
		return "", err
	}

	var errs []error
	for _, b := range r.backends {
		if err := b.Available(ctx); err != nil {
			r.log.Info("card backend unavailable", "backend", b.Name(), "reason", err)
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}
		if err := b.Render(ctx, c, path); err != nil {
			r.log.Warn("card backend failed", "backend", b.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}
		r.log.Info("review card rendered", "backend", b.Name(), "path", path)
		return path, nil
	}
	if err := os.Remove(path); err != nil {
		r.log.Debug("remove unused card file", "path", path, "error", err)
	}
	if len(errs) == 0 {
		return "", ErrNoBackend
	}
	return "", fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(errs...))
}

// reserve creates an empty output file named for t. Cards are never
// overwritten: a taken name gets a _2, _3, ... suffix.
func (r *Renderer) reserve(t time.Time) (string, error) {
	if err := os.MkdirAll(r.dir, 0o750); err != nil {
		return "", fmt.Errorf("create card directory: %w", err)
	}
	base := strings.TrimSuffix(FileName(t), ".png")
	for n := 1; ; n++ {
		name := base + ".png"
		if n > 1 {
			name = fmt.Sprintf("%s_%d.png", base, n)
		}
		path := filepath.Join(r.dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("reserve card file: %w", err)
		}
		return path, f.Close()
	}
}
