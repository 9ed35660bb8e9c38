package card

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"review_bot/internal/browser"
)

//go:embed review_card.html
var defaultTemplate []byte

// Template viewport.
const (
	templateWidth  = 700
	templateHeight = 600
)

// OpenFunc hands out a page and its release function.
type OpenFunc func(ctx context.Context) (browser.Page, func(), error)

// SharedOpener opens template pages in a fresh context of an existing
// browser.
func SharedOpener(o browser.Opener) OpenFunc {
	return func(ctx context.Context) (browser.Page, func(), error) {
		return o.NewPage(ctx, browser.PageOptions{Width: templateWidth, Height: templateHeight})
	}
}

// LaunchOpener starts a dedicated browser per page; release shuts it down.
func LaunchOpener(opts browser.Options, log *slog.Logger) OpenFunc {
	return func(ctx context.Context) (browser.Page, func(), error) {
		s, err := browser.Launch(ctx, opts, log)
		if err != nil {
			return nil, nil, err
		}
		page, release, err := s.NewPage(ctx, browser.PageOptions{Width: templateWidth, Height: templateHeight})
		if err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return page, func() {
			release()
			if err := s.Close(); err != nil {
				log.Debug("close template browser", "error", err)
			}
		}, nil
	}
}

// Template renders the HTML card template in a browser.
type Template struct {
	path  string
	open  OpenFunc
	log   *slog.Logger
	pause func(ctx context.Context, d time.Duration)
}

// NewTemplate returns a template backend. An empty path uses the built-in
// template.
func NewTemplate(path string, open OpenFunc, log *slog.Logger) *Template {
	return &Template{path: path, open: open, log: log, pause: browser.Pause}
}

func (t *Template) Name() string { return "template" }

func (t *Template) Available(_ context.Context) error {
	if t.open == nil {
		return errors.New("no browser configured")
	}
	if t.path == "" {
		return nil
	}
	if _, err := os.Stat(t.path); err != nil {
		return fmt.Errorf("template %s: %w", t.path, err)
	}
	return nil
}

func (t *Template) Render(ctx context.Context, c Card, path string) error {
	tmpl, cleanup, err := t.templateFile()
	if err != nil {
		return err
	}
	defer cleanup()

	page, release, err := t.open(ctx)
	if err != nil {
		return fmt.Errorf("open template page: %w", err)
	}
	defer release()

	if err := page.Navigate(ctx, TemplateURL(tmpl, c)); err != nil {
		return fmt.Errorf("load template: %w", err)
	}
	t.pause(ctx, 300*time.Millisecond)

	el, err := page.Find("#review-card")
	if err != nil {
		t.log.Debug("card element missing, capturing full page")
		if err := page.FullScreenshot(path); err != nil {
			return fmt.Errorf("capture template page: %w", err)
		}
		return nil
	}
	if err := el.Screenshot(path); err != nil {
		return fmt.Errorf("capture card element: %w", err)
	}
	return nil
}

// templateFile returns an absolute path to the template on disk.
func (t *Template) templateFile() (string, func(), error) {
	if t.path != "" {
		abs, err := filepath.Abs(t.path)
		if err != nil {
			return "", nil, fmt.Errorf("resolve template path: %w", err)
		}
		return abs, func() {}, nil
	}
	f, err := os.CreateTemp("", "review_card_*.html")
	if err != nil {
		return "", nil, fmt.Errorf("create template file: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(defaultTemplate); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write template file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("write template file: %w", err)
	}
	return f.Name(), cleanup, nil
}

// TemplateURL builds the file URL carrying the card fields as query
// parameters. The badge is only sent when set.
func TemplateURL(templatePath string, c Card) string {
	q := url.Values{}
	q.Set("name", c.Name)
	q.Set("rating", strconv.Itoa(c.Rating))
	q.Set("text", c.Text)
	q.Set("date", c.Date)
	q.Set("store", c.Store)
	if c.Badge != "" {
		q.Set("badge", c.Badge)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(templatePath), RawQuery: q.Encode()}
	return u.String()
}
