package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const stableFor = 500 * time.Millisecond

// Options configures the Chromium process.
type Options struct {
	// Bin is an explicit browser binary; empty lets rod locate or download one.
	Bin      string
	Headless bool
}

// Session is a running Chromium instance driven over CDP.
type Session struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	log      *slog.Logger
}

// Launch starts Chromium with automation fingerprints turned down.
func Launch(ctx context.Context, opts Options, log *slog.Logger) (*Session, error) {
	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-infobars").
		Set("disable-blink-features", "AutomationControlled").
		Set("lang", DefaultPageOptions.Locale)
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	log.Debug("browser launched", "control_url", u, "headless", opts.Headless)
	return &Session{browser: b, launcher: l, log: log}, nil
}

// NewPage opens a stealth tab in a fresh incognito context.
func (s *Session) NewPage(ctx context.Context, opts PageOptions) (Page, func(), error) {
	inc, err := s.browser.Incognito()
	if err != nil {
		return nil, nil, fmt.Errorf("create browser context: %w", err)
	}

	p, err := stealth.Page(inc)
	if err != nil {
		_ = inc.Close()
		return nil, nil, fmt.Errorf("create tab: %w", err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			_ = p.Close()
			_ = inc.Close()
		})
	}

	if opts.Width > 0 && opts.Height > 0 {
		err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.Width,
			Height:            opts.Height,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			release()
			return nil, nil, fmt.Errorf("set viewport: %w", err)
		}
	}
	if opts.UserAgent != "" {
		err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      opts.UserAgent,
			AcceptLanguage: opts.Locale,
		})
		if err != nil {
			release()
			return nil, nil, fmt.Errorf("set user agent: %w", err)
		}
	}

	return &rodPage{page: p.Context(ctx), log: s.log}, release, nil
}

// Close shuts the browser down and removes its profile directory.
func (s *Session) Close() error {
	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// querier is the lookup surface shared by *rod.Page and *rod.Element.
type querier interface {
	Element(selector string) (*rod.Element, error)
	Elements(selector string) (rod.Elements, error)
	ElementR(selector, jsRegex string) (*rod.Element, error)
}

type rodScope struct {
	q func() querier
}

func (s rodScope) Find(selector string) (Element, error) {
	el, err := s.q().Element(selector)
	if err != nil {
		return nil, notFound(err, selector)
	}
	return wrapElement(el), nil
}

func (s rodScope) FindAll(selector string) ([]Element, error) {
	els, err := s.q().Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, wrapElement(el))
	}
	return out, nil
}

func (s rodScope) FindByText(selector, text string) (Element, error) {
	el, err := s.q().ElementR(selector, regexp.QuoteMeta(text))
	if err != nil {
		return nil, notFound(err, selector+" "+text)
	}
	return wrapElement(el), nil
}

func (s rodScope) FindByRole(role, name string) (Element, error) {
	selector := fmt.Sprintf(`[role=%q]`, role)
	els, err := s.FindAll(selector)
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(name)
	for _, el := range els {
		if label, ok, _ := el.Attribute("aria-label"); ok && strings.Contains(strings.ToLower(label), want) {
			return el, nil
		}
		if txt, err := el.Text(); err == nil && strings.Contains(strings.ToLower(txt), want) {
			return el, nil
		}
	}
	return nil, fmt.Errorf("%w: role %s %q", ErrNotFound, role, name)
}

func notFound(err error, what string) error {
	var nf *rod.ElementNotFoundError
	if errors.As(err, &nf) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return fmt.Errorf("query %s: %w", what, err)
}

type rodPage struct {
	page *rod.Page
	log  *slog.Logger
}

var _ Page = (*rodPage)(nil)

func (p *rodPage) lookup() querier {
	return p.page.Sleeper(rod.NotFoundSleeper)
}

func (p *rodPage) scope() rodScope {
	return rodScope{q: p.lookup}
}

func (p *rodPage) Find(selector string) (Element, error) { return p.scope().Find(selector) }

func (p *rodPage) FindAll(selector string) ([]Element, error) { return p.scope().FindAll(selector) }

func (p *rodPage) FindByText(selector, text string) (Element, error) {
	return p.scope().FindByText(selector, text)
}

func (p *rodPage) FindByRole(role, name string) (Element, error) {
	return p.scope().FindByRole(role, name)
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	// Maps keeps streaming tiles; a stable DOM is as close to idle as it gets.
	if err := pg.WaitStable(stableFor); err != nil {
		p.log.Debug("page not stable", "url", url, "error", err)
	}
	return nil
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) HTML() (string, error) {
	html, err := p.page.HTML()
	if err != nil {
		return "", fmt.Errorf("get html: %w", err)
	}
	return html, nil
}

func (p *rodPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	pg := p.page.Context(ctx).Timeout(timeout)
	el, err := pg.Element(selector)
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return nil, fmt.Errorf("wait visible %s: %w", selector, err)
	}
	return wrapElement(el.CancelTimeout()), nil
}

func (p *rodPage) Screenshot(path string, clip *Rect) error {
	req := &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}
	if clip != nil {
		req.Clip = &proto.PageViewport{
			X:      clip.X,
			Y:      clip.Y,
			Width:  clip.Width,
			Height: clip.Height,
			Scale:  1,
		}
	}
	data, err := p.page.Screenshot(false, req)
	if err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	return WriteFile(path, data)
}

func (p *rodPage) FullScreenshot(path string) error {
	data, err := p.page.Screenshot(true, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
	if err != nil {
		return fmt.Errorf("capture full screenshot: %w", err)
	}
	return WriteFile(path, data)
}

func (p *rodPage) Viewport() (Rect, error) {
	res, err := p.page.Eval(`() => ({w: window.innerWidth, h: window.innerHeight})`)
	if err != nil {
		return Rect{}, fmt.Errorf("read viewport: %w", err)
	}
	return Rect{Width: res.Value.Get("w").Num(), Height: res.Value.Get("h").Num()}, nil
}

type rodElement struct {
	rodScope
	el *rod.Element
}

var _ Element = (*rodElement)(nil)

func wrapElement(el *rod.Element) *rodElement {
	e := &rodElement{el: el}
	e.rodScope = rodScope{q: func() querier { return el.Sleeper(rod.NotFoundSleeper) }}
	return e
}

func (e *rodElement) Visible() bool {
	ok, err := e.el.Visible()
	return err == nil && ok
}

func (e *rodElement) Click() error {
	if err := e.el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return nil
}

func (e *rodElement) Fill(text string) error {
	if err := e.el.SelectAllText(); err != nil {
		return fmt.Errorf("select text: %w", err)
	}
	if err := e.el.Input(text); err != nil {
		return fmt.Errorf("input text: %w", err)
	}
	return nil
}

func (e *rodElement) PressEnter() error {
	if err := e.el.Type(input.Enter); err != nil {
		return fmt.Errorf("press enter: %w", err)
	}
	return nil
}

func (e *rodElement) Attribute(name string) (string, bool, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", false, fmt.Errorf("read attribute %s: %w", name, err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) Text() (string, error) {
	t, err := e.el.Text()
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return t, nil
}

func (e *rodElement) ScrollIntoView() error {
	if err := e.el.ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll into view: %w", err)
	}
	return nil
}

func (e *rodElement) ScrollBy(dy int) error {
	if _, err := e.el.Eval(`function(dy) { this.scrollBy(0, dy) }`, dy); err != nil {
		return fmt.Errorf("scroll by %d: %w", dy, err)
	}
	return nil
}

func (e *rodElement) Box() (Rect, error) {
	shape, err := e.el.Shape()
	if err != nil {
		return Rect{}, fmt.Errorf("read shape: %w", err)
	}
	box := shape.Box()
	if box == nil {
		return Rect{}, errors.New("element has no layout box")
	}
	return Rect{X: box.X, Y: box.Y, Width: box.Width, Height: box.Height}, nil
}

func (e *rodElement) Screenshot(path string) error {
	data, err := e.el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return fmt.Errorf("capture element: %w", err)
	}
	return WriteFile(path, data)
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
