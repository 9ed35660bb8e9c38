// Package browsertest provides in-memory Page and Element fakes for
// testing code that drives a browser.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"review_bot/internal/browser"
)

// PNG is the payload fakes write for every screenshot.
var PNG = []byte("\x89PNG\r\n\x1a\nfake")

// Node is a fake DOM element. Children are keyed by the exact selector a
// caller will query them with.
type Node struct {
	Label    string
	Content  string
	Attrs    map[string]string
	Hidden   bool
	Rect     browser.Rect
	Children map[string][]*Node

	ClickErr      error
	ScreenshotErr error
	BoxErr        error
	TextErr       error
	ScrollErr     error

	// OnClick runs after a successful click.
	OnClick func()

	mu        sync.Mutex
	clicks    int
	filled    []string
	entered   int
	scrolls   []int
	inView    bool
	shotPaths []string
}

var _ browser.Element = (*Node)(nil)

// Add appends children under selector and returns n for chaining.
func (n *Node) Add(selector string, children ...*Node) *Node {
	if n.Children == nil {
		n.Children = make(map[string][]*Node)
	}
	n.Children[selector] = append(n.Children[selector], children...)
	return n
}

func (n *Node) Find(selector string) (browser.Element, error) {
	kids := n.Children[selector]
	if len(kids) == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrNotFound, selector)
	}
	return kids[0], nil
}

func (n *Node) FindAll(selector string) ([]browser.Element, error) {
	kids := n.Children[selector]
	out := make([]browser.Element, 0, len(kids))
	for _, k := range kids {
		out = append(out, k)
	}
	return out, nil
}

func (n *Node) FindByText(selector, text string) (browser.Element, error) {
	for _, k := range n.Children[selector] {
		if strings.Contains(k.Content, text) {
			return k, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %q", browser.ErrNotFound, selector, text)
}

func (n *Node) FindByRole(role, name string) (browser.Element, error) {
	want := strings.ToLower(name)
	for _, k := range n.Children[`[role="`+role+`"]`] {
		if strings.Contains(strings.ToLower(k.Attrs["aria-label"]), want) ||
			strings.Contains(strings.ToLower(k.Content), want) {
			return k, nil
		}
	}
	return nil, fmt.Errorf("%w: role %s %q", browser.ErrNotFound, role, name)
}

func (n *Node) Visible() bool { return !n.Hidden }

func (n *Node) Click() error {
	if n.ClickErr != nil {
		return n.ClickErr
	}
	n.mu.Lock()
	n.clicks++
	n.mu.Unlock()
	if n.OnClick != nil {
		n.OnClick()
	}
	return nil
}

func (n *Node) Fill(text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.filled = append(n.filled, text)
	return nil
}

func (n *Node) PressEnter() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entered++
	return nil
}

func (n *Node) Attribute(name string) (string, bool, error) {
	v, ok := n.Attrs[name]
	return v, ok, nil
}

func (n *Node) Text() (string, error) {
	if n.TextErr != nil {
		return "", n.TextErr
	}
	return n.Content, nil
}

func (n *Node) ScrollIntoView() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inView = true
	return nil
}

func (n *Node) ScrollBy(dy int) error {
	if n.ScrollErr != nil {
		return n.ScrollErr
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scrolls = append(n.scrolls, dy)
	return nil
}

func (n *Node) Box() (browser.Rect, error) {
	if n.BoxErr != nil {
		return browser.Rect{}, n.BoxErr
	}
	return n.Rect, nil
}

func (n *Node) Screenshot(path string) error {
	if n.ScreenshotErr != nil {
		return n.ScreenshotErr
	}
	if err := browser.WriteFile(path, PNG); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shotPaths = append(n.shotPaths, path)
	return nil
}

// Clicks returns how many times the node was clicked.
func (n *Node) Clicks() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.clicks
}

// Filled returns every value typed into the node.
func (n *Node) Filled() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.filled...)
}

// Entered returns how many times Enter was pressed on the node.
func (n *Node) Entered() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.entered
}

// Scrolls returns the ScrollBy deltas in call order.
func (n *Node) Scrolls() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int(nil), n.scrolls...)
}

// InView reports whether ScrollIntoView was called.
func (n *Node) InView() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.inView
}

// Shot records one page screenshot.
type Shot struct {
	Path string
	Clip *browser.Rect
	Full bool
}

// Page is a fake tab. Its DOM is the Root node; navigation runs Routes so
// tests can swap the DOM the way a real page load would.
type Page struct {
	Root       *Node
	CurrentURL string
	Content    string
	View       browser.Rect

	// Routes maps a URL prefix to a hook run after navigating there.
	Routes      map[string]func(p *Page)
	NavigateErr error
	ShotErr     error

	mu    sync.Mutex
	navs  []string
	shots []Shot
}

var _ browser.Page = (*Page)(nil)

// NewPage returns a fake page with an empty DOM and a 1280x900 viewport.
func NewPage() *Page {
	return &Page{
		Root: &Node{},
		View: browser.Rect{Width: 1280, Height: 900},
	}
}

func (p *Page) Find(selector string) (browser.Element, error) { return p.Root.Find(selector) }

func (p *Page) FindAll(selector string) ([]browser.Element, error) { return p.Root.FindAll(selector) }

func (p *Page) FindByText(selector, text string) (browser.Element, error) {
	return p.Root.FindByText(selector, text)
}

func (p *Page) FindByRole(role, name string) (browser.Element, error) {
	return p.Root.FindByRole(role, name)
}

func (p *Page) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	p.navs = append(p.navs, url)
	p.mu.Unlock()
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.CurrentURL = url
	var (
		hook    func(*Page)
		longest int
	)
	for prefix, h := range p.Routes {
		if strings.HasPrefix(url, prefix) && len(prefix) >= longest {
			hook, longest = h, len(prefix)
		}
	}
	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *Page) URL() string { return p.CurrentURL }

func (p *Page) HTML() (string, error) { return p.Content, nil }

func (p *Page) WaitVisible(_ context.Context, selector string, _ time.Duration) (browser.Element, error) {
	for _, k := range p.Root.Children[selector] {
		if k.Visible() {
			return k, nil
		}
	}
	return nil, fmt.Errorf("wait for %s: %w", selector, context.DeadlineExceeded)
}

func (p *Page) Screenshot(path string, clip *browser.Rect) error {
	return p.shoot(Shot{Path: path, Clip: clip})
}

func (p *Page) FullScreenshot(path string) error {
	return p.shoot(Shot{Path: path, Full: true})
}

func (p *Page) shoot(s Shot) error {
	if p.ShotErr != nil {
		return p.ShotErr
	}
	if err := browser.WriteFile(s.Path, PNG); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shots = append(p.shots, s)
	return nil
}

func (p *Page) Viewport() (browser.Rect, error) {
	if p.View.Empty() {
		return browser.Rect{}, errors.New("no viewport")
	}
	return p.View, nil
}

// Navigations returns every URL passed to Navigate.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navs...)
}

// Shots returns every page screenshot taken.
func (p *Page) Shots() []Shot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Shot(nil), p.shots...)
}

// Opener hands out a fixed page.
type Opener struct {
	Page *Page
	Err  error

	mu       sync.Mutex
	opened   []browser.PageOptions
	released int
}

var _ browser.Opener = (*Opener)(nil)

func (o *Opener) NewPage(_ context.Context, opts browser.PageOptions) (browser.Page, func(), error) {
	if o.Err != nil {
		return nil, nil, o.Err
	}
	o.mu.Lock()
	o.opened = append(o.opened, opts)
	o.mu.Unlock()
	var once sync.Once
	return o.Page, func() {
		once.Do(func() {
			o.mu.Lock()
			o.released++
			o.mu.Unlock()
		})
	}, nil
}

// Opened returns the options of every page handed out.
func (o *Opener) Opened() []browser.PageOptions {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]browser.PageOptions(nil), o.opened...)
}

// Released returns how many pages were released.
func (o *Opener) Released() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.released
}
