// Package discovery finds the best capturable review on a map listing.
package discovery

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"review_bot/internal/browser"
	"review_bot/internal/dupindex"
	"review_bot/internal/locate"
)

// SearchURL is the text-search endpoint used when the listing URL does not
// land on a place page.
const SearchURL = "https://www.google.com/maps/search/"

const (
	defaultMaxCards    = 20
	defaultScrollSteps = 5
	defaultScrollStep  = 600
	navigateTimeout    = 60 * time.Second

	minRating     = 4
	minTextLength = 10
)

// Listing DOM contract. Every logical field has an ordered fallback chain.
var (
	placeName = locate.Chain{locate.CSS(".DUwDvf"), locate.CSS("h1.DUwDvf")}

	searchResults = []string{".Nv2PK", "a.hfpxzc"}

	reviewsTab = locate.Chain{
		locate.Role("tab", "Reviews"),
		locate.Text(`[role="tab"]`, "Reviews"),
		locate.Text(`button[role="tab"]`, "Reviews"),
		locate.Text("button", "Reviews"),
	}

	scrollPanel = locate.Chain{
		locate.CSS(".DxyBCb"),
		locate.CSS("div.m6QErb.DxyBCb").Taller(200),
		locate.CSS(".m6QErb").Taller(200),
	}

	consentButtons = locate.Texts("button", "Accept all", "Reject all")

	reviewCard   = "div.jftiEf"
	cardRating   = locate.Chain{locate.CSS(".kvMYJc"), locate.CSS(`span[aria-label*="star"]`)}
	cardText     = locate.Chain{locate.CSS(".wiI7pd")}
	cardReviewer = locate.Chain{locate.CSS(".d4r55")}
	cardDate     = locate.Chain{locate.CSS(".rsqaWe")}
)

// Candidate is a review extracted from the listing. Element is only valid
// for the page it came from.
type Candidate struct {
	Rating  int
	Text    string
	Name    string
	Date    string
	Element browser.Element
}

// Length is the text length in characters.
func (c Candidate) Length() int {
	return utf8.RuneCountInString(c.Text)
}

// Better reports whether a sorts before b: higher rating first, then
// longer text.
func Better(a, b Candidate) bool {
	if a.Rating != b.Rating {
		return a.Rating > b.Rating
	}
	return a.Length() > b.Length()
}

// Checker reports whether review text was already captured.
type Checker interface {
	Check(text string) dupindex.Match
}

// Options configures an Engine.
type Options struct {
	ListingURL  string
	SearchQuery string
	MaxCards    int
	ScrollSteps int
	ScrollStep  int
	// Snapshot, when set, is called at the "place_page" and
	// "reviews_loaded" checkpoints.
	Snapshot func(page browser.Page, stage string)
}

// Engine drives one discovery pass over a page.
type Engine struct {
	opts  Options
	dup   Checker
	log   *slog.Logger
	pause func(ctx context.Context, d time.Duration)
}

// New returns an Engine that skips reviews dup already knows.
func New(opts Options, dup Checker, log *slog.Logger) *Engine {
	if opts.MaxCards <= 0 {
		opts.MaxCards = defaultMaxCards
	}
	if opts.ScrollSteps <= 0 {
		opts.ScrollSteps = defaultScrollSteps
	}
	if opts.ScrollStep <= 0 {
		opts.ScrollStep = defaultScrollStep
	}
	return &Engine{opts: opts, dup: dup, log: log, pause: browser.Pause}
}

// Discover runs a full pass: open the place, open its reviews, load more
// entries and pick the best eligible one.
func (e *Engine) Discover(ctx context.Context, page browser.Page) (Candidate, bool) {
	if _, ok := e.OpenPlace(ctx, page); !ok {
		return Candidate{}, false
	}
	e.snapshot(page, "place_page")
	if !e.OpenReviews(ctx, page) {
		return Candidate{}, false
	}
	e.LoadMore(ctx, page)
	e.snapshot(page, "reviews_loaded")
	return e.Best(page)
}

func (e *Engine) snapshot(page browser.Page, stage string) {
	if e.opts.Snapshot != nil {
		e.opts.Snapshot(page, stage)
	}
}

// SearchURLFor builds the text-search URL for query.
func SearchURLFor(query string) string {
	return SearchURL + strings.ReplaceAll(url.PathEscape(query), "%20", "+")
}

// OpenPlace navigates to the listing, falling back to a text search, and
// returns the place name shown.
func (e *Engine) OpenPlace(ctx context.Context, page browser.Page) (string, bool) {
	e.log.Info("navigate listing", "url", e.opts.ListingURL)
	if err := e.navigate(ctx, page, e.opts.ListingURL); err != nil {
		e.log.Warn("navigate listing", "error", err)
	}
	e.pause(ctx, 4*time.Second)
	e.dismissConsent(ctx, page)

	if name, ok := e.placeName(page); ok {
		e.log.Info("place found", "name", name)
		return name, true
	}

	if e.opts.SearchQuery == "" {
		return "", false
	}
	target := SearchURLFor(e.opts.SearchQuery)
	e.log.Info("place not found, trying search", "url", target)
	if err := e.navigate(ctx, page, target); err != nil {
		e.log.Warn("navigate search", "error", err)
		return "", false
	}
	e.pause(ctx, 4*time.Second)

	for _, sel := range searchResults {
		results, err := page.FindAll(sel)
		if err != nil || len(results) == 0 {
			continue
		}
		if err := results[0].Click(); err != nil {
			e.log.Debug("open search result", "selector", sel, "error", err)
			continue
		}
		e.pause(ctx, 4*time.Second)
		break
	}

	name, ok := e.placeName(page)
	if ok {
		e.log.Info("place found via search", "name", name)
	}
	return name, ok
}

func (e *Engine) navigate(ctx context.Context, page browser.Page, target string) error {
	ctx, cancel := context.WithTimeout(ctx, navigateTimeout)
	defer cancel()
	return page.Navigate(ctx, target)
}

func (e *Engine) dismissConsent(ctx context.Context, page browser.Page) {
	m, err := consentButtons.FirstVisible(page)
	if err != nil {
		return
	}
	if err := m.Element.Click(); err == nil {
		e.log.Debug("consent dismissed", "strategy", m.Strategy.String())
		e.pause(ctx, 2*time.Second)
	}
}

func (e *Engine) placeName(page browser.Page) (string, bool) {
	m, err := placeName.First(page)
	if err != nil {
		return "", false
	}
	name, err := m.Element.Text()
	if err != nil {
		return "", true
	}
	return strings.TrimSpace(name), true
}

// OpenReviews clicks the Reviews tab.
func (e *Engine) OpenReviews(ctx context.Context, page browser.Page) bool {
	m, err := reviewsTab.FirstVisible(page)
	if err != nil {
		e.log.Warn("reviews tab not found")
		return false
	}
	if err := m.Element.Click(); err != nil {
		e.log.Warn("click reviews tab", "strategy", m.Strategy.String(), "error", err)
		return false
	}
	e.log.Info("reviews tab opened", "strategy", m.Strategy.String())
	e.pause(ctx, 3*time.Second)
	return true
}

// LoadMore scrolls the reviews panel to lazily load more entries. It is
// best effort and stops at the first scroll error.
func (e *Engine) LoadMore(ctx context.Context, page browser.Page) {
	m, err := scrollPanel.First(page)
	if err != nil {
		e.log.Debug("scroll panel not found")
		return
	}
	for i := 0; i < e.opts.ScrollSteps; i++ {
		if err := m.Element.ScrollBy(e.opts.ScrollStep); err != nil {
			e.log.Debug("scroll reviews", "step", i, "error", err)
			break
		}
		e.pause(ctx, 800*time.Millisecond)
	}
	e.pause(ctx, 2*time.Second)
}

// Extract parses up to MaxCards review cards. A field that cannot be read
// keeps its zero value.
func (e *Engine) Extract(page browser.Page) []Candidate {
	cards, err := page.FindAll(reviewCard)
	if err != nil {
		e.log.Warn("list review cards", "error", err)
		return nil
	}
	e.log.Info("review cards found", "count", len(cards))
	if len(cards) > e.opts.MaxCards {
		cards = cards[:e.opts.MaxCards]
	}

	out := make([]Candidate, 0, len(cards))
	for _, card := range cards {
		c := Candidate{
			Rating:  readRating(card),
			Text:    readText(card, cardText),
			Name:    readText(card, cardReviewer),
			Date:    readText(card, cardDate),
			Element: card,
		}
		e.log.Debug("review card", "rating", c.Rating, "name", c.Name, "chars", c.Length())
		out = append(out, c)
	}
	return out
}

// Select keeps the eligible, non-duplicate candidates and returns the best.
func (e *Engine) Select(cards []Candidate) (Candidate, bool) {
	var eligible []Candidate
	for _, c := range cards {
		if c.Rating < minRating || c.Length() <= minTextLength {
			continue
		}
		if m := e.dup.Check(c.Text); m.Duplicate {
			e.log.Debug("skipping duplicate", "uid", m.UID, "status", m.Status)
			continue
		}
		eligible = append(eligible, c)
	}
	if len(eligible) == 0 {
		return Candidate{}, false
	}
	sort.SliceStable(eligible, func(i, j int) bool { return Better(eligible[i], eligible[j]) })
	return eligible[0], true
}

// Best extracts the visible cards and selects one.
func (e *Engine) Best(page browser.Page) (Candidate, bool) {
	return e.Select(e.Extract(page))
}

var firstNumber = regexp.MustCompile(`\d+`)

// ParseRating reads the first integer of an aria-label like "5 stars".
// Values outside 1..5 are treated as undetermined.
func ParseRating(label string) int {
	m := firstNumber.FindString(label)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < 1 || n > 5 {
		return 0
	}
	return n
}

func readRating(card browser.Element) int {
	for _, s := range cardRating {
		el, err := s.Find(card)
		if err != nil {
			continue
		}
		label, ok, err := el.Attribute("aria-label")
		if err != nil || !ok {
			continue
		}
		if r := ParseRating(label); r > 0 {
			return r
		}
	}
	return 0
}

func readText(card browser.Element, chain locate.Chain) string {
	m, err := chain.First(card)
	if err != nil {
		return ""
	}
	t, err := m.Element.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(t)
}
