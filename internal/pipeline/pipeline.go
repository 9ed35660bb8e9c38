// Package pipeline runs one capture: sign in, find a review, screenshot it
// or render a stand-in card, and queue the result as a pending post.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"review_bot/internal/auth"
	"review_bot/internal/browser"
	"review_bot/internal/card"
	"review_bot/internal/discovery"
	"review_bot/internal/dupindex"
	"review_bot/internal/model"
	"review_bot/internal/queue"
)

// Synthetic review used when nothing on the listing can be captured.
const (
	FallbackText = "Great service and wonderful experience! " +
		"Highly professional team that really cares about the result. " +
		"Will definitely be coming back. Highly recommend!"
	FallbackName   = "A. Smith"
	FallbackRating = 5
	FallbackDate   = "2 weeks ago"
)

// Outcome is how a run ended.
type Outcome string

// Run outcomes.
const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFallback  Outcome = "fallback"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// Authenticator signs a page in.
type Authenticator interface {
	Login(ctx context.Context, page browser.Page, cred auth.Credentials) auth.Result
}

// Discoverer finds the best capturable review.
type Discoverer interface {
	Discover(ctx context.Context, page browser.Page) (discovery.Candidate, bool)
}

// Capturer screenshots a review element.
type Capturer interface {
	Capture(ctx context.Context, page browser.Page, el browser.Element, path string) bool
}

// Renderer draws a stand-in review card.
type Renderer interface {
	Render(ctx context.Context, c card.Card) (string, error)
}

// Deps are the collaborators of a run.
type Deps struct {
	Opener    browser.Opener
	Auth      Authenticator
	Discovery Discoverer
	Capture   Capturer
	Cards     Renderer
	Queue     *queue.Queue
	Index     discovery.Checker
	Log       *slog.Logger
}

// Options configure a run.
type Options struct {
	ScreenshotsDir string
	PlaceName      string
	Credentials    auth.Credentials
	SkipLogin      bool
	DebugShots     bool
	Page           browser.PageOptions
}

// Result describes a finished run.
type Result struct {
	Outcome  Outcome
	UID      string
	Status   model.Status
	Path     string
	Rating   int
	Reviewer string
	Text     string
	Login    *auth.Result
}

// OK reports whether the run ended without error.
func (r Result) OK() bool {
	return r.Outcome != OutcomeFailed && r.Outcome != ""
}

// ExitCode is the process exit status for r.
func (r Result) ExitCode() int {
	if r.OK() {
		return 0
	}
	return 1
}

// Summary is the human readable report printed after a run.
func (r Result) Summary() string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)
	b.WriteString(rule + "\n")
	switch r.Outcome {
	case OutcomeDuplicate:
		b.WriteString("Duplicate Review Detected\n")
		fmt.Fprintf(&b, "Existing Post: %s (status: %s)\n", r.UID, r.Status)
		fmt.Fprintf(&b, "Review: %s...\n", preview(r.Text))
		b.WriteString(rule + "\n")
		b.WriteString("Skipped - this review is already queued\n")
	case OutcomeSuccess, OutcomeFallback:
		label := "Completed"
		if r.Outcome == OutcomeSuccess {
			label = "Success"
		}
		fmt.Fprintf(&b, "%s (%s)\n", label, r.Outcome)
		fmt.Fprintf(&b, "Post ID: %s\n", r.UID)
		fmt.Fprintf(&b, "Rating: %d stars\n", r.Rating)
		fmt.Fprintf(&b, "Reviewer: %s\n", r.Reviewer)
		fmt.Fprintf(&b, "Screenshot: %s\n", r.Path)
		fmt.Fprintf(&b, "Review: %s...\n", preview(r.Text))
		b.WriteString(rule + "\n")
		b.WriteString("The post is now PENDING approval.\n")
	default:
		b.WriteString("Failed to capture review\n")
		b.WriteString(rule + "\n")
	}
	return b.String()
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= 80 {
		return text
	}
	return string([]rune(text)[:80])
}

// Runner executes capture runs.
type Runner struct {
	deps Deps
	opts Options
	log  *slog.Logger
	now  func() time.Time
}

// New returns a Runner.
func New(deps Deps, opts Options) *Runner {
	return &Runner{deps: deps, opts: opts, log: deps.Log, now: time.Now}
}

// LoadIndex builds the duplicate index from the current queue contents.
func LoadIndex(ctx context.Context, q *queue.Queue) (*dupindex.Index, error) {
	doc, err := q.Load(ctx)
	if err != nil {
		return nil, err
	}
	return dupindex.New(model.SourceGoogleMaps, doc.Posts), nil
}

// Run performs one capture. A run that produced no artifact returns an
// error along with a failed result; nothing is queued in that case.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	page, release, err := r.deps.Opener.NewPage(ctx, r.opts.Page)
	if err != nil {
		r.log.Error("open page", "error", err)
		return r.fallback(ctx, nil)
	}
	defer release()

	var login *auth.Result
	switch {
	case r.opts.SkipLogin:
		r.log.Info("skipping login", "reason", "disabled")
	case !r.opts.Credentials.Complete():
		r.log.Info("skipping login", "reason", "no credentials configured")
	default:
		res := r.deps.Auth.Login(ctx, page, r.opts.Credentials)
		login = &res
		if !res.OK() {
			r.log.Warn("login may have failed, continuing unauthenticated", "rule", res.Rule)
		}
	}

	cand, found := r.deps.Discovery.Discover(ctx, page)
	if found && cand.Text != "" {
		if m := r.deps.Index.Check(cand.Text); m.Duplicate {
			return Result{Outcome: OutcomeDuplicate, UID: m.UID, Status: m.Status, Text: cand.Text, Login: login}, nil
		}
		path := filepath.Join(r.opts.ScreenshotsDir, "gmap_review_"+browser.Timestamp(r.now())+".png")
		if r.deps.Capture.Capture(ctx, page, cand.Element, path) {
			res, err := r.enqueue(ctx, path, cand.Text, cand.Rating)
			if err != nil {
				return Result{Outcome: OutcomeFailed, Path: path, Login: login}, err
			}
			res.Outcome, res.Reviewer, res.Login = OutcomeSuccess, cand.Name, login
			return res, nil
		}
		r.log.Warn("no suitable review card captured")
	} else {
		r.log.Warn("no capturable review found")
		r.debugShot(page, "error")
	}

	// The stand-in card may need its own browser context; free this one first.
	release()
	return r.fallback(ctx, login)
}

func (r *Runner) fallback(ctx context.Context, login *auth.Result) (Result, error) {
	r.log.Info("falling back to rendered review card")
	if m := r.deps.Index.Check(FallbackText); m.Duplicate {
		return Result{Outcome: OutcomeDuplicate, UID: m.UID, Status: m.Status, Text: FallbackText, Login: login}, nil
	}

	path, err := r.deps.Cards.Render(ctx, card.Card{
		Name:   FallbackName,
		Rating: FallbackRating,
		Text:   FallbackText,
		Date:   FallbackDate,
		Store:  r.opts.PlaceName,
	})
	if err != nil {
		return Result{Outcome: OutcomeFailed, Login: login}, fmt.Errorf("render fallback card: %w", err)
	}

	res, err := r.enqueue(ctx, path, FallbackText, FallbackRating)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Path: path, Login: login}, err
	}
	res.Outcome, res.Reviewer, res.Login = OutcomeFallback, FallbackName, login
	return res, nil
}

func (r *Runner) enqueue(ctx context.Context, path, text string, rating int) (Result, error) {
	post, err := r.deps.Queue.Append(ctx, queue.Entry{Media: path, Text: text, Rating: rating})
	if err != nil {
		return Result{}, fmt.Errorf("queue post: %w", err)
	}
	return Result{UID: post.UID, Status: post.Status, Path: path, Rating: rating, Text: text}, nil
}

func (r *Runner) debugShot(page browser.Page, stage string) {
	if r.opts.DebugShots {
		DebugSnapshot(r.opts.ScreenshotsDir, r.log)(page, stage)
	}
}

// DebugSnapshot returns a hook that saves debug_<stage>.png viewport
// screenshots into dir.
func DebugSnapshot(dir string, log *slog.Logger) func(page browser.Page, stage string) {
	return func(page browser.Page, stage string) {
		path := filepath.Join(dir, "debug_"+stage+".png")
		if err := page.Screenshot(path, nil); err != nil {
			log.Debug("save debug screenshot", "path", path, "error", err)
			return
		}
		log.Debug("debug screenshot saved", "path", path)
	}
}
