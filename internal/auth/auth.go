// Package auth signs a browser page in to a Google account and decides,
// from what the page shows afterwards, whether the sign-in went through.
package auth

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"review_bot/internal/browser"
	"review_bot/internal/locate"
)

// SignInURL is the identity provider's sign-in entry point.
const SignInURL = "https://accounts.google.com/signin"

const (
	navigateTimeout = 30 * time.Second
	passwordTimeout = 15 * time.Second
	passwordField   = `input[type="password"]`
)

// State is the session's position in the sign-in lifecycle.
type State int

// Session states.
const (
	NotAuthenticated State = iota
	Authenticating
	Authenticated
	StateBlocked
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case StateBlocked:
		return "blocked"
	default:
		return "not-authenticated"
	}
}

// Credentials identify the account to sign in with.
type Credentials struct {
	Email    string
	Password string
}

// Complete reports whether both fields are set.
func (c Credentials) Complete() bool {
	return c.Email != "" && c.Password != ""
}

func (c Credentials) hint() string {
	local, _, _ := strings.Cut(c.Email, "@")
	return local
}

// Result is the outcome of a sign-in attempt.
type Result struct {
	Outcome Outcome
	// Rule names the classifier rule or flow step that decided the outcome.
	Rule string
	// Diagnostic is the screenshot saved for a blocked attempt, if any.
	Diagnostic string
}

// OK reports whether the sign-in succeeded.
func (r Result) OK() bool {
	return r.Outcome == Success
}

var (
	consentButtons = locate.Texts("button", "Accept all", "Reject all", "I agree")

	emailFields = locate.Chain{
		locate.CSS(`input[type="email"]`),
		locate.CSS("input#identifierId"),
	}

	nextButtons = append(
		locate.Texts("button", "Next", "Suivant", "Weiter", "Avanti"),
		locate.CSS("#identifierNext"),
		locate.CSS("#passwordNext"),
	)

	interstitials = []locate.Chain{
		locate.Texts("button", "Yes", "Not now", "No", "Skip"),
		locate.Texts("button", "Not now", "Done", "Confirm", "Skip"),
		locate.Texts("button", "Not now", "Done", "Remind me later"),
	}

	avatarSelector = `img[aria-label*="Account"], a[aria-label*="Account"], img[data-profile-identifier], header a[href*="SignOut"]`
)

// Options configures an Authenticator.
type Options struct {
	// DiagnosticsDir receives login_diag_* screenshots.
	DiagnosticsDir string
	// Uncertain is the verdict when no classifier rule fires.
	Uncertain Outcome
}

// Authenticator drives the sign-in flow on one page.
type Authenticator struct {
	classifier *Classifier
	diagDir    string
	log        *slog.Logger
	state      State

	now   func() time.Time
	pause func(ctx context.Context, d time.Duration)
}

// New returns an Authenticator in the not-authenticated state.
func New(opts Options, log *slog.Logger) *Authenticator {
	return &Authenticator{
		classifier: NewClassifier(opts.Uncertain),
		diagDir:    opts.DiagnosticsDir,
		log:        log,
		now:        time.Now,
		pause:      browser.Pause,
	}
}

// State returns the current session state.
func (a *Authenticator) State() State {
	return a.state
}

// Login runs the sign-in flow. It never retries; a blocked attempt saves a
// diagnostic screenshot and leaves the decision to continue to the caller.
func (a *Authenticator) Login(ctx context.Context, page browser.Page, cred Credentials) Result {
	a.state = Authenticating
	res := a.login(ctx, page, cred)
	if res.OK() {
		a.state = Authenticated
		a.log.Info("login succeeded", "rule", res.Rule, "url", page.URL())
	} else {
		a.state = StateBlocked
		a.log.Warn("login blocked", "rule", res.Rule, "url", page.URL(), "diagnostic", res.Diagnostic)
	}
	return res
}

func (a *Authenticator) login(ctx context.Context, page browser.Page, cred Credentials) Result {
	navCtx, cancel := context.WithTimeout(ctx, navigateTimeout)
	err := page.Navigate(navCtx, SignInURL)
	cancel()
	if err != nil {
		a.log.Error("navigate sign-in", "error", err)
		return a.blocked(page, "navigate", "exception")
	}
	a.pause(ctx, 2*time.Second)

	a.click(ctx, page, consentButtons, "consent")

	a.log.Debug("entering email")
	email, err := emailFields.First(page)
	if err != nil {
		return a.blocked(page, "no-email-field", "no_email_field")
	}
	if err := email.Element.Fill(cred.Email); err != nil {
		return a.blocked(page, "fill-email", "exception")
	}
	a.pause(ctx, 500*time.Millisecond)
	a.submit(ctx, page, email.Element)
	a.pause(ctx, 2*time.Second)

	a.log.Debug("waiting for password field")
	pw, err := page.WaitVisible(ctx, passwordField, passwordTimeout)
	if err != nil {
		if a.classifier.Blocked(a.evidence(page, cred)) {
			return a.blocked(page, "blocked-after-email", "blocked_after_email")
		}
		return a.blocked(page, "no-password-field", "no_password_field")
	}
	if err := pw.Fill(cred.Password); err != nil {
		return a.blocked(page, "fill-password", "exception")
	}
	a.pause(ctx, 500*time.Millisecond)
	a.submit(ctx, page, pw)
	a.pause(ctx, 4*time.Second)

	if v := a.classifier.Classify(a.evidence(page, cred)); v.Outcome == Blocked && v.Rule != RuleDefault {
		return a.blocked(page, v.Rule, "blocked_after_password")
	}

	for i, group := range interstitials {
		a.click(ctx, page, group, "interstitial")
		if i < len(interstitials)-1 {
			a.pause(ctx, time.Second)
		}
	}
	a.pause(ctx, time.Second)

	v := a.classifier.Settle(a.evidence(page, cred))
	if v.Outcome == Success {
		return Result{Outcome: Success, Rule: v.Rule}
	}
	label := "blocked_final"
	if v.Rule == RuleDefault {
		label = "uncertain"
	}
	return a.blocked(page, v.Rule, label)
}

// click presses the first visible button of chain, if any.
func (a *Authenticator) click(ctx context.Context, page browser.Page, chain locate.Chain, what string) bool {
	m, err := chain.FirstVisible(page)
	if err != nil {
		return false
	}
	if err := m.Element.Click(); err != nil {
		a.log.Debug("dismiss failed", "what", what, "strategy", m.Strategy.String(), "error", err)
		return false
	}
	a.log.Debug("dismissed", "what", what, "strategy", m.Strategy.String())
	a.pause(ctx, 1500*time.Millisecond)
	return true
}

// submit confirms a field with a next button, or Enter when none shows.
func (a *Authenticator) submit(ctx context.Context, page browser.Page, field browser.Element) {
	if a.click(ctx, page, nextButtons, "next") {
		return
	}
	if err := field.PressEnter(); err != nil {
		a.log.Debug("press enter", "error", err)
	}
}

func (a *Authenticator) evidence(page browser.Page, cred Credentials) Evidence {
	ev := Evidence{URL: page.URL(), AccountHint: cred.hint()}
	if html, err := page.HTML(); err == nil {
		ev.HTML = html
	}
	if el, err := page.Find(passwordField); err == nil {
		ev.PasswordVisible = el.Visible()
	}
	if _, err := page.Find(avatarSelector); err == nil {
		ev.AvatarPresent = true
	}
	return ev
}

func (a *Authenticator) blocked(page browser.Page, rule, label string) Result {
	return Result{Outcome: Blocked, Rule: rule, Diagnostic: a.diagnose(page, label)}
}

// diagnose saves a viewport screenshot for triage; failures are ignored.
func (a *Authenticator) diagnose(page browser.Page, label string) string {
	if a.diagDir == "" {
		return ""
	}
	name := "login_diag_" + label + "_" + browser.Timestamp(a.now()) + ".png"
	path := filepath.Join(a.diagDir, name)
	if err := page.Screenshot(path, nil); err != nil {
		a.log.Debug("save diagnostic", "path", path, "error", err)
		return ""
	}
	return path
}
