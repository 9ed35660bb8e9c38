package auth

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Outcome is the verdict of one classification pass.
type Outcome int

// Classification outcomes. Pending means the sign-in form is still up and
// the page should be checked again later.
const (
	Pending Outcome = iota
	Success
	Blocked
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Blocked:
		return "blocked"
	default:
		return "pending"
	}
}

// ParseOutcome reads a configured uncertain-login policy.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "success":
		return Success, nil
	case "blocked":
		return Blocked, nil
	}
	return Pending, fmt.Errorf("unknown login outcome %q, use success or blocked", s)
}

// Evidence is what the classifier sees of the page.
type Evidence struct {
	URL             string
	HTML            string
	PasswordVisible bool
	AvatarPresent   bool
	// AccountHint is a fragment of the account name expected on a
	// signed-in page, usually the email local part.
	AccountHint string
}

// facts are derived once per pass and shared by every rule.
type facts struct {
	Evidence
	url  string
	html string
	body string
	doc  *goquery.Document
}

func newFacts(ev Evidence) facts {
	f := facts{
		Evidence: ev,
		url:      strings.ToLower(ev.URL),
		html:     strings.ToLower(ev.HTML),
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(ev.HTML))
	if err == nil {
		f.doc = doc
		f.body = strings.ToLower(doc.Find("body").Text())
	}
	return f
}

// Rule is a named predicate over the evidence.
type Rule struct {
	Name  string
	Match func(f facts) (Outcome, bool)
}

// Verdict is the classification result and the rule that produced it.
type Verdict struct {
	Outcome Outcome
	Rule    string
}

var (
	blockedURLMarkers = []string{"/challenge/", "/interstitialpage", "/speedbump"}

	successURLMarkers = []string{
		"myaccount.google.com",
		"mail.google.com",
		"accounts.google.com/default",
		"accounts.google.com/signoutoptions",
		"google.com/maps",
	}

	signInURLMarkers = []string{
		"accounts.google.com/signin",
		"accounts.google.com/v3/signin",
		"challenge",
	}

	blockerTexts = []string{
		"2-step verification",
		"confirm your recovery phone",
		"unusual activity",
		"this device isn't recognized",
	}

	signedInTexts = []string{"sign out", "my account", "google account"}
)

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasBlocker(f facts) bool {
	if containsAny(f.html, blockerTexts) || containsAny(f.body, blockerTexts) {
		return true
	}
	if strings.Contains(f.html, "recaptcha") {
		return true
	}
	return f.doc != nil && f.doc.Find(".g-recaptcha, iframe[src*='recaptcha']").Length() > 0
}

func signedIn(f facts) bool {
	if containsAny(f.body, signedInTexts) {
		return true
	}
	hint := strings.ToLower(strings.TrimSpace(f.AccountHint))
	return hint != "" && strings.Contains(f.body, hint)
}

var defaultRules = []Rule{
	{Name: "password-visible", Match: func(f facts) (Outcome, bool) {
		return Pending, f.PasswordVisible
	}},
	{Name: "blocked-url", Match: func(f facts) (Outcome, bool) {
		return Blocked, containsAny(f.url, blockedURLMarkers)
	}},
	{Name: "success-url", Match: func(f facts) (Outcome, bool) {
		return Success, containsAny(f.url, successURLMarkers)
	}},
	{Name: "signin-url-with-avatar", Match: func(f facts) (Outcome, bool) {
		return Success, f.AvatarPresent && containsAny(f.url, signInURLMarkers)
	}},
	{Name: "blocker-content", Match: func(f facts) (Outcome, bool) {
		return Blocked, hasBlocker(f)
	}},
	{Name: "signed-in-content", Match: func(f facts) (Outcome, bool) {
		return Success, signedIn(f)
	}},
}

// RuleDefault names the fallback verdict taken when no rule matched.
const RuleDefault = "default"

// Classifier evaluates the rules in order; the first match wins.
type Classifier struct {
	rules     []Rule
	uncertain Outcome
}

// NewClassifier returns the standard rule set. uncertain is the verdict
// when no rule fires: Success is the optimistic policy, Blocked the
// conservative one.
func NewClassifier(uncertain Outcome) *Classifier {
	if uncertain != Blocked {
		uncertain = Success
	}
	return &Classifier{rules: defaultRules, uncertain: uncertain}
}

// Classify returns the verdict for ev.
func (c *Classifier) Classify(ev Evidence) Verdict {
	f := newFacts(ev)
	for _, r := range c.rules {
		if out, ok := r.Match(f); ok {
			return Verdict{Outcome: out, Rule: r.Name}
		}
	}
	return Verdict{Outcome: c.uncertain, Rule: RuleDefault}
}

// Settle classifies ev when there is no later pass to wait for. Rules that
// would answer Pending are skipped, so a form that never went away falls
// through to the remaining rules and then to the uncertain policy.
func (c *Classifier) Settle(ev Evidence) Verdict {
	f := newFacts(ev)
	for _, r := range c.rules {
		if out, ok := r.Match(f); ok && out != Pending {
			return Verdict{Outcome: out, Rule: r.Name}
		}
	}
	return Verdict{Outcome: c.uncertain, Rule: RuleDefault}
}

// Blocked reports whether a blocker signal is present, ignoring the
// success rules.
func (c *Classifier) Blocked(ev Evidence) bool {
	f := newFacts(ev)
	return containsAny(f.url, blockedURLMarkers) || hasBlocker(f)
}
