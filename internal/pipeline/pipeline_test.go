package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"review_bot/internal/auth"
	"review_bot/internal/browser"
	"review_bot/internal/browser/browsertest"
	"review_bot/internal/card"
	"review_bot/internal/discovery"
	"review_bot/internal/model"
	"review_bot/internal/queue"
	"review_bot/internal/storage"
)

type fakeAuth struct {
	res   auth.Result
	calls int
}

func (a *fakeAuth) Login(context.Context, browser.Page, auth.Credentials) auth.Result {
	a.calls++
	return a.res
}

type fakeDiscovery struct {
	cand  discovery.Candidate
	found bool
}

func (d *fakeDiscovery) Discover(context.Context, browser.Page) (discovery.Candidate, bool) {
	return d.cand, d.found
}

type fakeCapture struct {
	ok    bool
	paths []string
}

func (c *fakeCapture) Capture(_ context.Context, _ browser.Page, _ browser.Element, path string) bool {
	c.paths = append(c.paths, path)
	if c.ok {
		_ = browser.WriteFile(path, browsertest.PNG)
	}
	return c.ok
}

type fakeRenderer struct {
	dir    string
	err    error
	cards  []card.Card
	before func()
}

func (r *fakeRenderer) Render(_ context.Context, c card.Card) (string, error) {
	if r.before != nil {
		r.before()
	}
	r.cards = append(r.cards, c)
	if r.err != nil {
		return "", r.err
	}
	return filepath.Join(r.dir, "review_card_20250203_040506.png"), nil
}

type harness struct {
	dir      string
	opener   *browsertest.Opener
	auth     *fakeAuth
	disc     *fakeDiscovery
	capture  *fakeCapture
	renderer *fakeRenderer
	queue    *queue.Queue
	opts     Options
}

func newHarness(t *testing.T, posts ...model.Post) *harness {
	t.Helper()
	dir := t.TempDir()
	store := storage.NewJSONFile(filepath.Join(dir, "posts.json"))
	if len(posts) > 0 {
		require.NoError(t, store.Save(context.Background(), &model.Document{Posts: posts}))
	}
	return &harness{
		dir:      dir,
		opener:   &browsertest.Opener{Page: browsertest.NewPage()},
		auth:     &fakeAuth{res: auth.Result{Outcome: auth.Success, Rule: "success-url"}},
		disc:     &fakeDiscovery{},
		capture:  &fakeCapture{ok: true},
		renderer: &fakeRenderer{dir: dir},
		queue:    queue.New(store, slog.New(slog.NewTextHandler(io.Discard, nil))),
		opts:     Options{ScreenshotsDir: dir, PlaceName: "Tailor Works"},
	}
}

func (h *harness) run(t *testing.T) (Result, error) {
	t.Helper()
	idx, err := LoadIndex(context.Background(), h.queue)
	require.NoError(t, err)
	r := New(Deps{
		Opener:    h.opener,
		Auth:      h.auth,
		Discovery: h.disc,
		Capture:   h.capture,
		Cards:     h.renderer,
		Queue:     h.queue,
		Index:     idx,
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, h.opts)
	r.now = func() time.Time { return time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC) }
	return r.Run(context.Background())
}

func (h *harness) posts(t *testing.T) []model.Post {
	t.Helper()
	posts, err := h.queue.List(context.Background(), "")
	require.NoError(t, err)
	return posts
}

func TestRunCapturesReview(t *testing.T) {
	h := newHarness(t)
	h.disc.cand = discovery.Candidate{Rating: 5, Text: "Superb tailoring, done in two days.", Name: "Jane D.", Element: &browsertest.Node{}}
	h.disc.found = true

	res, err := h.run(t)
	require.NoError(t, err)

	wantPath := filepath.Join(h.dir, "gmap_review_20250203_040506.png")
	if diff := cmp.Diff(OutcomeSuccess, res.Outcome); diff != "" {
		t.Errorf("outcome mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantPath, res.Path); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("Jane D.", res.Reviewer); diff != "" {
		t.Errorf("reviewer mismatch (-want +got):\n%s", diff)
	}
	if len(h.renderer.cards) != 0 {
		t.Error("renderer used although capture succeeded")
	}

	posts := h.posts(t)
	require.Len(t, posts, 1)
	p := posts[0]
	if diff := cmp.Diff([]string{wantPath}, p.Media); diff != "" {
		t.Errorf("media mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(model.StatusPending, p.Status); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(res.UID, p.UID); diff != "" {
		t.Errorf("uid mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(queue.Caption("Superb tailoring, done in two days."), p.GeneratedContent); diff != "" {
		t.Errorf("caption mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, h.opener.Released()); diff != "" {
		t.Errorf("released mismatch (-want +got):\n%s", diff)
	}
}

func TestRunFallsBackToRenderedCard(t *testing.T) {
	tests := []struct {
		name  string
		found bool
		shot  bool
	}{
		{name: "nothing found"},
		{name: "capture failed", found: true, shot: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.opts.DebugShots = true
			h.disc.found = tt.found
			h.disc.cand = discovery.Candidate{Rating: 5, Text: "Wonderful fitting service.", Element: &browsertest.Node{}}
			h.capture.ok = tt.shot
			releasedBeforeRender := -1
			h.renderer.before = func() { releasedBeforeRender = h.opener.Released() }

			res, err := h.run(t)
			require.NoError(t, err)

			if diff := cmp.Diff(OutcomeFallback, res.Outcome); diff != "" {
				t.Errorf("outcome mismatch (-want +got):\n%s", diff)
			}
			want := []card.Card{{Name: FallbackName, Rating: 5, Text: FallbackText, Date: FallbackDate, Store: "Tailor Works"}}
			if diff := cmp.Diff(want, h.renderer.cards); diff != "" {
				t.Errorf("rendered cards mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(1, releasedBeforeRender); diff != "" {
				t.Errorf("page not released before rendering (-want +got):\n%s", diff)
			}
			posts := h.posts(t)
			require.Len(t, posts, 1)
			if diff := cmp.Diff(FallbackRating, posts[0].Rating); diff != "" {
				t.Errorf("rating mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunDebugErrorShot(t *testing.T) {
	h := newHarness(t)
	h.opts.DebugShots = true

	_, err := h.run(t)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(h.dir, "debug_error.png"))
	require.NoError(t, err)
}

func TestRunFallbackDuplicate(t *testing.T) {
	existing := model.Post{
		UID:              "tw-0201a",
		Status:           model.StatusApproved,
		Source:           model.SourceGoogleMaps,
		GeneratedContent: queue.Caption(FallbackText),
		CreatedAt:        model.NewTime(time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)),
	}
	h := newHarness(t, existing)

	res, err := h.run(t)
	require.NoError(t, err)

	want := Result{Outcome: OutcomeDuplicate, UID: "tw-0201a", Status: model.StatusApproved, Text: FallbackText}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("Run mismatch (-want +got):\n%s", diff)
	}
	if len(h.renderer.cards) != 0 {
		t.Error("renderer used for a duplicate")
	}
	require.Len(t, h.posts(t), 1)
}

func TestRunCandidateDuplicate(t *testing.T) {
	text := "Superb tailoring, done in two days."
	existing := model.Post{
		UID:              "tw-0201a",
		Status:           model.StatusPosted,
		Source:           model.SourceGoogleMaps,
		GeneratedContent: queue.Caption(text),
		TweetID:          ptr("1"),
	}
	h := newHarness(t, existing)
	h.disc.found = true
	h.disc.cand = discovery.Candidate{Rating: 5, Text: text, Element: &browsertest.Node{}}

	res, err := h.run(t)
	require.NoError(t, err)
	if diff := cmp.Diff(OutcomeDuplicate, res.Outcome); diff != "" {
		t.Errorf("outcome mismatch (-want +got):\n%s", diff)
	}
	if len(h.capture.paths) != 0 {
		t.Error("duplicate review was captured")
	}
}

func TestRunRenderFailure(t *testing.T) {
	h := newHarness(t)
	h.renderer.err = card.ErrNoBackend

	res, err := h.run(t)
	require.ErrorIs(t, err, card.ErrNoBackend)
	if diff := cmp.Diff(OutcomeFailed, res.Outcome); diff != "" {
		t.Errorf("outcome mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, res.ExitCode()); diff != "" {
		t.Errorf("exit code mismatch (-want +got):\n%s", diff)
	}
	require.Empty(t, h.posts(t))
}

func TestRunOpenPageFailure(t *testing.T) {
	h := newHarness(t)
	h.opener.Err = errors.New("chromium not found")

	res, err := h.run(t)
	require.NoError(t, err)
	if diff := cmp.Diff(OutcomeFallback, res.Outcome); diff != "" {
		t.Errorf("outcome mismatch (-want +got):\n%s", diff)
	}
	if h.auth.calls != 0 {
		t.Error("login attempted without a page")
	}
}

func TestRunLogin(t *testing.T) {
	tests := []struct {
		name      string
		cred      auth.Credentials
		skip      bool
		res       auth.Result
		wantCalls int
	}{
		{name: "no credentials", wantCalls: 0},
		{name: "email only", cred: auth.Credentials{Email: "a@b.c"}, wantCalls: 0},
		{name: "skipped by flag", cred: auth.Credentials{Email: "a@b.c", Password: "pw"}, skip: true, wantCalls: 0},
		{name: "signed in", cred: auth.Credentials{Email: "a@b.c", Password: "pw"}, res: auth.Result{Outcome: auth.Success}, wantCalls: 1},
		{name: "blocked continues", cred: auth.Credentials{Email: "a@b.c", Password: "pw"}, res: auth.Result{Outcome: auth.Blocked, Rule: "blocked-url"}, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.opts.Credentials = tt.cred
			h.opts.SkipLogin = tt.skip
			h.auth.res = tt.res

			res, err := h.run(t)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.wantCalls, h.auth.calls); diff != "" {
				t.Errorf("login calls mismatch (-want +got):\n%s", diff)
			}
			if tt.wantCalls == 0 {
				require.Nil(t, res.Login)
				return
			}
			require.NotNil(t, res.Login)
			if diff := cmp.Diff(tt.res, *res.Login); diff != "" {
				t.Errorf("login result mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(OutcomeFallback, res.Outcome); diff != "" {
				t.Errorf("outcome mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name string
		res  Result
		want []string
	}{
		{
			name: "success",
			res:  Result{Outcome: OutcomeSuccess, UID: "tw-0203a", Rating: 5, Reviewer: "Jane", Path: "/s/x.png", Text: strings.Repeat("r", 100)},
			want: []string{"Success (success)", "Post ID: tw-0203a", "Rating: 5 stars", "Screenshot: /s/x.png", "Review: " + strings.Repeat("r", 80) + "...\n", "PENDING"},
		},
		{
			name: "fallback",
			res:  Result{Outcome: OutcomeFallback, UID: "tw-0203b", Rating: 5, Reviewer: FallbackName},
			want: []string{"Completed (fallback)", "Reviewer: A. Smith"},
		},
		{
			name: "duplicate",
			res:  Result{Outcome: OutcomeDuplicate, UID: "tw-0201a", Status: model.StatusPosted, Text: "Nice"},
			want: []string{"Duplicate Review Detected", "Existing Post: tw-0201a (status: Posted)"},
		},
		{
			name: "failed",
			res:  Result{Outcome: OutcomeFailed},
			want: []string{"Failed to capture review"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.res.Summary()
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("summary missing %q:\n%s", w, got)
				}
			}
		})
	}
}

func TestDebugSnapshot(t *testing.T) {
	dir := t.TempDir()
	page := browsertest.NewPage()
	DebugSnapshot(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))(page, "place_page")

	shots := page.Shots()
	require.Len(t, shots, 1)
	if diff := cmp.Diff(filepath.Join(dir, "debug_place_page.png"), shots[0].Path); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadIndexIgnoresOtherSources(t *testing.T) {
	h := newHarness(t,
		model.Post{UID: "tw-0101a", Status: model.StatusPending, Source: "manual", GeneratedContent: queue.Caption("x")},
		model.Post{UID: "tw-0101b", Status: model.StatusPending, Source: model.SourceGoogleMaps, GeneratedContent: queue.Caption("y")},
	)
	idx, err := LoadIndex(context.Background(), h.queue)
	require.NoError(t, err)
	if diff := cmp.Diff(1, idx.Len()); diff != "" {
		t.Errorf("index size mismatch (-want +got):\n%s", diff)
	}
}

func ptr[T any](v T) *T { return &v }
