package card

import (
	"context"
	"errors"
	"image/png"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"review_bot/internal/browser/browsertest"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedNow() time.Time {
	return time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "empty", text: "", want: []string{""}},
		{name: "whitespace only", text: " \n\t ", want: []string{""}},
		{name: "short", text: "Great coffee.", want: []string{"Great coffee."}},
		{name: "collapses whitespace", text: "Great   coffee\n\nand  cake", want: []string{"Great coffee and cake"}},
		{
			name: "breaks between words",
			text: strings.Repeat("word ", 15),
			want: []string{
				strings.TrimSpace(strings.Repeat("word ", 11)),
				strings.TrimSpace(strings.Repeat("word ", 4)),
			},
		},
		{
			name: "splits long words",
			text: strings.Repeat("x", 130),
			want: []string{strings.Repeat("x", 58), strings.Repeat("x", 58), strings.Repeat("x", 14)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Wrap(tt.text, LineWidth)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Wrap mismatch (-want +got):\n%s", diff)
			}
			for _, line := range got {
				if n := len([]rune(line)); n > LineWidth {
					t.Errorf("line %q has %d characters", line, n)
				}
			}
		})
	}
}

func TestHeight(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty text keeps one line", text: "", want: 268},
		{name: "one line", text: "Lovely staff.", want: 268},
		{name: "three lines", text: strings.Repeat("abcdefghi ", 15), want: 244 + 3*24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Height(tt.text)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Height mismatch (-want +got):\n%s", diff)
			}
			if again := Height(tt.text); again != got {
				t.Errorf("Height not stable: %d then %d", got, again)
			}
		})
	}
}

func TestInitials(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "Sarah Mitchell", want: "SM"},
		{name: "anna maria lopez", want: "AM"},
		{name: "Ölaf", want: "Ö"},
		{name: "  ", want: "U"},
		{name: "", want: "U"},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, Initials(tt.name)); diff != "" {
			t.Errorf("Initials(%q) mismatch (-want +got):\n%s", tt.name, diff)
		}
	}
}

func TestStoreLabel(t *testing.T) {
	if diff := cmp.Diff("Tailor Works", storeLabel("Tailor Works")); diff != "" {
		t.Errorf("short label mismatch (-want +got):\n%s", diff)
	}
	exact := strings.Repeat("s", 29)
	if diff := cmp.Diff(exact, storeLabel(exact)); diff != "" {
		t.Errorf("29 character label mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(strings.Repeat("s", 28)+"…", storeLabel(strings.Repeat("s", 30))); diff != "" {
		t.Errorf("long label mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	for _, r := range []int{1, 5} {
		require.NoError(t, Card{Rating: r}.Validate())
	}
	for _, r := range []int{0, 6, -1} {
		require.Error(t, Card{Rating: r}.Validate())
	}
}

func TestRasterRender(t *testing.T) {
	tests := []struct {
		name string
		card Card
	}{
		{
			name: "empty body",
			card: Card{Name: "A. Smith", Rating: 5, Text: "", Date: "today", Store: "Tailor Works"},
		},
		{
			name: "long body and store",
			card: Card{
				Name:   "Sarah Mitchell",
				Rating: 4,
				Text:   strings.Repeat("Friendly staff and quick alterations. ", 8),
				Date:   "2 weeks ago",
				Store:  "A Very Long Store Name That Does Not Fit",
				Badge:  "Local Guide · 12 reviews",
			},
		},
	}

	r := NewRaster(discard())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName(fixedNow()))
			require.NoError(t, r.Render(context.Background(), tt.card, path))

			f, err := os.Open(path)
			require.NoError(t, err)
			defer f.Close()
			cfg, err := png.DecodeConfig(f)
			require.NoError(t, err)

			if diff := cmp.Diff(Width, cfg.Width); diff != "" {
				t.Errorf("width mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(Height(tt.card.Text), cfg.Height); diff != "" {
				t.Errorf("height mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadFontFallsBack(t *testing.T) {
	missing := []string{filepath.Join(t.TempDir(), "nope.ttf")}
	bad := filepath.Join(t.TempDir(), "bad.ttf")
	require.NoError(t, os.WriteFile(bad, []byte("not a font"), 0o600))

	f, src := loadFont(append(missing, bad), goregular.TTF)
	require.NotNil(t, f)
	if diff := cmp.Diff("builtin", src); diff != "" {
		t.Errorf("font source mismatch (-want +got):\n%s", diff)
	}
}

type fakeBackend struct {
	name     string
	unavail  error
	err      error
	rendered []string
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Available(context.Context) error { return b.unavail }

func (b *fakeBackend) Render(_ context.Context, _ Card, path string) error {
	if b.err != nil {
		return b.err
	}
	b.rendered = append(b.rendered, path)
	return nil
}

func TestRendererFallback(t *testing.T) {
	tests := []struct {
		name     string
		backends []*fakeBackend
		wantBy   string
		wantErr  bool
	}{
		{
			name:     "first backend wins",
			backends: []*fakeBackend{{name: "template"}, {name: "raster"}},
			wantBy:   "template",
		},
		{
			name:     "unavailable backend skipped",
			backends: []*fakeBackend{{name: "template", unavail: errors.New("no browser")}, {name: "raster"}},
			wantBy:   "raster",
		},
		{
			name:     "failing backend skipped",
			backends: []*fakeBackend{{name: "template", err: errors.New("crashed")}, {name: "raster"}},
			wantBy:   "raster",
		},
		{
			name: "all fail",
			backends: []*fakeBackend{
				{name: "template", unavail: errors.New("no browser")},
				{name: "raster", err: errors.New("disk full")},
			},
			wantErr: true,
		},
		{
			name:    "no backends",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			var backends []Backend
			for _, b := range tt.backends {
				backends = append(backends, b)
			}
			r := NewRenderer(dir, discard(), backends...)
			r.now = fixedNow

			path, err := r.Render(context.Background(), Card{Name: "A", Rating: 5})
			if tt.wantErr {
				require.ErrorIs(t, err, ErrNoBackend)
				return
			}
			require.NoError(t, err)
			want := filepath.Join(dir, "review_card_20250203_040506.png")
			if diff := cmp.Diff(want, path); diff != "" {
				t.Errorf("path mismatch (-want +got):\n%s", diff)
			}
			for _, b := range tt.backends {
				rendered := len(b.rendered) > 0
				if rendered != (b.name == tt.wantBy) {
					t.Errorf("backend %s rendered = %v", b.name, rendered)
				}
			}
		})
	}
}

func TestRendererNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	b := &fakeBackend{name: "raster"}
	r := NewRenderer(dir, discard(), b)
	r.now = fixedNow

	var got []string
	for i := 0; i < 3; i++ {
		path, err := r.Render(context.Background(), Card{Name: "A", Rating: 5})
		require.NoError(t, err)
		got = append(got, filepath.Base(path))
	}

	want := []string{
		"review_card_20250203_040506.png",
		"review_card_20250203_040506_2.png",
		"review_card_20250203_040506_3.png",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestRendererFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer(dir, discard(), &fakeBackend{name: "raster", err: errors.New("disk full")})
	r.now = fixedNow

	_, err := r.Render(context.Background(), Card{Name: "A", Rating: 5})
	require.ErrorIs(t, err, ErrNoBackend)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	if diff := cmp.Diff(0, len(entries)); diff != "" {
		t.Errorf("files left behind (-want +got):\n%s", diff)
	}
}

func TestRendererRejectsBadRating(t *testing.T) {
	b := &fakeBackend{name: "raster"}
	_, err := NewRenderer(t.TempDir(), discard(), b).Render(context.Background(), Card{Rating: 7})
	require.Error(t, err)
	if len(b.rendered) != 0 {
		t.Error("backend ran for an invalid card")
	}
}

func TestTemplateURL(t *testing.T) {
	c := Card{Name: "Sarah M.", Rating: 5, Text: "Great & fast!", Date: "1 week ago", Store: "Tailor Works"}
	raw := TemplateURL("/opt/cards/review_card.html", c)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	if diff := cmp.Diff("file", u.Scheme); diff != "" {
		t.Errorf("scheme mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("/opt/cards/review_card.html", u.Path); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
	want := url.Values{
		"name":   {"Sarah M."},
		"rating": {"5"},
		"text":   {"Great & fast!"},
		"date":   {"1 week ago"},
		"store":  {"Tailor Works"},
	}
	if diff := cmp.Diff(want, u.Query()); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}

	c.Badge = "Owner"
	u, err = url.Parse(TemplateURL("/opt/cards/review_card.html", c))
	require.NoError(t, err)
	if diff := cmp.Diff("Owner", u.Query().Get("badge")); diff != "" {
		t.Errorf("badge mismatch (-want +got):\n%s", diff)
	}
}

func TestTemplateRender(t *testing.T) {
	t.Run("card element", func(t *testing.T) {
		page := browsertest.NewPage()
		el := &browsertest.Node{Label: "card"}
		page.Routes = map[string]func(*browsertest.Page){
			"file://": func(p *browsertest.Page) { p.Root = (&browsertest.Node{}).Add("#review-card", el) },
		}
		opener := &browsertest.Opener{Page: page}
		tmpl := NewTemplate("", SharedOpener(opener), discard())
		tmpl.pause = func(context.Context, time.Duration) {}

		require.NoError(t, tmpl.Available(context.Background()))
		path := filepath.Join(t.TempDir(), "card.png")
		require.NoError(t, tmpl.Render(context.Background(), Card{Name: "A. Smith", Rating: 5}, path))

		_, err := os.Stat(path)
		require.NoError(t, err)
		if diff := cmp.Diff(0, len(page.Shots())); diff != "" {
			t.Errorf("page shots mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(1, opener.Released()); diff != "" {
			t.Errorf("released mismatch (-want +got):\n%s", diff)
		}
		opened := opener.Opened()
		require.Len(t, opened, 1)
		if diff := cmp.Diff(700, opened[0].Width); diff != "" {
			t.Errorf("viewport width mismatch (-want +got):\n%s", diff)
		}
		navs := page.Navigations()
		require.Len(t, navs, 1)
		require.True(t, strings.HasPrefix(navs[0], "file://"))
		tmp := strings.TrimPrefix(strings.SplitN(navs[0], "?", 2)[0], "file://")
		if _, err := os.Stat(tmp); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("temporary template left behind: %v", err)
		}
	})

	t.Run("full page without card element", func(t *testing.T) {
		page := browsertest.NewPage()
		tmpl := NewTemplate("", SharedOpener(&browsertest.Opener{Page: page}), discard())
		tmpl.pause = func(context.Context, time.Duration) {}

		path := filepath.Join(t.TempDir(), "card.png")
		require.NoError(t, tmpl.Render(context.Background(), Card{Rating: 3}, path))
		shots := page.Shots()
		require.Len(t, shots, 1)
		require.True(t, shots[0].Full)
	})

	t.Run("open fails", func(t *testing.T) {
		tmpl := NewTemplate("", SharedOpener(&browsertest.Opener{Err: errors.New("no chromium")}), discard())
		require.Error(t, tmpl.Render(context.Background(), Card{Rating: 5}, filepath.Join(t.TempDir(), "x.png")))
	})
}

func TestTemplateAvailable(t *testing.T) {
	open := SharedOpener(&browsertest.Opener{Page: browsertest.NewPage()})

	require.Error(t, NewTemplate("", nil, discard()).Available(context.Background()))
	require.Error(t, NewTemplate(filepath.Join(t.TempDir(), "missing.html"), open, discard()).Available(context.Background()))

	custom := filepath.Join(t.TempDir(), "custom.html")
	require.NoError(t, os.WriteFile(custom, defaultTemplate, 0o600))
	require.NoError(t, NewTemplate(custom, open, discard()).Available(context.Background()))
}

func TestEmbeddedTemplate(t *testing.T) {
	html := string(defaultTemplate)
	for _, want := range []string{`id="review-card"`, "URLSearchParams", "Local Guide"} {
		if !strings.Contains(html, want) {
			t.Errorf("template missing %q", want)
		}
	}
}
