package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"review_bot/internal/dupindex"
	"review_bot/internal/model"
	"review_bot/internal/storage"
)

var day = time.Date(2025, 7, 14, 10, 30, 0, 0, time.UTC)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	store := storage.NewJSONFile(filepath.Join(t.TempDir(), "posts.json"))
	q := New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	q.now = func() time.Time { return day }
	return q
}

func TestCaption(t *testing.T) {
	long := strings.Repeat("é", 160)
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "short text",
			text: "  Lovely staff and quick service.  ",
			want: "\"Lovely staff and quick service.\"\n\nThank you for sharing your experience!\n\nLink to our Google Map in comments.",
		},
		{
			name: "cut at limit",
			text: long,
			want: "\"" + strings.Repeat("é", 150) + "...\"\n\nThank you for sharing your experience!\n\nLink to our Google Map in comments.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Caption(tt.text)); diff != "" {
				t.Errorf("Caption mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNextUIDSequence(t *testing.T) {
	var posts []model.Post
	var got []string
	for k := 0; k < 4; k++ {
		uid := NextUID(posts, day)
		got = append(got, uid)
		posts = append(posts, model.Post{UID: uid})
	}
	want := []string{"tw-0714a", "tw-0714b", "tw-0714c", "tw-0714d"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("uid sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestNextUID(t *testing.T) {
	tests := []struct {
		name  string
		posts []string
		want  string
	}{
		{name: "empty store", want: "tw-0714a"},
		{name: "other days ignored", posts: []string{"tw-0713a", "tw-0713b"}, want: "tw-0714a"},
		{name: "k existing", posts: []string{"tw-0714a", "tw-0714b"}, want: "tw-0714c"},
		{name: "gap is not reused when free letter exists", posts: []string{"tw-0714a", "tw-0714c"}, want: "tw-0714d"},
		{name: "collision skipped", posts: []string{"tw-0714b"}, want: "tw-0714c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var posts []model.Post
			for _, uid := range tt.posts {
				posts = append(posts, model.Post{UID: uid})
			}
			if diff := cmp.Diff(tt.want, NextUID(posts, day)); diff != "" {
				t.Errorf("NextUID mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSequencePastZ(t *testing.T) {
	tests := map[int]string{0: "a", 25: "z", 26: "za", 27: "zb", 52: "zza"}
	for k, want := range tests {
		if got := sequence(k); got != want {
			t.Errorf("sequence(%d) = %q, want %q", k, got, want)
		}
	}
}

func TestAppend(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	post, err := q.Append(ctx, Entry{Media: "screenshots/gmap_review_20250714_103000.png", Text: "Fantastic team, would come again!", Rating: 5})
	require.NoError(t, err)

	want := model.Post{
		UID:              "tw-0714a",
		Status:           model.StatusPending,
		Media:            []string{"screenshots/gmap_review_20250714_103000.png"},
		UserDescription:  "Google Maps review screenshot (5 stars)",
		GeneratedContent: Caption("Fantastic team, would come again!"),
		Source:           model.SourceGoogleMaps,
		Rating:           5,
		CreatedAt:        model.NewTime(day),
	}
	if diff := cmp.Diff(want, *post); diff != "" {
		t.Errorf("Append mismatch (-want +got):\n%s", diff)
	}

	second, err := q.Append(ctx, Entry{Media: "b.png", Text: "Second", Rating: 4})
	require.NoError(t, err)
	if diff := cmp.Diff("tw-0714b", second.UID); diff != "" {
		t.Errorf("second uid mismatch (-want +got):\n%s", diff)
	}

	all, err := q.List(ctx, "")
	require.NoError(t, err)
	if diff := cmp.Diff(2, len(all)); diff != "" {
		t.Errorf("stored count mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendedCaptionIsDuplicate(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	texts := []string{
		"Great service! Highly recommend.",
		strings.Repeat("Friendly staff, spotless rooms and a great breakfast. ", 5),
		`They called it "the best haircut in town" and they were right.`,
	}
	for _, text := range texts {
		_, err := q.Append(ctx, Entry{Media: "x.png", Text: text, Rating: 5})
		require.NoError(t, err)
	}

	doc, err := q.Load(ctx)
	require.NoError(t, err)
	ix := dupindex.New(model.SourceGoogleMaps, doc.Posts)

	for i, text := range texts {
		m := ix.Check(text)
		if !m.Duplicate {
			t.Errorf("text %d not reported as duplicate after being stored", i)
			continue
		}
		if diff := cmp.Diff(doc.Posts[i].UID, m.UID); diff != "" {
			t.Errorf("text %d matched wrong post (-want +got):\n%s", i, diff)
		}
	}
}

func TestApproveAndMarkPosted(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	post, err := q.Append(ctx, Entry{Media: "a.png", Text: "Wonderful experience overall", Rating: 5})
	require.NoError(t, err)

	_, err = q.MarkPosted(ctx, post.UID, "", "")
	require.Error(t, err)

	at := day.Add(2 * time.Hour)
	approved, err := q.Approve(ctx, post.UID, &at)
	require.NoError(t, err)
	if diff := cmp.Diff(model.StatusApproved, approved.Status); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
	require.NotNil(t, approved.ApprovedAt)
	require.NotNil(t, approved.ScheduledAt)
	if !approved.ScheduledAt.Equal(at) {
		t.Errorf("scheduledAt = %v, want %v", approved.ScheduledAt, at)
	}

	_, err = q.Approve(ctx, post.UID, nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("re-approve: expected ErrInvalidTransition, got %v", err)
	}

	posted, err := q.MarkPosted(ctx, post.UID, "1899", "https://x.com/i/status/1899")
	require.NoError(t, err)
	if diff := cmp.Diff("1899", *posted.TweetID); diff != "" {
		t.Errorf("tweet id mismatch (-want +got):\n%s", diff)
	}

	_, err = q.MarkPosted(ctx, post.UID, "1900", "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("re-post: expected ErrInvalidTransition, got %v", err)
	}

	_, err = q.Approve(ctx, "tw-0101z", nil)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing uid: expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentWritersKeepEveryChange(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	const n = 20
	var pending, approved []string
	for i := 0; i < 2*n; i++ {
		p, err := q.Append(ctx, Entry{Media: "a.png", Text: fmt.Sprintf("Visit number %d was great", i), Rating: 5})
		require.NoError(t, err)
		if i%2 == 0 {
			pending = append(pending, p.UID)
			continue
		}
		_, err = q.Approve(ctx, p.UID, nil)
		require.NoError(t, err)
		approved = append(approved, p.UID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, uid := range pending {
			if _, err := q.Approve(ctx, uid, nil); err != nil {
				errs <- err
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i, uid := range approved {
			if _, err := q.MarkPosted(ctx, uid, fmt.Sprint(1000+i), fmt.Sprintf("https://x.com/i/status/%d", 1000+i)); err != nil {
				errs <- err
			}
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	posts, err := q.List(ctx, "")
	require.NoError(t, err)
	got := make(map[model.Status]int)
	for _, p := range posts {
		got[p.Status]++
	}
	want := map[model.Status]int{model.StatusApproved: n, model.StatusPosted: n}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("status counts mismatch (-want +got):\n%s", diff)
	}
}

func TestDue(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	var uids []string
	for i := 0; i < 4; i++ {
		p, err := q.Append(ctx, Entry{Media: "a.png", Text: strings.Repeat("x", 20+i), Rating: 5})
		require.NoError(t, err)
		uids = append(uids, p.UID)
	}

	past := day.Add(-time.Hour)
	future := day.Add(time.Hour)
	_, err := q.Approve(ctx, uids[0], nil)
	require.NoError(t, err)
	_, err = q.Approve(ctx, uids[1], &past)
	require.NoError(t, err)
	_, err = q.Approve(ctx, uids[2], &future)
	require.NoError(t, err)
	// uids[3] stays pending.

	due, err := q.Due(ctx, day)
	require.NoError(t, err)
	var got []string
	for _, p := range due {
		got = append(got, p.UID)
	}
	if diff := cmp.Diff([]string{uids[0], uids[1]}, got); diff != "" {
		t.Errorf("due mismatch (-want +got):\n%s", diff)
	}
}
