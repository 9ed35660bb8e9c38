// Package queue builds post records and moves them through their
// lifecycle in the post store.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"review_bot/internal/model"
	"review_bot/internal/storage"
)

// ErrInvalidTransition is returned when a status change would move a post
// backwards or sideways.
var ErrInvalidTransition = errors.New("invalid status transition")

// CaptionLimit is the number of review characters kept in a caption.
const CaptionLimit = model.CaptionLimit

const captionTail = "Thank you for sharing your experience!\n\nLink to our Google Map in comments."

// Caption renders review text in the first-person quote format.
func Caption(text string) string {
	text = strings.TrimSpace(text)
	if r := []rune(text); len(r) > CaptionLimit {
		text = string(r[:CaptionLimit]) + "..."
	}
	return "\"" + text + "\"\n\n" + captionTail
}

// UIDPrefix returns the uid prefix for posts created on day.
func UIDPrefix(day time.Time) string {
	return "tw-" + day.Format("0102")
}

// NextUID returns the next free uid for day. The k-th post of a day gets
// the letter 'a'+k; past 'z' a leading 'z' is repeated.
func NextUID(posts []model.Post, day time.Time) string {
	prefix := UIDPrefix(day)
	taken := make(map[string]bool)
	for _, p := range posts {
		if strings.HasPrefix(p.UID, prefix) {
			taken[p.UID] = true
		}
	}
	for k := len(taken); ; k++ {
		uid := prefix + sequence(k)
		if !taken[uid] {
			return uid
		}
	}
}

func sequence(k int) string {
	return strings.Repeat("z", k/26) + string(rune('a'+k%26))
}

// Entry is the data a capture run contributes to a new post.
type Entry struct {
	Media    string
	Text     string
	Rating   int
	PoolType string
}

// Queue is the post store seen as a publishing queue. Writes hold mu from
// Load to Save so concurrent writers in one process never save a stale
// document over each other.
type Queue struct {
	mu    sync.Mutex
	store storage.Store
	log   *slog.Logger
	now   func() time.Time
}

// New returns a queue backed by store.
func New(store storage.Store, log *slog.Logger) *Queue {
	return &Queue{store: store, log: log, now: time.Now}
}

// Load returns the whole document.
func (q *Queue) Load(ctx context.Context) (*model.Document, error) {
	doc, err := q.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}
	return doc, nil
}

// Append builds a pending post for e and saves it.
func (q *Queue) Append(ctx context.Context, e Entry) (*model.Post, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	doc, err := q.Load(ctx)
	if err != nil {
		return nil, err
	}

	now := q.now()
	post := model.Post{
		UID:              NextUID(doc.Posts, now),
		Status:           model.StatusPending,
		Media:            []string{e.Media},
		UserDescription:  fmt.Sprintf("Google Maps review screenshot (%d stars)", e.Rating),
		GeneratedContent: Caption(e.Text),
		Source:           model.SourceGoogleMaps,
		Rating:           e.Rating,
		PoolType:         e.PoolType,
		CreatedAt:        model.NewTime(now),
	}
	if err := post.Validate(); err != nil {
		return nil, fmt.Errorf("build post: %w", err)
	}

	doc.Posts = append(doc.Posts, post)
	if err := q.store.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("save posts: %w", err)
	}

	q.log.Info("post queued", "uid", post.UID, "rating", post.Rating, "media", e.Media)
	return &post, nil
}

// Get returns the post with uid.
func (q *Queue) Get(ctx context.Context, uid string) (*model.Post, error) {
	doc, err := q.Load(ctx)
	if err != nil {
		return nil, err
	}
	p := doc.Find(uid)
	if p == nil {
		return nil, fmt.Errorf("post %s: %w", uid, storage.ErrNotFound)
	}
	return p, nil
}

// List returns posts in store order, optionally filtered by status.
func (q *Queue) List(ctx context.Context, status model.Status) ([]model.Post, error) {
	doc, err := q.Load(ctx)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return doc.Posts, nil
	}
	var out []model.Post
	for _, p := range doc.Posts {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

// Approve moves a pending post to Approved, optionally scheduling it.
func (q *Queue) Approve(ctx context.Context, uid string, at *time.Time) (*model.Post, error) {
	return q.update(ctx, uid, func(p *model.Post, now time.Time) error {
		if !p.Status.CanAdvanceTo(model.StatusApproved) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, model.StatusApproved)
		}
		p.Status = model.StatusApproved
		p.ApprovedAt = model.NewTime(now).Ptr()
		if at != nil {
			p.ScheduledAt = model.NewTime(*at).Ptr()
		}
		return nil
	})
}

// MarkPosted records a successful publish.
func (q *Queue) MarkPosted(ctx context.Context, uid, tweetID, tweetURL string) (*model.Post, error) {
	if tweetID == "" {
		return nil, fmt.Errorf("mark %s posted: empty tweet id", uid)
	}
	return q.update(ctx, uid, func(p *model.Post, now time.Time) error {
		if !p.Status.CanAdvanceTo(model.StatusPosted) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, model.StatusPosted)
		}
		p.Status = model.StatusPosted
		p.PostedAt = model.NewTime(now).Ptr()
		p.TweetID = &tweetID
		p.TweetURL = &tweetURL
		return nil
	})
}

// Due returns approved, unpublished posts whose schedule has passed.
// Posts without a schedule, or with one that could not be read, are due.
func (q *Queue) Due(ctx context.Context, now time.Time) ([]model.Post, error) {
	approved, err := q.List(ctx, model.StatusApproved)
	if err != nil {
		return nil, err
	}
	var out []model.Post
	for _, p := range approved {
		if p.TweetID != nil {
			continue
		}
		if p.ScheduledAt != nil && !p.ScheduledAt.IsZero() && p.ScheduledAt.After(now) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (q *Queue) update(ctx context.Context, uid string, fn func(p *model.Post, now time.Time) error) (*model.Post, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	doc, err := q.Load(ctx)
	if err != nil {
		return nil, err
	}
	p := doc.Find(uid)
	if p == nil {
		return nil, fmt.Errorf("post %s: %w", uid, storage.ErrNotFound)
	}
	if err := fn(p, q.now()); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := q.store.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("save posts: %w", err)
	}
	out := *p
	return &out, nil
}
