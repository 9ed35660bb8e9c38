// Package scheduler periodically publishes approved posts whose time has come.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"

	"review_bot/internal/model"
	"review_bot/internal/publish"
	"review_bot/internal/queue"
)

// Publisher hands one post to the publishing platform and returns its id.
type Publisher interface {
	Publish(ctx context.Context, req publish.Request) (string, error)
}

// Notifier receives a short report for every published post.
type Notifier interface {
	Notify(text string)
}

// Scheduler dispatches due posts on a fixed interval.
type Scheduler struct {
	queue     *queue.Queue
	publisher Publisher
	notifier  Notifier
	limiter   *rate.Limiter
	log       *slog.Logger
	tick      time.Duration
	now       func() time.Time
}

// New creates a Scheduler publishing at most one post per second.
func New(q *queue.Queue, p Publisher, log *slog.Logger) *Scheduler {
	return &Scheduler{
		queue:     q,
		publisher: p,
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
		log:       log,
		tick:      15 * time.Minute,
		now:       time.Now,
	}
}

// SetTickInterval overrides the default 15-minute check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// SetNotifier sets where publish reports go.
func (s *Scheduler) SetNotifier(n Notifier) {
	s.notifier = n
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.PublishDue(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PublishDue(ctx)
		}
	}
}

// PublishDue publishes every due post and returns how many went out.
// A failed post stays approved and is retried on the next pass.
func (s *Scheduler) PublishDue(ctx context.Context) int {
	due, err := s.queue.Due(ctx, s.now())
	if err != nil {
		s.log.Error("list due posts", "error", err)
		return 0
	}
	if len(due) == 0 {
		s.log.Debug("no posts due")
		return 0
	}

	sent := 0
	for _, post := range due {
		if err := s.limiter.Wait(ctx); err != nil {
			return sent
		}
		if err := s.publishPost(ctx, post); err != nil {
			s.log.Error("publish post", "uid", post.UID, "error", err)
			continue
		}
		sent++
	}

	s.log.Info("publish pass finished", "due", len(due), "published", sent)
	return sent
}

func (s *Scheduler) publishPost(ctx context.Context, post model.Post) error {
	media := ExistingMedia(post.Media)
	if len(media) < len(post.Media) {
		s.log.Warn("media files missing", "uid", post.UID, "listed", len(post.Media), "found", len(media))
	}

	id, err := s.publisher.Publish(ctx, publish.Request{
		PostID:  post.UID,
		Caption: post.GeneratedContent,
		Media:   media,
	})
	if err != nil {
		return err
	}

	url := publish.StatusURL(id)
	if _, err := s.queue.MarkPosted(ctx, post.UID, id, url); err != nil {
		return fmt.Errorf("record published post %s: %w", id, err)
	}

	s.log.Info("post published", "uid", post.UID, "id", id, "url", url)
	if s.notifier != nil {
		s.notifier.Notify(fmt.Sprintf("Published %s\n%s", post.UID, url))
	}
	return nil
}

// ExistingMedia returns the paths that exist as regular files, keeping
// order and stopping at model.MaxMedia.
func ExistingMedia(paths []string) []string {
	var out []string
	for _, p := range paths {
		if len(out) == model.MaxMedia {
			break
		}
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		out = append(out, p)
	}
	return out
}
