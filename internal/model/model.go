// Package model defines the domain types used across the application.
package model

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a queued post.
type Status string

// Supported post statuses, in lifecycle order.
const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusPosted   Status = "Posted"
)

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusApproved:
		return 2
	case StatusPosted:
		return 3
	}
	return 0
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s.rank() > 0
}

// CanAdvanceTo reports whether a post may move from s to next.
// Statuses only progress forward; staying in place is not a transition.
func (s Status) CanAdvanceTo(next Status) bool {
	return s.Valid() && next.Valid() && next.rank() > s.rank()
}

// SourceGoogleMaps tags posts captured from a map listing.
const SourceGoogleMaps = "google-maps"

// MaxMedia is the maximum number of media files attached to a post.
const MaxMedia = 4

// CaptionLimit is the number of review characters a caption keeps before
// it is cut with "...".
const CaptionLimit = 150

// Post is a queued unit of publishable content.
type Post struct {
	UID              string   `json:"uid"`
	Status           Status   `json:"status"`
	Media            []string `json:"media"`
	UserDescription  string   `json:"userDescription,omitempty"`
	GeneratedContent string   `json:"generatedContent"`
	Source           string   `json:"source"`
	Rating           int      `json:"rating"`
	PoolType         string   `json:"poolType,omitempty"`
	CreatedAt        Time     `json:"createdAt"`
	ScheduledAt      *Time    `json:"scheduledAt"`
	ApprovedAt       *Time    `json:"approvedAt"`
	PostedAt         *Time    `json:"postedAt"`
	TweetID          *string  `json:"tweetId"`
	TweetURL         *string  `json:"tweetUrl"`
	IGPostID         *string  `json:"igPostId"`
	IGPermalink      *string  `json:"igPermalink"`
	Truncated        bool     `json:"truncated,omitempty"`
	OriginalLength   int      `json:"originalLength,omitempty"`
}

// Validate checks the invariants a stored post must hold.
func (p *Post) Validate() error {
	if p.UID == "" {
		return fmt.Errorf("post uid is required")
	}
	if !p.Status.Valid() {
		return fmt.Errorf("post %s: invalid status %q", p.UID, p.Status)
	}
	if len(p.Media) > MaxMedia {
		return fmt.Errorf("post %s: %d media files, at most %d allowed", p.UID, len(p.Media), MaxMedia)
	}
	if p.Rating < 0 || p.Rating > 5 {
		return fmt.Errorf("post %s: rating %d out of range", p.UID, p.Rating)
	}
	if p.Status == StatusPosted && (p.TweetID == nil || *p.TweetID == "") {
		return fmt.Errorf("post %s: posted without tweet id", p.UID)
	}
	return nil
}

// Document is the whole post store as read from and written to disk.
type Document struct {
	Posts       []Post `json:"posts"`
	LastUpdated *Time  `json:"lastUpdated,omitempty"`
}

// Find returns the post with the given uid, or nil.
func (d *Document) Find(uid string) *Post {
	for i := range d.Posts {
		if d.Posts[i].UID == uid {
			return &d.Posts[i]
		}
	}
	return nil
}

// Touch sets LastUpdated to now.
func (d *Document) Touch(now time.Time) {
	t := NewTime(now)
	d.LastUpdated = &t
}
