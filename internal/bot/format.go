package bot

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"review_bot/internal/model"
)

// Telegram limits photo captions to 1024 characters.
const maxPhotoCaption = 1024

const timeLayout = "2006-01-02 15:04 MST"

// FormatAnnouncement formats a pending post for the operator chat.
func FormatAnnouncement(p model.Post) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New post %s waiting for approval\n", p.UID)
	fmt.Fprintf(&b, "Rating: %s\n\n", stars(p.Rating))
	b.WriteString(p.GeneratedContent)
	fmt.Fprintf(&b, "\n\n/approve %s", p.UID)
	return b.String()
}

// FormatPostList formats posts of one status for display.
func FormatPostList(status model.Status, posts []model.Post) string {
	if len(posts) == 0 {
		return fmt.Sprintf("No %s posts.", strings.ToLower(string(status)))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s posts (%d):\n", status, len(posts))
	for _, p := range posts {
		fmt.Fprintf(&b, "\n%s  %s  %s\n", p.UID, stars(p.Rating), p.CreatedAt.Format(timeLayout))
		if p.ScheduledAt != nil && !p.ScheduledAt.IsZero() {
			fmt.Fprintf(&b, "   scheduled %s\n", p.ScheduledAt.Format(timeLayout))
		}
		fmt.Fprintf(&b, "   %s\n", snippet(p.GeneratedContent, 60))
	}
	return b.String()
}

// FormatPostInfo formats detailed information about a single post.
func FormatPostInfo(p *model.Post) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]\n", p.UID, p.Status)
	fmt.Fprintf(&b, "Rating: %s\n", stars(p.Rating))
	fmt.Fprintf(&b, "Created: %s\n", p.CreatedAt.Format(timeLayout))
	if p.ApprovedAt != nil {
		fmt.Fprintf(&b, "Approved: %s\n", p.ApprovedAt.Format(timeLayout))
	}
	if p.ScheduledAt != nil && !p.ScheduledAt.IsZero() {
		fmt.Fprintf(&b, "Scheduled: %s\n", p.ScheduledAt.Format(timeLayout))
	}
	if p.PostedAt != nil {
		fmt.Fprintf(&b, "Posted: %s\n", p.PostedAt.Format(timeLayout))
	}
	if p.TweetURL != nil {
		fmt.Fprintf(&b, "URL: %s\n", *p.TweetURL)
	}
	for _, m := range p.Media {
		fmt.Fprintf(&b, "Media: %s\n", m)
	}
	b.WriteString("\n")
	b.WriteString(p.GeneratedContent)
	return b.String()
}

func stars(n int) string {
	if n < 0 || n > 5 {
		n = 0
	}
	return strings.Repeat("★", n) + strings.Repeat("☆", 5-n)
}

func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n]) + "..."
}

func truncateCaption(text string) string {
	if utf8.RuneCountInString(text) <= maxPhotoCaption {
		return text
	}
	return string([]rune(text)[:maxPhotoCaption-3]) + "..."
}
