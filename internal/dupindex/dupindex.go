// Package dupindex answers whether a review's text was already captured.
package dupindex

import (
	"strings"
	"unicode/utf8"

	"review_bot/internal/model"
)

// KeyLength is the number of characters compared.
const KeyLength = 100

const ellipsis = "..."

// Match describes the outcome of a duplicate check.
type Match struct {
	Duplicate bool
	UID       string
	Status    model.Status
}

type entry struct {
	key       string
	truncated bool
	uid       string
	status    model.Status
}

// Index holds the normalized keys of stored posts for one source.
type Index struct {
	source  string
	entries []entry
}

// New indexes the posts tagged with source, keeping store order.
func New(source string, posts []model.Post) *Index {
	ix := &Index{source: source}
	for _, p := range posts {
		ix.Add(p)
	}
	return ix
}

// Add indexes one more post. Posts from other sources and captions not in
// quote format are ignored.
func (ix *Index) Add(p model.Post) {
	if p.Source != ix.source {
		return
	}
	text, ok := CaptionText(p.GeneratedContent)
	if !ok {
		return
	}
	trimmed := strings.TrimSpace(text)
	key := Key(trimmed)
	if key == "" {
		return
	}
	ix.entries = append(ix.entries, entry{
		key:       key,
		truncated: captionCut(p.GeneratedContent, text),
		uid:       p.UID,
		status:    p.Status,
	})
}

// captionCut reports whether the ellipsis ending text was added by caption
// generation. A quote block in the generated layout is cut at exactly
// model.CaptionLimit characters, so a shorter one ended in "..." on its own.
// Quote blocks in any other layout are taken as cut whenever they end in
// "...".
func captionCut(caption, text string) bool {
	body, ok := strings.CutSuffix(text, ellipsis)
	if !ok {
		return false
	}
	if strings.HasPrefix(caption, "\""+text+"\"\n\n") {
		return utf8.RuneCountInString(body) == model.CaptionLimit
	}
	return true
}

// Check compares text against every indexed post, oldest first. A stored
// caption that was cut short matches any text that starts with it. Only
// bare quote blocks are ambiguous: one that ends in a natural "..." is still
// treated as cut, so a longer review sharing its opening is reported as a
// duplicate.
func (ix *Index) Check(text string) Match {
	key := Key(text)
	if key == "" {
		return Match{}
	}
	for _, e := range ix.entries {
		if key == e.key || (e.truncated && strings.HasPrefix(key, e.key)) {
			return Match{Duplicate: true, UID: e.uid, Status: e.status}
		}
	}
	return Match{}
}

// Len returns the number of indexed posts.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Key normalizes review text into its comparison key: surrounding quotes
// and a trailing ellipsis are dropped, then the first KeyLength characters
// are kept.
func Key(text string) string {
	s := strings.TrimSpace(text)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}
	s = strings.TrimSpace(strings.TrimSuffix(s, ellipsis))
	r := []rune(s)
	if len(r) > KeyLength {
		r = r[:KeyLength]
	}
	return string(r)
}

// CaptionText extracts the quoted review from a generated caption. It
// reports false when the caption does not open with a quote.
func CaptionText(caption string) (string, bool) {
	if !strings.HasPrefix(caption, `"`) {
		return "", false
	}
	body := caption[1:]
	// The quote block is followed by a blank line; prefer that boundary so
	// quotes inside the review do not cut it short.
	end := strings.Index(body, "\"\n\n")
	if end < 0 {
		end = strings.LastIndex(body, `"`)
	}
	if end < 0 {
		return "", false
	}
	return body[:end], true
}
