package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Layouts accepted when decoding stored timestamps. Older stores were written
// with naive ISO-8601 values that carry no zone; those are read as local time.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Time is a timestamp that tolerates the zone-less layouts found in older
// post stores.
type Time struct {
	time.Time
}

// NewTime wraps t.
func NewTime(t time.Time) Time {
	return Time{Time: t}
}

// Ptr returns a pointer to a copy of t.
func (t Time) Ptr() *Time {
	return &t
}

// ParseTime parses s using the accepted layouts.
func ParseTime(s string) (Time, error) {
	for _, layout := range timeLayouts {
		var (
			v   time.Time
			err error
		)
		if layout == time.RFC3339Nano {
			v, err = time.Parse(layout, s)
		} else {
			v, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return Time{Time: v}, nil
		}
	}
	return Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// MarshalJSON encodes the timestamp as RFC 3339.
func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// UnmarshalJSON decodes any of the accepted layouts. A string in no known
// layout decodes to the zero time so one bad value cannot make the whole
// store unreadable.
func (t *Time) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode timestamp: %w", err)
	}
	parsed, err := ParseTime(s)
	if err != nil {
		*t = Time{}
		return nil
	}
	*t = parsed
	return nil
}
