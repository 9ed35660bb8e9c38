package bot

import (
	"fmt"
	"strings"
	"time"
)

// ParseUIDArg extracts a post uid from a command argument string.
func ParseUIDArg(args string) (string, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return "", fmt.Errorf("post uid is required")
	}
	return parts[0], nil
}

// ParseApproveArgs parses "<uid> [RFC3339 time]". The optional time is
// when the post should go out; without it the post is due immediately.
func ParseApproveArgs(args string) (string, *time.Time, error) {
	parts := strings.Fields(args)
	switch len(parts) {
	case 0:
		return "", nil, fmt.Errorf("usage: /approve <uid> [time]")
	case 1:
		return parts[0], nil, nil
	case 2:
		at, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			return "", nil, fmt.Errorf("invalid time %q, use RFC 3339 like 2025-07-14T18:00:00Z", parts[1])
		}
		return parts[0], &at, nil
	default:
		return "", nil, fmt.Errorf("usage: /approve <uid> [time]")
	}
}
