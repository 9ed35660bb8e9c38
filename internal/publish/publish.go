// Package publish hands approved posts to the publishing relay.
package publish

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"review_bot/internal/model"
)

// ErrRejected is returned when the relay answers with a non-2xx status.
var ErrRejected = errors.New("relay rejected post")

// StatusURL is the public URL of a published post.
func StatusURL(id string) string {
	return "https://x.com/i/status/" + id
}

// Request is one post to publish.
type Request struct {
	PostID  string
	Caption string
	// Media are local file paths, at most model.MaxMedia.
	Media []string
}

type mediaPayload struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

type requestPayload struct {
	PostID string         `json:"postId"`
	Text   string         `json:"text"`
	Media  []mediaPayload `json:"media"`
}

type responsePayload struct {
	ID string `json:"id"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// Relay posts JSON to a bearer-token relay endpoint.
type Relay struct {
	client   *resty.Client
	endpoint string
	log      *slog.Logger
}

// NewRelay returns a Relay for endpoint authenticated with token.
func NewRelay(endpoint, token string, log *slog.Logger) *Relay {
	client := resty.New().
		SetTimeout(60*time.Second).
		SetHeader("User-Agent", "review_bot").
		SetAuthToken(token)
	return &Relay{client: client, endpoint: endpoint, log: log}
}

// Publish uploads the caption and media and returns the published id.
func (r *Relay) Publish(ctx context.Context, req Request) (string, error) {
	if len(req.Media) > model.MaxMedia {
		return "", fmt.Errorf("publish %s: %d media files, at most %d", req.PostID, len(req.Media), model.MaxMedia)
	}
	body := requestPayload{PostID: req.PostID, Text: req.Caption, Media: []mediaPayload{}}
	for _, path := range req.Media {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read media %s: %w", path, err)
		}
		body.Media = append(body.Media, mediaPayload{
			Name: filepath.Base(path),
			Data: base64.StdEncoding.EncodeToString(data),
		})
	}

	requestID := uuid.NewString()
	var (
		out     responsePayload
		failure errorPayload
	)
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", requestID).
		SetBody(body).
		SetResult(&out).
		SetError(&failure).
		Post(r.endpoint)
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", req.PostID, err)
	}
	if resp.IsError() {
		msg := failure.Error
		if msg == "" {
			msg = resp.Status()
		}
		return "", fmt.Errorf("publish %s: %w: %d %s", req.PostID, ErrRejected, resp.StatusCode(), msg)
	}
	if out.ID == "" {
		return "", fmt.Errorf("publish %s: relay returned no id", req.PostID)
	}

	r.log.Info("post published", "uid", req.PostID, "id", out.ID, "request_id", requestID, "media", len(body.Media))
	return out.ID, nil
}
