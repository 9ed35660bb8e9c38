// Package storage defines the post store contract and its implementations.
package storage

import (
	"context"
	"errors"
	"fmt"

	"review_bot/internal/model"
)

// ErrNotFound is returned when a post does not exist in the store.
var ErrNotFound = errors.New("post not found")

// Store loads and saves the whole post document. Callers read, mutate in
// memory, then write the full document back. There is no locking: a single
// writer is assumed.
type Store interface {
	Load(ctx context.Context) (*model.Document, error)
	Save(ctx context.Context, doc *model.Document) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Open returns the store for the named backend.
func Open(backend, postsFile, databasePath string) (Store, error) {
	switch backend {
	case "", BackendJSON:
		return NewJSONFile(postsFile), nil
	case BackendSQLite:
		return NewSQLite(databasePath)
	default:
		return nil, fmt.Errorf("unknown post store backend %q", backend)
	}
}
