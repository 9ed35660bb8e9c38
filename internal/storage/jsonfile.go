package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"review_bot/internal/model"
)

// JSONFile implements Store on top of a single JSON document on disk.
type JSONFile struct {
	path string
	now  func() time.Time
}

// NewJSONFile returns a store backed by the document at path.
// The file and its directory are created on the first Save.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path, now: time.Now}
}

// Path returns the document location.
func (s *JSONFile) Path() string {
	return s.path
}

// Load reads the full document. A missing file yields an empty document.
func (s *JSONFile) Load(_ context.Context) (*model.Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &model.Document{Posts: []model.Post{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read posts file: %w", err)
	}

	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode posts file %s: %w", s.path, err)
	}
	if doc.Posts == nil {
		doc.Posts = []model.Post{}
	}
	return &doc, nil
}

// Save stamps lastUpdated and rewrites the whole document atomically
// (temp file, fsync, rename).
func (s *JSONFile) Save(_ context.Context, doc *model.Document) error {
	doc.Touch(s.now())

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode posts: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".posts-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace posts file: %w", err)
	}
	return nil
}

// Close is a no-op; the file is not held open between calls.
func (s *JSONFile) Close() error {
	return nil
}
