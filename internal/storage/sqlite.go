package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"review_bot/internal/model"
	"review_bot/migrations"
)

const (
	timeLayout     = "2006-01-02T15:04:05Z"
	metaLastUpdate = "last_updated"
)

// SQLite implements Store backed by a SQLite database. Posts keep their
// document order through the position column.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// :memory: databases are per-connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Load returns every post in document order plus the last-updated stamp.
func (s *SQLite) Load(ctx context.Context) (*model.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM posts ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	doc := &model.Document{Posts: []model.Post{}}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		var p model.Post
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			return nil, fmt.Errorf("decode post: %w", err)
		}
		doc.Posts = append(doc.Posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}

	var stamp string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = ?`, metaLastUpdate).Scan(&stamp)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("query last updated: %w", err)
	default:
		t, err := model.ParseTime(stamp)
		if err != nil {
			return nil, fmt.Errorf("parse last updated: %w", err)
		}
		doc.LastUpdated = &t
	}
	return doc, nil
}

// Save replaces the stored posts with doc in a single transaction.
func (s *SQLite) Save(ctx context.Context, doc *model.Document) error {
	now := s.now()
	doc.Touch(now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM posts`); err != nil {
		return fmt.Errorf("clear posts: %w", err)
	}

	for i, p := range doc.Posts {
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode post %s: %w", p.UID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO posts (position, uid, status, source, created_at, body)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			i, p.UID, string(p.Status), p.Source, p.CreatedAt.UTC().Format(timeLayout), string(body),
		)
		if err != nil {
			return fmt.Errorf("insert post %s: %w", p.UID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO store_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		metaLastUpdate, now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("update last updated: %w", err)
	}

	return tx.Commit()
}
