package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"molt-highlights/internal/core/domain"
	"molt-highlights/internal/core/ports"
)

// SQLiteStorage mirrors PostgresStorage on a local SQLite file.
type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &SQLiteStorage{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

var _ ports.Store = (*SQLiteStorage)(nil)

func (s *SQLiteStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		discovery_epoch INTEGER NOT NULL,
		published BOOLEAN NOT NULL DEFAULT FALSE,
		doc TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_posts_epoch ON posts(discovery_epoch);

	CREATE TABLE IF NOT EXISTS published_history (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		published_at TIMESTAMP NOT NULL,
		title TEXT,
		canonical_url TEXT
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		key TEXT PRIMARY KEY,
		value TIMESTAMP NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStorage) LoadCorpus(ctx context.Context) (*domain.Corpus, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT doc FROM posts ORDER BY discovery_epoch, id")
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		var p domain.Post
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return nil, fmt.Errorf("decode post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	c := domain.NewCorpus(posts)
	c.ClearScores()
	return c, nil
}

func (s *SQLiteStorage) SaveCorpus(ctx context.Context, corpus *domain.Corpus, lastRun time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save corpus: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO posts (id, discovery_epoch, published, doc) VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		discovery_epoch = excluded.discovery_epoch,
		published = excluded.published,
		doc = excluded.doc
	`)
	if err != nil {
		return fmt.Errorf("save corpus: %w", err)
	}
	defer stmt.Close()

	for _, p := range corpus.Posts() {
		doc, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode post %s: %w", p.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, p.ID, p.DiscoveryEpoch, p.Published, string(doc)); err != nil {
			return fmt.Errorf("upsert post %s: %w", p.ID, err)
		}
	}
	if err := setMeta(ctx, tx, "last_run", lastRun); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) LoadHistory(ctx context.Context) (*domain.History, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, published_at, title, canonical_url FROM published_history ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var entries []domain.PublishedHistoryEntry
	for rows.Next() {
		var e domain.PublishedHistoryEntry
		var title, url sql.NullString
		if err := rows.Scan(&e.ID, &e.PublishedAt, &title, &url); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Title, e.CanonicalURL = title.String, url.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	var updated time.Time
	err = s.db.QueryRowContext(ctx, "SELECT value FROM run_meta WHERE key = 'history_updated'").Scan(&updated)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return historyFrom(entries, updated), nil
}

func (s *SQLiteStorage) SaveHistory(ctx context.Context, history *domain.History) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM published_history"); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	for i, e := range history.Entries() {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO published_history (id, seq, published_at, title, canonical_url) VALUES (?, ?, ?, ?, ?)",
			e.ID, i, e.PublishedAt.UTC(), e.Title, e.CanonicalURL)
		if err != nil {
			return fmt.Errorf("insert history %s: %w", e.ID, err)
		}
	}
	if err := setMeta(ctx, tx, "history_updated", history.LastUpdated); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func setMeta(ctx context.Context, tx *sql.Tx, key string, value time.Time) error {
	_, err := tx.ExecContext(ctx, `
	INSERT INTO run_meta (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value.UTC())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
