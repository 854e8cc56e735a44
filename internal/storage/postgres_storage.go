package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"molt-highlights/internal/core/domain"
	"molt-highlights/internal/core/ports"
)

// PostgresStorage stores each post as a JSONB document keyed by ID.
type PostgresStorage struct {
	Pool *pgxpool.Pool
}

func NewPostgresStorage(ctx context.Context, connStr string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	s := &PostgresStorage{Pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

var _ ports.Store = (*PostgresStorage)(nil)

func (s *PostgresStorage) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS posts (
			id TEXT PRIMARY KEY,
			discovery_epoch BIGINT NOT NULL,
			published BOOLEAN NOT NULL DEFAULT FALSE,
			doc JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_epoch ON posts(discovery_epoch)`,
		`CREATE TABLE IF NOT EXISTS published_history (
			id TEXT PRIMARY KEY,
			seq INT NOT NULL,
			published_at TIMESTAMPTZ NOT NULL,
			title TEXT,
			canonical_url TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS run_meta (key TEXT PRIMARY KEY, value TIMESTAMPTZ NOT NULL)`,
	}

	for _, q := range queries {
		if _, err := s.Pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStorage) LoadCorpus(ctx context.Context) (*domain.Corpus, error) {
	rows, err := s.Pool.Query(ctx, "SELECT doc FROM posts ORDER BY discovery_epoch, id")
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		var p domain.Post
		if err := json.Unmarshal(doc, &p); err != nil {
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

// SaveCorpus upserts every post in one transaction.
func (s *PostgresStorage) SaveCorpus(ctx context.Context, corpus *domain.Corpus, lastRun time.Time) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save corpus: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, p := range corpus.Posts() {
		doc, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode post %s: %w", p.ID, err)
		}
		batch.Queue(`INSERT INTO posts (id, discovery_epoch, published, doc) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET discovery_epoch = $2, published = $3, doc = $4`,
			p.ID, p.DiscoveryEpoch, p.Published, doc)
	}
	batch.Queue(`INSERT INTO run_meta (key, value) VALUES ('last_run', $1)
		ON CONFLICT (key) DO UPDATE SET value = $1`, lastRun)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save corpus: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStorage) LoadHistory(ctx context.Context) (*domain.History, error) {
	rows, err := s.Pool.Query(ctx, "SELECT id, published_at, title, canonical_url FROM published_history ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var entries []domain.PublishedHistoryEntry
	for rows.Next() {
		var e domain.PublishedHistoryEntry
		if err := rows.Scan(&e.ID, &e.PublishedAt, &e.Title, &e.CanonicalURL); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	var updated time.Time
	err = s.Pool.QueryRow(ctx, "SELECT value FROM run_meta WHERE key = 'history_updated'").Scan(&updated)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return historyFrom(entries, updated), nil
}

// SaveHistory replaces the stored history, so retention drops are persisted too.
func (s *PostgresStorage) SaveHistory(ctx context.Context, history *domain.History) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	batch.Queue("DELETE FROM published_history")
	for i, e := range history.Entries() {
		batch.Queue("INSERT INTO published_history (id, seq, published_at, title, canonical_url) VALUES ($1, $2, $3, $4, $5)",
			e.ID, i, e.PublishedAt, e.Title, e.CanonicalURL)
	}
	batch.Queue(`INSERT INTO run_meta (key, value) VALUES ('history_updated', $1)
		ON CONFLICT (key) DO UPDATE SET value = $1`, history.LastUpdated)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStorage) Close() error {
	s.Pool.Close()
	return nil
}

// historyFrom rebuilds a history from rows already in insertion order.
func historyFrom(entries []domain.PublishedHistoryEntry, updated time.Time) *domain.History {
	h := domain.NewHistory()
	for _, e := range entries {
		h.MarkPublished(e.ID, domain.Post{Title: e.Title, CanonicalURL: e.CanonicalURL}, e.PublishedAt)
	}
	h.LastUpdated = updated
	return h
}
