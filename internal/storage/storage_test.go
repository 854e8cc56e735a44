package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"molt-highlights/internal/core/domain"
	"molt-highlights/internal/core/ports"
)

var t0 = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func samplePosts() []domain.Post {
	a := domain.Post{ID: "a", Title: "first", Community: "m/general", DiscoveredAt: t0, DiscoveryEpoch: 10}
	b := domain.Post{ID: "b", Title: "second", Community: "m/darkclaw", DiscoveredAt: t0, DiscoveryEpoch: 11, Upvotes: 4}
	b.MarkPublished(t0.Add(time.Hour), "tweet")
	return []domain.Post{a.WithScore(99), b}
}

func exerciseStore(t *testing.T, s ports.Store) {
	t.Helper()
	ctx := context.Background()

	c, err := s.LoadCorpus(ctx)
	if err != nil {
		t.Fatalf("LoadCorpus on empty store: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("empty store has %d posts", c.Len())
	}
	h, err := s.LoadHistory(ctx)
	if err != nil {
		t.Fatalf("LoadHistory on empty store: %v", err)
	}
	if h.Len() != 0 {
		t.Fatalf("empty store has %d history entries", h.Len())
	}

	corpus := domain.NewCorpus(nil)
	for _, p := range samplePosts() {
		corpus.Merge(p)
	}
	corpus.SetScore("a", 42)
	if err := s.SaveCorpus(ctx, corpus, t0.Add(2*time.Hour)); err != nil {
		t.Fatalf("SaveCorpus: %v", err)
	}

	history := domain.NewHistory()
	b, _ := corpus.Get("b")
	history.MarkPublished("b", *b, t0.Add(time.Hour))
	history.MarkPublished("old", domain.Post{Title: "older"}, t0.Add(-time.Hour))
	if err := s.SaveHistory(ctx, history); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}

	loaded, err := s.LoadCorpus(ctx)
	if err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}
	if loaded.Len() != 2 {
		t.Fatalf("loaded %d posts, want 2", loaded.Len())
	}
	posts := loaded.Posts()
	if posts[0].ID != "a" || posts[1].ID != "b" {
		t.Errorf("order = %s,%s, want a,b", posts[0].ID, posts[1].ID)
	}
	if posts[0].Score != nil {
		t.Errorf("score survived reload: %d", *posts[0].Score)
	}
	if !posts[1].Published || posts[1].PublishedText == nil || *posts[1].PublishedText != "tweet" {
		t.Errorf("published state lost: %+v", posts[1])
	}

	lh, err := s.LoadHistory(ctx)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	entries := lh.Entries()
	if len(entries) != 2 || entries[0].ID != "b" || entries[1].ID != "old" {
		t.Fatalf("history entries = %+v", entries)
	}
	if !entries[0].PublishedAt.Equal(t0.Add(time.Hour)) || entries[0].Title != "second" {
		t.Errorf("entry b = %+v", entries[0])
	}

	// Retention drops must reach the store.
	lh.RetainMostRecent(1)
	if err := s.SaveHistory(ctx, lh); err != nil {
		t.Fatalf("SaveHistory after retain: %v", err)
	}
	again, _ := s.LoadHistory(ctx)
	if again.Len() != 1 || !again.IsPublished("b") {
		t.Errorf("after retain: %+v", again.Entries())
	}
}

func TestJSONStorage(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONStorage(filepath.Join(dir, "data"), "", "")
	if err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, s)

	files, err := os.ReadDir(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		names := make([]string, 0, len(files))
		for _, f := range files {
			names = append(names, f.Name())
		}
		t.Errorf("data dir = %v, want only the two documents", names)
	}

	last, err := s.LastRun()
	if err != nil || last == nil || !last.Equal(t0.Add(2*time.Hour)) {
		t.Errorf("LastRun = %v, %v", last, err)
	}
}

func TestJSONStorageCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONStorage(dir, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.CorpusPath, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadCorpus(context.Background()); err == nil {
		t.Fatal("expected error for corrupt corpus")
	}
}

func TestSQLiteStorage(t *testing.T) {
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "molt.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestOpenUnknownType(t *testing.T) {
	if _, err := Open(context.Background(), Options{Type: "mongo"}); err == nil {
		t.Fatal("expected error for unknown storage type")
	}
	if _, err := Open(context.Background(), Options{Type: "postgres"}); err == nil {
		t.Fatal("expected error for postgres without DSN")
	}
}
