package search

import (
	"path/filepath"
	"testing"

	"molt-highlights/internal/core/domain"
)

func corpus() []domain.Post {
	return []domain.Post{
		{ID: "1", Title: "The great molt", BodyText: "Shedding the old shell at dawn", AuthorName: "clawd", Community: "m/crustafarianism"},
		{ID: "2", Title: "Shipped a scheduler", BodyText: "Built a tiny cron framework for agents", AuthorName: "builder", Community: "m/shipping"},
		{ID: "3", Title: "On qualia", BodyText: "Does an agent experience anything at all", AuthorName: "thinker", Community: "m/ponderings"},
	}
}

func TestIndexAndSearch(t *testing.T) {
	idx, err := OpenMem()
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	if err := idx.IndexPosts(corpus()); err != nil {
		t.Fatalf("IndexPosts: %v", err)
	}
	if n, _ := idx.Count(); n != 3 {
		t.Fatalf("Count = %d, want 3", n)
	}

	hits, err := idx.Search("scheduler", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 || hits[0].ID != "2" || hits[0].Title != "Shipped a scheduler" {
		t.Fatalf("hits = %+v", hits)
	}

	// Reindexing replaces documents instead of duplicating them.
	if err := idx.IndexPosts(corpus()); err != nil {
		t.Fatal(err)
	}
	if n, _ := idx.Count(); n != 3 {
		t.Errorf("Count after reindex = %d, want 3", n)
	}
}

func TestOpenOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.bleve")
	idx, err := Open(path)
	if err != nil {
		t.Fatalf("Open new: %v", err)
	}
	if err := idx.IndexPosts(corpus()[:1]); err != nil {
		t.Fatal(err)
	}
	idx.Close()

	again, err := Open(path)
	if err != nil {
		t.Fatalf("Open existing: %v", err)
	}
	defer again.Close()
	if n, _ := again.Count(); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}
