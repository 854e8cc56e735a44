package normalize

import (
	"testing"
	"time"

	"molt-highlights/internal/core/domain"
)

func TestNormalizeUsesNativeID(t *testing.T) {
	now := time.Unix(1000, 0)
	p := Normalize(domain.RawItem{NativeID: "abc", Title: " hello ", Community: "ponderings", Upvotes: 3}, now, 7)
	if p.ID != "abc" {
		t.Fatalf("id = %q, want abc", p.ID)
	}
	if p.Title != "hello" {
		t.Fatalf("title = %q, want trimmed", p.Title)
	}
	if p.Community != "m/ponderings" {
		t.Fatalf("community = %q, want m/ponderings", p.Community)
	}
	if p.CanonicalURL != SiteURL+"/post/abc" {
		t.Fatalf("url = %q", p.CanonicalURL)
	}
	if !p.DiscoveredAt.Equal(now) || p.DiscoveryEpoch != 7 {
		t.Fatalf("stamp = %v/%d", p.DiscoveredAt, p.DiscoveryEpoch)
	}
	if p.Published {
		t.Fatalf("new posts must start unpublished")
	}
}

func TestNormalizeDerivesStableID(t *testing.T) {
	a := Normalize(domain.RawItem{URL: "/thread/123", Title: "one"}, time.Unix(1, 0), 1)
	b := Normalize(domain.RawItem{URL: "https://www.moltbook.com/thread/123?ref=x", Title: "other title"}, time.Unix(99, 0), 2)
	if a.ID != b.ID {
		t.Fatalf("same url produced %s and %s", a.ID, b.ID)
	}
	if len(a.ID) != 64 {
		t.Fatalf("id length = %d, want sha256 hex", len(a.ID))
	}

	byTitle := Normalize(domain.RawItem{Title: "only a title"}, time.Unix(1, 0), 1)
	if byTitle.ID != DeriveID("", "only a title") {
		t.Fatalf("title-derived id mismatch")
	}
	if byTitle.ID == a.ID {
		t.Fatalf("different items share an id")
	}
}

func TestNormalizeDefaults(t *testing.T) {
	down := -4
	p := Normalize(domain.RawItem{Title: "x", Upvotes: -1, Comments: -2, Downvotes: &down}, time.Unix(1, 0), 1)
	if p.Community != domain.DefaultCommunity {
		t.Fatalf("community = %q, want general", p.Community)
	}
	if p.Upvotes != 0 || p.CommentCount != 0 || *p.Downvotes != 0 {
		t.Fatalf("counts not clamped: %d %d %d", p.Upvotes, p.CommentCount, *p.Downvotes)
	}
	if p.AuthorName != "" || p.BodyText != "" {
		t.Fatalf("absent fields should default to empty strings")
	}
}

func TestStamperEpochsStrictlyIncrease(t *testing.T) {
	fixed := time.Unix(500, 0)
	s := NewStamper(func() time.Time { return fixed })
	posts := s.All([]domain.RawItem{{NativeID: "a"}, {NativeID: "b"}, {NativeID: "c"}})
	for i := 1; i < len(posts); i++ {
		if posts[i].DiscoveryEpoch <= posts[i-1].DiscoveryEpoch {
			t.Fatalf("epoch %d not after %d", posts[i].DiscoveryEpoch, posts[i-1].DiscoveryEpoch)
		}
	}
	if posts[0].DiscoveryEpoch != 500 {
		t.Fatalf("first epoch = %d, want 500", posts[0].DiscoveryEpoch)
	}
}

func TestNormalizeReadsIDFromPostURL(t *testing.T) {
	api := Normalize(domain.RawItem{NativeID: "abc-123", Title: "t"}, time.Unix(1, 0), 1)
	page := Normalize(domain.RawItem{URL: "/post/abc-123?utm=x", Title: "t"}, time.Unix(2, 0), 2)
	if api.ID != "abc-123" || page.ID != api.ID {
		t.Fatalf("ids = %q and %q, want abc-123", api.ID, page.ID)
	}
	if page.CanonicalURL != api.CanonicalURL {
		t.Errorf("urls = %q and %q", page.CanonicalURL, api.CanonicalURL)
	}
}

func TestPostID(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{"/post/abc", "abc"},
		{"https://www.moltbook.com/post/abc/", "abc"},
		{"https://www.moltbook.com/post/abc#comments", "abc"},
		{"/m/ponderings", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := PostID(tt.href); got != tt.want {
			t.Errorf("PostID(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}
