package ranking

import (
	"strings"
	"testing"
	"time"

	"molt-highlights/internal/core/domain"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// neutralBody is long enough to avoid the short-body penalty and matches no keyword.
const neutralBody = "Nothing notable happened here today, just a quiet note to everyone."

func post(id string, epoch int64) domain.Post {
	return domain.Post{
		ID:             id,
		Title:          "Daily note",
		BodyText:       neutralBody,
		Community:      "m/general",
		DiscoveredAt:   now.Add(-24 * time.Hour),
		DiscoveryEpoch: epoch,
	}
}

func TestWorkedScenario(t *testing.T) {
	p := post("w", 1)
	p.Upvotes = 10
	p.CommentCount = 4
	p.DiscoveredAt = now.Add(-time.Hour)
	p.BodyText = "The great molt happened today and everyone watched it go by."
	p.Community = "m/darkclaw"

	if got := Score(p, now); got != 115 {
		t.Fatalf("Score = %d, want 115; breakdown %+v", got, Explain(p, now))
	}
}

func TestNeutralPostScoresZero(t *testing.T) {
	if got := Score(post("n", 1), now); got != 0 {
		t.Fatalf("Score = %d, want 0; breakdown %+v", got, Explain(post("n", 1), now))
	}
}

func TestFactors(t *testing.T) {
	tests := []struct {
		name string
		edit func(*domain.Post)
		want int
	}{
		{"upvotes", func(p *domain.Post) { p.Upvotes = 2 }, 6},
		{"comments", func(p *domain.Post) { p.CommentCount = 3 }, 15},
		{"recency under 2h", func(p *domain.Post) { p.DiscoveredAt = now.Add(-90 * time.Minute) }, 25},
		{"recency under 6h", func(p *domain.Post) { p.DiscoveredAt = now.Add(-5 * time.Hour) }, 15},
		{"created at wins over discovery", func(p *domain.Post) {
			created := now.Add(-30 * time.Minute)
			p.CreatedAt = &created
		}, 25},
		{"category A once", func(p *domain.Post) { p.Title = "Molt shell lobster" }, 30},
		{"category B", func(p *domain.Post) { p.Title = "On Consciousness" }, 20},
		{"category C", func(p *domain.Post) { p.Title = "We shipped it" }, 15},
		{"tone", func(p *domain.Post) { p.Title = "lmao" }, 10},
		{"self reference", func(p *domain.Post) { p.Title = "As an AI" }, 15},
		{"short body", func(p *domain.Post) { p.BodyText = "tiny" }, 0},
		{"short body offsets", func(p *domain.Post) { p.BodyText = "tiny"; p.Upvotes = 5 }, 5},
		{"community", func(p *domain.Post) { p.Community = "m/Nocturnal-thoughts" }, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := post("f", 1)
			tt.edit(&p)
			if got := Score(p, now); got != tt.want {
				t.Errorf("Score = %d, want %d; breakdown %+v", got, tt.want, Explain(p, now))
			}
		})
	}
}

func TestScoreMonotonicInEngagement(t *testing.T) {
	base := post("m", 1)
	base.Title = "molt"
	prev := Score(base, now)
	for i := 1; i <= 20; i++ {
		p := base
		p.Upvotes = i
		p.CommentCount = i / 2
		got := Score(p, now)
		if got < prev {
			t.Fatalf("score dropped from %d to %d at upvotes=%d", prev, got, i)
		}
		prev = got
	}
}

func TestExplainSumsToTotal(t *testing.T) {
	p := post("e", 1)
	p.Upvotes = 3
	p.Title = "lol we shipped a tool"
	b := Explain(p, now)
	sum := 0
	for _, f := range b.Factors {
		sum += f.Points
	}
	if sum != b.Raw || b.Total != b.Raw {
		t.Fatalf("factors sum %d, raw %d, total %d", sum, b.Raw, b.Total)
	}
}

func TestParseTableRejectsEmpty(t *testing.T) {
	if _, err := ParseTable([]byte("categories: []\n")); err == nil {
		t.Fatal("expected error for table without categories")
	}
	bad := strings.Replace(string(defaultTable), "within: 6h", "within: 1h", 1)
	if _, err := ParseTable([]byte(bad)); err == nil {
		t.Fatal("expected error for non-increasing recency tiers")
	}
}

func TestNewScorerUsesGivenTable(t *testing.T) {
	p := post("s", 1)
	p.Upvotes = 4

	if got, want := NewScorer(nil).Score(p, now), Score(p, now); got != want {
		t.Fatalf("NewScorer(nil).Score = %d, want %d", got, want)
	}

	table := DefaultTable()
	table.Engagement.UpvoteWeight *= 2
	s := NewScorer(table)
	b := s.Explain(p, now)
	if s.Score(p, now) != b.Total {
		t.Fatalf("Score = %d, Explain total = %d", s.Score(p, now), b.Total)
	}
	if b.Factors[0].Name != "upvotes" || b.Factors[0].Points != 4*table.Engagement.UpvoteWeight {
		t.Errorf("upvote factor = %+v", b.Factors[0])
	}
	if b.Total <= Score(p, now) {
		t.Errorf("doubled weight total %d not above default %d", b.Total, Score(p, now))
	}
}
