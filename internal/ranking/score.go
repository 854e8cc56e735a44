package ranking

import (
	"strings"
	"time"
	"unicode/utf8"

	"molt-highlights/internal/core/domain"
)

// Factor is one scoring term that applied to a post.
type Factor struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
	// Match is the term or tier that triggered the factor, when there is one.
	Match string `json:"match,omitempty"`
}

// Breakdown explains a score. Total is the clamped sum of the factors.
type Breakdown struct {
	Factors []Factor `json:"factors"`
	Raw     int      `json:"raw"`
	Total   int      `json:"total"`
}

// Scorer applies a Table. The zero value is not usable; use NewScorer.
type Scorer struct {
	table *Table
}

// NewScorer returns a Scorer for t, or for the embedded table when t is nil.
func NewScorer(t *Table) *Scorer {
	if t == nil {
		t = DefaultTable()
	}
	return &Scorer{table: t}
}

var defaultScorer = NewScorer(nil)

// Score rates p with the embedded table.
func Score(p domain.Post, now time.Time) int {
	return defaultScorer.Score(p, now)
}

// Explain breaks down p's score with the embedded table.
func Explain(p domain.Post, now time.Time) Breakdown {
	return defaultScorer.Explain(p, now)
}

// Score rates p at now; it is the Total of Explain.
func (s *Scorer) Score(p domain.Post, now time.Time) int {
	return s.Explain(p, now).Total
}

// Explain lists every factor that applied to p at now, with the clamped total.
func (s *Scorer) Explain(p domain.Post, now time.Time) Breakdown {
	t := s.table
	var b Breakdown
	add := func(name string, points int, match string) {
		b.Factors = append(b.Factors, Factor{Name: name, Points: points, Match: match})
		b.Raw += points
	}

	add("upvotes", p.Upvotes*t.Engagement.UpvoteWeight, "")
	add("comments", p.CommentCount*t.Engagement.CommentWeight, "")

	age := p.Age(now)
	for _, tier := range t.Recency {
		if age < tier.Within {
			add("recency", tier.Bonus, "<"+tier.Within.String())
			break
		}
	}

	text := strings.ToLower(p.Text())
	for _, c := range t.Categories {
		if term, ok := firstContained(text, c.Terms); ok {
			add(c.Name, c.Bonus, term)
		}
	}

	if utf8.RuneCountInString(p.BodyText) < t.ShortBody.MinLength {
		add("short_body", -t.ShortBody.Penalty, "")
	}

	if name, ok := firstContained(strings.ToLower(p.Community), t.Communities.Names); ok {
		add("community", t.Communities.Bonus, name)
	}

	b.Total = b.Raw
	if b.Total < 0 {
		b.Total = 0
	}
	return b
}

func firstContained(haystack string, terms []string) (string, bool) {
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			return term, true
		}
	}
	return "", false
}
