package ranking

import (
	"sort"
	"time"

	"molt-highlights/internal/core/domain"
)

// DefaultCandidates is how many candidates a run keeps by default.
const DefaultCandidates = 5

// Select ranks posts with the embedded table. See Scorer.Select.
func Select(posts []domain.Post, limit int, now time.Time) []domain.Post {
	return defaultScorer.Select(posts, limit, now)
}

// Select drops published posts, scores the rest and returns the best limit
// of them, highest first. Ties keep discovery order, so the post seen first
// wins. A limit <= 0 returns every unpublished post ranked.
func (s *Scorer) Select(posts []domain.Post, limit int, now time.Time) []domain.Post {
	ranked := make([]domain.Post, 0, len(posts))
	for _, p := range posts {
		if p.Published {
			continue
		}
		ranked = append(ranked, p.WithScore(s.Score(p, now)))
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].DiscoveryEpoch < ranked[j].DiscoveryEpoch
	})
	sort.SliceStable(ranked, func(i, j int) bool {
		return *ranked[i].Score > *ranked[j].Score
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
