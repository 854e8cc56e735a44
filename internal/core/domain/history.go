package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// DefaultHistoryRetention is how many published entries the history keeps.
const DefaultHistoryRetention = 100

// History is the bounded index of published posts. It is auxiliary to the
// corpus published flag and can be rebuilt from it.
type History struct {
	entries     map[string]PublishedHistoryEntry
	order       []string
	LastUpdated time.Time
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{entries: make(map[string]PublishedHistoryEntry)}
}

// IsPublished reports whether id has a history entry.
func (h *History) IsPublished(id string) bool {
	_, ok := h.entries[id]
	return ok
}

// MarkPublished records post as published at the given time. The first write
// for an ID wins; later calls are no-ops and return false.
func (h *History) MarkPublished(id string, post Post, at time.Time) bool {
	if h.entries == nil {
		h.entries = make(map[string]PublishedHistoryEntry)
	}
	if _, ok := h.entries[id]; ok {
		return false
	}
	h.entries[id] = PublishedHistoryEntry{
		ID:           id,
		PublishedAt:  at,
		Title:        post.Title,
		CanonicalURL: post.CanonicalURL,
	}
	h.order = append(h.order, id)
	h.LastUpdated = at
	return true
}

// RetainMostRecent keeps the n entries with the latest PublishedAt and drops
// the rest. Ties keep their insertion order. n <= 0 uses the default retention.
func (h *History) RetainMostRecent(n int) int {
	if n <= 0 {
		n = DefaultHistoryRetention
	}
	entries := h.Entries()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].PublishedAt.After(entries[j].PublishedAt)
	})
	if len(entries) <= n {
		return 0
	}
	dropped := len(entries) - n
	keep := make(map[string]bool, n)
	for _, e := range entries[:n] {
		keep[e.ID] = true
	}
	order := h.order[:0]
	for _, id := range h.order {
		if keep[id] {
			order = append(order, id)
			continue
		}
		delete(h.entries, id)
	}
	h.order = order
	return dropped
}

// Entries returns the entries in insertion order.
func (h *History) Entries() []PublishedHistoryEntry {
	out := make([]PublishedHistoryEntry, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.entries[id])
	}
	return out
}

// Len returns the number of entries.
func (h *History) Len() int {
	return len(h.order)
}

// RebuildFrom adds an entry for every published post in the corpus that is
// missing from the history.
func (h *History) RebuildFrom(c *Corpus) int {
	added := 0
	for _, p := range c.Posts() {
		if !p.Published || h.IsPublished(p.ID) {
			continue
		}
		at := p.DiscoveredAt
		if p.PublishedAt != nil {
			at = *p.PublishedAt
		}
		last := h.LastUpdated
		if h.MarkPublished(p.ID, p, at) {
			added++
		}
		if last.After(h.LastUpdated) {
			h.LastUpdated = last
		}
	}
	return added
}

type historyFile struct {
	PublishedPosts map[string]PublishedHistoryEntry `json:"published_posts"`
	Order          []string                         `json:"order,omitempty"`
	LastUpdated    time.Time                        `json:"last_updated"`
}

// MarshalJSON writes {published_posts: {id: entry}, last_updated}.
func (h *History) MarshalJSON() ([]byte, error) {
	f := historyFile{
		PublishedPosts: make(map[string]PublishedHistoryEntry, len(h.entries)),
		Order:          h.order,
		LastUpdated:    h.LastUpdated,
	}
	for id, e := range h.entries {
		f.PublishedPosts[id] = e
	}
	return json.Marshal(f)
}

// UnmarshalJSON reads the format written by MarshalJSON. Files without an
// order list get entries ordered by publish time, then ID.
func (h *History) UnmarshalJSON(data []byte) error {
	var f historyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	h.entries = make(map[string]PublishedHistoryEntry, len(f.PublishedPosts))
	h.order = nil
	h.LastUpdated = f.LastUpdated
	for id, e := range f.PublishedPosts {
		e.ID = id
		h.entries[id] = e
	}
	seen := make(map[string]bool, len(f.Order))
	for _, id := range f.Order {
		if _, ok := h.entries[id]; ok && !seen[id] {
			h.order = append(h.order, id)
			seen[id] = true
		}
	}
	var rest []string
	for id := range h.entries {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		a, b := h.entries[rest[i]], h.entries[rest[j]]
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.Before(b.PublishedAt)
		}
		return rest[i] < rest[j]
	})
	h.order = append(h.order, rest...)
	return nil
}
