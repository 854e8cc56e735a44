package domain

import "sort"

// Corpus holds every post ever observed, keyed by ID.
// Posts are never removed; the published flag on each post is authoritative.
type Corpus struct {
	posts map[string]*Post
	order []string
}

// NewCorpus builds a corpus from a flat list, merging duplicate IDs.
func NewCorpus(posts []Post) *Corpus {
	c := &Corpus{posts: make(map[string]*Post, len(posts))}
	for _, p := range posts {
		c.Merge(p)
	}
	return c
}

// Merge inserts p when its ID is new, otherwise folds it into the existing entry.
// It reports whether p was inserted.
func (c *Corpus) Merge(p Post) bool {
	if c.posts == nil {
		c.posts = make(map[string]*Post)
	}
	if existing, ok := c.posts[p.ID]; ok {
		existing.MergeFrom(p)
		return false
	}
	p.Score = nil
	c.posts[p.ID] = &p
	c.order = append(c.order, p.ID)
	return true
}

// Get returns the post with the given ID.
func (c *Corpus) Get(id string) (*Post, bool) {
	p, ok := c.posts[id]
	return p, ok
}

// Len returns the number of posts.
func (c *Corpus) Len() int {
	return len(c.order)
}

// Posts returns copies of all posts ordered by discovery epoch,
// keeping insertion order among equal epochs.
func (c *Corpus) Posts() []Post {
	out := make([]Post, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.posts[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DiscoveryEpoch < out[j].DiscoveryEpoch
	})
	return out
}

// Unpublished returns the posts that have not been published, in discovery order.
func (c *Corpus) Unpublished() []Post {
	var out []Post
	for _, p := range c.Posts() {
		if !p.Published {
			out = append(out, p)
		}
	}
	return out
}

// PublishedCount returns how many posts carry the published flag.
func (c *Corpus) PublishedCount() int {
	n := 0
	for _, p := range c.posts {
		if p.Published {
			n++
		}
	}
	return n
}

// ClearScores drops any score carried over from a previous run.
func (c *Corpus) ClearScores() {
	for _, p := range c.posts {
		p.Score = nil
	}
}

// SetScore records the run-local score for a post.
func (c *Corpus) SetScore(id string, score int) {
	if p, ok := c.posts[id]; ok {
		s := score
		p.Score = &s
	}
}
