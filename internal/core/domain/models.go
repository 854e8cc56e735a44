package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// DefaultCommunity is used when a source cannot tell which community a post belongs to.
const DefaultCommunity = "general"

// Post is the canonical content item tracked across runs.
type Post struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	BodyText        string          `json:"body_text"`
	AuthorName      string          `json:"author_name"`
	AuthorID        *string         `json:"author_id,omitempty"`
	AuthorKarma     *int            `json:"author_karma,omitempty"`
	AuthorFollowers *int            `json:"author_followers,omitempty"`
	Community       string          `json:"community"`
	Upvotes         int             `json:"upvotes"`
	Downvotes       *int            `json:"downvotes,omitempty"`
	CommentCount    int             `json:"comment_count"`
	CanonicalURL    string          `json:"canonical_url"`
	Source          string          `json:"source,omitempty"` // adapter that last observed the post
	CreatedAt       *time.Time      `json:"created_at,omitempty"`
	DiscoveredAt    time.Time       `json:"discovered_at"`
	DiscoveryEpoch  int64           `json:"discovery_epoch"`
	Published       bool            `json:"published"`
	PublishedAt     *time.Time      `json:"published_at,omitempty"`
	PublishedText   *string         `json:"published_text,omitempty"`
	Score           *int            `json:"score,omitempty"`
	DetailComments  json.RawMessage `json:"detail_comments,omitempty"`
}

// Text returns title and body joined, the haystack used for keyword matching.
func (p Post) Text() string {
	return p.BodyText + " " + p.Title
}

// Age reports how long ago the post appeared, preferring the source timestamp.
func (p Post) Age(now time.Time) time.Duration {
	if p.CreatedAt != nil && !p.CreatedAt.IsZero() {
		return now.Sub(*p.CreatedAt)
	}
	return now.Sub(p.DiscoveredAt)
}

// WithScore returns a copy of the post carrying score.
func (p Post) WithScore(score int) Post {
	p.Score = &score
	return p
}

// MergeFrom folds a newer observation of the same post into p.
// Content fields follow the newer observation, the discovery stamp stays
// with the first observation and the publish state never goes back to false.
func (p *Post) MergeFrom(newer Post) {
	if newer.ID != p.ID {
		return
	}
	p.Title = preferNonEmpty(newer.Title, p.Title)
	p.BodyText = preferNonEmpty(newer.BodyText, p.BodyText)
	p.AuthorName = preferNonEmpty(newer.AuthorName, p.AuthorName)
	p.CanonicalURL = preferNonEmpty(newer.CanonicalURL, p.CanonicalURL)
	p.Source = preferNonEmpty(newer.Source, p.Source)
	if newer.Community != "" && (newer.Community != DefaultCommunity || p.Community == "") {
		p.Community = newer.Community
	}
	p.Upvotes = newer.Upvotes
	p.CommentCount = newer.CommentCount

	if newer.AuthorID != nil {
		p.AuthorID = newer.AuthorID
	}
	if newer.AuthorKarma != nil {
		p.AuthorKarma = newer.AuthorKarma
	}
	if newer.AuthorFollowers != nil {
		p.AuthorFollowers = newer.AuthorFollowers
	}
	if newer.Downvotes != nil {
		p.Downvotes = newer.Downvotes
	}
	if newer.CreatedAt != nil {
		p.CreatedAt = newer.CreatedAt
	}
	if len(newer.DetailComments) > 0 {
		p.DetailComments = newer.DetailComments
	}

	if !p.Published && newer.Published {
		p.Published = true
		p.PublishedAt = newer.PublishedAt
		p.PublishedText = newer.PublishedText
	}
	p.Score = nil
}

// MarkPublished flips the post to published. It reports false when the post
// was already published, in which case nothing changes.
func (p *Post) MarkPublished(at time.Time, text string) bool {
	if p.Published {
		return false
	}
	p.Published = true
	p.PublishedAt = &at
	p.PublishedText = &text
	return true
}

func preferNonEmpty(newer, older string) string {
	if strings.TrimSpace(newer) == "" {
		return older
	}
	return newer
}

// PublishedHistoryEntry records one published post, independent of the corpus.
type PublishedHistoryEntry struct {
	ID           string    `json:"-"`
	PublishedAt  time.Time `json:"published_at"`
	Title        string    `json:"title"`
	CanonicalURL string    `json:"canonical_url"`
}

// RawItem is a listing entry as one adapter observed it, before normalization.
// Empty strings and nil pointers mean the adapter could not observe the field.
type RawItem struct {
	NativeID        string
	Title           string
	Body            string
	AuthorName      string
	AuthorID        *string
	AuthorKarma     *int
	AuthorFollowers *int
	Community       string
	Upvotes         int
	Downvotes       *int
	Comments        int
	URL             string
	CreatedAt       *time.Time
	CommentsData    json.RawMessage
	Source          string
}

// RawDetail is the enriched view of a single post, including its comment tree.
type RawDetail struct {
	RawItem
}
