// Package normalize turns raw adapter payloads into canonical posts.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"
	"time"

	"molt-highlights/internal/core/domain"
)

// SiteURL is the public base used for canonical post URLs.
const SiteURL = "https://www.moltbook.com"

// DeriveID hashes the canonical URL, or the title when no URL is known. It is
// only used when neither the payload nor the URL carries a native ID.
func DeriveID(url, title string) string {
	key := strings.TrimSpace(url)
	if key == "" {
		key = strings.TrimSpace(title)
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// CanonicalURL makes href absolute under the site and drops query and fragment.
func CanonicalURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	if strings.HasPrefix(href, "/") {
		href = SiteURL + href
	}
	return strings.TrimRight(href, "/")
}

var postPathRe = regexp.MustCompile(`/post/([^/?#]+)`)

// PostID returns the native post ID carried in a post URL ("/post/<id>"),
// or "" when href is not a post link.
func PostID(href string) string {
	m := postPathRe.FindStringSubmatch(CanonicalURL(href))
	if m == nil {
		return ""
	}
	return m[1]
}

// Community formats a community name as "m/<name>", defaulting to "general".
func Community(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.DefaultCommunity
	}
	if strings.HasPrefix(name, "m/") {
		return name
	}
	return "m/" + name
}

// Normalize converts raw into a Post stamped with now and epoch.
func Normalize(raw domain.RawItem, now time.Time, epoch int64) domain.Post {
	url := CanonicalURL(raw.URL)
	id := strings.TrimSpace(raw.NativeID)
	if id == "" {
		id = PostID(url)
	}
	if id == "" {
		id = DeriveID(url, raw.Title)
	} else if url == "" {
		url = SiteURL + "/post/" + id
	}

	return domain.Post{
		ID:              id,
		Title:           strings.TrimSpace(raw.Title),
		BodyText:        strings.TrimSpace(raw.Body),
		AuthorName:      strings.TrimSpace(raw.AuthorName),
		AuthorID:        raw.AuthorID,
		AuthorKarma:     raw.AuthorKarma,
		AuthorFollowers: raw.AuthorFollowers,
		Community:       Community(raw.Community),
		Upvotes:         nonNegative(raw.Upvotes),
		Downvotes:       nonNegativePtr(raw.Downvotes),
		CommentCount:    nonNegative(raw.Comments),
		CanonicalURL:    url,
		Source:          raw.Source,
		CreatedAt:       raw.CreatedAt,
		DiscoveredAt:    now,
		DiscoveryEpoch:  epoch,
		DetailComments:  raw.CommentsData,
	}
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func nonNegativePtr(n *int) *int {
	if n == nil {
		return nil
	}
	v := nonNegative(*n)
	return &v
}

// Stamper hands out discovery stamps for one run. Epochs are Unix seconds
// but strictly increase across calls, so epoch order follows call order.
type Stamper struct {
	clock func() time.Time
	mu    sync.Mutex
	last  int64
}

// NewStamper returns a stamper reading time from clock.
func NewStamper(clock func() time.Time) *Stamper {
	if clock == nil {
		clock = time.Now
	}
	return &Stamper{clock: clock}
}

// Next returns the wall-clock time and the epoch for the next normalization.
func (s *Stamper) Next() (time.Time, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	epoch := now.Unix()
	if epoch <= s.last {
		epoch = s.last + 1
	}
	s.last = epoch
	return now, epoch
}

// All normalizes a batch in order with stamps from s.
func (s *Stamper) All(items []domain.RawItem) []domain.Post {
	out := make([]domain.Post, 0, len(items))
	for _, raw := range items {
		now, epoch := s.Next()
		out = append(out, Normalize(raw, now, epoch))
	}
	return out
}
