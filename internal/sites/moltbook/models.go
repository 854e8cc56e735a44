package moltbook

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"molt-highlights/internal/core/domain"
)

type apiAuthor struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Karma         *int   `json:"karma"`
	FollowerCount *int   `json:"follower_count"`
}

type apiSubmolt struct {
	Name string `json:"name"`
}

// ApiPost is a post as returned by the Moltbook API.
type ApiPost struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Content      string      `json:"content"`
	URL          string      `json:"url"`
	Author       *apiAuthor  `json:"author"`
	Submolt      *apiSubmolt `json:"submolt"`
	Upvotes      int         `json:"upvotes"`
	Downvotes    *int        `json:"downvotes"`
	CommentCount int         `json:"comment_count"`
	CreatedAt    string      `json:"created_at"`
}

// Items are kept raw so one malformed post cannot fail the whole listing.
type listingResponse struct {
	Success bool              `json:"success"`
	Posts   []json.RawMessage `json:"posts"`
	Count   int               `json:"count"`
	HasMore bool              `json:"has_more"`
	Error   string            `json:"error"`
}

type detailResponse struct {
	Success  bool            `json:"success"`
	Post     json.RawMessage `json:"post"`
	Comments json.RawMessage `json:"comments"`
	Error    string          `json:"error"`
}

type rawFields map[string]json.RawMessage

// decodePost reads a post field by field. A field with an unexpected type
// falls back to its zero value; only a payload that is not an object fails.
func decodePost(data json.RawMessage, log zerolog.Logger) (ApiPost, error) {
	var f rawFields
	if err := json.Unmarshal(data, &f); err != nil {
		return ApiPost{}, err
	}
	if f == nil {
		return ApiPost{}, errors.New("null post")
	}
	p := ApiPost{ID: jsonField(f, "id", "", log)}
	log = log.With().Str("post", p.ID).Logger()
	p.Title = jsonField(f, "title", "", log)
	p.Content = jsonField(f, "content", "", log)
	p.URL = jsonField(f, "url", "", log)
	p.Upvotes = jsonField(f, "upvotes", 0, log)
	p.Downvotes = jsonField[*int](f, "downvotes", nil, log)
	p.CommentCount = jsonField(f, "comment_count", 0, log)
	p.CreatedAt = jsonField(f, "created_at", "", log)

	if a := jsonField[rawFields](f, "author", nil, log); a != nil {
		p.Author = &apiAuthor{
			ID:            jsonField(a, "id", "", log),
			Name:          jsonField(a, "name", "", log),
			Karma:         jsonField[*int](a, "karma", nil, log),
			FollowerCount: jsonField[*int](a, "follower_count", nil, log),
		}
	}
	if s := jsonField[rawFields](f, "submolt", nil, log); s != nil {
		p.Submolt = &apiSubmolt{Name: jsonField(s, "name", "", log)}
	}
	return p, nil
}

func jsonField[T any](f rawFields, name string, def T, log zerolog.Logger) T {
	raw, ok := f[name]
	if !ok || string(raw) == "null" {
		return def
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Debug().Err(domain.ErrExtraction).AnErr("cause", err).Str("field", name).Msg("field decode failed, using default")
		return def
	}
	return v
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
