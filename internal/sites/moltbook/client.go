package moltbook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"molt-highlights/internal/core/domain"
	"molt-highlights/internal/core/ports"
)

const (
	DefaultBaseURL     = "https://www.moltbook.com/api/v1"
	DefaultTimeout     = 8 * time.Minute
	DefaultMaxAttempts = 3
	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = 30 * time.Second

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// ClientOptions configures the API client. Zero values pick the defaults.
type ClientOptions struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// RPS caps request rate; 0 disables pacing.
	RPS    float64
	Logger zerolog.Logger
}

// Client is the Moltbook REST API adapter.
type Client struct {
	BaseURL     string
	HTTPClient  *http.Client
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	limiter     *rate.Limiter
	log         zerolog.Logger
}

func NewClient(opts ClientOptions) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	backoff := opts.BackoffBase
	if backoff <= 0 {
		backoff = DefaultBackoffBase
	}
	backoffMax := opts.BackoffMax
	if backoffMax <= 0 {
		backoffMax = DefaultBackoffMax
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}
	return &Client{
		BaseURL:     base,
		HTTPClient:  &http.Client{Timeout: timeout},
		maxAttempts: attempts,
		backoffBase: backoff,
		backoffMax:  backoffMax,
		limiter:     limiter,
		log:         opts.Logger.With().Str("source", "api").Logger(),
	}
}

// Ensure Client implements Source interface
var _ ports.Source = (*Client)(nil)

func (c *Client) Name() string {
	return "api"
}

// FetchListing implements ports.Source
func (c *Client) FetchListing(ctx context.Context, sort string, limit int) domain.FetchResult {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sort", sort)

	body, err := c.get(ctx, c.BaseURL+"/posts?"+q.Encode())
	if err != nil {
		return domain.Failed(c.Name(), err)
	}

	var data listingResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return domain.Failed(c.Name(), c.protocolError(fmt.Errorf("decode listing: %w", err)))
	}
	if !data.Success {
		return domain.Failed(c.Name(), c.protocolError(fmt.Errorf("listing reported success=false: %s", data.Error)))
	}

	items := make([]domain.RawItem, 0, len(data.Posts))
	for i, raw := range data.Posts {
		p, err := decodePost(raw, c.log)
		if err != nil {
			c.log.Warn().Err(err).Int("item", i).Msg("listing item is not a post, skipping")
			continue
		}
		items = append(items, c.toRaw(p))
	}
	c.log.Info().Int("posts", len(items)).Str("sort", sort).Msg("fetched listing")
	return domain.OK(c.Name(), items)
}

// FetchDetail implements ports.Source
func (c *Client) FetchDetail(ctx context.Context, id string) (*domain.RawDetail, error) {
	body, err := c.get(ctx, c.BaseURL+"/posts/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	var data detailResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, c.protocolError(fmt.Errorf("decode detail: %w", err))
	}
	if !data.Success || len(data.Post) == 0 || string(data.Post) == "null" {
		return nil, nil
	}
	post, err := decodePost(data.Post, c.log)
	if err != nil {
		return nil, c.protocolError(fmt.Errorf("decode detail post: %w", err))
	}
	raw := c.toRaw(post)
	if len(data.Comments) > 0 && string(data.Comments) != "null" {
		raw.CommentsData = data.Comments
	}
	return &domain.RawDetail{RawItem: raw}, nil
}

// toRaw maps an API post, leaving fields the payload omitted at their zero value.
func (c *Client) toRaw(p ApiPost) domain.RawItem {
	raw := domain.RawItem{
		NativeID:  p.ID,
		Title:     p.Title,
		Body:      p.Content,
		Upvotes:   p.Upvotes,
		Downvotes: p.Downvotes,
		Comments:  p.CommentCount,
		URL:       p.URL,
		CreatedAt: parseTime(p.CreatedAt),
		Source:    c.Name(),
	}
	if p.Author != nil {
		raw.AuthorName = p.Author.Name
		if p.Author.ID != "" {
			id := p.Author.ID
			raw.AuthorID = &id
		}
		raw.AuthorKarma = p.Author.Karma
		raw.AuthorFollowers = p.Author.FollowerCount
	} else {
		c.log.Debug().Str("post", p.ID).Err(domain.ErrExtraction).Msg("author missing")
	}
	if p.Submolt != nil {
		raw.Community = p.Submolt.Name
	}
	return raw
}

func (c *Client) protocolError(err error) error {
	return domain.NewSourceError(c.Name(), domain.ErrSourceProtocol, err)
}

// retryable reports whether a status is worth another attempt.
func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// get performs a GET with the retry budget. Transport errors and retryable
// statuses consume attempts; other statuses fail immediately.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, domain.NewSourceError(c.Name(), domain.ErrTransientNetwork, err)
		}

		body, status, retryAfter, err := c.do(ctx, u)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, domain.NewSourceError(c.Name(), domain.ErrTransientNetwork, ctx.Err())
			}
			lastErr = err
		case retryable(status):
			lastErr = fmt.Errorf("http status %d", status)
		case status < 200 || status >= 300:
			return nil, c.protocolError(fmt.Errorf("http status %d", status))
		default:
			return body, nil
		}

		if attempt+1 >= c.maxAttempts {
			break
		}
		wait := c.backoff(attempt, retryAfter)
		c.log.Warn().Err(lastErr).Int("attempt", attempt+1).Dur("backoff", wait).Str("url", u).Msg("retrying request")
		select {
		case <-ctx.Done():
			return nil, domain.NewSourceError(c.Name(), domain.ErrTransientNetwork, ctx.Err())
		case <-time.After(wait):
		}
	}
	return nil, domain.NewSourceError(c.Name(), domain.ErrTransientNetwork,
		fmt.Errorf("%d attempts: %w", c.maxAttempts, lastErr))
}

func (c *Client) backoff(attempt int, retryAfter time.Duration) time.Duration {
	d := c.backoffBase * time.Duration(1<<attempt)
	if retryAfter > d {
		d = retryAfter
	}
	if d > c.backoffMax {
		d = c.backoffMax
	}
	return d + time.Duration(rand.Int63n(int64(c.backoffBase)/4+1))
}

func (c *Client) do(ctx context.Context, u string) ([]byte, int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", "https://www.moltbook.com/")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")), nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}
