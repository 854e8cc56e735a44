package render

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog"

	"molt-highlights/internal/core/ports"
)

type StaticOptions struct {
	Timeout time.Duration
	// Delay spaces requests to the same host.
	Delay  time.Duration
	Logger zerolog.Logger
}

// Static fetches server-rendered HTML without a browser. It cannot click,
// so a ClickText is sent as the lowercased "sort" query parameter instead.
type Static struct {
	collector *colly.Collector
	log       zerolog.Logger
}

func NewStatic(opts StaticOptions) *Static {
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	)
	if opts.Timeout > 0 {
		c.SetRequestTimeout(opts.Timeout)
	}
	if opts.Delay > 0 {
		c.Limit(&colly.LimitRule{
			DomainGlob:  "*",
			Delay:       opts.Delay,
			RandomDelay: opts.Delay / 2,
		})
	}
	return &Static{
		collector: c,
		log:       opts.Logger.With().Str("renderer", "static").Logger(),
	}
}

var _ ports.Renderer = (*Static)(nil)

func (s *Static) Render(ctx context.Context, req ports.RenderRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target, err := withSort(req.URL, req.ClickText)
	if err != nil {
		return "", err
	}

	c := s.collector.Clone()
	var (
		body     string
		found    bool
		visitErr error
	)
	c.OnResponse(func(r *colly.Response) {
		body = string(r.Body)
	})
	if req.WaitSelector != "" {
		c.OnHTML(req.WaitSelector, func(e *colly.HTMLElement) {
			found = true
		})
	}
	c.OnError(func(r *colly.Response, err error) {
		visitErr = fmt.Errorf("fetch %s: status %d: %w", r.Request.URL, r.StatusCode, err)
	})
	c.OnRequest(func(r *colly.Request) {
		s.log.Debug().Str("url", r.URL.String()).Msg("visiting")
	})

	if err := c.Visit(target); err != nil && visitErr == nil {
		visitErr = fmt.Errorf("fetch %s: %w", target, err)
	}
	if visitErr != nil {
		return "", visitErr
	}
	if req.WaitSelector != "" && !found {
		return "", fmt.Errorf("%w: %q on %s", ErrContainerMissing, req.WaitSelector, target)
	}
	return body, nil
}

func (s *Static) Close() error {
	return nil
}

func withSort(raw, label string) (string, error) {
	if label == "" {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	q := u.Query()
	q.Set("sort", strings.ToLower(strings.TrimSpace(label)))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
