package moltbook

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"molt-highlights/internal/core/domain"
	"molt-highlights/internal/core/normalize"
	"molt-highlights/internal/core/ports"
)

// Selectors are the structural queries used against the rendered site.
type Selectors struct {
	Container     string
	Item          string
	Title         string
	Body          string
	Upvotes       string
	DetailTitle   string
	DetailBody    []string
	DetailAuthor  []string
	DetailSubmolt []string
	DetailUpvotes []string
}

// DefaultSelectors match the public Moltbook front page.
var DefaultSelectors = Selectors{
	Container:     ".divide-y",
	Item:          "a.flex.gap-2",
	Title:         "h3",
	Body:          "p",
	Upvotes:       ".font-bold",
	DetailTitle:   "h1, h2, h3",
	DetailBody:    []string{"p.prose", ".prose p", "article p", ".content p", `div[class*="content"] p`, "main p"},
	DetailAuthor:  []string{`a[href*="/u/"]`, ".author", `[class*="author"]`},
	DetailSubmolt: []string{`a[href*="/m/"]`, ".submolt"},
	DetailUpvotes: []string{".vote-count", `[class*="vote"] .font-bold`, ".upvote-count"},
}

var (
	submoltRe  = regexp.MustCompile(`m/[\w-]+`)
	authorRe   = regexp.MustCompile(`u/([\w-]+)`)
	commentsRe = regexp.MustCompile(`💬\s*(\d+)`)
	digitsRe   = regexp.MustCompile(`\d+`)
)

// BrowserOptions configures the rendered-page adapter.
type BrowserOptions struct {
	SiteURL     string
	Renderer    ports.Renderer
	Selectors   *Selectors
	VisitPosts  bool
	WaitTimeout time.Duration
	Logger      zerolog.Logger
}

// Browser reads the site through a page renderer. It is slower than the API
// and only sees what the page shows, so it never has native post IDs.
type Browser struct {
	siteURL     string
	renderer    ports.Renderer
	sel         Selectors
	visitPosts  bool
	waitTimeout time.Duration
	log         zerolog.Logger

	mu   sync.Mutex
	urls map[string]string // derived id -> post url, from the last listing
}

func NewBrowser(opts BrowserOptions) *Browser {
	site := strings.TrimRight(strings.TrimSpace(opts.SiteURL), "/")
	if site == "" {
		site = normalize.SiteURL
	}
	sel := DefaultSelectors
	if opts.Selectors != nil {
		sel = *opts.Selectors
	}
	wait := opts.WaitTimeout
	if wait <= 0 {
		wait = 10 * time.Second
	}
	return &Browser{
		siteURL:     site,
		renderer:    opts.Renderer,
		sel:         sel,
		visitPosts:  opts.VisitPosts,
		waitTimeout: wait,
		log:         opts.Logger.With().Str("source", "browser").Logger(),
		urls:        make(map[string]string),
	}
}

var _ ports.Source = (*Browser)(nil)

func (b *Browser) Name() string {
	return "browser"
}

// FetchListing renders the front page, switches it to the requested sort and
// extracts up to limit items. A missing listing container fails the call;
// a bad field only degrades that field.
func (b *Browser) FetchListing(ctx context.Context, sort string, limit int) domain.FetchResult {
	req := ports.RenderRequest{
		URL:          b.siteURL,
		WaitSelector: b.sel.Container,
		WaitTimeout:  b.waitTimeout,
	}
	if sort == "top" {
		req.ClickText = "Top"
	}
	html, err := b.renderer.Render(ctx, req)
	if err != nil {
		return domain.Failed(b.Name(), domain.NewSourceError(b.Name(), domain.ErrSourceProtocol, err))
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return domain.Failed(b.Name(), domain.NewSourceError(b.Name(), domain.ErrSourceProtocol, fmt.Errorf("parse listing: %w", err)))
	}
	if doc.Find(b.sel.Container).Length() == 0 {
		return domain.Failed(b.Name(), domain.NewSourceError(b.Name(), domain.ErrSourceProtocol,
			fmt.Errorf("listing container %q not found", b.sel.Container)))
	}

	var items []domain.RawItem
	doc.Find(b.sel.Item).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if limit > 0 && len(items) >= limit {
			return false
		}
		item, ok := b.listItem(i, s)
		if ok {
			items = append(items, item)
		}
		return true
	})

	if b.visitPosts {
		for i := range items {
			if ctx.Err() != nil {
				break
			}
			b.enrich(ctx, &items[i])
		}
	}

	b.remember(items)
	b.log.Info().Int("posts", len(items)).Str("sort", sort).Msg("scraped listing")
	return domain.OK(b.Name(), items)
}

// FetchDetail renders a single post page. Native IDs map to /post/<id>;
// hashed IDs resolve only for posts seen in the last listing.
func (b *Browser) FetchDetail(ctx context.Context, id string) (*domain.RawDetail, error) {
	b.mu.Lock()
	u, ok := b.urls[id]
	b.mu.Unlock()
	if !ok {
		u = b.siteURL + "/post/" + id
	}
	item := domain.RawItem{URL: u, Source: b.Name()}
	if err := b.visit(ctx, &item); err != nil {
		return nil, err
	}
	if item.Title == "" && item.Body == "" {
		return nil, nil
	}
	return &domain.RawDetail{RawItem: item}, nil
}

func (b *Browser) remember(items []domain.RawItem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, it := range items {
		if it.URL == "" {
			continue
		}
		b.urls[resolvedID(it)] = it.URL
	}
}

// resolvedID is the ID Normalize will give the item.
func resolvedID(it domain.RawItem) string {
	if it.NativeID != "" {
		return it.NativeID
	}
	if id := normalize.PostID(it.URL); id != "" {
		return id
	}
	return normalize.DeriveID(normalize.CanonicalURL(it.URL), it.Title)
}

// listItem extracts one listing entry. Only an entry with neither URL nor
// title is dropped, since nothing could identify it.
func (b *Browser) listItem(idx int, s *goquery.Selection) (item domain.RawItem, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Warn().Int("item", idx).Interface("panic", r).Msg("item extraction aborted")
			ok = item.URL != "" || item.Title != ""
		}
	}()

	item.Source = b.Name()
	item.URL = field(b, idx, "url", "", func() (string, error) {
		href, exists := s.Attr("href")
		if !exists {
			return "", errors.New("no href")
		}
		return absolute(b.siteURL, href), nil
	})
	item.NativeID = normalize.PostID(item.URL)
	item.Title = field(b, idx, "title", "", func() (string, error) {
		return requireText(s.Find(b.sel.Title).First())
	})
	text := s.Text()
	item.Body = field(b, idx, "body", "", func() (string, error) {
		return requireText(s.Find(b.sel.Body).First())
	})
	item.Upvotes = field(b, idx, "upvotes", 0, func() (int, error) {
		return atoi(s.Find(b.sel.Upvotes).First().Text())
	})
	item.Community = field(b, idx, "community", domain.DefaultCommunity, func() (string, error) {
		if m := submoltRe.FindString(text); m != "" {
			return m, nil
		}
		return "", errors.New("no community tag")
	})
	item.AuthorName = field(b, idx, "author", "", func() (string, error) {
		if m := authorRe.FindStringSubmatch(text); m != nil {
			return m[1], nil
		}
		return "", errors.New("no author tag")
	})
	item.Comments = field(b, idx, "comments", 0, func() (int, error) {
		if m := commentsRe.FindStringSubmatch(text); m != nil {
			return strconv.Atoi(m[1])
		}
		return 0, errors.New("no comment count")
	})
	return item, item.URL != "" || item.Title != ""
}

// enrich visits the item's own page. Any failure keeps the listing data.
func (b *Browser) enrich(ctx context.Context, item *domain.RawItem) {
	if item.URL == "" {
		return
	}
	if err := b.visit(ctx, item); err != nil {
		b.log.Warn().Err(err).Str("url", item.URL).Msg("post visit failed, keeping listing data")
	}
}

func (b *Browser) visit(ctx context.Context, item *domain.RawItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: visit %s: %v", domain.ErrExtraction, item.URL, r)
		}
	}()

	html, err := b.renderer.Render(ctx, ports.RenderRequest{
		URL:          item.URL,
		WaitSelector: b.sel.DetailTitle,
		WaitTimeout:  b.waitTimeout,
	})
	if err != nil {
		return domain.NewSourceError(b.Name(), domain.ErrSourceProtocol, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return domain.NewSourceError(b.Name(), domain.ErrSourceProtocol, fmt.Errorf("parse post page: %w", err))
	}

	if item.NativeID == "" {
		item.NativeID = normalize.PostID(item.URL)
	}

	const idx = -1
	item.Title = field(b, idx, "detail title", item.Title, func() (string, error) {
		return requireText(doc.Find(b.sel.DetailTitle).First())
	})
	item.Body = field(b, idx, "detail body", item.Body, func() (string, error) {
		for _, q := range b.sel.DetailBody {
			var parts []string
			doc.Find(q).EachWithBreak(func(i int, p *goquery.Selection) bool {
				if t := strings.TrimSpace(p.Text()); len(t) > 10 {
					parts = append(parts, t)
				}
				return len(parts) < 10
			})
			if len(parts) > 0 {
				return strings.Join(parts, "\n\n"), nil
			}
		}
		return "", errors.New("no content paragraphs")
	})
	item.AuthorName = field(b, idx, "detail author", item.AuthorName, func() (string, error) {
		for _, q := range b.sel.DetailAuthor {
			t := strings.TrimSpace(doc.Find(q).First().Text())
			if strings.HasPrefix(t, "u/") {
				return t[2:], nil
			}
			if t != "" && !strings.Contains(t, "/") && len(t) > 2 {
				return t, nil
			}
		}
		return "", errors.New("no author element")
	})
	item.Community = field(b, idx, "detail community", item.Community, func() (string, error) {
		for _, q := range b.sel.DetailSubmolt {
			if t := strings.TrimSpace(doc.Find(q).First().Text()); strings.HasPrefix(t, "m/") {
				return t, nil
			}
		}
		return "", errors.New("no community element")
	})
	item.Upvotes = field(b, idx, "detail upvotes", item.Upvotes, func() (int, error) {
		for _, q := range b.sel.DetailUpvotes {
			if n, err := atoi(doc.Find(q).First().Text()); err == nil {
				return n, nil
			}
		}
		return 0, errors.New("no vote count")
	})
	item.Comments = field(b, idx, "detail comments", item.Comments, func() (int, error) {
		if m := commentsRe.FindStringSubmatch(doc.Text()); m != nil {
			return strconv.Atoi(m[1])
		}
		return 0, errors.New("no comment count")
	})
	return nil
}

// field runs one extraction in its own failure scope and falls back to def.
func field[T any](b *Browser, idx int, name string, def T, fn func() (T, error)) (out T) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Debug().Int("item", idx).Str("field", name).Interface("panic", r).Msg("field extraction failed")
			out = def
		}
	}()
	v, err := fn()
	if err != nil {
		b.log.Debug().Int("item", idx).Str("field", name).Err(fmt.Errorf("%w: %v", domain.ErrExtraction, err)).Msg("using default")
		return def
	}
	return v
}

func requireText(s *goquery.Selection) (string, error) {
	if s.Length() == 0 {
		return "", errors.New("element not found")
	}
	t := strings.TrimSpace(s.Text())
	if t == "" {
		return "", errors.New("element empty")
	}
	return t, nil
}

func atoi(s string) (int, error) {
	m := digitsRe.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return 0, fmt.Errorf("no number in %q", s)
	}
	return strconv.Atoi(m)
}

func absolute(site, href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return site + href
}
