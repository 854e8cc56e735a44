// Package render loads pages for the browser fallback adapter.
package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"molt-highlights/internal/core/ports"
)

// ErrContainerMissing means the wait selector never matched within its budget.
var ErrContainerMissing = errors.New("wait selector not found")

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type ChromeOptions struct {
	// ExecPath overrides the Chrome binary lookup.
	ExecPath   string
	Headless   bool
	NavTimeout time.Duration
	Logger     zerolog.Logger
}

// Chrome renders pages in one headless browser, one tab per request.
type Chrome struct {
	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
	navTimeout    time.Duration
	log           zerolog.Logger
}

func NewChrome(opts ChromeOptions) *Chrome {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1280, 900),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	nav := opts.NavTimeout
	if nav <= 0 {
		nav = 30 * time.Second
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	return &Chrome{
		browserCtx:    browserCtx,
		cancelAlloc:   cancelAlloc,
		cancelBrowser: cancelBrowser,
		navTimeout:    nav,
		log:           opts.Logger.With().Str("renderer", "chrome").Logger(),
	}
}

var _ ports.Renderer = (*Chrome)(nil)

// Render navigates to req.URL, clicks the control labelled req.ClickText if
// the page has one, then waits for req.WaitSelector before taking the HTML.
func (c *Chrome) Render(ctx context.Context, req ports.RenderRequest) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(c.browserCtx)
	defer cancelTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, c.navTimeout+req.WaitTimeout)
	defer cancel()

	// The tab hangs off the browser context, so follow the caller's ctx by hand.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	navCtx, cancelNav := context.WithTimeout(tabCtx, c.navTimeout)
	err := chromedp.Run(navCtx, chromedp.Navigate(req.URL))
	cancelNav()
	if err != nil {
		return "", fmt.Errorf("navigate %s: %w", req.URL, err)
	}

	if req.ClickText != "" {
		c.click(tabCtx, req.ClickText)
	}

	if req.WaitSelector != "" {
		waitCtx, cancelWait := context.WithTimeout(tabCtx, req.WaitTimeout)
		err := chromedp.Run(waitCtx, chromedp.WaitVisible(req.WaitSelector, chromedp.ByQuery))
		cancelWait()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("%w: %q on %s", ErrContainerMissing, req.WaitSelector, req.URL)
		}
	}

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html %s: %w", req.URL, err)
	}
	return html, nil
}

// click activates the first button whose text contains label. A page
// without such a control is left as is.
func (c *Chrome) click(ctx context.Context, label string) {
	xpath := fmt.Sprintf(`//button[contains(normalize-space(.), %q)]`, strings.TrimSpace(label))
	var nodes []*cdp.Node
	if err := chromedp.Run(ctx, chromedp.Nodes(xpath, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		c.log.Debug().Err(err).Str("label", label).Msg("sort control lookup failed")
		return
	}
	if len(nodes) == 0 {
		c.log.Debug().Str("label", label).Msg("sort control not present")
		return
	}
	if err := chromedp.Run(ctx, chromedp.MouseClickNode(nodes[0]), chromedp.Sleep(time.Second)); err != nil {
		c.log.Warn().Err(err).Str("label", label).Msg("sort control click failed")
	}
}

func (c *Chrome) Close() error {
	c.cancelBrowser()
	c.cancelAlloc()
	return nil
}
