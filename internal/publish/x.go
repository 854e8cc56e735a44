// Package publish submits generated text to its destination.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"molt-highlights/internal/core/ports"
)

const (
	DefaultHomeURL = "https://x.com/home"

	composeSelector = `[data-testid="tweetTextarea_0"]`
	submitSelector  = `[data-testid="tweetButtonInline"]`
)

type XOptions struct {
	HomeURL  string
	ExecPath string
	Headless bool
	// StepTimeout bounds each wait for a page control.
	StepTimeout time.Duration
	Logger      zerolog.Logger
}

// XPublisher posts through a real browser session restored from a cookie
// blob. A missing session or a changed page layout is an expected failure
// and returns ok=false; only a browser that cannot start is an error.
type XPublisher struct {
	homeURL     string
	execPath    string
	headless    bool
	stepTimeout time.Duration
	log         zerolog.Logger
}

func NewXPublisher(opts XOptions) *XPublisher {
	home := opts.HomeURL
	if home == "" {
		home = DefaultHomeURL
	}
	step := opts.StepTimeout
	if step <= 0 {
		step = 10 * time.Second
	}
	return &XPublisher{
		homeURL:     home,
		execPath:    opts.ExecPath,
		headless:    opts.Headless,
		stepTimeout: step,
		log:         opts.Logger.With().Str("publisher", "x").Logger(),
	}
}

var _ ports.Publisher = (*XPublisher)(nil)

// errExpected marks failures that mean "not posted" rather than "broken".
var errExpected = errors.New("publish step failed")

func (x *XPublisher) Publish(ctx context.Context, text, credential string) (bool, *string, error) {
	cookies, err := parseCookies(credential)
	if err != nil {
		x.log.Warn().Err(err).Msg("could not load session cookies")
		return false, nil, nil
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", x.headless),
		chromedp.WindowSize(1280, 900),
	)
	if x.execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(x.execPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	bctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	// Starting the browser is the only step whose failure is unexpected.
	if err := chromedp.Run(bctx); err != nil {
		return false, nil, fmt.Errorf("start browser: %w", err)
	}

	refreshed, err := x.post(bctx, text, cookies)
	if err != nil {
		if errors.Is(err, errExpected) {
			x.log.Warn().Err(err).Msg("tweet not posted")
			return false, nil, nil
		}
		return false, nil, err
	}
	x.log.Info().Int("chars", len([]rune(text))).Msg("tweet posted")
	return true, refreshed, nil
}

func (x *XPublisher) post(ctx context.Context, text string, cookies []sessionCookie) (*string, error) {
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			if err := c.params().Do(ctx); err != nil {
				x.log.Debug().Err(err).Str("cookie", c.Name).Msg("cookie rejected")
			}
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("%w: restore session: %v", errExpected, err)
	}

	var location string
	if err := x.step(ctx, "open home",
		chromedp.Navigate(x.homeURL),
		chromedp.Sleep(3*time.Second),
		chromedp.Location(&location),
	); err != nil {
		return nil, err
	}
	if strings.Contains(strings.ToLower(location), "login") {
		return nil, fmt.Errorf("%w: not logged in, session cookies need updating", errExpected)
	}

	if err := x.step(ctx, "compose",
		chromedp.WaitVisible(composeSelector, chromedp.ByQuery),
		chromedp.Click(composeSelector, chromedp.ByQuery),
		chromedp.Sleep(time.Second),
		chromedp.SendKeys(composeSelector, text, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
	); err != nil {
		return nil, err
	}

	if err := x.step(ctx, "submit",
		chromedp.WaitVisible(submitSelector, chromedp.ByQuery),
		chromedp.Click(submitSelector, chromedp.ByQuery),
		chromedp.Sleep(5*time.Second),
	); err != nil {
		return nil, err
	}

	var current []*network.Cookie
	err = chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		current, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		x.log.Warn().Err(err).Msg("posted but could not read refreshed cookies")
		return nil, nil
	}
	blob, err := encodeCookies(fromNetwork(current))
	if err != nil {
		return nil, nil
	}
	return &blob, nil
}

// step runs actions with the step timeout; any failure is an expected one.
func (x *XPublisher) step(ctx context.Context, name string, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(ctx, x.stepTimeout+10*time.Second)
	defer cancel()
	if err := chromedp.Run(stepCtx, actions...); err != nil {
		return fmt.Errorf("%w: %s: %v", errExpected, name, err)
	}
	return nil
}
