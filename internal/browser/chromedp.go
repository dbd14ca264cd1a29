package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/eligo/internal/common"
	"github.com/ternarybob/eligo/internal/interfaces"
)

// Driver implements interfaces.PageDriver on a dedicated headless-Chrome
// instance. Each driver owns its own exec allocator bound to an isolated
// user-data directory, so concurrent runs never share browser state.
type Driver struct {
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	navTimeout      time.Duration
	logger          arbor.ILogger
}

// NewDriver launches a browser bound to the given profile directory.
func NewDriver(ctx context.Context, config *common.BrowserConfig, profileDir string, logger arbor.ILogger) (*Driver, error) {
	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("disable-gpu", config.DisableGPU),
		chromedp.Flag("no-sandbox", config.NoSandbox),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserDataDir(profileDir),
	)
	if config.UserAgent != "" {
		allocatorOpts = append(allocatorOpts, chromedp.UserAgent(config.UserAgent))
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	// Startup test so a missing Chrome binary fails the run up front rather
	// than on the first navigation.
	startCtx, startCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer startCancel()
	if err := chromedp.Run(startCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("browser failed to start: %w", err)
	}

	logger.Debug().
		Str("profile_dir", profileDir).
		Bool("headless", config.Headless).
		Msg("Browser instance started")

	return &Driver{
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
		navTimeout:      common.ParseDurationOr(config.NavigationTimeout, 45*time.Second),
		logger:          logger,
	}, nil
}

// run executes chromedp actions against the browser, honouring both the
// caller's context and the configured navigation timeout.
func (d *Driver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	runCtx := d.browserCtx
	var cancels []context.CancelFunc
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		cancels = append(cancels, cancel)
	}

	// Propagate caller cancellation into the browser context.
	done := make(chan struct{})
	defer close(done)
	stopCtx, stopCancel := context.WithCancel(runCtx)
	cancels = append(cancels, stopCancel)
	go func() {
		select {
		case <-ctx.Done():
			stopCancel()
		case <-done:
		}
	}()

	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	return chromedp.Run(stopCtx, actions...)
}

// Navigate loads the URL and waits for the document body to be ready.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := d.run(ctx, d.navTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Exists reports whether the CSS selector matches at least one node.
func (d *Driver) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	expr := fmt.Sprintf("document.querySelector(%q) !== null", selector)
	if err := d.run(ctx, 10*time.Second, chromedp.Evaluate(expr, &found)); err != nil {
		return false, fmt.Errorf("query selector %s: %w", selector, err)
	}
	return found, nil
}

// Click clicks the first visible node matching the CSS selector.
func (d *Driver) Click(ctx context.Context, selector string) error {
	if err := d.run(ctx, 10*time.Second, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// Evaluate runs a JavaScript expression in the page. Promises are awaited so
// callers can use async in-page fetches.
func (d *Driver) Evaluate(ctx context.Context, expression string, out interface{}) error {
	await := func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}

	var action chromedp.Action
	if out == nil {
		var discard []byte
		action = chromedp.Evaluate(expression, &discard, await)
	} else {
		action = chromedp.Evaluate(expression, out, await)
	}

	if err := d.run(ctx, 30*time.Second, action); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

// HTML returns the outer HTML of the first node matching the selector.
func (d *Driver) HTML(ctx context.Context, selector string) (string, error) {
	var html string
	if err := d.run(ctx, 15*time.Second, chromedp.OuterHTML(selector, &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("outer html %s: %w", selector, err)
	}
	return html, nil
}

// Cookies returns the cookies visible to the current page.
func (d *Driver) Cookies(ctx context.Context) ([]interfaces.Cookie, error) {
	var cookies []interfaces.Cookie
	err := d.run(ctx, 10*time.Second, chromedp.ActionFunc(func(ctx context.Context) error {
		raw, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range raw {
			cookies = append(cookies, interfaces.Cookie{
				Name:   c.Name,
				Value:  c.Value,
				Domain: c.Domain,
				Path:   c.Path,
			})
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	return cookies, nil
}

// Close shuts down the browser and its allocator.
func (d *Driver) Close() error {
	d.browserCancel()
	d.allocatorCancel()
	d.logger.Debug().Msg("Browser instance closed")
	return nil
}
