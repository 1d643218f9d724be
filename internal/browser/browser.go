// Package browser renders product pages in headless Chromium and exposes
// them through the same Fetcher contract as the plain HTTP client.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/product-resolver/internal/fetch"
	"github.com/playwright-community/playwright-go"
)

type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        fetch.DefaultTimeout,
		UserAgent:      fetch.DefaultUserAgent,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		TimezoneID:     "Europe/London",
		Locale:         "en-GB",
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": "en-GB,en;q=0.9",
		},
	}
}

func New(opts *Options, logger *slog.Logger) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = fetch.DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
		},
	}
	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: opts.ExtraHeaders,
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: bctx,
		opts:    opts,
		logger:  logger.With("component", "browser"),
	}, nil
}

// Fetch opens a fresh tab, navigates once and returns the rendered DOM.
// Like the HTTP fetcher it never fails on a non-2xx status.
func (b *Browser) Fetch(ctx context.Context, rawURL string) (*fetch.Page, error) {
	if _, err := fetch.ParseURL(rawURL); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, classify(ctx, rawURL, err)
	}

	page, err := b.context.NewPage()
	if err != nil {
		return nil, classify(ctx, rawURL, fmt.Errorf("failed to create new page: %w", err))
	}
	defer page.Close()

	timeout := navigationTimeout(ctx, b.opts.Timeout)
	start := time.Now()

	resp, err := page.Goto(rawURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return nil, classify(ctx, rawURL, err)
	}

	content, err := page.Content()
	if err != nil {
		return nil, classify(ctx, rawURL, fmt.Errorf("failed to read content: %w", err))
	}

	result := &fetch.Page{
		URL:        rawURL,
		FinalURL:   page.URL(),
		StatusCode: 200,
		Body:       content,
	}
	if resp != nil {
		result.StatusCode = resp.Status()
		result.ContentType = resp.Headers()["content-type"]
	}

	b.logger.Debug("page rendered",
		"url", rawURL,
		"status", result.StatusCode,
		"bytes", len(content),
		"duration", time.Since(start))

	return result, nil
}

// classify maps browser and context failures onto the fetch error kinds.
func classify(ctx context.Context, rawURL string, err error) error {
	if errors.Is(err, playwright.ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", fetch.ErrFetchTimeout, rawURL, err)
	}
	return fmt.Errorf("%w: %s: %v", fetch.ErrFetchNetwork, rawURL, err)
}

// navigationTimeout shrinks the configured timeout to the context deadline.
func navigationTimeout(ctx context.Context, configured time.Duration) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return configured
	}
	remaining := time.Until(deadline)
	if remaining < configured {
		if remaining < time.Millisecond {
			return time.Millisecond
		}
		return remaining
	}
	return configured
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}
