// Package fetch retrieves product pages over plain HTTP.
//
// A fetch always yields the status code and whatever body the retailer sent,
// including error and bot-challenge pages. Only failures below HTTP (DNS,
// connect, TLS, timeout) are reported as errors.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/html/charset"
)

var (
	ErrInvalidURL   = errors.New("invalid product URL")
	ErrFetchTimeout = errors.New("product page fetch timed out")
	ErrFetchNetwork = errors.New("product page fetch failed")
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxBodyBytes = 5 << 20
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Page is the outcome of a single fetch.
type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        string
}

// OK reports whether the response had a 2xx status.
func (p *Page) OK() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}

// Fetcher abstracts how a page is retrieved.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

type Options struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	ExtraHeaders map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Timeout:      DefaultTimeout,
		UserAgent:    DefaultUserAgent,
		MaxBodyBytes: DefaultMaxBodyBytes,
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": "en-GB,en;q=0.9",
		},
	}
}

// HTTPFetcher issues one GET per call with browser-like headers.
type HTTPFetcher struct {
	client *http.Client
	opts   *Options
}

// New creates an HTTPFetcher. Zero-valued option fields fall back to defaults.
func New(opts *Options) *HTTPFetcher {
	defaults := DefaultOptions()
	if opts == nil {
		opts = defaults
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if opts.ExtraHeaders == nil {
		opts.ExtraHeaders = defaults.ExtraHeaders
	}

	return &HTTPFetcher{
		client: &http.Client{},
		opts:   opts,
	}
}

// NewWithClient lets callers supply their own transport (tests, proxies).
func NewWithClient(client *http.Client, opts *Options) *HTTPFetcher {
	f := New(opts)
	if client != nil {
		f.client = client
	}
	return f
}

// Timeout returns the per-fetch deadline.
func (f *HTTPFetcher) Timeout() time.Duration {
	return f.opts.Timeout
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if _, err := ParseURL(rawURL); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	for k, v := range f.opts.ExtraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(ctx, rawURL, err)
	}
	defer resp.Body.Close()

	page := &Page{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if readErr != nil {
		if ctx.Err() != nil || len(raw) == 0 {
			return nil, classify(ctx, rawURL, readErr)
		}
		// keep the partial body, retailers often cut challenge pages short
	}

	page.Body = decode(raw, page.ContentType)
	return page, nil
}

// ParseURL accepts only absolute http(s) URLs with a host.
func ParseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}

func classify(ctx context.Context, rawURL string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrFetchTimeout, rawURL, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", ErrFetchTimeout, rawURL, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrFetchNetwork, rawURL, err)
}

func decode(raw []byte, contentType string) string {
	if len(raw) == 0 {
		return ""
	}
	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return string(raw)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}
