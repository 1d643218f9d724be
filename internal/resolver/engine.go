// Package resolver turns a retailer product URL into a canonical product
// record: one fetch, one parse, a generic baseline from structured data and
// an optional retailer-specific overlay.
//
// An Engine holds no per-call state and may be shared by any number of
// goroutines.
package resolver

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/product-resolver/internal/fetch"
	"github.com/maltedev/product-resolver/internal/models"
	"github.com/maltedev/product-resolver/internal/parser"
	"github.com/maltedev/product-resolver/internal/retailers"
)

type Engine struct {
	fetcher    fetch.Fetcher
	registry   *retailers.Registry
	dispatcher *Dispatcher
	logger     *slog.Logger
}

type Option func(*Engine)

// WithRegistry replaces the built-in retailer table.
func WithRegistry(registry *retailers.Registry) Option {
	return func(e *Engine) {
		e.registry = registry
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func New(fetcher fetch.Fetcher, opts ...Option) *Engine {
	e := &Engine{
		fetcher: fetcher,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.fetcher == nil {
		e.fetcher = fetch.New(nil)
	}
	if e.registry == nil {
		e.registry = retailers.Default()
	}
	e.logger = e.logger.With("component", "resolver")
	e.dispatcher = NewDispatcher(e.registry, e.logger)
	return e
}

// Resolve fetches rawURL and extracts a product from it. Only an invalid URL
// or a network-level fetch failure (fetch.ErrFetchTimeout,
// fetch.ErrFetchNetwork) is returned as an error; any HTTP status with a
// body yields a product.
func (e *Engine) Resolve(ctx context.Context, rawURL string) (*models.ResolvedProduct, error) {
	rawURL = strings.TrimSpace(rawURL)
	if _, err := fetch.ParseURL(rawURL); err != nil {
		return nil, err
	}

	start := time.Now()
	page, err := e.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		e.logger.Warn("fetch failed", "url", rawURL, "error", err)
		return nil, err
	}

	product := e.ResolvePage(page)

	e.logger.Info("product resolved",
		"url", rawURL,
		"status", page.StatusCode,
		"title", product.Title,
		"has_price", product.Price != nil,
		"duration", time.Since(start))

	return product, nil
}

// ResolvePage runs extraction on an already fetched page.
func (e *Engine) ResolvePage(page *fetch.Page) *models.ResolvedProduct {
	u, _ := fetch.ParseURL(page.URL)

	if strings.TrimSpace(page.Body) == "" {
		e.logger.Debug("empty body, returning stub", "url", page.URL, "status", page.StatusCode)
		return Stub(u, page.URL, page.StatusCode)
	}
	if !page.OK() {
		e.logger.Debug("parsing non-success response", "url", page.URL, "status", page.StatusCode)
	}

	doc, err := parser.Parse(page.Body)
	if err != nil {
		e.logger.Warn("failed to parse document, returning stub", "url", page.URL, "error", err)
		return Stub(u, page.URL, page.StatusCode)
	}

	product := e.dispatcher.Dispatch(doc, u, page.URL, page.StatusCode)
	return Assemble(product, u, page.URL)
}
