package resolver

import (
	"fmt"
	"log/slog"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-resolver/internal/models"
	"github.com/maltedev/product-resolver/internal/retailers"
)

// Dispatcher computes the generic baseline and, when the hostname belongs to
// a registered retailer, merges that retailer's result on top of it.
type Dispatcher struct {
	registry *retailers.Registry
	logger   *slog.Logger
}

func NewDispatcher(registry *retailers.Registry, logger *slog.Logger) *Dispatcher {
	if registry == nil {
		registry = retailers.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Dispatch returns the merged product with its audit trace attached.
func (d *Dispatcher) Dispatch(doc *goquery.Document, u *url.URL, rawURL string, status int) *models.ResolvedProduct {
	baseline := Generic(doc, u)
	genericTrace, _ := baseline.Raw.(*models.GenericTrace)

	result := *baseline
	raw := models.RawTrace{
		Source:  sourceHTML,
		URL:     rawURL,
		Status:  status,
		Generic: genericTrace,
	}

	rt, ok := d.registry.Match(hostname(u))
	if ok {
		if store := d.extract(rt, doc, u); store != nil {
			merge(&result, store)
			raw.Store = map[string]any{rt.Key: store.Raw}
		} else {
			d.logger.Debug("retailer extractor found no signal", "retailer", rt.Key, "url", rawURL)
		}
	}

	result.Raw = raw
	return &result
}

// extract runs a retailer extractor, treating a panic as "no signal".
func (d *Dispatcher) extract(rt retailers.Retailer, doc *goquery.Document, u *url.URL) (product *models.ResolvedProduct) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("retailer extractor panicked",
				"retailer", rt.Key,
				"error", fmt.Sprint(r))
			product = nil
		}
	}()
	return rt.Extract(doc, u)
}

// merge lets every field the retailer found override the baseline.
func merge(dst, store *models.ResolvedProduct) {
	if store.Title != "" {
		dst.Title = store.Title
	}
	if store.ImageURL != nil {
		dst.ImageURL = store.ImageURL
	}
	if store.Price != nil {
		dst.Price = store.Price
	}
	if store.Currency != nil {
		dst.Currency = store.Currency
	}
}
