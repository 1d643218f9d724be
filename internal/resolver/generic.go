package resolver

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-resolver/internal/models"
	"github.com/maltedev/product-resolver/internal/parser"
)

// Generic builds the domain-agnostic baseline from structured data alone.
// It never returns nil; the Raw field holds a *models.GenericTrace.
//
//	title:    JSON-LD name, og:title, <title>, hostname
//	image:    JSON-LD image, og:image
//	price:    JSON-LD offer, app state, product:price:amount
//	currency: JSON-LD offer, app state, product:price:currency
func Generic(doc *goquery.Document, u *url.URL) *models.ResolvedProduct {
	node := parser.JSONLDProduct(doc)
	offer := parser.JSONLDOffer(node)
	og := parser.OpenGraphTrace(doc)

	trace := &models.GenericTrace{
		JSONLD: node,
		OG:     og,
	}

	var app models.PriceHint
	if offer.Price == nil || offer.Currency == nil {
		if state := parser.NextData(doc); state != nil {
			app = parser.AppStatePrice(state)
			if !app.Empty() {
				trace.AppState = &app
			}
		}
	}

	title := models.FirstString(
		parser.JSONLDName(node),
		og.Title,
		parser.Title(doc),
		models.String(hostname(u)),
	)

	product := &models.ResolvedProduct{
		Title:    models.Deref(title),
		ImageURL: models.FirstString(parser.JSONLDImage(node), og.Image),
		Price: normalizePrice(models.FirstFloat(
			offer.Price,
			app.Price,
			parser.ParsePrice(parser.OpenGraph(doc, parser.OGPriceAmount)),
		)),
		Currency: normalizeCurrency(models.FirstString(
			offer.Currency,
			app.Currency,
			parser.OpenGraph(doc, parser.OGPriceCurrency),
		)),
		Raw: trace,
	}
	product.Title = fallbackTitle(product.Title, u, "")

	return product
}
