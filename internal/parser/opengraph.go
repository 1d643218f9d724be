package parser

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-resolver/internal/models"
)

const (
	OGTitle         = "og:title"
	OGImage         = "og:image"
	OGPriceCurrency = "product:price:currency"
	OGPriceAmount   = "product:price:amount"
)

// OpenGraph returns the content of <meta property=key> or <meta name=key>.
func OpenGraph(doc *goquery.Document, key string) *string {
	sel := doc.Find(fmt.Sprintf(`meta[property=%q], meta[name=%q]`, key, key)).First()
	content, ok := sel.Attr("content")
	if !ok {
		return nil
	}
	return models.String(content)
}

// OpenGraphTrace captures og:title and og:image for the audit payload.
func OpenGraphTrace(doc *goquery.Document) models.OpenGraphTrace {
	return models.OpenGraphTrace{
		Title: OpenGraph(doc, OGTitle),
		Image: OpenGraph(doc, OGImage),
	}
}
