// Package parser turns product-page HTML into a goquery document and pulls
// machine-readable product metadata out of it: JSON-LD blocks, Open Graph
// meta tags and embedded application state.
//
// Every helper here is tolerant: malformed structured data is skipped and
// reported as "not found", never as an error.
package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-resolver/internal/models"
)

// Parse builds a traversable document from raw HTML.
func Parse(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// Text returns the trimmed text of the first match, or nil.
func Text(doc *goquery.Document, selector string) *string {
	return models.String(doc.Find(selector).First().Text())
}

// Attr returns the trimmed attribute of the first match, or nil.
func Attr(doc *goquery.Document, selector, name string) *string {
	v, ok := doc.Find(selector).First().Attr(name)
	if !ok {
		return nil
	}
	return models.String(v)
}

// FirstText probes selectors in order and returns the first non-empty text.
func FirstText(doc *goquery.Document, selectors ...string) *string {
	for _, sel := range selectors {
		if v := Text(doc, sel); v != nil {
			return v
		}
	}
	return nil
}

// Title returns the document <title>.
func Title(doc *goquery.Document) *string {
	return Text(doc, "title")
}
