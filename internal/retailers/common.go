package retailers

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-resolver/internal/models"
	"github.com/maltedev/product-resolver/internal/parser"
)

// StoreTrace is the audit payload shared by the DOM-probing retailers.
type StoreTrace struct {
	SKU          *string              `json:"sku"`
	Brand        *string              `json:"brand"`
	Availability models.Availability  `json:"availability"`
	Color        *string              `json:"color,omitempty"`
	Sizes        []models.SizeVariant `json:"sizes,omitempty"`
}

// ldBaseline is the JSON-LD view each extractor starts from. Its fields take
// precedence over anything scraped from the DOM.
type ldBaseline struct {
	node     map[string]any
	title    *string
	image    *string
	price    *float64
	currency *string
}

func jsonLD(doc *goquery.Document) ldBaseline {
	node := parser.JSONLDProduct(doc)
	if node == nil {
		return ldBaseline{}
	}
	offer := parser.JSONLDOffer(node)
	return ldBaseline{
		node:     node,
		title:    parser.JSONLDName(node),
		image:    parser.JSONLDImage(node),
		price:    offer.Price,
		currency: offer.Currency,
	}
}

func (b ldBaseline) storeTrace() StoreTrace {
	return StoreTrace{
		SKU:          parser.FirstStringField(b.node, "sku", "productID", "mpn"),
		Brand:        parser.JSONLDBrand(b.node),
		Availability: parser.JSONLDAvailability(b.node),
	}
}

// priceText turns scraped price text into a hint, inferring the currency
// from a symbol or code in the same text.
func priceText(text *string) models.PriceHint {
	return models.PriceHint{
		Price:    parser.ParsePrice(text),
		Currency: parser.InferCurrency(text),
	}
}

// build applies the no-signal rule: without a title, an image or a price the
// page is not one this retailer recognises.
func build(title, image *string, price *float64, currency *string, raw any) *models.ResolvedProduct {
	if title == nil && image == nil && price == nil {
		return nil
	}
	return &models.ResolvedProduct{
		Title:    models.Deref(title),
		ImageURL: image,
		Price:    price,
		Currency: currency,
		Raw:      raw,
	}
}

func ogImage(doc *goquery.Document) *string {
	return parser.OpenGraph(doc, parser.OGImage)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
