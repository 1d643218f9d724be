package retailers

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-resolver/internal/models"
	"github.com/maltedev/product-resolver/internal/parser"
)

// Zara reads zara.com product pages. Prices are rendered with a currency
// code ("39.95 GBP") rather than a symbol.
func Zara(doc *goquery.Document, _ *url.URL) *models.ResolvedProduct {
	ld := jsonLD(doc)

	domTitle := parser.FirstText(doc, `[data-qa-qualifier="product-detail-info-name"]`, "h1")
	dom := priceText(parser.Text(doc, ".money-amount__main"))
	domImage := models.FirstString(parser.Attr(doc, ".product-detail-view__main-image img", "src"), ogImage(doc))

	trace := ld.storeTrace()
	trace.Color = parser.Text(doc, `[data-qa-qualifier="product-detail-info-color"]`)

	return build(
		models.FirstString(ld.title, domTitle),
		models.FirstString(ld.image, domImage),
		models.FirstFloat(ld.price, dom.Price),
		models.FirstString(ld.currency, dom.Currency),
		trace,
	)
}
