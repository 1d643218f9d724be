package retailers

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-resolver/internal/models"
	"github.com/maltedev/product-resolver/internal/parser"
)

// ASOS reads asos.com product pages.
func ASOS(doc *goquery.Document, _ *url.URL) *models.ResolvedProduct {
	ld := jsonLD(doc)

	domTitle := parser.FirstText(doc, `[data-testid="product-title"]`, "h1")
	dom := priceText(parser.FirstText(doc,
		`[data-testid="current-price"]`,
		`[data-testid="price-screenreader-only-text"]`,
	))
	domImage := models.FirstString(parser.Attr(doc, ".gallery-image", "src"), ogImage(doc))

	trace := ld.storeTrace()
	trace.Color = parser.Text(doc, `[data-testid="productColour"] p`)
	trace.Sizes = asosSizes(doc)

	return build(
		models.FirstString(ld.title, domTitle),
		models.FirstString(ld.image, domImage),
		models.FirstFloat(ld.price, dom.Price),
		models.FirstString(ld.currency, dom.Currency),
		trace,
	)
}

func asosSizes(doc *goquery.Document) []models.SizeVariant {
	var sizes []models.SizeVariant
	doc.Find("#variantSelector option").Each(func(_ int, s *goquery.Selection) {
		value := strings.TrimSpace(s.AttrOr("value", ""))
		if value == "" {
			return
		}
		label := strings.TrimSpace(s.Text())
		sizes = append(sizes, models.SizeVariant{
			ID:        value,
			Label:     label,
			Available: models.AvailabilityOf(!containsFold(label, "out of stock")),
		})
	})
	return sizes
}
