package retailers

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-resolver/internal/models"
	"github.com/maltedev/product-resolver/internal/parser"
)

// HM reads hm.com pages. H&M ships complete JSON-LD, so the DOM is only
// consulted for the title and price when the block is missing them.
func HM(doc *goquery.Document, _ *url.URL) *models.ResolvedProduct {
	ld := jsonLD(doc)
	if ld.node == nil {
		return nil
	}

	dom := priceText(parser.Text(doc, `[data-testid="price"]`))

	return build(
		models.FirstString(ld.title, parser.Text(doc, "h1")),
		ld.image,
		models.FirstFloat(ld.price, dom.Price),
		models.FirstString(ld.currency, dom.Currency),
		ld.storeTrace(),
	)
}
