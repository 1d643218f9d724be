package retailers

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-resolver/internal/models"
	"github.com/maltedev/product-resolver/internal/parser"
)

// AmazonTrace is the audit payload of the Amazon UK extractor.
type AmazonTrace struct {
	ASIN         *string              `json:"asin"`
	Brand        *string              `json:"brand"`
	Category     *string              `json:"category"`
	Material     *string              `json:"material"`
	Color        *string              `json:"color"`
	Availability models.Availability  `json:"availability"`
	Sizes        []models.SizeVariant `json:"sizes"`
}

var asinPattern = regexp.MustCompile(`/(?:dp|gp/product)/([A-Z0-9]{10})`)

var amazonPriceSelectors = []string{
	"#corePrice_feature_div .a-price .a-offscreen",
	".a-price .a-offscreen",
	"#priceblock_ourprice",
	"#priceblock_dealprice",
}

// AmazonUK reads amazon.co.uk product detail pages.
func AmazonUK(doc *goquery.Document, u *url.URL) *models.ResolvedProduct {
	ld := jsonLD(doc)

	dom := priceText(parser.FirstText(doc, amazonPriceSelectors...))
	if dom.Price == nil {
		dom = amazonSplitPrice(doc)
	}
	if dom.Price != nil && dom.Currency == nil {
		dom.Currency = models.String("GBP")
	}

	domImage := models.FirstString(
		parser.Attr(doc, "#landingImage", "data-old-hires"),
		parser.Attr(doc, "#landingImage", "src"),
		parser.Attr(doc, "#imgTagWrapperId img", "src"),
		ogImage(doc),
	)

	trace := AmazonTrace{
		ASIN:         amazonASIN(doc, u),
		Brand:        models.FirstString(parser.JSONLDBrand(ld.node), amazonBrand(doc)),
		Category:     models.String(doc.Find("#wayfinding-breadcrumbs_feature_div .a-list-item").Last().Text()),
		Material:     amazonMaterial(doc),
		Color:        parser.Text(doc, "#variation_color_name .selection"),
		Availability: amazonAvailability(doc),
		Sizes:        amazonSizes(doc),
	}

	return build(
		models.FirstString(ld.title, parser.Text(doc, "#productTitle")),
		models.FirstString(ld.image, domImage),
		models.FirstFloat(ld.price, dom.Price),
		models.FirstString(ld.currency, dom.Currency),
		trace,
	)
}

// amazonSplitPrice joins the whole and fraction spans of the buy-box price.
func amazonSplitPrice(doc *goquery.Document) models.PriceHint {
	price := doc.Find(".a-price").First()
	whole := strings.TrimRight(strings.TrimSpace(price.Find(".a-price-whole").First().Text()), ".")
	if whole == "" {
		return models.PriceHint{}
	}
	fraction := strings.TrimSpace(price.Find(".a-price-fraction").First().Text())
	symbol := strings.TrimSpace(price.Find(".a-price-symbol").First().Text())

	text := symbol + whole
	if fraction != "" {
		text += "." + fraction
	}
	return priceText(&text)
}

func amazonASIN(doc *goquery.Document, u *url.URL) *string {
	if u != nil {
		if m := asinPattern.FindStringSubmatch(u.Path); m != nil {
			return models.String(m[1])
		}
	}
	return models.FirstString(
		parser.Attr(doc, "#ASIN", "value"),
		parser.Attr(doc, "input[name='ASIN']", "value"),
	)
}

func amazonBrand(doc *goquery.Document) *string {
	brand := strings.TrimSpace(doc.Find("#bylineInfo").First().Text())
	brand = strings.TrimPrefix(brand, "Brand: ")
	brand = strings.TrimPrefix(brand, "Visit the ")
	brand = strings.TrimSuffix(brand, " Store")
	return models.String(brand)
}

// amazonMaterial reads the "Material composition" (or "Material") row of the
// product overview grid.
func amazonMaterial(doc *goquery.Document) *string {
	var material *string
	doc.Find(".a-fixed-left-grid-inner, #productOverview_feature_div tr").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label := strings.ToLower(strings.TrimSpace(s.Find(".a-col-left, td:first-child").First().Text()))
		if !strings.Contains(label, "material") {
			return true
		}
		material = models.String(s.Find(".a-col-right, td:last-child").First().Text())
		return material == nil
	})
	return material
}

func amazonAvailability(doc *goquery.Document) models.Availability {
	text := strings.ToLower(strings.TrimSpace(doc.Find("#availability").First().Text()))
	switch {
	case text == "":
		return models.AvailabilityUnknown
	case strings.Contains(text, "unavailable"), strings.Contains(text, "out of stock"):
		return models.AvailabilityOutOfStock
	case strings.Contains(text, "in stock"):
		return models.AvailabilityInStock
	}
	return models.AvailabilityUnknown
}

func amazonSizes(doc *goquery.Document) []models.SizeVariant {
	var sizes []models.SizeVariant
	doc.Find("#native_dropdown_selected_size_name option").Each(func(_ int, s *goquery.Selection) {
		value := strings.TrimSpace(s.AttrOr("value", ""))
		label := strings.TrimSpace(s.AttrOr("data-a-html-content", s.Text()))
		// the "-1" entry is the "Select" placeholder
		if value == "" || value == "-1" || label == "" {
			return
		}
		sizes = append(sizes, models.SizeVariant{
			ID:        value,
			Label:     label,
			Available: models.AvailabilityOf(!s.HasClass("dropdownUnavailable")),
		})
	})
	return sizes
}
