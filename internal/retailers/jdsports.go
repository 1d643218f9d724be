package retailers

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-resolver/internal/models"
	"github.com/maltedev/product-resolver/internal/parser"
	"golang.org/x/net/html"
)

// JDTrace is the audit payload of the JD Sports extractor.
type JDTrace struct {
	ProductID    *string              `json:"productId"`
	Description  *string              `json:"description"`
	Brand        *string              `json:"brand"`
	Colour       *string              `json:"colour"`
	IsDiscounted *bool                `json:"isDiscounted"`
	Availability models.Availability  `json:"availability"`
	Sizes        []models.SizeVariant `json:"sizes"`
}

// jdProductType holds the fields of the inline `var ProductType = {...};`
// object literal JD renders into the page.
type jdProductType struct {
	ID           *string
	Name         *string
	Description  *string
	UnitPrice    *float64
	Brand        *string
	Colour       *string
	PrimaryImage *string
	IsDiscounted *bool
}

var (
	jdProductTypePattern = regexp.MustCompile(`var\s+ProductType\s*=\s*\{([\s\S]*?)\};`)
	jdNumberChars        = regexp.MustCompile(`[^\d.]`)
	jdUnescaper          = strings.NewReplacer(`\\`, `\`, `\'`, `'`, `\"`, `"`)
)

// JDSports reads jdsports.* pages. Sizes come from the size-stock buttons and
// the product metadata from an inline script variable.
func JDSports(doc *goquery.Document, _ *url.URL) *models.ResolvedProduct {
	ld := jsonLD(doc)
	pt := jdExtractProductType(doc)

	domTitle := parser.FirstText(doc, `[data-e2e="product-name"]`, `h1[itemprop="name"]`)
	if domTitle == nil {
		domTitle = pt.Name
	}

	priceRaw := models.FirstString(
		parser.Attr(doc, `[data-e2e="product-price"]`, "content"),
		parser.Text(doc, `[data-e2e="product-price"]`),
	)
	dom := priceText(priceRaw)
	domPrice := models.FirstFloat(dom.Price, pt.UnitPrice)

	buttons := doc.Find("#productSizeStock button[data-size]")
	sizes := jdSizes(buttons)
	domCurrency := models.FirstString(models.String(buttons.First().AttrOr("data-currency", "")), dom.Currency)

	domImage := models.FirstString(pt.PrimaryImage, parser.Attr(doc, "#gallery img", "src"), ogImage(doc))

	trace := JDTrace{
		ProductID:    pt.ID,
		Description:  pt.Description,
		Brand:        pt.Brand,
		Colour:       pt.Colour,
		IsDiscounted: pt.IsDiscounted,
		Availability: jdAvailability(doc, sizes),
		Sizes:        sizes,
	}

	return build(
		models.FirstString(ld.title, domTitle),
		models.FirstString(ld.image, domImage),
		models.FirstFloat(ld.price, domPrice),
		models.FirstString(ld.currency, domCurrency),
		trace,
	)
}

func jdSizes(buttons *goquery.Selection) []models.SizeVariant {
	sizes := make([]models.SizeVariant, 0, buttons.Length())
	buttons.Each(func(_ int, b *goquery.Selection) {
		label := models.FirstString(models.String(b.AttrOr("data-size", "")), models.String(b.Text()))
		if label == nil {
			return
		}
		available := models.AvailabilityUnknown
		switch strings.TrimSpace(b.AttrOr("data-stock", "")) {
		case "1":
			available = models.AvailabilityInStock
		case "0":
			available = models.AvailabilityOutOfStock
		}
		sizes = append(sizes, models.SizeVariant{
			Label:     *label,
			Available: available,
			SKU:       models.String(b.AttrOr("data-sku", "")),
			UPC:       models.String(b.AttrOr("data-upc", "")),
		})
	})
	return sizes
}

// jdAvailability prefers the explicit #itemOptions flag and otherwise
// reports whether any size is in stock.
func jdAvailability(doc *goquery.Document, sizes []models.SizeVariant) models.Availability {
	if stock := parser.Attr(doc, "#itemOptions", "data-stock"); stock != nil {
		return models.AvailabilityOf(strings.EqualFold(*stock, "true"))
	}
	if len(sizes) == 0 {
		return models.AvailabilityUnknown
	}
	for _, s := range sizes {
		if s.Available == models.AvailabilityInStock {
			return models.AvailabilityInStock
		}
	}
	return models.AvailabilityOutOfStock
}

func jdExtractProductType(doc *goquery.Document) jdProductType {
	var body string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !strings.Contains(text, "ProductType") {
			return true
		}
		if m := jdProductTypePattern.FindStringSubmatch(text); m != nil {
			body = m[1]
			return false
		}
		return true
	})
	if body == "" {
		return jdProductType{}
	}

	fields := jsFields(body)
	return jdProductType{
		ID:           jsString(fields["Id"]),
		Name:         jsString(fields["Name"]),
		Description:  jsString(fields["Description"]),
		UnitPrice:    jsNumber(fields["UnitPrice"]),
		Brand:        jsString(fields["Brand"]),
		Colour:       jsString(fields["Colour"]),
		PrimaryImage: jsString(fields["PrimaryImage"]),
		IsDiscounted: jsBool(fields["IsDiscounted"]),
	}
}

// jsFields maps the top-level keys of an object literal body to their raw
// values. Quoted values may contain commas, colons and key names; the first
// occurrence of a key wins.
func jsFields(body string) map[string]string {
	fields := make(map[string]string)
	for _, entry := range splitTopLevel(body) {
		key, value, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		key = strings.Trim(strings.TrimSpace(key), `"'`)
		if key == "" {
			continue
		}
		if _, seen := fields[key]; !seen {
			fields[key] = strings.TrimSpace(value)
		}
	}
	return fields
}

// splitTopLevel splits s at commas outside quotes and nested brackets.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"', '\'':
			i = quotedEnd(s, i)
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// quotedEnd returns the index of the quote closing the string opened at i,
// or the last index of s when the string is unterminated.
func quotedEnd(s string, i int) int {
	quote := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case quote:
			return j
		}
	}
	return len(s) - 1
}

func jsString(raw string) *string {
	if len(raw) < 2 {
		return nil
	}
	quote := raw[0]
	if (quote != '"' && quote != '\'') || raw[len(raw)-1] != quote {
		return nil
	}
	value := jdUnescaper.Replace(raw[1 : len(raw)-1])
	return models.String(html.UnescapeString(value))
}

func jsNumber(raw string) *float64 {
	cleaned := jdNumberChars.ReplaceAllString(raw, "")
	if cleaned == "" {
		return nil
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return models.Float(f)
}

func jsBool(raw string) *bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true":
		v := true
		return &v
	case "false":
		v := false
		return &v
	}
	return nil
}
