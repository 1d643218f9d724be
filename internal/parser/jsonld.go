package parser

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-resolver/internal/models"
)

const jsonLDSelector = `script[type="application/ld+json"]`

// JSONLDProduct returns the first schema.org Product node found in any
// JSON-LD block of the document, or nil. Blocks that fail to parse are
// skipped.
func JSONLDProduct(doc *goquery.Document) map[string]any {
	var found map[string]any

	doc.Find(jsonLDSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return true
		}

		var data any
		if err := json.Unmarshal([]byte(text), &data); err != nil {
			return true
		}

		found = findProductNode(data)
		return found == nil
	})

	return found
}

func findProductNode(data any) map[string]any {
	switch v := data.(type) {
	case []any:
		for _, item := range v {
			if node, ok := item.(map[string]any); ok && hasProductType(node) {
				return node
			}
		}
	case map[string]any:
		if hasProductType(v) {
			return v
		}
		if graph, ok := v["@graph"].([]any); ok {
			return findProductNode(graph)
		}
	}
	return nil
}

func hasProductType(node map[string]any) bool {
	switch t := node["@type"].(type) {
	case string:
		return strings.EqualFold(t, "product")
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.EqualFold(s, "product") {
				return true
			}
		}
	}
	return false
}

// JSONLDName returns the product name.
func JSONLDName(product map[string]any) *string {
	return StringField(product, "name")
}

// JSONLDImage returns the product image: the first element when it is an
// array, the url of an ImageObject, or the plain string.
func JSONLDImage(product map[string]any) *string {
	if product == nil {
		return nil
	}
	return imageValue(product["image"])
}

func imageValue(v any) *string {
	switch img := v.(type) {
	case string:
		return models.String(img)
	case []any:
		if len(img) == 0 {
			return nil
		}
		return imageValue(img[0])
	case map[string]any:
		if u, ok := img["url"].(string); ok {
			return models.String(u)
		}
		if u, ok := img["contentUrl"].(string); ok {
			return models.String(u)
		}
	}
	return nil
}

// JSONLDOffer extracts price and currency from the product's offers (the
// first offer when there are several).
func JSONLDOffer(product map[string]any) models.PriceHint {
	offer := firstOffer(product)
	if offer == nil {
		return models.PriceHint{}
	}

	var rawPrice any
	for _, key := range []string{"price", "priceAmount", "lowPrice", "highPrice"} {
		if v, ok := offer[key]; ok && v != nil {
			rawPrice = v
			break
		}
	}

	currency := FirstStringField(offer, "priceCurrency", "currency")
	if currency == nil {
		if spec, ok := offer["priceSpecification"].(map[string]any); ok {
			currency = StringField(spec, "priceCurrency")
		}
	}

	return models.PriceHint{
		Price:    ParsePrice(rawPrice),
		Currency: currency,
	}
}

// JSONLDAvailability reads the first offer's availability.
func JSONLDAvailability(product map[string]any) models.Availability {
	offer := firstOffer(product)
	if offer == nil {
		return models.AvailabilityUnknown
	}
	return ParseAvailability(offer["availability"])
}

// JSONLDBrand returns brand.name or a plain brand string.
func JSONLDBrand(product map[string]any) *string {
	if product == nil {
		return nil
	}
	switch b := product["brand"].(type) {
	case string:
		return models.String(b)
	case map[string]any:
		return StringField(b, "name")
	}
	return nil
}

func firstOffer(product map[string]any) map[string]any {
	if product == nil {
		return nil
	}
	switch o := product["offers"].(type) {
	case map[string]any:
		return o
	case []any:
		if len(o) > 0 {
			offer, _ := o[0].(map[string]any)
			return offer
		}
	}
	return nil
}

// StringField returns node[key] when it is a non-blank string.
func StringField(node map[string]any, key string) *string {
	if node == nil {
		return nil
	}
	s, ok := node[key].(string)
	if !ok {
		return nil
	}
	return models.String(s)
}

// FirstStringField returns the first key holding a non-blank string.
func FirstStringField(node map[string]any, keys ...string) *string {
	for _, key := range keys {
		if v := StringField(node, key); v != nil {
			return v
		}
	}
	return nil
}
