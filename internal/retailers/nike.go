package retailers

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-resolver/internal/models"
	"github.com/maltedev/product-resolver/internal/parser"
)

// NikeTrace is the audit payload of the Nike extractor.
type NikeTrace struct {
	StyleColor     *string               `json:"styleColor"`
	ProductID      *string               `json:"productId"`
	StatusModifier *string               `json:"statusModifier"`
	Available      models.Availability   `json:"available"`
	Sizes          []models.SizeVariant  `json:"sizes"`
	ColorVariants  []models.ColorVariant `json:"colorVariants"`
}

// Nike reads nike.com pages from the Next.js hydration state: the selected
// product, or the first product of the first product group.
func Nike(doc *goquery.Document, _ *url.URL) *models.ResolvedProduct {
	pageProps, _ := parser.Path(parser.NextData(doc), "props", "pageProps").(map[string]any)
	if pageProps == nil {
		return nil
	}

	product := nikeProduct(pageProps, nikeGroupKeyOrder(doc))
	if product == nil {
		return nil
	}

	ld := jsonLD(doc)
	info, _ := product["productInfo"].(map[string]any)
	prices, _ := product["prices"].(map[string]any)

	var price *float64
	if p, ok := prices["currentPrice"].(float64); ok {
		price = models.Float(p)
	} else if p, ok := prices["initialPrice"].(float64); ok {
		price = models.Float(p)
	}

	currency := parser.StringField(prices, "currency")
	if currency == nil {
		locale, _ := pageProps["locale"].(map[string]any)
		currency = parser.StringField(locale, "currency")
	}

	colorways, _ := pageProps["colorwayImages"].([]any)
	statusModifier := parser.StringField(product, "statusModifier")

	trace := NikeTrace{
		StyleColor:     parser.StringField(product, "styleColor"),
		ProductID:      parser.StringField(product, "id"),
		StatusModifier: statusModifier,
		Available:      nikeProductAvailability(statusModifier),
		Sizes:          nikeSizes(product),
		ColorVariants:  nikeColorVariants(colorways),
	}

	return build(
		models.FirstString(ld.title, nikeTitle(info)),
		models.FirstString(ld.image, nikeImage(product, colorways)),
		models.FirstFloat(ld.price, price),
		models.FirstString(ld.currency, currency),
		trace,
	)
}

// nikeGroupKeyOrder lists, per product group, the product keys in the order
// the page serialized them. Decoding into maps loses that order.
func nikeGroupKeyOrder(doc *goquery.Document) [][]string {
	var state struct {
		Props struct {
			PageProps struct {
				ProductGroups []struct {
					Products json.RawMessage `json:"products"`
				} `json:"productGroups"`
			} `json:"pageProps"`
		} `json:"props"`
	}
	raw := parser.NextDataJSON(doc)
	if raw == nil || json.Unmarshal(raw, &state) != nil {
		return nil
	}

	order := make([][]string, len(state.Props.PageProps.ProductGroups))
	for i, group := range state.Props.PageProps.ProductGroups {
		order[i] = parser.KeyOrder(group.Products)
	}
	return order
}

// nikeProduct returns the selected product, or else the first product of the
// first group that has one. Map-shaped groups are walked in page order when
// order is known and by sorted key otherwise.
func nikeProduct(pageProps map[string]any, order [][]string) map[string]any {
	if selected, ok := pageProps["selectedProduct"].(map[string]any); ok {
		return selected
	}

	groups, _ := pageProps["productGroups"].([]any)
	for i, g := range groups {
		group, _ := g.(map[string]any)
		switch products := group["products"].(type) {
		case map[string]any:
			var keys []string
			if i < len(order) {
				keys = order[i]
			}
			if len(keys) != len(products) {
				keys = make([]string, 0, len(products))
				for k := range products {
					keys = append(keys, k)
				}
				sort.Strings(keys)
			}
			for _, k := range keys {
				if p, ok := products[k].(map[string]any); ok {
					return p
				}
			}
		case []any:
			for _, item := range products {
				if p, ok := item.(map[string]any); ok {
					return p
				}
			}
		}
	}
	return nil
}

func nikeTitle(info map[string]any) *string {
	if full := parser.StringField(info, "fullTitle"); full != nil {
		return full
	}
	title := parser.StringField(info, "title")
	subtitle := parser.StringField(info, "subtitle")
	if title != nil && subtitle != nil {
		return models.String(*title + " " + *subtitle)
	}
	return title
}

func nikeImage(product map[string]any, colorways []any) *string {
	images, _ := product["contentImages"].([]any)
	for _, item := range images {
		card, _ := item.(map[string]any)
		if card == nil || card["cardType"] != "image" {
			continue
		}
		props, _ := card["properties"].(map[string]any)
		for _, key := range []string{"portrait", "squarish"} {
			if u := parser.StringField(asMap(props[key]), "url"); u != nil {
				return u
			}
		}
	}

	if len(colorways) > 0 {
		return parser.FirstStringField(asMap(colorways[0]), "portraitImg", "squarishImg")
	}
	return nil
}

// nikeProductAvailability folds the product-level status modifier
// (BUYABLE, SOLD_OUT, OOS...) into the tri-state.
func nikeProductAvailability(status *string) models.Availability {
	if status == nil {
		return models.AvailabilityUnknown
	}
	s := strings.ToUpper(*status)
	switch {
	case strings.Contains(s, "BUY"):
		return models.AvailabilityInStock
	case strings.Contains(s, "SOLD"), strings.Contains(s, "OOS"):
		return models.AvailabilityOutOfStock
	}
	return models.AvailabilityUnknown
}

func nikeSizeAvailability(status *string) models.Availability {
	if status == nil {
		return models.AvailabilityUnknown
	}
	s := strings.ToUpper(*status)
	switch {
	case s == "ACTIVE":
		return models.AvailabilityInStock
	case strings.Contains(s, "OOS"), strings.Contains(s, "OUT"):
		return models.AvailabilityOutOfStock
	}
	return models.AvailabilityUnknown
}

func nikeSizes(product map[string]any) []models.SizeVariant {
	raw, _ := product["sizes"].([]any)
	sizes := make([]models.SizeVariant, 0, len(raw))
	for _, item := range raw {
		size := asMap(item)
		status := parser.StringField(size, "status")
		sizes = append(sizes, models.SizeVariant{
			Label:          models.Deref(parser.StringField(size, "label")),
			LocalizedLabel: parser.StringField(size, "localizedLabel"),
			Status:         status,
			Available:      nikeSizeAvailability(status),
		})
	}
	return sizes
}

func nikeColorVariants(colorways []any) []models.ColorVariant {
	variants := make([]models.ColorVariant, 0, len(colorways))
	for _, item := range colorways {
		c := asMap(item)
		variants = append(variants, models.ColorVariant{
			StyleColor:       parser.StringField(c, "styleColor"),
			ColorDescription: parser.StringField(c, "colorDescription"),
			ImageURL:         parser.FirstStringField(c, "portraitImg", "squarishImg"),
			PDPURL:           parser.StringField(c, "pdpUrl"),
		})
	}
	return variants
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
