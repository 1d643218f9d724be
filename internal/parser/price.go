package parser

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/maltedev/product-resolver/internal/models"
)

var priceCharsPattern = regexp.MustCompile(`[^0-9.,]`)

// ParsePrice converts a structured-data or DOM price into a number.
//
// Numbers pass through. Strings are stripped to digits and separators; when
// both '.' and ',' occur, the one appearing last is the decimal separator,
// otherwise a lone ',' is the decimal separator. Anything else yields nil.
func ParsePrice(v any) *float64 {
	switch p := v.(type) {
	case nil:
		return nil
	case float64:
		return models.Float(p)
	case float32:
		return models.Float(float64(p))
	case int:
		return models.Float(float64(p))
	case int64:
		return models.Float(float64(p))
	case json.Number:
		f, err := p.Float64()
		if err != nil {
			return nil
		}
		return models.Float(f)
	case string:
		return parsePriceString(p)
	case *string:
		if p == nil {
			return nil
		}
		return parsePriceString(*p)
	default:
		return nil
	}
}

func parsePriceString(s string) *float64 {
	cleaned := priceCharsPattern.ReplaceAllString(s, "")
	if cleaned == "" {
		return nil
	}

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0 && lastDot > lastComma:
		// 1,299.50
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case lastComma >= 0 && lastDot >= 0:
		// 1.299,50
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case lastComma >= 0:
		cleaned = keepLast(cleaned, ',')
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case lastDot >= 0:
		cleaned = keepLast(cleaned, '.')
	}

	cleaned = strings.TrimRight(cleaned, ".")
	if cleaned == "" {
		return nil
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return models.Float(f)
}

// keepLast removes every occurrence of sep except the last one.
func keepLast(s string, sep byte) string {
	idx := strings.LastIndexByte(s, sep)
	if idx < 0 {
		return s
	}
	return strings.ReplaceAll(s[:idx], string(sep), "") + s[idx:]
}

var currencyCodes = []string{"GBP", "EUR", "USD"}

// InferCurrency derives a currency code from price text: a bare symbol
// (£, €, $) or one of the literal codes some retailers render.
func InferCurrency(text *string) *string {
	if text == nil {
		return nil
	}
	t := *text
	switch {
	case strings.Contains(t, "£"):
		return models.String("GBP")
	case strings.Contains(t, "€"):
		return models.String("EUR")
	case strings.Contains(t, "$"):
		return models.String("USD")
	}
	upper := strings.ToUpper(t)
	for _, code := range currencyCodes {
		if strings.Contains(upper, code) {
			return models.String(code)
		}
	}
	return nil
}

// ParseAvailability reads a schema.org availability value, either a plain
// string ("https://schema.org/InStock") or an object with a url field.
func ParseAvailability(v any) models.Availability {
	var raw string
	switch a := v.(type) {
	case string:
		raw = a
	case map[string]any:
		raw, _ = a["url"].(string)
		if raw == "" {
			raw, _ = a["@id"].(string)
		}
	}
	if raw == "" {
		return models.AvailabilityUnknown
	}

	normalized := strings.ToLower(raw)
	switch {
	case strings.Contains(normalized, "outofstock"), strings.Contains(normalized, "soldout"):
		return models.AvailabilityOutOfStock
	case strings.Contains(normalized, "instock"):
		return models.AvailabilityInStock
	}
	return models.AvailabilityUnknown
}
