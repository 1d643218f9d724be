package parser

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-resolver/internal/models"
)

const nextDataSelector = "script#__NEXT_DATA__"

// MaxAppStateNodes caps how many objects and arrays the app-state search
// visits before giving up.
const MaxAppStateNodes = 10000

// NextData parses the serialized application state embedded by Next.js
// storefronts. It returns nil when the script is missing or malformed.
func NextData(doc *goquery.Document) any {
	raw := NextDataJSON(doc)
	if raw == nil {
		return nil
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil
	}
	return data
}

// NextDataJSON returns the undecoded Next.js state, or nil when the script is
// missing or empty.
func NextDataJSON(doc *goquery.Document) []byte {
	text := strings.TrimSpace(doc.Find(nextDataSelector).First().Text())
	if text == "" {
		return nil
	}
	return []byte(text)
}

// KeyOrder returns the keys of the JSON object in raw in document order. It
// returns nil when raw is not a well-formed object.
func KeyOrder(raw []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, ok := tok.(string)
		if !ok {
			return nil
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil
		}
		keys = append(keys, key)
	}
	return keys
}

// AppStatePrice walks the state tree looking for a current (or full) price
// and a currency code, stopping at the first complete pair or after
// MaxAppStateNodes containers.
func AppStatePrice(data any) models.PriceHint {
	hint, _ := searchAppState(data, MaxAppStateNodes)
	return hint
}

func searchAppState(data any, limit int) (models.PriceHint, int) {
	var hint models.PriceHint
	if data == nil {
		return hint, 0
	}

	stack := []any{data}
	visited := 0

	for len(stack) > 0 && visited < limit {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visited++

		switch v := node.(type) {
		case map[string]any:
			if hint.Price == nil {
				if p, ok := v["currentPrice"].(float64); ok {
					hint.Price = models.Float(p)
				} else if p, ok := v["fullPrice"].(float64); ok {
					hint.Price = models.Float(p)
				}
			}
			if hint.Currency == nil {
				hint.Currency = FirstStringField(v, "currency", "currencyCode")
			}
			if hint.Price != nil && hint.Currency != nil {
				return hint, visited
			}

			keys := make([]string, 0, len(v))
			for k, child := range v {
				if isContainer(child) {
					keys = append(keys, k)
				}
			}
			sort.Strings(keys)
			for i := len(keys) - 1; i >= 0; i-- {
				stack = append(stack, v[keys[i]])
			}
		case []any:
			for i := len(v) - 1; i >= 0; i-- {
				if isContainer(v[i]) {
					stack = append(stack, v[i])
				}
			}
		}
	}

	return hint, visited
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// Path follows object keys through a decoded JSON tree.
func Path(data any, keys ...string) any {
	cur := data
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[k]
	}
	return cur
}
