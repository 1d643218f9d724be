package models

import (
	"encoding/json"
	"math"
	"strings"
)

// ResolvedProduct is the canonical record produced by one resolution call.
type ResolvedProduct struct {
	Title    string   `json:"title"`
	ImageURL *string  `json:"imageUrl"`
	Price    *float64 `json:"price"`
	Currency *string  `json:"currency"`
	Raw      any      `json:"raw"`
}

// Availability is a tri-state stock flag. The zero value means unknown.
type Availability int8

const (
	AvailabilityUnknown Availability = iota
	AvailabilityInStock
	AvailabilityOutOfStock
)

// AvailabilityOf maps a boolean onto the tri-state.
func AvailabilityOf(available bool) Availability {
	if available {
		return AvailabilityInStock
	}
	return AvailabilityOutOfStock
}

// Known reports whether the availability is true or false rather than unknown.
func (a Availability) Known() bool {
	return a != AvailabilityUnknown
}

func (a Availability) MarshalJSON() ([]byte, error) {
	switch a {
	case AvailabilityInStock:
		return []byte("true"), nil
	case AvailabilityOutOfStock:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (a *Availability) UnmarshalJSON(data []byte) error {
	var v *bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*a = AvailabilityUnknown
		return nil
	}
	*a = AvailabilityOf(*v)
	return nil
}

// SizeVariant is one entry of a retailer size selector.
type SizeVariant struct {
	Label          string       `json:"label"`
	Available      Availability `json:"available"`
	ID             string       `json:"id,omitempty"`
	LocalizedLabel *string      `json:"localizedLabel,omitempty"`
	Status         *string      `json:"status,omitempty"`
	SKU            *string      `json:"sku,omitempty"`
	UPC            *string      `json:"upc,omitempty"`
}

// ColorVariant links a sibling colourway of the same product.
type ColorVariant struct {
	StyleColor       *string `json:"styleColor"`
	ColorDescription *string `json:"colorDescription"`
	ImageURL         *string `json:"imageUrl"`
	PDPURL           *string `json:"pdpUrl"`
}

// OpenGraphTrace records the og:title and og:image values seen on the page.
type OpenGraphTrace struct {
	Title *string `json:"title"`
	Image *string `json:"image"`
}

// PriceHint is a price/currency pair found in one structured-data source.
type PriceHint struct {
	Price    *float64 `json:"price"`
	Currency *string  `json:"currency"`
}

// Empty reports whether neither field was found.
func (h PriceHint) Empty() bool {
	return h.Price == nil && h.Currency == nil
}

// GenericTrace is the audit payload of the generic resolver.
type GenericTrace struct {
	JSONLD   map[string]any `json:"jsonLd"`
	OG       OpenGraphTrace `json:"og"`
	AppState *PriceHint     `json:"appState,omitempty"`
}

// RawTrace is the audit payload attached to every resolved product.
type RawTrace struct {
	Source  string         `json:"source"`
	URL     string         `json:"url"`
	Status  int            `json:"status,omitempty"`
	Stub    bool           `json:"stub,omitempty"`
	Store   map[string]any `json:"store"`
	Generic *GenericTrace  `json:"generic"`
}

// String returns a pointer to s, or nil when s is blank.
func String(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Float returns a pointer to f, or nil when f is NaN or infinite.
func Float(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// FirstString returns the first non-nil candidate.
func FirstString(candidates ...*string) *string {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}

// FirstFloat returns the first non-nil candidate.
func FirstFloat(candidates ...*float64) *float64 {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}
