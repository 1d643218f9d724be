package resolver

import (
	"math"
	"net/url"
	"strings"

	"github.com/maltedev/product-resolver/internal/models"
)

const sourceHTML = "html"

// Assemble applies the output invariants to a merged product: a non-blank
// title, a finite non-negative price or none, and a trimmed upper-case
// currency or none.
func Assemble(p *models.ResolvedProduct, u *url.URL, rawURL string) *models.ResolvedProduct {
	p.Title = fallbackTitle(p.Title, u, rawURL)
	p.ImageURL = models.String(models.Deref(p.ImageURL))
	p.Price = normalizePrice(p.Price)
	p.Currency = normalizeCurrency(p.Currency)
	return p
}

// Stub is the product returned for a page with an empty body.
func Stub(u *url.URL, rawURL string, status int) *models.ResolvedProduct {
	return &models.ResolvedProduct{
		Title: fallbackTitle("", u, rawURL),
		Raw: models.RawTrace{
			Source: sourceHTML,
			URL:    rawURL,
			Status: status,
			Stub:   true,
		},
	}
}

func fallbackTitle(title string, u *url.URL, rawURL string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	if h := hostname(u); h != "" {
		return h
	}
	if seg := lastPathSegment(u, rawURL); seg != "" {
		return seg
	}
	if r := strings.TrimSpace(rawURL); r != "" {
		return r
	}
	return "Untitled product"
}

func hostname(u *url.URL) string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(u.Hostname())
}

func lastPathSegment(u *url.URL, rawURL string) string {
	path := rawURL
	if u != nil {
		path = u.Path
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(segments[i]); s != "" {
			if unescaped, err := url.PathUnescape(s); err == nil {
				return unescaped
			}
			return s
		}
	}
	return ""
}

func normalizePrice(p *float64) *float64 {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) || *p < 0 {
		return nil
	}
	return p
}

// normalizeCurrency trims c and upper-cases it when it is a three-letter
// code. Anything else is kept as discovered.
func normalizeCurrency(c *string) *string {
	if c == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*c)
	if trimmed == "" {
		return nil
	}
	if isLetterCode(trimmed) {
		trimmed = strings.ToUpper(trimmed)
	}
	return &trimmed
}

func isLetterCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}
