// Package retailers holds the per-storefront extraction strategies.
//
// Each retailer is a plain function behind the Extractor signature, keyed by
// a hostname fragment in a Registry. An extractor returns nil when the page
// carries none of the markup it knows about, and the caller falls back to the
// generic baseline.
package retailers

import (
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-resolver/internal/models"
)

// Extractor pulls a product out of a retailer page. The Raw field of the
// returned product carries the retailer's own trace.
type Extractor func(doc *goquery.Document, u *url.URL) *models.ResolvedProduct

// Retailer binds an extractor to the hostname fragment it serves.
type Retailer struct {
	Key      string
	Fragment string
	Extract  Extractor
}

// Registry is an ordered table of retailers. Lookup is a case-insensitive
// substring match on the hostname; the first matching entry wins.
type Registry struct {
	mu      sync.RWMutex
	entries []Retailer
}

func NewRegistry(retailers ...Retailer) *Registry {
	r := &Registry{}
	for _, rt := range retailers {
		r.Register(rt)
	}
	return r
}

// Register appends a retailer. Entries registered earlier take precedence.
func (r *Registry) Register(rt Retailer) {
	rt.Fragment = strings.ToLower(rt.Fragment)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, rt)
}

// Match returns the retailer serving host, if any.
func (r *Registry) Match(host string) (Retailer, bool) {
	host = strings.ToLower(host)
	if host == "" {
		return Retailer{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rt := range r.entries {
		if rt.Fragment != "" && strings.Contains(host, rt.Fragment) {
			return rt, true
		}
	}
	return Retailer{}, false
}

// Keys lists the registered retailer keys in lookup order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.entries))
	for _, rt := range r.entries {
		keys = append(keys, rt.Key)
	}
	return keys
}

const (
	KeyNike     = "nike"
	KeyASOS     = "asos"
	KeyZara     = "zara"
	KeyAmazonUK = "amazonUk"
	KeyHM       = "hm"
	KeyJDSports = "jdSports"
)

// Default returns the built-in retailer table.
func Default() *Registry {
	return NewRegistry(
		Retailer{Key: KeyNike, Fragment: "nike.com", Extract: Nike},
		Retailer{Key: KeyASOS, Fragment: "asos.com", Extract: ASOS},
		Retailer{Key: KeyZara, Fragment: "zara.com", Extract: Zara},
		Retailer{Key: KeyAmazonUK, Fragment: "amazon.co.uk", Extract: AmazonUK},
		Retailer{Key: KeyHM, Fragment: "hm.com", Extract: HM},
		Retailer{Key: KeyJDSports, Fragment: "jdsports.", Extract: JDSports},
	)
}
