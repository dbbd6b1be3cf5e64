package retailer

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Material is the catalog view the retailer layer needs to build a
// search request.
type Material struct {
	ID       int64
	Name     string
	Category string
}

// Quote is a single price reading for one material from one retailer at
// one point in time. Quotes are ephemeral; they only live between the
// fan-out and the aggregator.
type Quote struct {
	MaterialID int64
	Price      decimal.Decimal
	Retailer   string
	URL        string
	InStock    bool
	FetchedAt  time.Time
}

// ExtractFunc pulls a price out of a raw response body. A nil decimal
// result (ok=false) means the page yielded no usable price, which is an
// expected outcome rather than an error.
type ExtractFunc func(body []byte, material Material) (decimal.Decimal, bool)

// Descriptor parametrises one retailer: how to build the search URL and
// how to extract a price from the response.
type Descriptor struct {
	ID          string
	Name        string
	URLTemplate string
	Extract     ExtractFunc
}

// SearchURL renders the retailer search URL for a material.
func (d Descriptor) SearchURL(m Material) string {
	return fmt.Sprintf(d.URLTemplate, url.QueryEscape(m.Name))
}

var builtin = map[string]Descriptor{
	"homedepot": {
		ID:          "homedepot",
		Name:        "Home Depot",
		URLTemplate: "https://www.homedepot.com/s/%s",
		Extract:     extractDollarPrice,
	},
	"lowes": {
		ID:          "lowes",
		Name:        "Lowe's",
		URLTemplate: "https://www.lowes.com/search?searchTerm=%s",
		Extract:     extractDollarPrice,
	},
	"menards": {
		ID:          "menards",
		Name:        "Menards",
		URLTemplate: "https://www.menards.com/main/search.html?search=%s",
		Extract:     extractDollarPrice,
	},
}

// Descriptors resolves retailer ids into their descriptors, rejecting
// unknown ids so a config typo surfaces at startup.
func Descriptors(ids []string) ([]Descriptor, error) {
	descs := make([]Descriptor, 0, len(ids))
	for _, id := range ids {
		d, ok := builtin[id]
		if !ok {
			return nil, fmt.Errorf("unknown retailer %q", id)
		}
		descs = append(descs, d)
	}
	return descs, nil
}

// QuoteFetcher retrieves one quote for one (material, retailer) pair.
type QuoteFetcher interface {
	FetchQuote(ctx context.Context, material Material, desc Descriptor) (Quote, bool)
}
