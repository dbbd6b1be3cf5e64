package retailer

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// priceToken matches a dollar amount with explicit cents, optionally
// with thousands separators. Requiring cents filters out most ad copy
// ("save $50") that the bare first-dollar-amount approach would pick up.
var priceToken = regexp.MustCompile(`\$((?:\d{1,3}(?:,\d{3})+|\d+)\.\d{2})`)

var (
	extractMin = decimal.NewFromFloat(0.50)
	extractMax = decimal.NewFromInt(10000)
)

// extractDollarPrice scans the body for the first plausible price
// token. This is a deliberately thin placeholder for real per-retailer
// markup parsing; descriptors can swap in a proper ExtractFunc without
// touching the client.
func extractDollarPrice(body []byte, _ Material) (decimal.Decimal, bool) {
	match := priceToken.FindSubmatch(body)
	if match == nil {
		return decimal.Decimal{}, false
	}

	raw := strings.ReplaceAll(string(match[1]), ",", "")
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}

	if price.LessThan(extractMin) || price.GreaterThanOrEqual(extractMax) {
		return decimal.Decimal{}, false
	}
	return price, true
}
