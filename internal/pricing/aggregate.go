package pricing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bradz86/carpenter-pro-backend/internal/retailer"
)

// SourceAverage labels a canonical price derived from multiple retailer
// quotes.
const SourceAverage = "Average"

// CanonicalPrice is the single reconciled price for one material in one
// run.
type CanonicalPrice struct {
	MaterialID int64
	Price      decimal.Decimal
	Source     string
	ComputedAt time.Time
}

// Aggregate groups quotes by material and reduces each group to the
// arithmetic mean of its quote prices, rounded to two decimal places
// (half away from zero). Materials without quotes are absent from the
// result. Output is ordered by material id so callers see a stable
// batch; grouping itself carries no ordering semantics.
func Aggregate(quotes []retailer.Quote, now time.Time) []CanonicalPrice {
	if len(quotes) == 0 {
		return nil
	}

	grouped := make(map[int64][]decimal.Decimal)
	for _, q := range quotes {
		grouped[q.MaterialID] = append(grouped[q.MaterialID], q.Price)
	}

	result := make([]CanonicalPrice, 0, len(grouped))
	for materialID, prices := range grouped {
		sum := decimal.Zero
		for _, p := range prices {
			sum = sum.Add(p)
		}
		mean := sum.Div(decimal.NewFromInt(int64(len(prices)))).Round(2)

		result = append(result, CanonicalPrice{
			MaterialID: materialID,
			Price:      mean,
			Source:     SourceAverage,
			ComputedAt: now,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].MaterialID < result[j].MaterialID
	})
	return result
}
