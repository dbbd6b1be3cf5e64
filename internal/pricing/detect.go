package pricing

import "github.com/shopspring/decimal"

// ChangeEvent flags a canonical price that moved beyond the configured
// threshold relative to the prior stored price.
type ChangeEvent struct {
	MaterialID int64
	OldPrice   decimal.Decimal
	NewPrice   decimal.Decimal
	ChangePct  decimal.Decimal
}

// DetectChanges compares each canonical price against the prior price
// snapshot and emits an event when |new-prior|/prior exceeds threshold.
// A missing or zero prior price means no comparison is possible and
// produces no event.
func DetectChanges(newPrices []CanonicalPrice, priorByID map[int64]decimal.Decimal, threshold decimal.Decimal) []ChangeEvent {
	var events []ChangeEvent
	for _, cp := range newPrices {
		prior, ok := priorByID[cp.MaterialID]
		if !ok || prior.IsZero() {
			continue
		}

		change := cp.Price.Sub(prior).Abs().Div(prior)
		if change.GreaterThan(threshold) {
			events = append(events, ChangeEvent{
				MaterialID: cp.MaterialID,
				OldPrice:   prior,
				NewPrice:   cp.Price,
				ChangePct:  change,
			})
		}
	}
	return events
}
