package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bradz86/carpenter-pro-backend/internal/retailer"
)

func quote(materialID int64, price string) retailer.Quote {
	return retailer.Quote{
		MaterialID: materialID,
		Price:      decimal.RequireFromString(price),
		Retailer:   "Home Depot",
		InStock:    true,
		FetchedAt:  time.Now(),
	}
}

func TestAggregateMean(t *testing.T) {
	now := time.Now().UTC()
	quotes := []retailer.Quote{
		quote(1, "10.00"),
		quote(1, "12.00"),
		quote(1, "11.00"),
	}

	result := Aggregate(quotes, now)
	if len(result) != 1 {
		t.Fatalf("expected 1 canonical price, got %d", len(result))
	}
	if !result[0].Price.Equal(decimal.RequireFromString("11.00")) {
		t.Fatalf("expected mean 11.00, got %s", result[0].Price)
	}
	if result[0].Source != SourceAverage {
		t.Fatalf("expected source %q, got %q", SourceAverage, result[0].Source)
	}
	if !result[0].ComputedAt.Equal(now) {
		t.Fatalf("expected computed_at %v, got %v", now, result[0].ComputedAt)
	}
}

func TestAggregateRoundsHalfAwayFromZero(t *testing.T) {
	quotes := []retailer.Quote{
		quote(1, "10.00"),
		quote(1, "10.01"),
	}

	result := Aggregate(quotes, time.Now())
	if len(result) != 1 {
		t.Fatalf("expected 1 canonical price, got %d", len(result))
	}
	// mean 10.005 rounds up, not to even
	if !result[0].Price.Equal(decimal.RequireFromString("10.01")) {
		t.Fatalf("expected 10.01, got %s", result[0].Price)
	}
}

func TestAggregateGroupsByMaterial(t *testing.T) {
	quotes := []retailer.Quote{
		quote(2, "20.00"),
		quote(1, "10.00"),
		quote(2, "30.00"),
	}

	result := Aggregate(quotes, time.Now())
	if len(result) != 2 {
		t.Fatalf("expected 2 canonical prices, got %d", len(result))
	}
	if result[0].MaterialID != 1 || result[1].MaterialID != 2 {
		t.Fatalf("expected material order 1,2, got %d,%d", result[0].MaterialID, result[1].MaterialID)
	}
	if !result[1].Price.Equal(decimal.RequireFromString("25.00")) {
		t.Fatalf("expected mean 25.00 for material 2, got %s", result[1].Price)
	}
}

func TestAggregateOmitsMaterialsWithoutQuotes(t *testing.T) {
	// material 7 never quoted anywhere: it simply does not appear
	result := Aggregate([]retailer.Quote{quote(1, "10.00")}, time.Now())
	for _, cp := range result {
		if cp.MaterialID == 7 {
			t.Fatal("material without quotes must be absent from output")
		}
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 canonical price, got %d", len(result))
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	if result := Aggregate(nil, time.Now()); len(result) != 0 {
		t.Fatalf("expected empty output, got %d entries", len(result))
	}
}
