package retailer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
)

// fakeFetcher fails specific (material, retailer) pairs and records
// concurrency.
type fakeFetcher struct {
	mu       sync.Mutex
	failures map[string]bool

	inFlight    int32
	maxInFlight int32
}

func pairKey(materialID int64, retailerName string) string {
	return fmt.Sprintf("%s#%d", retailerName, materialID)
}

func (f *fakeFetcher) FetchQuote(_ context.Context, m Material, desc Descriptor) (Quote, bool) {
	current := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if current <= max || atomic.CompareAndSwapInt32(&f.maxInFlight, max, current) {
			break
		}
	}

	f.mu.Lock()
	failed := f.failures[pairKey(m.ID, desc.Name)]
	f.mu.Unlock()
	if failed {
		return Quote{}, false
	}
	return Quote{MaterialID: m.ID, Price: decimal.NewFromInt(10), Retailer: desc.Name, InStock: true}, true
}

func testDescriptors() []Descriptor {
	return []Descriptor{
		{ID: "homedepot", Name: "Home Depot", URLTemplate: "http://hd/%s", Extract: extractDollarPrice},
		{ID: "lowes", Name: "Lowe's", URLTemplate: "http://lw/%s", Extract: extractDollarPrice},
	}
}

func TestFetchAllFaultIsolation(t *testing.T) {
	fetcher := &fakeFetcher{failures: map[string]bool{
		pairKey(2, "Lowe's"): true,
	}}
	fanout := NewFanOut(fetcher, 2, noopLogger())

	materials := []Material{
		{ID: 1, Name: "2x4x8 Stud"},
		{ID: 2, Name: "80lb Concrete Bag"},
		{ID: 3, Name: "Drywall Tape 250ft"},
	}

	quotes := fanout.FetchAll(context.Background(), materials, testDescriptors())
	// 3 materials x 2 retailers, minus the one failing pair
	if len(quotes) != 5 {
		t.Fatalf("expected 5 quotes, got %d", len(quotes))
	}
	for _, q := range quotes {
		if q.MaterialID == 2 && q.Retailer == "Lowe's" {
			t.Fatal("failed pair must not contribute a quote")
		}
	}
}

func TestFetchAllBoundedConcurrency(t *testing.T) {
	fetcher := &fakeFetcher{failures: map[string]bool{}}
	fanout := NewFanOut(fetcher, 2, noopLogger())

	materials := make([]Material, 8)
	for i := range materials {
		materials[i] = Material{ID: int64(i + 1), Name: "material"}
	}

	quotes := fanout.FetchAll(context.Background(), materials, testDescriptors()[:1])
	if len(quotes) != 8 {
		t.Fatalf("expected 8 quotes, got %d", len(quotes))
	}
	if max := atomic.LoadInt32(&fetcher.maxInFlight); max > 2 {
		t.Fatalf("expected at most 2 concurrent fetches, observed %d", max)
	}
}

func TestFetchAllCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &fakeFetcher{failures: map[string]bool{}}
	fanout := NewFanOut(fetcher, 2, noopLogger())

	quotes := fanout.FetchAll(ctx, []Material{{ID: 1, Name: "m"}}, testDescriptors())
	if len(quotes) != 0 {
		t.Fatalf("cancelled context should gather nothing, got %d quotes", len(quotes))
	}
}
