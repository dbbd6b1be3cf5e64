package retailer

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// FanOut issues one quote fetch per (material, retailer) pair with
// bounded concurrency. Pairs are fully independent: a pair that yields
// no quote contributes nothing and affects nothing else.
type FanOut struct {
	fetcher       QuoteFetcher
	maxConcurrent int
	logger        zerolog.Logger
}

// NewFanOut wires a fan-out over a quote fetcher. maxConcurrent caps
// in-flight requests per retailer to avoid proxy throttling.
func NewFanOut(fetcher QuoteFetcher, maxConcurrent int, logger zerolog.Logger) *FanOut {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &FanOut{
		fetcher:       fetcher,
		maxConcurrent: maxConcurrent,
		logger:        logger.With().Str("component", "retailer_fanout").Logger(),
	}
}

// FetchAll gathers quotes for every (material, retailer) pair.
// Retailers are walked one at a time; within a retailer, materials are
// fetched by a bounded set of workers. Output order carries no meaning.
func (f *FanOut) FetchAll(ctx context.Context, materials []Material, descs []Descriptor) []Quote {
	var (
		mu     sync.Mutex
		quotes []Quote
	)

	for _, desc := range descs {
		if ctx.Err() != nil {
			break
		}

		var wg sync.WaitGroup
		sem := make(chan struct{}, f.maxConcurrent)

		for _, material := range materials {
			select {
			case <-ctx.Done():
			case sem <- struct{}{}:
				wg.Add(1)
				go func(m Material) {
					defer wg.Done()
					defer func() { <-sem }()

					if quote, ok := f.fetcher.FetchQuote(ctx, m, desc); ok {
						mu.Lock()
						quotes = append(quotes, quote)
						mu.Unlock()
					}
				}(material)
			}
		}

		wg.Wait()
		f.logger.Debug().Str("retailer", desc.Name).Int("quotes_total", len(quotes)).Msg("retailer pass finished")
	}

	return quotes
}
