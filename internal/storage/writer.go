package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bradz86/carpenter-pro-backend/internal/pricing"
)

const (
	updateMaterialPriceSQL = `UPDATE material_prices
    SET price = $1, source = $2, last_updated = $3
    WHERE id = $4;`

	appendPriceHistorySQL = `INSERT INTO price_history (material_id, price, source, recorded_at)
    VALUES ($1, $2, $3, $4);`

	upsertRetailerPriceSQL = `INSERT INTO retailer_prices (material_id, retailer, price, last_scraped)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (material_id, retailer)
    DO UPDATE SET price = EXCLUDED.price, last_scraped = EXCLUDED.last_scraped;`
)

// PriceWriter applies a batch of canonical prices atomically.
type PriceWriter interface {
	ApplyCanonicalPrices(ctx context.Context, prices []pricing.CanonicalPrice) error
}

// ApplyCanonicalPrices writes one run's canonical prices in a single
// transaction: current price update, history append, and the averaged
// retailer_prices upsert per material. Any failure rolls the whole
// batch back. Calling twice with the same batch is safe for the keyed
// tables; history intentionally gains one entry per call.
func (s *Store) ApplyCanonicalPrices(ctx context.Context, prices []pricing.CanonicalPrice) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(prices) == 0 {
		return nil
	}

	txErr := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, cp := range prices {
			price := cp.Price.String()

			if _, err := tx.Exec(ctx, updateMaterialPriceSQL, price, cp.Source, cp.ComputedAt, cp.MaterialID); err != nil {
				return fmt.Errorf("update material %d: %w", cp.MaterialID, err)
			}
			if _, err := tx.Exec(ctx, appendPriceHistorySQL, cp.MaterialID, price, cp.Source, cp.ComputedAt); err != nil {
				return fmt.Errorf("append history for material %d: %w", cp.MaterialID, err)
			}
			if _, err := tx.Exec(ctx, upsertRetailerPriceSQL, cp.MaterialID, cp.Source, price, cp.ComputedAt); err != nil {
				return fmt.Errorf("upsert retailer price for material %d: %w", cp.MaterialID, err)
			}
		}
		return nil
	})
	if txErr != nil {
		return fmt.Errorf("apply canonical prices: %w", txErr)
	}
	return nil
}

var _ PriceWriter = (*Store)(nil)
