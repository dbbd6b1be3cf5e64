package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/bradz86/carpenter-pro-backend/internal/storage"
)

func defaultCatalog() []storage.SeedMaterial {
	d := func(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }
	return []storage.SeedMaterial{
		{Category: "Lumber", Name: "2x4x8 Stud", Unit: "each", Price: d(5.98)},
		{Category: "Lumber", Name: "2x6x8", Unit: "each", Price: d(8.97)},
		{Category: "Lumber", Name: "2x8x10", Unit: "each", Price: d(13.45)},
		{Category: "Lumber", Name: "2x10x12", Unit: "each", Price: d(22.97)},
		{Category: "Lumber", Name: "4x4x8 Post", Unit: "each", Price: d(19.98)},
		{Category: "Lumber", Name: `OSB 7/16" 4x8`, Unit: "sheet", Price: d(14.97)},
		{Category: "Lumber", Name: `Plywood 1/2" 4x8`, Unit: "sheet", Price: d(32.97)},
		{Category: "Concrete", Name: "80lb Concrete Bag", Unit: "bag", Price: d(8.99)},
		{Category: "Concrete", Name: "Ready Mix (per yard)", Unit: "cubic yard", Price: d(125.00)},
		{Category: "Drywall", Name: `1/2" Drywall 4x8`, Unit: "sheet", Price: d(13.98)},
		{Category: "Drywall", Name: "Joint Compound 5gal", Unit: "bucket", Price: d(17.98)},
		{Category: "Drywall", Name: "Drywall Tape 250ft", Unit: "roll", Price: d(6.98)},
		{Category: "Roofing", Name: "Architectural Shingles", Unit: "bundle", Price: d(39.98)},
		{Category: "Roofing", Name: "15lb Felt Paper", Unit: "roll", Price: d(29.98)},
		{Category: "Fasteners", Name: "16d Framing Nails 50lb", Unit: "box", Price: d(65.00)},
		{Category: "Fasteners", Name: "Drywall Screws 5lb", Unit: "box", Price: d(29.98)},
		{Category: "Insulation", Name: `R-13 Fiberglass 15"`, Unit: "roll", Price: d(45.98)},
		{Category: "Insulation", Name: `R-19 Fiberglass 15"`, Unit: "roll", Price: d(62.98)},
	}
}

// Seed inserts the default material catalog, skipping names that
// already exist.
func (a *App) Seed(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	inserted, err := store.SeedMaterials(ctx, defaultCatalog())
	if err != nil {
		return err
	}

	a.Logger.Info().Int("inserted", inserted).Int("catalog_size", len(defaultCatalog())).Msg("catalog seeded")
	return nil
}
