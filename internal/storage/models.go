package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Run status values for the scrape_runs state machine.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Material is a catalog entry with its current canonical price.
type Material struct {
	ID          int64
	Category    string
	Name        string
	Unit        string
	Price       decimal.Decimal
	Source      string
	Location    string
	LastUpdated time.Time

	// CustomPrice carries the per-user override when the listing query
	// was scoped to a user; nil otherwise.
	CustomPrice *decimal.Decimal
}

// SeedMaterial is a catalog entry to insert at bootstrap time.
type SeedMaterial struct {
	Category string
	Name     string
	Unit     string
	Price    decimal.Decimal
}

// PriceHistoryEntry is one append-only price observation.
type PriceHistoryEntry struct {
	ID         int64
	MaterialID int64
	Price      decimal.Decimal
	Source     string
	RecordedAt time.Time
}

// RetailerPrice is the current per-retailer snapshot for a material,
// unique per (material, retailer).
type RetailerPrice struct {
	ID          int64
	MaterialID  int64
	Retailer    string
	Price       decimal.Decimal
	URL         *string
	InStock     bool
	LastScraped time.Time
}

// RunRecord tracks one orchestrator invocation.
type RunRecord struct {
	ID               int64
	Status           string
	StartedAt        time.Time
	CompletedAt      *time.Time
	MaterialsUpdated int
	Error            *string
	CreatedAt        time.Time
}

// PriceAlert is a persisted significant price movement.
type PriceAlert struct {
	ID         int64
	MaterialID int64
	Material   string
	OldPrice   decimal.Decimal
	NewPrice   decimal.Decimal
	ChangePct  decimal.Decimal
	CreatedAt  time.Time
}
