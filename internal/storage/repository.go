package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("storage: not found")
)

const (
	listMaterialsSQL = `SELECT
        mp.id, mp.category, mp.name, mp.unit, mp.price, mp.source, mp.location, mp.last_updated,
        ucp.custom_price
    FROM material_prices mp
    LEFT JOIN user_custom_prices ucp
        ON mp.id = ucp.material_id AND ucp.user_id = $1
    WHERE ($2 = '' OR mp.category = $2)
    ORDER BY mp.category, mp.name;`

	catalogSnapshotSQL = `SELECT id, category, name, unit, price, source, location, last_updated
    FROM material_prices
    ORDER BY id;`

	getMaterialSQL = `SELECT id, category, name, unit, price, source, location, last_updated
    FROM material_prices
    WHERE id = $1;`

	searchMaterialsSQL = `SELECT id, category, name, unit, price, source, location, last_updated
    FROM material_prices
    WHERE LOWER(name) LIKE LOWER($1)
    ORDER BY name
    LIMIT $2;`

	seedMaterialSQL = `INSERT INTO material_prices (category, name, unit, price, source)
    VALUES ($1, $2, $3, $4, 'default')
    ON CONFLICT (name) DO NOTHING;`

	upsertCustomPriceSQL = `INSERT INTO user_custom_prices (user_id, material_id, custom_price, notes)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (user_id, material_id)
    DO UPDATE SET custom_price = EXCLUDED.custom_price,
                  notes        = EXCLUDED.notes,
                  created_at   = CURRENT_TIMESTAMP;`

	priceHistorySQL = `SELECT id, material_id, price, source, recorded_at
    FROM price_history
    WHERE material_id = $1
    ORDER BY recorded_at DESC
    LIMIT $2;`

	priceHistoryBetweenSQL = `SELECT id, material_id, price, source, recorded_at
    FROM price_history
    WHERE material_id = $1
      AND recorded_at >= $2
      AND recorded_at < $3
    ORDER BY recorded_at;`

	retailerPricesSQL = `SELECT id, material_id, retailer, price, url, in_stock, last_scraped
    FROM retailer_prices
    WHERE material_id = $1
    ORDER BY price;`

	createRunSQL = `INSERT INTO scrape_runs (status, started_at)
    VALUES ($1, CURRENT_TIMESTAMP)
    RETURNING id;`

	completeRunSQL = `UPDATE scrape_runs
    SET status = $2, materials_updated = $3, completed_at = CURRENT_TIMESTAMP
    WHERE id = $1 AND status = $4;`

	failRunSQL = `UPDATE scrape_runs
    SET status = $2, error = $3, completed_at = CURRENT_TIMESTAMP
    WHERE id = $1 AND status = $4;`

	listRecentRunsSQL = `SELECT id, status, started_at, completed_at, materials_updated, error, created_at
    FROM scrape_runs
    ORDER BY created_at DESC
    LIMIT $1;`

	insertPriceAlertSQL = `INSERT INTO price_alerts (material_id, old_price, new_price, change_pct)
    VALUES ($1, $2, $3, $4);`

	listRecentAlertsSQL = `SELECT pa.id, pa.material_id, mp.name, pa.old_price, pa.new_price, pa.change_pct, pa.created_at
    FROM price_alerts pa
    JOIN material_prices mp ON mp.id = pa.material_id
    ORDER BY pa.created_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Catalog exposes the material catalog read at run start.
type Catalog interface {
	CatalogSnapshot(ctx context.Context) ([]Material, error)
}

// RunLog records orchestrator run state transitions.
type RunLog interface {
	CreateRun(ctx context.Context) (int64, error)
	CompleteRun(ctx context.Context, runID int64, materialsUpdated int) error
	FailRun(ctx context.Context, runID int64, errMsg string) error
}

// AlertSink persists significant price movements.
type AlertSink interface {
	InsertPriceAlert(ctx context.Context, materialID int64, oldPrice, newPrice, changePct decimal.Decimal) error
}

// AdvisoryLocker exposes advisory lock helpers used for run exclusivity.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to the material catalog and its dependent
// tables over a single pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and
// returns a release func bound to the holding connection.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Best effort: releasing the connection drops the lock anyway.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// ExecRaw executes arbitrary SQL, used by the migration runner.
func (s *Store) ExecRaw(ctx context.Context, sql string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, sql); execErr != nil {
		return execErr
	}
	return nil
}

// ListMaterials lists catalog entries, optionally filtered by category,
// with the per-user custom price joined in.
func (s *Store) ListMaterials(ctx context.Context, category, userID string) ([]Material, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listMaterialsSQL, userID, category)
	if queryErr != nil {
		return nil, fmt.Errorf("list materials: %w", queryErr)
	}
	defer rows.Close()

	materials := make([]Material, 0)
	for rows.Next() {
		var (
			m         Material
			priceStr  string
			customStr *string
		)
		if err := rows.Scan(&m.ID, &m.Category, &m.Name, &m.Unit, &priceStr, &m.Source, &m.Location, &m.LastUpdated, &customStr); err != nil {
			return nil, err
		}
		if m.Price, err = decimal.NewFromString(priceStr); err != nil {
			return nil, fmt.Errorf("parse material price: %w", err)
		}
		if customStr != nil {
			custom, convErr := decimal.NewFromString(*customStr)
			if convErr != nil {
				return nil, fmt.Errorf("parse custom price: %w", convErr)
			}
			m.CustomPrice = &custom
		}
		materials = append(materials, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return materials, nil
}

// CatalogSnapshot reads the full catalog at run start.
func (s *Store) CatalogSnapshot(ctx context.Context) ([]Material, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, catalogSnapshotSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("catalog snapshot: %w", queryErr)
	}
	defer rows.Close()

	return scanMaterials(rows)
}

// GetMaterial fetches one catalog entry by id.
func (s *Store) GetMaterial(ctx context.Context, id int64) (Material, error) {
	pool, err := s.getPool()
	if err != nil {
		return Material{}, err
	}

	var (
		m        Material
		priceStr string
	)
	row := pool.QueryRow(ctx, getMaterialSQL, id)
	if err := row.Scan(&m.ID, &m.Category, &m.Name, &m.Unit, &priceStr, &m.Source, &m.Location, &m.LastUpdated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Material{}, ErrNotFound
		}
		return Material{}, fmt.Errorf("get material: %w", err)
	}
	if m.Price, err = decimal.NewFromString(priceStr); err != nil {
		return Material{}, fmt.Errorf("parse material price: %w", err)
	}
	return m, nil
}

// SearchMaterials matches catalog entries by name substring.
func (s *Store) SearchMaterials(ctx context.Context, query string, limit int) ([]Material, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, searchMaterialsSQL, "%"+query+"%", limit)
	if queryErr != nil {
		return nil, fmt.Errorf("search materials: %w", queryErr)
	}
	defer rows.Close()

	return scanMaterials(rows)
}

// SeedMaterials inserts catalog entries, skipping names already present.
// Returns the number of rows actually inserted.
func (s *Store) SeedMaterials(ctx context.Context, seeds []SeedMaterial) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, seed := range seeds {
		tag, execErr := pool.Exec(ctx, seedMaterialSQL, seed.Category, seed.Name, seed.Unit, seed.Price.String())
		if execErr != nil {
			return inserted, fmt.Errorf("seed material %q: %w", seed.Name, execErr)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// UpsertCustomPrice records a per-user price override for a material.
func (s *Store) UpsertCustomPrice(ctx context.Context, userID string, materialID int64, price decimal.Decimal, notes string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertCustomPriceSQL, userID, materialID, price.String(), notes); execErr != nil {
		return fmt.Errorf("upsert custom price: %w", execErr)
	}
	return nil
}

// PriceHistory lists recent price observations, most recent first.
func (s *Store) PriceHistory(ctx context.Context, materialID int64, limit int) ([]PriceHistoryEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, priceHistorySQL, materialID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("price history: %w", queryErr)
	}
	defer rows.Close()

	return scanHistory(rows)
}

// PriceHistoryBetween lists observations in a window in ascending order.
func (s *Store) PriceHistoryBetween(ctx context.Context, materialID int64, from, to time.Time) ([]PriceHistoryEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, priceHistoryBetweenSQL, materialID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("price history between: %w", queryErr)
	}
	defer rows.Close()

	return scanHistory(rows)
}

// RetailerPrices lists the per-retailer snapshots for a material,
// cheapest first.
func (s *Store) RetailerPrices(ctx context.Context, materialID int64) ([]RetailerPrice, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, retailerPricesSQL, materialID)
	if queryErr != nil {
		return nil, fmt.Errorf("retailer prices: %w", queryErr)
	}
	defer rows.Close()

	prices := make([]RetailerPrice, 0)
	for rows.Next() {
		var (
			rp       RetailerPrice
			priceStr string
		)
		if err := rows.Scan(&rp.ID, &rp.MaterialID, &rp.Retailer, &priceStr, &rp.URL, &rp.InStock, &rp.LastScraped); err != nil {
			return nil, err
		}
		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse retailer price: %w", convErr)
		}
		rp.Price = price
		prices = append(prices, rp)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return prices, nil
}

// CreateRun opens a run record in the running state and returns its id.
func (s *Store) CreateRun(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var id int64
	if scanErr := pool.QueryRow(ctx, createRunSQL, RunStatusRunning).Scan(&id); scanErr != nil {
		return 0, fmt.Errorf("create run: %w", scanErr)
	}
	return id, nil
}

// CompleteRun transitions a running run to completed.
func (s *Store) CompleteRun(ctx context.Context, runID int64, materialsUpdated int) error {
	return s.finishRun(ctx, runID, completeRunSQL, RunStatusCompleted, materialsUpdated)
}

// FailRun transitions a running run to failed with an error message.
func (s *Store) FailRun(ctx context.Context, runID int64, errMsg string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, failRunSQL, runID, RunStatusFailed, errMsg, RunStatusRunning)
	if execErr != nil {
		return fmt.Errorf("fail run: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) finishRun(ctx context.Context, runID int64, sql, status string, updated int) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, sql, runID, status, updated, RunStatusRunning)
	if execErr != nil {
		return fmt.Errorf("finish run: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecentRuns lists the most recent run records.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0, limit)
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.ID, &rec.Status, &rec.StartedAt, &rec.CompletedAt, &rec.MaterialsUpdated, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

// InsertPriceAlert persists one significant price movement.
func (s *Store) InsertPriceAlert(ctx context.Context, materialID int64, oldPrice, newPrice, changePct decimal.Decimal) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, insertPriceAlertSQL, materialID, oldPrice.String(), newPrice.String(), changePct.String()); execErr != nil {
		return fmt.Errorf("insert price alert: %w", execErr)
	}
	return nil
}

// ListRecentAlerts lists the most recent persisted price movements.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]PriceAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]PriceAlert, 0, limit)
	for rows.Next() {
		var (
			alert  PriceAlert
			oldStr string
			newStr string
			pctStr string
		)
		if err := rows.Scan(&alert.ID, &alert.MaterialID, &alert.Material, &oldStr, &newStr, &pctStr, &alert.CreatedAt); err != nil {
			return nil, err
		}
		var convErr error
		if alert.OldPrice, convErr = decimal.NewFromString(oldStr); convErr != nil {
			return nil, fmt.Errorf("parse old price: %w", convErr)
		}
		if alert.NewPrice, convErr = decimal.NewFromString(newStr); convErr != nil {
			return nil, fmt.Errorf("parse new price: %w", convErr)
		}
		if alert.ChangePct, convErr = decimal.NewFromString(pctStr); convErr != nil {
			return nil, fmt.Errorf("parse change pct: %w", convErr)
		}
		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

var (
	_ Catalog        = (*Store)(nil)
	_ RunLog         = (*Store)(nil)
	_ AlertSink      = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)

func scanMaterials(rows pgx.Rows) ([]Material, error) {
	materials := make([]Material, 0)
	for rows.Next() {
		var (
			m        Material
			priceStr string
		)
		if err := rows.Scan(&m.ID, &m.Category, &m.Name, &m.Unit, &priceStr, &m.Source, &m.Location, &m.LastUpdated); err != nil {
			return nil, err
		}
		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse material price: %w", convErr)
		}
		m.Price = price
		materials = append(materials, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return materials, nil
}

func scanHistory(rows pgx.Rows) ([]PriceHistoryEntry, error) {
	entries := make([]PriceHistoryEntry, 0)
	for rows.Next() {
		var (
			entry    PriceHistoryEntry
			priceStr string
		)
		if err := rows.Scan(&entry.ID, &entry.MaterialID, &priceStr, &entry.Source, &entry.RecordedAt); err != nil {
			return nil, err
		}
		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse history price: %w", convErr)
		}
		entry.Price = price
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}
