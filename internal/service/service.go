package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/bradz86/carpenter-pro-backend/internal/alerting"
	"github.com/bradz86/carpenter-pro-backend/internal/pricing"
	"github.com/bradz86/carpenter-pro-backend/internal/retailer"
	"github.com/bradz86/carpenter-pro-backend/internal/storage"
)

// ErrRunInProgress is returned when a price update is triggered while
// another run holds the run lock.
var ErrRunInProgress = errors.New("a price update run is already in progress")

// QuoteGatherer fans one catalog out across all configured retailers.
type QuoteGatherer interface {
	FetchAll(ctx context.Context, materials []retailer.Material, descs []retailer.Descriptor) []retailer.Quote
}

// Deps collects the collaborators of the run orchestrator.
type Deps struct {
	Catalog     storage.Catalog
	Writer      storage.PriceWriter
	Runs        storage.RunLog
	Alerts      storage.AlertSink
	Locker      storage.AdvisoryLocker
	Gatherer    QuoteGatherer
	Descriptors []retailer.Descriptor
	Notifier    alerting.Notifier
}

// Service orchestrates the fetch, aggregate, persist, and detect
// pipeline and records run status around it.
type Service struct {
	deps      Deps
	threshold decimal.Decimal
	alertsOn  bool
	lockKey   int64
	logger    zerolog.Logger
}

// New constructs the run orchestrator. threshold is the relative change
// above which movements are flagged.
func New(deps Deps, threshold float64, alertsOn bool, lockKey int64, logger zerolog.Logger) *Service {
	return &Service{
		deps:      deps,
		threshold: decimal.NewFromFloat(threshold),
		alertsOn:  alertsOn,
		lockKey:   lockKey,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// RunPriceUpdate executes one full price update synchronously and
// returns the run id. The run record is created before any fetching
// begins; if that write fails, the run does not start.
func (s *Service) RunPriceUpdate(ctx context.Context) (int64, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return 0, err
	}
	if !proceed {
		return 0, ErrRunInProgress
	}
	if unlock != nil {
		defer unlock()
	}

	runID, err := s.deps.Runs.CreateRun(ctx)
	if err != nil {
		return 0, fmt.Errorf("create run record: %w", err)
	}

	return runID, s.execute(ctx, runID)
}

// StartRun begins a price update on an independent goroutine and
// returns the run id immediately. The caller is not affected by the
// run's outcome; status is queryable by id.
func (s *Service) StartRun(ctx context.Context) (int64, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return 0, err
	}
	if !proceed {
		return 0, ErrRunInProgress
	}

	runID, err := s.deps.Runs.CreateRun(ctx)
	if err != nil {
		if unlock != nil {
			unlock()
		}
		return 0, fmt.Errorf("create run record: %w", err)
	}

	go func() {
		if unlock != nil {
			defer unlock()
		}
		// Detached from the triggering request's lifetime.
		if err := s.execute(context.Background(), runID); err != nil {
			s.logger.Error().Err(err).Int64("run_id", runID).Msg("background run failed")
		}
	}()

	return runID, nil
}

func (s *Service) execute(ctx context.Context, runID int64) error {
	logger := s.logger.With().Int64("run_id", runID).Logger()
	logger.Info().Msg("price update started")

	count, err := s.pipeline(ctx, logger)
	if err != nil {
		if failErr := s.deps.Runs.FailRun(ctx, runID, err.Error()); failErr != nil {
			logger.Error().Err(failErr).Msg("failed to record run failure")
		}
		logger.Error().Err(err).Msg("price update failed")
		return err
	}

	if err := s.deps.Runs.CompleteRun(ctx, runID, count); err != nil {
		logger.Error().Err(err).Msg("failed to record run completion")
		return err
	}

	logger.Info().Int("materials_updated", count).Msg("price update completed")
	return nil
}

// pipeline runs catalog read, fan-out, aggregation, persistence, and
// change detection. It returns the count of canonical prices applied.
func (s *Service) pipeline(ctx context.Context, logger zerolog.Logger) (int, error) {
	catalog, err := s.deps.Catalog.CatalogSnapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("load material catalog: %w", err)
	}
	if len(catalog) == 0 {
		return 0, errors.New("material catalog is empty")
	}

	materials := make([]retailer.Material, 0, len(catalog))
	priorByID := make(map[int64]decimal.Decimal, len(catalog))
	categoryByID := make(map[int64]string, len(catalog))
	nameByID := make(map[int64]string, len(catalog))
	for _, m := range catalog {
		materials = append(materials, retailer.Material{ID: m.ID, Name: m.Name, Category: m.Category})
		priorByID[m.ID] = m.Price
		categoryByID[m.ID] = m.Category
		nameByID[m.ID] = m.Name
	}

	quotes := s.deps.Gatherer.FetchAll(ctx, materials, s.deps.Descriptors)
	logger.Info().Int("materials", len(materials)).Int("retailers", len(s.deps.Descriptors)).Int("quotes", len(quotes)).Msg("fan-out finished")

	canonical := pricing.Aggregate(quotes, time.Now().UTC())
	if len(canonical) == 0 {
		logger.Warn().Msg("no quotes gathered; nothing to persist")
		return 0, nil
	}

	if err := s.deps.Writer.ApplyCanonicalPrices(ctx, canonical); err != nil {
		return 0, err
	}

	events := pricing.DetectChanges(canonical, priorByID, s.threshold)
	for _, event := range events {
		logger.Warn().
			Int64("material_id", event.MaterialID).
			Str("material", nameByID[event.MaterialID]).
			Str("old_price", event.OldPrice.StringFixed(2)).
			Str("new_price", event.NewPrice.StringFixed(2)).
			Str("change_pct", event.ChangePct.Mul(decimal.NewFromInt(100)).StringFixed(1)).
			Msg("significant price change detected")
	}
	if s.alertsOn && len(events) > 0 {
		s.recordAlerts(ctx, events, nameByID, categoryByID, logger)
	}

	return len(canonical), nil
}

// recordAlerts persists and dispatches change events. Alert failures
// never fail the run; the canonical prices are already committed.
func (s *Service) recordAlerts(ctx context.Context, events []pricing.ChangeEvent, nameByID, categoryByID map[int64]string, logger zerolog.Logger) {
	for _, event := range events {
		if s.deps.Alerts != nil {
			if err := s.deps.Alerts.InsertPriceAlert(ctx, event.MaterialID, event.OldPrice, event.NewPrice, event.ChangePct); err != nil {
				logger.Error().Err(err).Int64("material_id", event.MaterialID).Msg("failed to persist price alert")
			}
		}
		if s.deps.Notifier != nil {
			note := alerting.Notification{
				Material:     nameByID[event.MaterialID],
				Category:     categoryByID[event.MaterialID],
				OldPrice:     event.OldPrice,
				NewPrice:     event.NewPrice,
				ChangePct:    event.ChangePct,
				ThresholdPct: s.threshold,
				OccurredAt:   time.Now().UTC(),
			}
			if err := s.deps.Notifier.Notify(ctx, note); err != nil {
				logger.Error().Err(err).Int64("material_id", event.MaterialID).Msg("failed to dispatch alert")
			}
		}
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire run lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
