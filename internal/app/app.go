package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bradz86/carpenter-pro-backend/internal/alerting"
	"github.com/bradz86/carpenter-pro-backend/internal/config"
	"github.com/bradz86/carpenter-pro-backend/internal/retailer"
	"github.com/bradz86/carpenter-pro-backend/internal/scheduler"
	"github.com/bradz86/carpenter-pro-backend/internal/server"
	"github.com/bradz86/carpenter-pro-backend/internal/service"
	"github.com/bradz86/carpenter-pro-backend/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI
// commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(store *storage.Store) (*service.Service, error) {
	descs, err := retailer.Descriptors(a.Config.Retailers.Enabled)
	if err != nil {
		return nil, err
	}

	client, err := retailer.NewClient(retailer.ClientOptions{
		ProxyEndpoint: a.Config.Proxy.Endpoint,
		ProxyUsername: a.Config.Proxy.Username,
		ProxyPassword: a.Config.Proxy.Password,
		ProxyZone:     a.Config.Proxy.Zone,
		Timeout:       a.Config.Retailers.RequestTimeout,
		UserAgent:     a.Config.Retailers.UserAgent,
	}, a.Logger)
	if err != nil {
		return nil, err
	}

	fanout := retailer.NewFanOut(client, a.Config.Retailers.MaxConcurrent, a.Logger)

	deps := service.Deps{
		Catalog:     store,
		Writer:      store,
		Runs:        store,
		Alerts:      store,
		Locker:      store,
		Gatherer:    fanout,
		Descriptors: descs,
		Notifier:    a.newNotifier(),
	}

	svc := service.New(deps,
		a.Config.Pricing.ChangeThreshold,
		a.Config.Alerting.Enabled,
		a.Config.Scheduler.AdvisoryLockKey,
		a.Logger,
	)
	return svc, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

// Run executes the long-running service: the periodic price update
// scheduler plus the HTTP query API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(store)
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:        a.Config.Scheduler.Interval,
		AlignToInterval: a.Config.Scheduler.AlignToInterval,
		StartupDelay:    a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
			_, err := svc.RunPriceUpdate(ctx)
			if errors.Is(err, service.ErrRunInProgress) {
				a.Logger.Warn().Msg("skipping scheduled update; run already in progress")
				return nil
			}
			return err
		})
	})

	if a.Config.Server.Enabled {
		srv := server.New(a.Config.Server, store, svc, a.Logger)
		group.Go(func() error {
			return srv.Listen(ctx)
		})
	}

	a.Logger.Info().Msg("starting price tracking service")
	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("price tracking service stopped")
	return nil
}

// Scrape executes one synchronous price update run.
func (a *App) Scrape(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(store)
	if err != nil {
		return err
	}

	runID, err := svc.RunPriceUpdate(ctx)
	if err != nil {
		return err
	}
	a.Logger.Info().Int64("run_id", runID).Msg("price update run finished")
	return nil
}

// ExportOptions hold parameters for exporting price history.
type ExportOptions struct {
	MaterialID int64
	From       *time.Time
	To         *time.Time
	PNGPath    string
	CSVPath    string
	MaxPoints  int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
