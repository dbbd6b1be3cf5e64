package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/bradz86/carpenter-pro-backend/internal/config"
	"github.com/bradz86/carpenter-pro-backend/internal/storage"
)

// APIStore is the slice of storage the query API reads and writes.
type APIStore interface {
	ListMaterials(ctx context.Context, category, userID string) ([]storage.Material, error)
	SearchMaterials(ctx context.Context, query string, limit int) ([]storage.Material, error)
	PriceHistory(ctx context.Context, materialID int64, limit int) ([]storage.PriceHistoryEntry, error)
	RetailerPrices(ctx context.Context, materialID int64) ([]storage.RetailerPrice, error)
	UpsertCustomPrice(ctx context.Context, userID string, materialID int64, price decimal.Decimal, notes string) error
	ListRecentAlerts(ctx context.Context, limit int) ([]storage.PriceAlert, error)
	ListRecentRuns(ctx context.Context, limit int) ([]storage.RunRecord, error)
}

// RunStarter triggers an asynchronous price update run.
type RunStarter interface {
	StartRun(ctx context.Context) (int64, error)
}

// Server hosts the material price query API.
type Server struct {
	app    *fiber.App
	addr   string
	logger zerolog.Logger
}

// New assembles the fiber app and its routes.
func New(cfg config.ServerConfig, store APIStore, runner RunStarter, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "http_server").Logger()

	app := fiber.New(fiber.Config{
		AppName:               "carpenter-pro",
		ReadTimeout:           cfg.ReadTimeout,
		DisableStartupMessage: true,
	})
	app.Use(requestid.New())
	app.Use(recover.New())
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Debug().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
		return err
	})

	materials := &MaterialHandler{Store: store}
	admin := &AdminHandler{Runner: runner, Store: store, AdminKey: cfg.AdminKey, Logger: logger}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "timestamp": time.Now().UTC()})
	})

	api := app.Group("/api")
	api.Get("/materials", materials.List)
	api.Get("/materials/search", materials.Search)
	api.Get("/materials/:id/history", materials.History)
	api.Get("/materials/:id/retailer-prices", materials.RetailerPrices)
	api.Post("/materials/custom-price", materials.UpsertCustomPrice)
	api.Get("/price-alerts", materials.Alerts)

	adminGroup := api.Group("/admin", admin.Authorize)
	adminGroup.Post("/scrape-prices", admin.TriggerRun)
	adminGroup.Get("/runs", admin.Runs)

	return &Server{app: app, addr: cfg.Addr, logger: logger}
}

// Listen serves until the context is cancelled.
func (s *Server) Listen(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.addr)
	}()

	s.logger.Info().Str("addr", s.addr).Msg("http server listening")

	select {
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			s.logger.Error().Err(err).Msg("http server shutdown failed")
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// App exposes the underlying fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
