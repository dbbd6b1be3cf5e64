package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/bradz86/carpenter-pro-backend/internal/service"
	"github.com/bradz86/carpenter-pro-backend/internal/storage"
)

const (
	historyLimit = 30
	searchLimit  = 20
	alertsLimit  = 50
	runsLimit    = 10

	userIDHeader  = "X-User-ID"
	defaultUserID = "default"
)

// MaterialHandler serves catalog, history, and override endpoints.
type MaterialHandler struct {
	Store APIStore
}

// List returns the catalog, optionally filtered by category, with the
// caller's custom prices joined in.
func (h *MaterialHandler) List(c *fiber.Ctx) error {
	materials, err := h.Store.ListMaterials(c.Context(), c.Query("category"), userID(c))
	if err != nil {
		return serverError(c, "failed to fetch materials")
	}

	out := make([]fiber.Map, 0, len(materials))
	for _, m := range materials {
		out = append(out, materialJSON(m))
	}
	return c.JSON(out)
}

// Search matches materials by name substring.
func (h *MaterialHandler) Search(c *fiber.Ctx) error {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		return badRequest(c, "query parameter q is required")
	}

	materials, err := h.Store.SearchMaterials(c.Context(), query, searchLimit)
	if err != nil {
		return serverError(c, "failed to search materials")
	}

	out := make([]fiber.Map, 0, len(materials))
	for _, m := range materials {
		out = append(out, materialJSON(m))
	}
	return c.JSON(out)
}

// History returns recent price observations, most recent first.
func (h *MaterialHandler) History(c *fiber.Ctx) error {
	id, ok := materialID(c)
	if !ok {
		return badRequest(c, "invalid material id")
	}

	entries, err := h.Store.PriceHistory(c.Context(), id, historyLimit)
	if err != nil {
		return serverError(c, "failed to fetch history")
	}

	out := make([]fiber.Map, 0, len(entries))
	for _, e := range entries {
		out = append(out, fiber.Map{
			"price":       e.Price.StringFixed(2),
			"source":      e.Source,
			"recorded_at": e.RecordedAt.UTC(),
		})
	}
	return c.JSON(out)
}

// RetailerPrices returns per-retailer snapshots, cheapest first.
func (h *MaterialHandler) RetailerPrices(c *fiber.Ctx) error {
	id, ok := materialID(c)
	if !ok {
		return badRequest(c, "invalid material id")
	}

	prices, err := h.Store.RetailerPrices(c.Context(), id)
	if err != nil {
		return serverError(c, "failed to fetch retailer prices")
	}

	out := make([]fiber.Map, 0, len(prices))
	for _, rp := range prices {
		entry := fiber.Map{
			"retailer":     rp.Retailer,
			"price":        rp.Price.StringFixed(2),
			"in_stock":     rp.InStock,
			"last_scraped": rp.LastScraped.UTC(),
		}
		if rp.URL != nil {
			entry["url"] = *rp.URL
		}
		out = append(out, entry)
	}
	return c.JSON(out)
}

type customPriceRequest struct {
	UserID      string  `json:"userId"`
	MaterialID  int64   `json:"materialId"`
	CustomPrice float64 `json:"customPrice"`
	Notes       string  `json:"notes"`
}

// UpsertCustomPrice records a per-user price override.
func (h *MaterialHandler) UpsertCustomPrice(c *fiber.Ctx) error {
	var req customPriceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.UserID == "" || req.MaterialID <= 0 || req.CustomPrice <= 0 {
		return badRequest(c, "userId, materialId, and a positive customPrice are required")
	}

	price := decimal.NewFromFloat(req.CustomPrice).Round(2)
	if err := h.Store.UpsertCustomPrice(c.Context(), req.UserID, req.MaterialID, price, req.Notes); err != nil {
		return serverError(c, "failed to update price")
	}
	return c.JSON(fiber.Map{"success": true})
}

// Alerts returns recent significant price movements.
func (h *MaterialHandler) Alerts(c *fiber.Ctx) error {
	alerts, err := h.Store.ListRecentAlerts(c.Context(), alertsLimit)
	if err != nil {
		return serverError(c, "failed to fetch alerts")
	}

	out := make([]fiber.Map, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, fiber.Map{
			"material_id": a.MaterialID,
			"material":    a.Material,
			"old_price":   a.OldPrice.StringFixed(2),
			"new_price":   a.NewPrice.StringFixed(2),
			"change_pct":  a.ChangePct.Mul(decimal.NewFromInt(100)).StringFixed(1),
			"created_at":  a.CreatedAt.UTC(),
		})
	}
	return c.JSON(out)
}

// AdminHandler serves the authenticated run trigger and status routes.
type AdminHandler struct {
	Runner   RunStarter
	Store    APIStore
	AdminKey string
	Logger   zerolog.Logger
}

// Authorize guards the admin group with a bearer key.
func (h *AdminHandler) Authorize(c *fiber.Ctx) error {
	auth := c.Get(fiber.HeaderAuthorization)
	if h.AdminKey == "" || auth != "Bearer "+h.AdminKey {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	return c.Next()
}

// TriggerRun starts a price update asynchronously and returns the run
// id immediately. The run outlives this request.
func (h *AdminHandler) TriggerRun(c *fiber.Ctx) error {
	runID, err := h.Runner.StartRun(c.Context())
	if err != nil {
		if errors.Is(err, service.ErrRunInProgress) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		h.Logger.Error().Err(err).Msg("failed to start price update")
		return serverError(c, "failed to start price update")
	}

	return c.JSON(fiber.Map{"message": "price update started", "run_id": runID})
}

// Runs returns the most recent run records.
func (h *AdminHandler) Runs(c *fiber.Ctx) error {
	runs, err := h.Store.ListRecentRuns(c.Context(), runsLimit)
	if err != nil {
		return serverError(c, "failed to fetch runs")
	}

	out := make([]fiber.Map, 0, len(runs))
	for _, r := range runs {
		entry := fiber.Map{
			"id":                r.ID,
			"status":            r.Status,
			"started_at":        r.StartedAt.UTC(),
			"materials_updated": r.MaterialsUpdated,
		}
		if r.CompletedAt != nil {
			entry["completed_at"] = r.CompletedAt.UTC()
		}
		if r.Error != nil {
			entry["error"] = *r.Error
		}
		out = append(out, entry)
	}
	return c.JSON(out)
}

func materialJSON(m storage.Material) fiber.Map {
	entry := fiber.Map{
		"id":           m.ID,
		"category":     m.Category,
		"name":         m.Name,
		"unit":         m.Unit,
		"price":        m.Price.StringFixed(2),
		"source":       m.Source,
		"location":     m.Location,
		"last_updated": m.LastUpdated.UTC().Format(time.RFC3339),
	}
	if m.CustomPrice != nil {
		entry["custom_price"] = m.CustomPrice.StringFixed(2)
	}
	return entry
}

func materialID(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func userID(c *fiber.Ctx) string {
	if id := c.Get(userIDHeader); id != "" {
		return id
	}
	return defaultUserID
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func serverError(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msg})
}
