package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/bradz86/carpenter-pro-backend/internal/config"
	"github.com/bradz86/carpenter-pro-backend/internal/service"
	"github.com/bradz86/carpenter-pro-backend/internal/storage"
)

type fakeStore struct {
	materials []storage.Material
	history   []storage.PriceHistoryEntry
	retailers []storage.RetailerPrice
	alerts    []storage.PriceAlert
	runs      []storage.RunRecord

	customUserID     string
	customMaterialID int64
	customPrice      decimal.Decimal

	listCategory string
	listUserID   string
}

func (f *fakeStore) ListMaterials(_ context.Context, category, userID string) ([]storage.Material, error) {
	f.listCategory = category
	f.listUserID = userID
	return f.materials, nil
}

func (f *fakeStore) SearchMaterials(_ context.Context, query string, _ int) ([]storage.Material, error) {
	var out []storage.Material
	for _, m := range f.materials {
		if strings.Contains(strings.ToLower(m.Name), strings.ToLower(query)) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) PriceHistory(context.Context, int64, int) ([]storage.PriceHistoryEntry, error) {
	return f.history, nil
}

func (f *fakeStore) RetailerPrices(context.Context, int64) ([]storage.RetailerPrice, error) {
	return f.retailers, nil
}

func (f *fakeStore) UpsertCustomPrice(_ context.Context, userID string, materialID int64, price decimal.Decimal, _ string) error {
	f.customUserID = userID
	f.customMaterialID = materialID
	f.customPrice = price
	return nil
}

func (f *fakeStore) ListRecentAlerts(context.Context, int) ([]storage.PriceAlert, error) {
	return f.alerts, nil
}

func (f *fakeStore) ListRecentRuns(context.Context, int) ([]storage.RunRecord, error) {
	return f.runs, nil
}

type fakeRunner struct {
	runID int64
	err   error
	calls int
}

func (f *fakeRunner) StartRun(context.Context) (int64, error) {
	f.calls++
	return f.runID, f.err
}

func testServer(store *fakeStore, runner *fakeRunner) *Server {
	cfg := config.ServerConfig{Addr: ":0", AdminKey: "secret", ReadTimeout: time.Second}
	return New(cfg, store, runner, zerolog.Nop())
}

func decodeList(t *testing.T, resp *http.Response) []map[string]any {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode response %q: %v", body, err)
	}
	return out
}

func TestListMaterials(t *testing.T) {
	custom := decimal.RequireFromString("5.25")
	store := &fakeStore{materials: []storage.Material{
		{ID: 1, Category: "Lumber", Name: "2x4x8 Stud", Unit: "each", Price: decimal.RequireFromString("5.98"), Source: "Average", Location: "National Average", LastUpdated: time.Now(), CustomPrice: &custom},
	}}
	srv := testServer(store, &fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/api/materials?category=Lumber", nil)
	req.Header.Set(userIDHeader, "bob")
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	out := decodeList(t, resp)
	if len(out) != 1 {
		t.Fatalf("expected 1 material, got %d", len(out))
	}
	if out[0]["price"] != "5.98" {
		t.Fatalf("expected price 5.98, got %v", out[0]["price"])
	}
	if out[0]["custom_price"] != "5.25" {
		t.Fatalf("expected custom price 5.25, got %v", out[0]["custom_price"])
	}
	if store.listCategory != "Lumber" || store.listUserID != "bob" {
		t.Fatalf("filter not passed through: category=%q user=%q", store.listCategory, store.listUserID)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	srv := testServer(&fakeStore{}, &fakeRunner{})

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/api/materials/search", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHistoryRejectsBadID(t *testing.T) {
	srv := testServer(&fakeStore{}, &fakeRunner{})

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/api/materials/abc/history", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUpsertCustomPrice(t *testing.T) {
	store := &fakeStore{}
	srv := testServer(store, &fakeRunner{})

	body := strings.NewReader(`{"userId":"bob","materialId":3,"customPrice":12.345}`)
	req := httptest.NewRequest(http.MethodPost, "/api/materials/custom-price", body)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if store.customUserID != "bob" || store.customMaterialID != 3 {
		t.Fatalf("override not stored: user=%q material=%d", store.customUserID, store.customMaterialID)
	}
	if !store.customPrice.Equal(decimal.RequireFromString("12.35")) {
		t.Fatalf("expected price rounded to 12.35, got %s", store.customPrice)
	}
}

func TestAdminUnauthorized(t *testing.T) {
	runner := &fakeRunner{runID: 7}
	srv := testServer(&fakeStore{}, runner)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodPost, "/api/admin/scrape-prices", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if runner.calls != 0 {
		t.Fatal("unauthorized request must not start a run")
	}
}

func TestAdminTriggerRun(t *testing.T) {
	runner := &fakeRunner{runID: 7}
	srv := testServer(&fakeStore{}, runner)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/scrape-prices", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out["run_id"] != float64(7) {
		t.Fatalf("expected run_id 7, got %v", out["run_id"])
	}
}

func TestAdminTriggerRunConflict(t *testing.T) {
	runner := &fakeRunner{err: service.ErrRunInProgress}
	srv := testServer(&fakeStore{}, runner)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/scrape-prices", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv := testServer(&fakeStore{}, &fakeRunner{})

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
