package retailer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testDescriptor(baseURL string) Descriptor {
	return Descriptor{
		ID:          "test",
		Name:        "Test Retailer",
		URLTemplate: baseURL + "/search?q=%s",
		Extract:     extractDollarPrice,
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(ClientOptions{Timeout: time.Second, UserAgent: "test"}, noopLogger())
	if err != nil {
		t.Fatalf("NewClient should not fail: %v", err)
	}
	return client
}

func TestFetchQuoteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "2x4x8 Stud" {
			t.Fatalf("unexpected search query %q", r.URL.Query().Get("q"))
		}
		_, _ = w.Write([]byte(`<div class="price">$5.98</div>`))
	}))
	defer srv.Close()

	client := newTestClient(t)
	quote, ok := client.FetchQuote(context.Background(), Material{ID: 1, Name: "2x4x8 Stud"}, testDescriptor(srv.URL))
	if !ok {
		t.Fatal("expected a quote")
	}
	if !quote.Price.Equal(decimal.RequireFromString("5.98")) {
		t.Fatalf("expected price 5.98, got %s", quote.Price)
	}
	if quote.MaterialID != 1 {
		t.Fatalf("expected material id 1, got %d", quote.MaterialID)
	}
	if quote.Retailer != "Test Retailer" {
		t.Fatalf("expected retailer label, got %q", quote.Retailer)
	}
	if !quote.InStock {
		t.Fatal("quote should default to in stock")
	}
}

func TestFetchQuoteNoPriceInBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>no results</html>"))
	}))
	defer srv.Close()

	client := newTestClient(t)
	if _, ok := client.FetchQuote(context.Background(), Material{ID: 1, Name: "2x4x8 Stud"}, testDescriptor(srv.URL)); ok {
		t.Fatal("page without a price must yield no quote")
	}
}

func TestFetchQuoteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("$9.99"))
	}))
	defer srv.Close()

	client := newTestClient(t)
	if _, ok := client.FetchQuote(context.Background(), Material{ID: 1, Name: "2x4x8 Stud"}, testDescriptor(srv.URL)); ok {
		t.Fatal("error status must yield no quote even when the body has a price")
	}
}

func TestFetchQuoteTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := newTestClient(t)
	if _, ok := client.FetchQuote(context.Background(), Material{ID: 1, Name: "2x4x8 Stud"}, testDescriptor(srv.URL)); ok {
		t.Fatal("transport error must be absorbed into no quote")
	}
}

func TestFetchQuoteEmptyMaterialName(t *testing.T) {
	client := newTestClient(t)
	if _, ok := client.FetchQuote(context.Background(), Material{ID: 1, Name: "  "}, testDescriptor("http://localhost")); ok {
		t.Fatal("material with empty name must yield no quote")
	}
}

func TestNewClientBadProxyEndpoint(t *testing.T) {
	if _, err := NewClient(ClientOptions{ProxyEndpoint: "://bad"}, noopLogger()); err == nil {
		t.Fatal("invalid proxy endpoint should fail construction")
	}
}

func TestDescriptorsUnknownID(t *testing.T) {
	if _, err := Descriptors([]string{"homedepot", "bobs-hardware"}); err == nil {
		t.Fatal("unknown retailer id should be rejected")
	}

	descs, err := Descriptors([]string{"homedepot", "lowes", "menards"})
	if err != nil {
		t.Fatalf("builtin retailers should resolve: %v", err)
	}
	if len(descs) != 3 {
		t.Fatalf("expected 3 descriptors, got %d", len(descs))
	}
}
