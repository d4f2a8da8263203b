package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aggconflate/internal/errs"
	"aggconflate/internal/model"
	"aggconflate/internal/resilience"
)

func TestGetJSONDecodesSuccessfulResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"serverTime": 12345}`))
	}))
	defer srv.Close()

	c := NewRestClient(model.MarketSpot)
	var out struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := c.getJSON(context.Background(), srv.URL, &out); err != nil {
		t.Fatalf("getJSON: %v", err)
	}
	if out.ServerTime != 12345 {
		t.Fatalf("got %d", out.ServerTime)
	}
}

func TestGetJSONWrapsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := NewRestClient(model.MarketSpot)
	var out any
	err := c.getJSON(context.Background(), srv.URL, &out)
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
	if kind, ok := errs.KindOf(err); !ok || kind != errs.Network {
		t.Fatalf("expected a Network AppError, got %v", err)
	}
}

func TestGetJSONTripsCircuitBreakerAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewRestClient(model.MarketSpot)
	c.breaker = resilience.NewCircuitBreaker(2, time.Minute)

	var out any
	for i := 0; i < 2; i++ {
		if err := c.getJSON(context.Background(), srv.URL, &out); err == nil {
			t.Fatal("expected failures to propagate before the breaker trips")
		}
	}

	err := c.getJSON(context.Background(), srv.URL, &out)
	if err == nil {
		t.Fatal("expected an error once the breaker is open")
	}
	if kind, ok := errs.KindOf(err); !ok || kind != errs.Network {
		t.Fatalf("expected circuit-open to surface as a Network AppError, got %v", err)
	}
}
