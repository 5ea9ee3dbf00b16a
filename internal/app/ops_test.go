package app_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fairyhunter13/scrape-fleet/internal/adapter/observability"
	"github.com/fairyhunter13/scrape-fleet/internal/app"
)

type pinger struct{ err error }

func (p pinger) Ping(_ context.Context) error { return p.err }

func TestOpsRouter_Healthz(t *testing.T) {
	h := app.BuildOpsRouter(pinger{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/healthz: want 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("/healthz body: %q", rec.Body.String())
	}
}

func TestOpsRouter_Readyz(t *testing.T) {
	h := app.BuildOpsRouter(pinger{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/readyz: want 200, got %d", rec.Code)
	}
}

func TestOpsRouter_ReadyzPingFailure(t *testing.T) {
	h := app.BuildOpsRouter(pinger{err: errors.New("pool closed")})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("/readyz: want 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pool closed") {
		t.Fatalf("/readyz body: %q", rec.Body.String())
	}
}

func TestOpsRouter_ReadyzNilPool(t *testing.T) {
	h := app.BuildOpsRouter(nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("/readyz: want 503, got %d", rec.Code)
	}
}

func TestOpsRouter_Metrics(t *testing.T) {
	observability.InitMetrics()
	h := app.BuildOpsRouter(pinger{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics: want 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "# HELP") {
		t.Fatalf("/metrics body has no exposition text")
	}
}

func TestServeOps_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.ServeOps(ctx, "127.0.0.1:0", pinger{}, slog.Default()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ops server did not stop after cancel")
	}
}

func TestServeOps_ListenerError(t *testing.T) {
	err := app.ServeOps(context.Background(), "127.0.0.1:-1", pinger{}, slog.Default())
	if err == nil {
		t.Fatal("want listen error for invalid address")
	}
}
