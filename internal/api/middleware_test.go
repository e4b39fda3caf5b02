package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	dto "github.com/prometheus/client_model/go"

	"github.com/rewired-gh/bizalert/internal/metrics"
)

func panicsRecovered(t *testing.T) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.PanicsRecovered.WithLabelValues("http").Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestCountPanics(t *testing.T) {
	before := panicsRecovered(t)

	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	h := middleware.Recoverer(countPanics(boom))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/alerts", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if got := panicsRecovered(t) - before; got != 1 {
		t.Errorf("panics counted = %v, want 1", got)
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	rec = httptest.NewRecorder()
	middleware.Recoverer(countPanics(ok)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if got := panicsRecovered(t) - before; got != 1 {
		t.Errorf("normal request should not count as a panic, got %v", got)
	}
}
