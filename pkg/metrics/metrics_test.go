package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pixload/pixload/pkg/engine"
)

func TestConstructorsNilWhenDisabled(t *testing.T) {
	// The registry is process-global, so this test must run before any
	// InitRegistry in the package tests. Guard instead of ordering.
	if IsEnabled() {
		t.Skip("registry already initialized by another test")
	}
	if NewLoaderMetrics() != nil {
		t.Error("loader metrics should be nil while disabled")
	}
	if NewMemoryCacheMetrics() != nil {
		t.Error("memory cache metrics should be nil while disabled")
	}
}

func TestLoaderMetricsExposed(t *testing.T) {
	InitRegistry()
	InitRegistry() // idempotent

	lm := NewLoaderMetrics()
	if lm == nil {
		t.Fatal("loader metrics should be live after InitRegistry")
	}
	lm.ObserveLoad(engine.TierNetwork, 120*time.Millisecond)
	lm.ObserveFailure(engine.FailIO)
	lm.ObserveCancellation("reused")
	lm.ObserveFetchedBytes(4096)
	lm.SetInFlight(2)

	mm := NewMemoryCacheMetrics()
	if mm == nil {
		t.Fatal("memory cache metrics should be live after InitRegistry")
	}
	mm.ObserveHit()
	mm.ObserveMiss()
	mm.SetUsage(3, 12288)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("metrics endpoint returned %d", rec.Code)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"pixload_load_duration_seconds",
		`pixload_load_failures_total{kind="io_error"} 1`,
		`pixload_load_cancellations_total{cause="reused"} 1`,
		"pixload_fetched_bytes_total 4096",
		"pixload_loads_in_flight 2",
		"pixload_memory_cache_hits_total 1",
		"pixload_memory_cache_entries 3",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
