package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.CASConflict("add_item")
	m.CASExhausted("add_item")
	m.SlotLock("acquired")
	m.Placement("ordered")
	m.Replay()
	m.SweepOutcome("reverted")
	m.Reaped("slot_locks", 3)
}

func TestCounters(t *testing.T) {
	m := New()
	m.CASConflict("add_item")
	m.CASConflict("add_item")
	m.SlotLock("held")
	m.Reaped("slot_locks", 4)
	m.Reaped("slot_locks", 0)

	if got := testutil.ToFloat64(m.casConflicts.WithLabelValues("add_item")); got != 2 {
		t.Errorf("cas conflicts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.slotLocks.WithLabelValues("held")); got != 1 {
		t.Errorf("slot locks held = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.reaped.WithLabelValues("slot_locks")); got != 4 {
		t.Errorf("reaped = %v, want 4", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Placement("ordered")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	if !strings.Contains(string(body), `groupcart_order_placements_total{result="ordered"} 1`) {
		t.Errorf("placement counter missing from output:\n%s", body)
	}
}
