// Package metrics exposes Prometheus counters for the group cart engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's collectors. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry setup.
type Metrics struct {
	registry *prometheus.Registry

	casConflicts  *prometheus.CounterVec
	casExhausted  *prometheus.CounterVec
	slotLocks     *prometheus.CounterVec
	placements    *prometheus.CounterVec
	replays       prometheus.Counter
	sweepOutcomes *prometheus.CounterVec
	reaped        *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		casConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groupcart",
			Name:      "cas_conflicts_total",
			Help:      "Lost compare-and-swap attempts on a group aggregate.",
		}, []string{"operation"}),
		casExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groupcart",
			Name:      "cas_retries_exhausted_total",
			Help:      "Operations that surfaced a conflict after all retries.",
		}, []string{"operation"}),
		slotLocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groupcart",
			Name:      "slot_lock_attempts_total",
			Help:      "Slot lock acquisitions by outcome.",
		}, []string{"result"}),
		placements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groupcart",
			Name:      "order_placements_total",
			Help:      "Group order placement attempts by outcome.",
		}, []string{"result"}),
		replays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groupcart",
			Name:      "idempotent_replays_total",
			Help:      "Requests answered from a stored idempotency record.",
		}),
		sweepOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groupcart",
			Name:      "recovery_sweep_outcomes_total",
			Help:      "Groups reconciled by the recovery sweep by outcome.",
		}, []string{"outcome"}),
		reaped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groupcart",
			Name:      "reaped_records_total",
			Help:      "Expired records deleted by the reaper.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.casConflicts, m.casExhausted, m.slotLocks, m.placements,
		m.replays, m.sweepOutcomes, m.reaped)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CASConflict counts one lost CAS race.
func (m *Metrics) CASConflict(op string) {
	if m == nil {
		return
	}
	m.casConflicts.WithLabelValues(op).Inc()
}

// CASExhausted counts an operation that gave up after retrying.
func (m *Metrics) CASExhausted(op string) {
	if m == nil {
		return
	}
	m.casExhausted.WithLabelValues(op).Inc()
}

// SlotLock counts a lock attempt: "acquired", "held", "error".
func (m *Metrics) SlotLock(result string) {
	if m == nil {
		return
	}
	m.slotLocks.WithLabelValues(result).Inc()
}

// Placement counts a placement attempt: "ordered", "failed", "lost_gate", "rejected".
func (m *Metrics) Placement(result string) {
	if m == nil {
		return
	}
	m.placements.WithLabelValues(result).Inc()
}

// Replay counts an idempotent replay.
func (m *Metrics) Replay() {
	if m == nil {
		return
	}
	m.replays.Inc()
}

// SweepOutcome counts one reconciled group.
func (m *Metrics) SweepOutcome(outcome string) {
	if m == nil {
		return
	}
	m.sweepOutcomes.WithLabelValues(outcome).Inc()
}

// Reaped counts deleted records of a kind.
func (m *Metrics) Reaped(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.reaped.WithLabelValues(kind).Add(float64(n))
}
