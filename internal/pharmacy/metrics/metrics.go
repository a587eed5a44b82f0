package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by allocation and commit counters.
const (
	OutcomeOK                = "ok"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeInvalidRequest    = "invalid_request"
	OutcomeConflict          = "conflict"
	OutcomeAlreadyApplied    = "already_applied"
	OutcomeError             = "error"
)

// AllocationMetrics exposes counters/histograms for the allocation engine.
type AllocationMetrics struct {
	allocationsTotal *prometheus.CounterVec
	commitsTotal     *prometheus.CounterVec
	unitsDispensed   prometheus.Counter
	commitLatency    prometheus.Histogram
	batchesPerPlan   prometheus.Histogram
	rollbacksTotal   prometheus.Counter
	transitionsTotal *prometheus.CounterVec
	expiryAlerts     *prometheus.CounterVec
}

func NewAllocationMetrics(reg prometheus.Registerer) *AllocationMetrics {
	m := &AllocationMetrics{
		allocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmacy",
			Subsystem: "allocation",
			Name:      "plans_total",
			Help:      "Allocation plans computed, by outcome",
		}, []string{"outcome"}),
		commitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmacy",
			Subsystem: "allocation",
			Name:      "commits_total",
			Help:      "Allocation commits, by outcome",
		}, []string{"outcome"}),
		unitsDispensed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmacy",
			Subsystem: "allocation",
			Name:      "units_dispensed_total",
			Help:      "Units decremented by committed plans",
		}),
		commitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pharmacy",
			Subsystem: "allocation",
			Name:      "commit_latency_seconds",
			Help:      "Latency of allocation commits",
			Buckets:   prometheus.DefBuckets,
		}),
		batchesPerPlan: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pharmacy",
			Subsystem: "allocation",
			Name:      "batches_per_plan",
			Help:      "Number of batches touched by a plan",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		}),
		rollbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmacy",
			Subsystem: "allocation",
			Name:      "rollbacks_total",
			Help:      "Batch decrements restored after a failed commit",
		}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmacy",
			Subsystem: "zones",
			Name:      "transitions_total",
			Help:      "Zone transitions, by source and target zone",
		}, []string{"from", "to"}),
		expiryAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmacy",
			Subsystem: "expiry",
			Name:      "alerts_total",
			Help:      "Expiry alerts raised, by alert type",
		}, []string{"alert_type"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.allocationsTotal, m.commitsTotal, m.unitsDispensed, m.commitLatency,
		m.batchesPerPlan, m.rollbacksTotal, m.transitionsTotal, m.expiryAlerts,
	)
	return m
}

func (m *AllocationMetrics) ObserveAllocation(outcome string, batches int) {
	if m == nil {
		return
	}
	m.allocationsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		m.batchesPerPlan.Observe(float64(batches))
	}
}

func (m *AllocationMetrics) ObserveCommit(outcome string, units int, seconds float64) {
	if m == nil {
		return
	}
	m.commitsTotal.WithLabelValues(outcome).Inc()
	m.commitLatency.Observe(seconds)
	if outcome == OutcomeOK {
		m.unitsDispensed.Add(float64(units))
	}
}

func (m *AllocationMetrics) ObserveRollback(lines int) {
	if m == nil {
		return
	}
	m.rollbacksTotal.Add(float64(lines))
}

func (m *AllocationMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *AllocationMetrics) ObserveExpiryAlert(alertType string) {
	if m == nil {
		return
	}
	m.expiryAlerts.WithLabelValues(alertType).Inc()
}
