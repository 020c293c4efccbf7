// Package metrics exposes Prometheus instruments for the generation pipeline.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"scenestudio/internal/domain"
)

const (
	ReasonDeadlineExceeded = "deadline_exceeded"
	ReasonNotFound         = "not_found"
	ReasonProvider         = "provider"
	ReasonStore            = "store"
	ReasonUnknown          = "unknown"
)

// Pipeline groups the pipeline's counters. All methods are safe on a nil
// receiver so components can run without metrics in tests.
type Pipeline struct {
	submissions     *prometheus.CounterVec
	operations      *prometheus.CounterVec
	settlements     *prometheus.CounterVec
	settledItems    prometheus.Counter
	tickDuration    prometheus.Histogram
	activeBatches   prometheus.Gauge
	creditCharges   *prometheus.CounterVec
	webhookOutcomes *prometheus.CounterVec
}

// NewPipeline registers the instruments on registerer. A nil registerer uses
// prometheus.DefaultRegisterer.
func NewPipeline(registerer prometheus.Registerer) *Pipeline {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Pipeline{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scenestudio_batch_submissions_total",
			Help: "Batch submissions by outcome.",
		}, []string{"outcome"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scenestudio_operations_terminal_total",
			Help: "Generation operations reaching a terminal state.",
		}, []string{"status"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scenestudio_settlements_total",
			Help: "Settlement attempts by result.",
		}, []string{"result", "reason"}),
		settledItems: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scenestudio_settled_artifacts_total",
			Help: "Artifacts committed to the usage ledger.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scenestudio_scheduler_tick_duration_seconds",
			Help:    "Wall time of one scheduler pass over active batches.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		activeBatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scenestudio_active_batches",
			Help: "Batches still generating at the last scheduler pass.",
		}),
		creditCharges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scenestudio_credit_charges_total",
			Help: "Image credit charges by result.",
		}, []string{"result"}),
		webhookOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scenestudio_payment_webhooks_total",
			Help: "Payment webhooks by outcome.",
		}, []string{"outcome"}),
	}
	registerer.MustRegister(
		m.submissions,
		m.operations,
		m.settlements,
		m.settledItems,
		m.tickDuration,
		m.activeBatches,
		m.creditCharges,
		m.webhookOutcomes,
	)
	return m
}

func (m *Pipeline) Submitted(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *Pipeline) OperationTerminal(status domain.OperationStatus) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(string(status)).Inc()
}

// Settled records a successful settlement of n artifacts.
func (m *Pipeline) Settled(n int) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues("ok", "").Inc()
	m.settledItems.Add(float64(n))
}

func (m *Pipeline) SettlementFailed(err error) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues("failed", ClassifyReason(err)).Inc()
}

func (m *Pipeline) ObserveTick(d time.Duration, active int) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
	m.activeBatches.Set(float64(active))
}

func (m *Pipeline) CreditCharge(result string) {
	if m == nil {
		return
	}
	m.creditCharges.WithLabelValues(result).Inc()
}

func (m *Pipeline) Webhook(outcome string) {
	if m == nil {
		return
	}
	m.webhookOutcomes.WithLabelValues(outcome).Inc()
}

// ClassifyReason maps an error to a low-cardinality label.
func ClassifyReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonDeadlineExceeded
	case errors.Is(err, domain.ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, domain.ErrProviderFailure):
		return ReasonProvider
	case errors.Is(err, domain.ErrSettlementFailed):
		return ReasonStore
	default:
		return ReasonUnknown
	}
}
