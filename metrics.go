package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "ticket_ledger"

// Metrics is a prometheus.Collector for ticket, ledger and panel activity.
// A nil *Metrics records nothing.
type Metrics struct {
	ticketsCreated       prometheus.Counter
	ledgerMutations      *prometheus.CounterVec
	collaboratorFailures *prometheus.CounterVec
	panelReconciles      *prometheus.CounterVec
	persistDuration      prometheus.Histogram
	persistFailures      prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		ticketsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tickets_created_total",
			Help:      "Ticket numbers issued.",
		}),
		ledgerMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ledger_mutations_total",
			Help:      "Successful ledger changes by operation.",
		}, []string{"op"}),
		collaboratorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "collaborator_failures_total",
			Help:      "Failed chat platform calls by operation.",
		}, []string{"op"}),
		panelReconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "panel_reconcile_total",
			Help:      "Panel status reconciliations by result.",
		}, []string{"result"}),
		persistDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "state_persist_seconds",
			Help:      "Time spent writing the state snapshot.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "state_persist_failures_total",
			Help:      "Snapshot writes that failed.",
		}),
	}
}

// Describe is part of the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.ticketsCreated.Describe(ch)
	m.ledgerMutations.Describe(ch)
	m.collaboratorFailures.Describe(ch)
	m.panelReconciles.Describe(ch)
	m.persistDuration.Describe(ch)
	m.persistFailures.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.ticketsCreated.Collect(ch)
	m.ledgerMutations.Collect(ch)
	m.collaboratorFailures.Collect(ch)
	m.panelReconciles.Collect(ch)
	m.persistDuration.Collect(ch)
	m.persistFailures.Collect(ch)
}

func (m *Metrics) ticketCreated() {
	if m == nil {
		return
	}
	m.ticketsCreated.Inc()
}

func (m *Metrics) ledgerMutation(op string) {
	if m == nil {
		return
	}
	m.ledgerMutations.WithLabelValues(op).Inc()
}

func (m *Metrics) collaboratorFailure(op string) {
	if m == nil {
		return
	}
	m.collaboratorFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) panelReconciled(result string) {
	if m == nil {
		return
	}
	m.panelReconciles.WithLabelValues(result).Inc()
}

func (m *Metrics) observePersist(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.persistDuration.Observe(d.Seconds())
	if err != nil {
		m.persistFailures.Inc()
	}
}
