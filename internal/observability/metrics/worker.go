package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evidence",
			Subsystem: "worker",
			Name:      "reconcile_total",
			Help:      "Uploaded evidence reconciled by worker, by outcome.",
		},
		[]string{"service", "outcome"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evidence",
			Subsystem: "worker",
			Name:      "reconcile_duration_seconds",
			Help:      "Time from event receipt to a settled or abandoned record.",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 180},
		},
		[]string{"service", "outcome"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "evidence",
			Subsystem: "worker",
			Name:      "reconcile_in_flight",
			Help:      "Number of records currently being reconciled.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evidence",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between upload event and reconcile start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, queueLag)

	return &WorkerMetrics{
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		queueLag:        queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

const (
	OutcomeClassified = "classified"
	OutcomeDeferred   = "deferred"
	OutcomeError      = "error"
)

func (m *WorkerMetrics) StartReconcile() {
	m.processInFlight.Inc()
}

// FinishReconcile records one event. deferred means the retry budget ran out
// before the remote pipeline finished.
func (m *WorkerMetrics) FinishReconcile(service string, duration time.Duration, settled bool, err error) {
	m.processInFlight.Dec()

	outcome := OutcomeClassified
	switch {
	case err != nil:
		outcome = OutcomeError
	case !settled:
		outcome = OutcomeDeferred
	}

	m.processTotal.WithLabelValues(service, outcome).Inc()
	m.processDuration.WithLabelValues(service, outcome).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
