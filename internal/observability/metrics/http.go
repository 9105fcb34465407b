package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	uploadFilesTotal   *prometheus.CounterVec
	classifyTotal      *prometheus.CounterVec
	classifyDuration   *prometheus.HistogramVec
	searchTotal        *prometheus.CounterVec
	searchResults      *prometheus.HistogramVec
	listResults        *prometheus.HistogramVec
	tagEditsTotal      *prometheus.CounterVec
	exportRecordsTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evidence",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evidence",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "evidence",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	uploadFilesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evidence",
			Subsystem: "upload",
			Name:      "files_total",
			Help:      "Uploaded files by outcome.",
		},
		[]string{"service", "status"},
	)
	classifyTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evidence",
			Subsystem: "classify",
			Name:      "requests_total",
			Help:      "Classification requests by outcome and input source.",
		},
		[]string{"service", "outcome", "source"},
	)
	classifyDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evidence",
			Subsystem: "classify",
			Name:      "duration_seconds",
			Help:      "Classification request duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"service", "outcome"},
	)
	searchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evidence",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Successful searches by mode.",
		},
		[]string{"service", "mode"},
	)
	searchResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evidence",
			Subsystem: "search",
			Name:      "results",
			Help:      "Distribution of results per search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 50},
		},
		[]string{"service", "mode"},
	)
	listResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evidence",
			Subsystem: "list",
			Name:      "results",
			Help:      "Distribution of records returned per filtered listing.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"service", "synced"},
	)
	tagEditsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evidence",
			Subsystem: "tags",
			Name:      "edits_total",
			Help:      "Tag edits by operation.",
		},
		[]string{"service", "operation"},
	)
	exportRecordsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evidence",
			Subsystem: "export",
			Name:      "records_total",
			Help:      "Records written to exhibit exports.",
		},
		[]string{"service", "format"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		uploadFilesTotal,
		classifyTotal,
		classifyDuration,
		searchTotal,
		searchResults,
		listResults,
		tagEditsTotal,
		exportRecordsTotal,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		uploadFilesTotal:   uploadFilesTotal,
		classifyTotal:      classifyTotal,
		classifyDuration:   classifyDuration,
		searchTotal:        searchTotal,
		searchResults:      searchResults,
		listResults:        listResults,
		tagEditsTotal:      tagEditsTotal,
		exportRecordsTotal: exportRecordsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses vault and evidence ids so label cardinality stays bounded.
func normalizePath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] != "vaults" {
		return path
	}
	parts[1] = "{vault_id}"
	if len(parts) >= 4 && parts[2] == "evidence" {
		switch parts[3] {
		case "export", "tags":
		default:
			parts[3] = "{evidence_id}"
		}
	}
	return "/" + strings.Join(parts, "/")
}

func (m *HTTPServerMetrics) RecordUpload(service string, uploaded, failed int) {
	if uploaded > 0 {
		m.uploadFilesTotal.WithLabelValues(service, "uploaded").Add(float64(uploaded))
	}
	if failed > 0 {
		m.uploadFilesTotal.WithLabelValues(service, "failed").Add(float64(failed))
	}
}

func (m *HTTPServerMetrics) RecordClassify(service, outcome, source string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	if source == "" {
		source = "none"
	}
	m.classifyTotal.WithLabelValues(service, outcome, source).Inc()
	m.classifyDuration.WithLabelValues(service, outcome).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordSearch(service, mode string, results int) {
	if mode == "" {
		mode = "unknown"
	}
	m.searchTotal.WithLabelValues(service, mode).Inc()
	m.searchResults.WithLabelValues(service, mode).Observe(float64(results))
}

func (m *HTTPServerMetrics) RecordList(service string, synced bool, results int) {
	m.listResults.WithLabelValues(service, strconv.FormatBool(synced)).Observe(float64(results))
}

func (m *HTTPServerMetrics) RecordTagEdit(service, operation string) {
	m.tagEditsTotal.WithLabelValues(service, operation).Inc()
}

func (m *HTTPServerMetrics) RecordExport(service, format string, records int) {
	m.exportRecordsTotal.WithLabelValues(service, format).Add(float64(records))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
