package service

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/noah-isme/sheets-etl/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for pipeline runs and the trigger server.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	rows            *prometheus.CounterVec
	tableRuns       *prometheus.CounterVec
	tableDuration   *prometheus.HistogramVec
	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	lastRun         prometheus.Gauge
	lastSuccess     prometheus.Gauge
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	triggers        *prometheus.CounterVec
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_rows_total",
		Help: "Rows seen per table and stage (extracted, rejected, excluded, loaded)",
	}, []string{"table", "stage"})

	tableRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_table_runs_total",
		Help: "Table pipelines finished, by terminal status",
	}, []string{"table", "status"})

	tableDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "etl_table_duration_seconds",
		Help:    "Duration of one table pipeline",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"table"})

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_runs_total",
		Help: "Pipeline runs by outcome (succeeded, failed, aborted)",
	}, []string{"outcome"})

	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "etl_run_duration_seconds",
		Help:    "Duration of a whole pipeline run",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "etl_last_run_timestamp_seconds",
		Help: "Unix time the last run finished",
	})

	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "etl_last_success_timestamp_seconds",
		Help: "Unix time the last fully successful run finished",
	})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	triggers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_trigger_requests_total",
		Help: "Run trigger requests by result (succeeded, failed, fatal, busy, rejected, error)",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(rows, tableRuns, tableDuration, runs, runDuration, lastRun, lastSuccess, requestDuration, requestTotal, triggers, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		rows:            rows,
		tableRuns:       tableRuns,
		tableDuration:   tableDuration,
		runs:            runs,
		runDuration:     runDuration,
		lastRun:         lastRun,
		lastSuccess:     lastSuccess,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		triggers:        triggers,
	}
}

// Registry exposes the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveTable records the outcome of one table pipeline.
func (m *MetricsService) ObserveTable(res models.TableResult) {
	if m == nil {
		return
	}
	table := string(res.Table)
	m.rows.WithLabelValues(table, "extracted").Add(float64(res.Extracted))
	m.rows.WithLabelValues(table, "rejected").Add(float64(res.Rejected))
	m.rows.WithLabelValues(table, "excluded").Add(float64(res.Excluded))
	m.rows.WithLabelValues(table, "loaded").Add(float64(res.Count))
	m.tableRuns.WithLabelValues(table, string(res.Status)).Inc()
	m.tableDuration.WithLabelValues(table).Observe(res.Duration.Seconds())
}

// ObserveRun records the outcome of a whole run.
func (m *MetricsService) ObserveRun(summary *models.RunSummary) {
	if m == nil || summary == nil {
		return
	}
	outcome := "succeeded"
	switch {
	case summary.Fatal != "":
		outcome = "aborted"
	case !summary.Succeeded():
		outcome = "failed"
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	m.lastRun.Set(float64(summary.FinishedAt.Unix()))
	if outcome == "succeeded" {
		m.lastSuccess.Set(float64(summary.FinishedAt.Unix()))
	}
}

// ObserveHTTPRequest records trigger server request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveTrigger records the result of one run trigger request from its HTTP status.
func (m *MetricsService) ObserveTrigger(status int) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(triggerResult(status)).Inc()
}

func triggerResult(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "succeeded"
	case status == http.StatusConflict:
		return "busy"
	case status == http.StatusBadRequest, status == http.StatusUnauthorized, status == http.StatusForbidden:
		return "rejected"
	case status == http.StatusServiceUnavailable:
		return "fatal"
	case status == http.StatusInternalServerError:
		return "failed"
	default:
		return "error"
	}
}

// Push sends the registry to a Prometheus Pushgateway. Batch runs exit before any scrape, so this is how they report.
func (m *MetricsService) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
