package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "dashboard_"

	resultSuccess = "success"
	resultError   = "error"
	resultInvalid = "invalid"
	resultStale   = "stale"
	resultIgnored = "ignored"
	resultRefused = "refused"
)

var (
	registerOnce sync.Once

	readingsTotal      *prometheus.CounterVec
	sourceErrors       *prometheus.CounterVec
	streamSubscribers  prometheus.Gauge
	ingestRequests     *prometheus.CounterVec
	ingestLatency      *prometheus.HistogramVec
	chartRenderTotal   *prometheus.CounterVec
	reportGenerate     *prometheus.CounterVec
	reportGenerateTime *prometheus.HistogramVec
	reportExport       *prometheus.CounterVec
	reportExportTime   *prometheus.HistogramVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		readingsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "realtime_readings_total",
				Help: "Realtime readings dispatched by channel and result",
			},
			[]string{"channel", "result"},
		)
		sourceErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "realtime_source_errors_total",
				Help: "Push source failures by source",
			},
			[]string{"source"},
		)
		streamSubscribers = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "realtime_stream_subscribers",
				Help: "Connected widget stream subscribers",
			},
		)
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total HTTP ingest requests by result",
			},
			[]string{"result"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "HTTP ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		chartRenderTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "chart_render_total",
				Help: "Chart surface renders by result",
			},
			[]string{"result"},
		)
		reportGenerate = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_generate_total",
				Help: "Report generate operations by report type and result",
			},
			[]string{"report", "result"},
		)
		reportGenerateTime = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_generate_latency_seconds",
				Help:    "Report generate latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"report", "result"},
		)
		reportExport = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Report export operations by report type, format and result",
			},
			[]string{"report", "format", "result"},
		)
		reportExportTime = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"report", "format", "result"},
		)

		prometheus.MustRegister(
			readingsTotal,
			sourceErrors,
			streamSubscribers,
			ingestRequests,
			ingestLatency,
			chartRenderTotal,
			reportGenerate,
			reportGenerateTime,
			reportExport,
			reportExportTime,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// IncReading counts a dispatched reading.
func IncReading(channel, result string) {
	if channel == "" {
		channel = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if readingsTotal != nil {
		readingsTotal.WithLabelValues(channel, result).Inc()
	}
}

// IncSourceError counts a push source failure.
func IncSourceError(source string) {
	if source == "" {
		source = "unknown"
	}
	if sourceErrors != nil {
		sourceErrors.WithLabelValues(source).Inc()
	}
}

// SetStreamSubscribers sets the number of connected stream subscribers.
func SetStreamSubscribers(n int) {
	if streamSubscribers != nil {
		streamSubscribers.Set(float64(n))
	}
}

// ObserveIngest records HTTP ingest duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncChartRender counts a chart render.
func IncChartRender(result string) {
	if result == "" {
		result = resultSuccess
	}
	if chartRenderTotal != nil {
		chartRenderTotal.WithLabelValues(result).Inc()
	}
}

// ObserveReportGenerate records generate latency and result.
func ObserveReportGenerate(report, result string, duration time.Duration) {
	if report == "" {
		report = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reportGenerate != nil {
		reportGenerate.WithLabelValues(report, result).Inc()
	}
	if reportGenerateTime != nil {
		reportGenerateTime.WithLabelValues(report, result).Observe(duration.Seconds())
	}
}

// ObserveReportExport records export latency and result.
func ObserveReportExport(report, format, result string, duration time.Duration) {
	if report == "" {
		report = "unknown"
	}
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reportExport != nil {
		reportExport.WithLabelValues(report, format, result).Inc()
	}
	if reportExportTime != nil {
		reportExportTime.WithLabelValues(report, format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultInvalid = resultInvalid
	ResultStale   = resultStale
	ResultIgnored = resultIgnored
	ResultRefused = resultRefused
)
