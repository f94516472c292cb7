// Package metrics exposes prometheus metrics for backup runs, GitHub API calls and HTTP requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/givlyn/backupd/internal/backup"
	"github.com/givlyn/backupd/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "backupd"

// Metrics holds the collectors of one registry
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	filesTotal     *prometheus.CounterVec
	bytesUploaded  prometheus.Counter
	lastSuccess    prometheus.Gauge
	remoteCalls    *prometheus.CounterVec
	remoteDuration *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	factory.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "Build information",
		ConstLabels: prometheus.Labels{"version": version.Version, "revision": version.Revision},
	}).Set(1)

	return &Metrics{
		registry: reg,

		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Backup runs by trigger and final status",
		}, []string{"trigger", "status"}),

		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Backup run duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"status"}),

		filesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files processed by outcome (reused, modified, added, failed, dropped)",
		}, []string{"outcome"}),

		bytesUploaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_uploaded_total",
			Help:      "Bytes of file content uploaded as new blobs",
		}),

		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that finished without error",
		}),

		remoteCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "github_requests_total",
			Help:      "GitHub git data API calls by operation and result",
		}, []string{"operation", "result"}),

		remoteDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "github_request_duration_seconds",
			Help:      "GitHub git data API call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served",
		}, []string{"method", "path", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRun records a finished run
func (m *Metrics) ObserveRun(r *backup.RunReport) {
	status := string(r.Status)
	m.runsTotal.WithLabelValues(r.Trigger, status).Inc()
	m.runDuration.WithLabelValues(status).Observe(r.Duration.Seconds())

	m.filesTotal.WithLabelValues("reused").Add(float64(r.Counts.Reused))
	m.filesTotal.WithLabelValues("modified").Add(float64(r.Counts.Modified))
	m.filesTotal.WithLabelValues("added").Add(float64(r.Counts.Added))
	m.filesTotal.WithLabelValues("failed").Add(float64(r.Counts.Failed))
	m.filesTotal.WithLabelValues("dropped").Add(float64(r.Counts.Dropped))
	m.filesTotal.WithLabelValues("unlisted").Add(float64(r.Counts.Unlisted))
	m.bytesUploaded.Add(float64(r.Counts.BytesUploaded))

	if r.Status == backup.StatusSuccess || r.Status == backup.StatusNoChanges {
		m.lastSuccess.Set(float64(r.StartedAt.Add(r.Duration).Unix()))
	}
}

// RecordRemoteCall records one GitHub API call
func (m *Metrics) RecordRemoteCall(operation string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.remoteCalls.WithLabelValues(operation, result).Inc()
	m.remoteDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPRequest records one served request. path is the route template, not the raw url.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

var _ backup.RunObserver = (*Metrics)(nil)
