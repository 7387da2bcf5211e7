// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	RunsStarted     prometheus.Counter
	RunsSucceeded   prometheus.Counter
	RunsFailed      prometheus.Counter
	RunsSkipped     prometheus.Counter
	PublishFailures prometheus.Counter
	MirrorFailures  prometheus.Counter
	PagesFetched    *prometheus.CounterVec // sort, status
	ProbeResults    *prometheus.CounterVec // result

	// Histograms (seconds)
	RunDuration   prometheus.Observer
	ProbeDuration prometheus.Observer

	// Gauges
	StoreRecordsGauge prometheus.Gauge
	LastSuccessGauge  prometheus.Gauge // unix seconds of last successful run
)

// Probe result labels.
const (
	ProbeAvailable    = "available"
	ProbeUnavailable  = "unavailable"
	ProbeInconclusive = "inconclusive"
	ProbeError        = "error"
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		RunsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "flvwatch_runs_started_total", Help: "Number of crawl runs started"})
		RunsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "flvwatch_runs_succeeded_total", Help: "Number of crawl runs that wrote the store"})
		RunsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "flvwatch_runs_failed_total", Help: "Number of crawl runs aborted before writing the store"})
		RunsSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "flvwatch_runs_skipped_total", Help: "Number of triggers skipped because a run was in progress"})
		PublishFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "flvwatch_publish_failures_total", Help: "Number of failed store publish attempts"})
		MirrorFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "flvwatch_mirror_failures_total", Help: "Number of failed database mirror writes"})
		PagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{Name: "flvwatch_discovery_pages_total", Help: "Discovery pages fetched by ranking and outcome"}, []string{"sort", "status"})
		ProbeResults = promauto.NewCounterVec(prometheus.CounterOpts{Name: "flvwatch_probes_total", Help: "Room probes by result"}, []string{"result"})
		RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "flvwatch_run_duration_seconds", Help: "Crawl run duration seconds", Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800}})
		ProbeDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "flvwatch_probe_duration_seconds", Help: "Single room probe duration seconds", Buckets: prometheus.DefBuckets})
		StoreRecordsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "flvwatch_store_records", Help: "Sub-area records in the persisted store"})
		LastSuccessGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "flvwatch_last_success_timestamp_seconds", Help: "Unix time of the last successful run"})
	})
}

// inc increments c when metrics are initialized.
func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// IncRunsStarted counts a started run.
func IncRunsStarted() { inc(RunsStarted) }

// IncRunsFailed counts an aborted run.
func IncRunsFailed() { inc(RunsFailed) }

// IncRunsSkipped counts a trigger dropped by run serialization.
func IncRunsSkipped() { inc(RunsSkipped) }

// IncPublishFailures counts a failed publish.
func IncPublishFailures() { inc(PublishFailures) }

// IncMirrorFailures counts a failed mirror write.
func IncMirrorFailures() { inc(MirrorFailures) }

// RecordRunSuccess marks a successful run finishing at t with n store records.
func RecordRunSuccess(t time.Time, n int) {
	inc(RunsSucceeded)
	if LastSuccessGauge != nil {
		LastSuccessGauge.Set(float64(t.Unix()))
	}
	if StoreRecordsGauge != nil {
		StoreRecordsGauge.Set(float64(n))
	}
}

// ObservePage records a discovery page outcome.
func ObservePage(sort, status string) {
	if PagesFetched != nil {
		PagesFetched.WithLabelValues(sort, status).Inc()
	}
}

// ObserveProbe records a probe result and its duration.
func ObserveProbe(result string, d time.Duration) {
	if ProbeResults != nil {
		ProbeResults.WithLabelValues(result).Inc()
	}
	if ProbeDuration != nil {
		ProbeDuration.Observe(d.Seconds())
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
