package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsInitialized(t *testing.T) {
	Init()
	Init() // second call must not panic on duplicate registration

	if RunDuration == nil || ProbeDuration == nil {
		t.Error("histograms not initialized")
	}
	if PagesFetched == nil || ProbeResults == nil {
		t.Error("counter vectors not initialized")
	}
	if StoreRecordsGauge == nil || LastSuccessGauge == nil {
		t.Error("gauges not initialized")
	}
}

func TestObserveProbeCountsByResult(t *testing.T) {
	Init()

	before := counterValue(t, ProbeResults.WithLabelValues(ProbeInconclusive))
	ObserveProbe(ProbeInconclusive, 20*time.Millisecond)
	ObserveProbe(ProbeInconclusive, 30*time.Millisecond)
	after := counterValue(t, ProbeResults.WithLabelValues(ProbeInconclusive))

	if after-before != 2 {
		t.Errorf("inconclusive probes delta = %v, want 2", after-before)
	}
}

func TestObservePageCountsBySortAndStatus(t *testing.T) {
	Init()

	before := counterValue(t, PagesFetched.WithLabelValues("online", "malformed"))
	ObservePage("online", "malformed")
	after := counterValue(t, PagesFetched.WithLabelValues("online", "malformed"))
	if after-before != 1 {
		t.Errorf("malformed pages delta = %v, want 1", after-before)
	}
}

func TestRecordRunSuccessSetsGauges(t *testing.T) {
	Init()

	at := time.Unix(1700000000, 0)
	RecordRunSuccess(at, 17)

	m := &dto.Metric{}
	if err := LastSuccessGauge.Write(m); err != nil {
		t.Fatal(err)
	}
	if got := m.GetGauge().GetValue(); got != 1700000000 {
		t.Errorf("last success gauge = %v, want 1700000000", got)
	}
	m = &dto.Metric{}
	if err := StoreRecordsGauge.Write(m); err != nil {
		t.Fatal(err)
	}
	if got := m.GetGauge().GetValue(); got != 17 {
		t.Errorf("store records gauge = %v, want 17", got)
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})

	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil || metric.Histogram.GetSampleCount() == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestTimeFuncNilObserver(t *testing.T) {
	if d := TimeFunc(nil, func() {}); d < 0 {
		t.Errorf("TimeFunc(nil) = %v", d)
	}
}

func TestCorrelationRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation(empty) = %q", got)
	}
	ctx = WithCorrelation(ctx, "run-123")
	if got := GetCorrelation(ctx); got != "run-123" {
		t.Errorf("GetCorrelation() = %q, want run-123", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return m.GetCounter().GetValue()
}
