package telemetry

import (
	"context"
	"testing"
)

func TestTracingSettingsFromEnv(t *testing.T) {
	tests := []struct {
		name         string
		insecure     string
		ratio        string
		wantInsecure bool
		wantRatio    float64
	}{
		{name: "defaults", wantInsecure: true, wantRatio: 1},
		{name: "secure", insecure: "false", wantInsecure: false, wantRatio: 1},
		{name: "ratio", ratio: "0.25", wantInsecure: true, wantRatio: 0.25},
		{name: "ratio out of range", ratio: "3", wantInsecure: true, wantRatio: 1},
		{name: "garbage", insecure: "maybe", ratio: "half", wantInsecure: true, wantRatio: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
			t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", tt.insecure)
			t.Setenv("OTEL_TRACES_SAMPLER_ARG", tt.ratio)

			s := tracingSettingsFromEnv()
			if s.endpoint != "collector:4317" {
				t.Errorf("endpoint = %q", s.endpoint)
			}
			if s.insecure != tt.wantInsecure {
				t.Errorf("insecure = %v, want %v", s.insecure, tt.wantInsecure)
			}
			if s.sampleRatio != tt.wantRatio {
				t.Errorf("sampleRatio = %v, want %v", s.sampleRatio, tt.wantRatio)
			}
		})
	}
}

func TestInitTracingDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	shutdown, err := InitTracing("flvwatch-test", "0.0.0")
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	shutdown()
	if IsTracingEnabled() {
		t.Error("tracing enabled without an endpoint")
	}

	// Spans still work against the global no-op provider.
	ctx := WithCorrelation(context.Background(), "corr-1")
	_, span := StartSpan(ctx, "test", "noop", RunIDAttr("r"))
	RecordError(span, nil)
	SetSpanSuccess(span)
	span.End()
}
