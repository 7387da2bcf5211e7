package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracerProvider   *sdktrace.TracerProvider
	isTracingEnabled = false
)

// tracingSettings is the subset of the OTEL_* environment the crawler honours.
type tracingSettings struct {
	endpoint    string
	insecure    bool
	sampleRatio float64
}

func tracingSettingsFromEnv() tracingSettings {
	s := tracingSettings{
		endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		insecure:    true,
		sampleRatio: 1,
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.insecure = b
		}
	}
	// A crawl run is a handful of spans per room; sampling below 1 is mostly useful on shared collectors.
	if v := strings.TrimSpace(os.Getenv("OTEL_TRACES_SAMPLER_ARG")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			s.sampleRatio = f
		}
	}
	return s
}

// InitTracing exports spans over OTLP/gRPC when OTEL_EXPORTER_OTLP_ENDPOINT is set
// and is a no-op otherwise. The returned func flushes and stops the exporter.
func InitTracing(serviceName, serviceVersion string) (func(), error) {
	s := tracingSettingsFromEnv()
	if s.endpoint == "" {
		slog.Info("tracing disabled: OTEL_EXPORTER_OTLP_ENDPOINT not set")
		return func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(s.endpoint)}
	if s.insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace resource: %w", err)
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(s.sampleRatio))),
	)
	otel.SetTracerProvider(tracerProvider)
	isTracingEnabled = true
	slog.Info("tracing initialized",
		slog.String("service", serviceName),
		slog.String("endpoint", s.endpoint),
		slog.Float64("sample_ratio", s.sampleRatio))

	return func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown tracer provider", slog.Any("err", err))
		}
	}, nil
}

// IsTracingEnabled returns whether spans are being exported.
func IsTracingEnabled() bool {
	return isTracingEnabled
}

// StartSpan starts a span on the named tracer, tagging it with the correlation id when ctx has one.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if corr := GetCorrelation(ctx); corr != "" {
		attrs = append(attrs, attribute.String("correlation_id", corr))
	}
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError marks the span failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// SetSpanHTTPStatus records the response status code on a server span.
func SetSpanHTTPStatus(span trace.Span, status int) {
	span.SetAttributes(attribute.Int("http.status_code", status))
	if status >= 400 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
	}
}

func HTTPMethodAttr(method string) attribute.KeyValue { return attribute.String("http.method", method) }
func HTTPRouteAttr(route string) attribute.KeyValue { return attribute.String("http.route", route) }

func SortAttr(sort string) attribute.KeyValue { return attribute.String("crawl.sort", sort) }
func PageAttr(page int) attribute.KeyValue { return attribute.Int("crawl.page", page) }
func RoomAttr(roomID string) attribute.KeyValue { return attribute.String("crawl.room_id", roomID) }
func SubAreaAttr(id string) attribute.KeyValue { return attribute.String("crawl.sub_area_id", id) }
func RunIDAttr(runID string) attribute.KeyValue { return attribute.String("crawl.run_id", runID) }
