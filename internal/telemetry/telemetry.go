package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/config"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/core"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

type telemetry struct {
	tracer         trace.Tracer
	meter          metric.Meter
	tracerProvider *sdktrace.TracerProvider

	scanCounter     metric.Int64Counter
	scanDuration    metric.Float64Histogram
	degradedCounter metric.Int64Counter
	ruleCounter     metric.Int64Counter
}

func New(ctx context.Context, cfg config.TelemetryConfig) (core.Telemetry, error) {
	if !cfg.Enabled {
		return &noopTelemetry{}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter

	switch cfg.ExporterType {
	case "otlp":
		client := otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
		exp, err := otlptrace.New(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	meter := otel.Meter(cfg.ServiceName)

	scanCounter, err := meter.Int64Counter("safelink.scans.total",
		metric.WithDescription("Total number of URL scans"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	scanDuration, err := meter.Float64Histogram("safelink.scan.duration",
		metric.WithDescription("Scan duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	degradedCounter, err := meter.Int64Counter("safelink.extractor.degraded",
		metric.WithDescription("Extractor outcomes that fell back to defaults"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	ruleCounter, err := meter.Int64Counter("safelink.rules.triggered",
		metric.WithDescription("Rules fired per id"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &telemetry{
		tracer:          tp.Tracer(cfg.ServiceName),
		meter:           meter,
		tracerProvider:  tp,
		scanCounter:     scanCounter,
		scanDuration:    scanDuration,
		degradedCounter: degradedCounter,
		ruleCounter:     ruleCounter,
	}, nil
}

func (t *telemetry) RecordScan(level types.ThreatLevel, duration float64, degraded bool) {
	ctx := context.Background()

	attrs := []attribute.KeyValue{
		attribute.String("scan.threat_level", string(level)),
		attribute.Bool("scan.degraded", degraded),
	}

	t.scanCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	t.scanDuration.Record(ctx, duration, metric.WithAttributes(attrs...))
}

func (t *telemetry) RecordDegraded(extractor string) {
	t.degradedCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("extractor", extractor)))
}

func (t *telemetry) RecordRulesTriggered(ids []string) {
	ctx := context.Background()
	for _, id := range ids {
		t.ruleCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("rule.id", id)))
	}
}

func (t *telemetry) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.tracerProvider.Shutdown(ctx)
}

type noopTelemetry struct{}

func (n *noopTelemetry) RecordScan(level types.ThreatLevel, duration float64, degraded bool) {}
func (n *noopTelemetry) RecordDegraded(extractor string)                                     {}
func (n *noopTelemetry) RecordRulesTriggered(ids []string)                                   {}
func (n *noopTelemetry) Close() error                                                        { return nil }
