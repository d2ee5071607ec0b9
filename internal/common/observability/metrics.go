package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"

	"advisor-matching/internal/common/logger"
)

// Observability records recalculation job outcomes through an OpenTelemetry
// meter exported on the Prometheus registry.
type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	tracer        trace.Tracer
	jobCounter    otelmetric.Int64Counter
	jobDuration   otelmetric.Float64Histogram
	jobProgress   otelmetric.Int64Counter
}

func New(serviceName string, log logger.Logger) *Observability {
	o := &Observability{tracer: otel.Tracer(serviceName)}

	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("Failed to create Prometheus exporter", map[string]interface{}{"error": err})
		return o
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	jobCounter, _ := meter.Int64Counter(
		"matching.jobs.processed",
		otelmetric.WithDescription("Number of recalculation jobs processed"),
	)

	jobDuration, _ := meter.Float64Histogram(
		"matching.jobs.duration",
		otelmetric.WithDescription("Recalculation job duration"),
		otelmetric.WithUnit("ms"),
	)

	jobProgress, _ := meter.Int64Counter(
		"matching.jobs.units",
		otelmetric.WithDescription("Units of work completed by recalculation jobs"),
	)

	o.meterProvider = provider
	o.meter = meter
	o.jobCounter = jobCounter
	o.jobDuration = jobDuration
	o.jobProgress = jobProgress
	return o
}

// Tracer returns the service tracer. It is a no-op until a trace provider is installed.
func (o *Observability) Tracer() trace.Tracer {
	if o == nil || o.tracer == nil {
		return otel.Tracer("advisor-matching")
	}
	return o.tracer
}

func (o *Observability) RecordJobProcessed(ctx context.Context, jobType, status string) {
	if o != nil && o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("job_type", jobType),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, jobType string, duration time.Duration, status string) {
	if o != nil && o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("job_type", jobType),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobProgress(ctx context.Context, jobType string, units int) {
	if o != nil && o.jobProgress != nil && units > 0 {
		o.jobProgress.Add(ctx, int64(units), otelmetric.WithAttributes(
			attribute.String("job_type", jobType),
		))
	}
}

func (o *Observability) Shutdown() {
	if o != nil && o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.meterProvider.Shutdown(ctx)
	}
}
