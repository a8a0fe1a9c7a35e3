// internal/common/observability/metrics.go
package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// DepthFunc reports the ready and delayed entries of one queue.
type DepthFunc func(ctx context.Context) (ready, delayed int64, err error)

// Observability records job outcomes through the OpenTelemetry metric SDK,
// exported on the same prometheus registry as the promauto vectors.
type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	jobCounter    otelmetric.Int64Counter
	jobDuration   otelmetric.Float64Histogram
	queueDepth    otelmetric.Int64ObservableGauge
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}
	return build(serviceName, exporter)
}

func build(serviceName string, reader metric.Reader) *Observability {
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	jobCounter, _ := meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)
	jobDuration, _ := meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)
	queueDepth, _ := meter.Int64ObservableGauge(
		"queue.depth",
		otelmetric.WithDescription("Entries waiting in a queue, by state"),
	)

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		jobCounter:    jobCounter,
		jobDuration:   jobDuration,
		queueDepth:    queueDepth,
	}
}

// NewNoop returns an Observability that records nothing. Used in tests.
func NewNoop() *Observability {
	return &Observability{}
}

func (o *Observability) RecordJobProcessed(ctx context.Context, queue, status string) {
	if o == nil || o.jobCounter == nil {
		return
	}
	o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("queue", queue),
		attribute.String("status", status),
	))
}

func (o *Observability) RecordJobDuration(ctx context.Context, queue string, duration time.Duration, status string) {
	if o == nil || o.jobDuration == nil {
		return
	}
	o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("queue", queue),
		attribute.String("status", status),
	))
}

// ObserveQueueDepth samples depths on every collection. A queue whose depth
// cannot be read is skipped for that collection.
func (o *Observability) ObserveQueueDepth(depths map[string]DepthFunc) error {
	if o == nil || o.meter == nil || o.queueDepth == nil {
		return nil
	}
	_, err := o.meter.RegisterCallback(func(ctx context.Context, obs otelmetric.Observer) error {
		for queue, depth := range depths {
			ready, delayed, err := depth(ctx)
			if err != nil {
				continue
			}
			obs.ObserveInt64(o.queueDepth, ready, otelmetric.WithAttributes(
				attribute.String("queue", queue), attribute.String("state", "ready")))
			obs.ObserveInt64(o.queueDepth, delayed, otelmetric.WithAttributes(
				attribute.String("queue", queue), attribute.String("state", "delayed")))
		}
		return nil
	}, o.queueDepth)
	return err
}

func (o *Observability) Shutdown() {
	if o == nil || o.meterProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = o.meterProvider.Shutdown(ctx)
}
