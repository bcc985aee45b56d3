package stitch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	requests metric.Int64Counter
	segments metric.Int64Counter
	latency  metric.Float64Histogram
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	requests, err := meter.Int64Counter("loqa.tts.requests", metric.WithDescription("Stitch requests by outcome"))
	if err != nil {
		return nil, err
	}
	segments, err := meter.Int64Counter("loqa.tts.segments", metric.WithDescription("Synthesized segments"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("loqa.tts.request.duration",
		metric.WithDescription("Stitch request latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return &metrics{requests: requests, segments: segments, latency: latency}, nil
}

func (m *metrics) record(ctx context.Context, transport, outcome string, segments int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("transport", transport),
		attribute.String("outcome", outcome),
	)
	m.requests.Add(ctx, 1, attrs)
	if segments > 0 {
		m.segments.Add(ctx, int64(segments), metric.WithAttributes(attribute.String("transport", transport)))
	}
	m.latency.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}
