package store

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope for store metrics.
const MeterName = "github.com/roach88/intelstore/internal/store"

// metrics holds the store's instruments.
type metrics struct {
	operations metric.Int64Counter
	duration   metric.Float64Histogram
	items      metric.Int64Counter
	sessions   metric.Int64UpDownCounter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}
	var err error

	m.operations, err = meter.Int64Counter("intelstore.store.operations",
		metric.WithDescription("Store operations by name and outcome code"),
	)
	if err != nil {
		return nil, err
	}

	m.duration, err = meter.Float64Histogram("intelstore.store.duration",
		metric.WithDescription("Store operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.items, err = meter.Int64Counter("intelstore.store.items_written",
		metric.WithDescription("Intel items written by successful upserts"),
	)
	if err != nil {
		return nil, err
	}

	m.sessions, err = meter.Int64UpDownCounter("intelstore.store.sessions",
		metric.WithDescription("Open worker sessions"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// record counts one operation and its latency.
func (m *metrics) record(ctx context.Context, op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(CodeIOFailure)
		var se *Error
		if errors.As(err, &se) {
			outcome = string(se.Code)
		}
	}
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	)
	m.operations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
}
