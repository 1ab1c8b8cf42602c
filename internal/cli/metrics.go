package cli

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/roach88/intelstore/internal/ir"
	"github.com/roach88/intelstore/internal/store"
	"github.com/roach88/intelstore/internal/telemetry"
)

// instruments collects the store's metrics and transaction spans for one
// invocation when --metrics is set.
type instruments struct {
	reader   *sdkmetric.ManualReader
	meters   *sdkmetric.MeterProvider
	tracers  *sdktrace.TracerProvider
	recorder *telemetry.Recorder
}

func newInstruments() *instruments {
	rec := telemetry.New()
	reader := sdkmetric.NewManualReader()
	return &instruments{
		reader:   reader,
		meters:   sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		tracers:  sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanCounter{rec: rec})),
		recorder: rec,
	}
}

func (in *instruments) storeOptions() []store.Option {
	return []store.Option{
		store.WithMeter(in.meters.Meter(store.MeterName)),
		store.WithTracer(in.tracers.Tracer(store.MeterName)),
	}
}

// snapshot folds the collected metrics into the recorder and renders it.
// Counters report their value; histograms report their sample count.
func (in *instruments) snapshot(ctx context.Context) (ir.Object, error) {
	var rm metricdata.ResourceMetrics
	if err := in.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					in.recorder.Record(metricKey(m.Name, dp.Attributes), ir.Int(dp.Value))
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					in.recorder.Record(metricKey(m.Name+".count", dp.Attributes), ir.Int(int64(dp.Count)))
				}
			}
		}
	}
	return in.recorder.Snapshot(), nil
}

func (in *instruments) shutdown(ctx context.Context) error {
	return errors.Join(in.tracers.Shutdown(ctx), in.meters.Shutdown(ctx))
}

// metricKey renders name{k=v,...} with attributes in key order.
func metricKey(name string, attrs attribute.Set) string {
	if attrs.Len() == 0 {
		return name
	}
	parts := make([]string, 0, attrs.Len())
	for _, kv := range attrs.ToSlice() {
		parts = append(parts, string(kv.Key)+"="+kv.Value.Emit())
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}

// spanCounter counts ended spans by name, with failed spans counted
// separately under a ".error" suffix.
type spanCounter struct {
	rec *telemetry.Recorder
}

func (c spanCounter) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (c spanCounter) OnEnd(s sdktrace.ReadOnlySpan) {
	name := "spans." + s.Name()
	if s.Status().Code == codes.Error {
		name += ".error"
	}
	c.rec.Add(name, 1)
}

func (c spanCounter) Shutdown(context.Context) error { return nil }
func (c spanCounter) ForceFlush(context.Context) error { return nil }
