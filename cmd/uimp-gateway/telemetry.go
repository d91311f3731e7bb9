package main

import (
	"context"
	"log/slog"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newMeterProvider returns an SDK meter provider whose readings are written
// to logger every interval.
func newMeterProvider(logger *slog.Logger, interval time.Duration) *sdkmetric.MeterProvider {
	reader := sdkmetric.NewPeriodicReader(logExporter{logger: logger}, sdkmetric.WithInterval(interval))
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

// logExporter writes each collected data point as one log record.
type logExporter struct {
	logger *slog.Logger
}

func (logExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (logExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (e logExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				logPoints(ctx, e.logger, m.Name, data.DataPoints)
			case metricdata.Gauge[int64]:
				logPoints(ctx, e.logger, m.Name, data.DataPoints)
			case metricdata.Sum[float64]:
				logPoints(ctx, e.logger, m.Name, data.DataPoints)
			case metricdata.Gauge[float64]:
				logPoints(ctx, e.logger, m.Name, data.DataPoints)
			}
		}
	}
	return nil
}

func (logExporter) ForceFlush(context.Context) error { return nil }

func (logExporter) Shutdown(context.Context) error { return nil }

func logPoints[N int64 | float64](ctx context.Context, logger *slog.Logger, name string, points []metricdata.DataPoint[N]) {
	for _, dp := range points {
		attrs := []slog.Attr{slog.String("metric", name), slog.Any("value", dp.Value)}
		for _, kv := range dp.Attributes.ToSlice() {
			attrs = append(attrs, slog.String(string(kv.Key), kv.Value.Emit()))
		}
		logger.LogAttrs(ctx, slog.LevelInfo, "otel metric", attrs...)
	}
}
