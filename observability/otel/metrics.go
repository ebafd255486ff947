package otel

import (
	"context"
	"strconv"
	"time"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Swind/go-dispatch/core"
)

// MeterMetrics implements core.Metrics with OpenTelemetry instruments.
//
// Instruments:
//   - dispatch.task.duration (Float64Histogram, seconds) by queue
//   - dispatch.task.panics (Int64Counter) by queue
//   - dispatch.task.rejected (Int64Counter) by source and reason
//   - dispatch.queue.depth (Int64Gauge) by queue
//   - dispatch.drain.sessions (Int64Counter) by queue and yielded
//   - dispatch.drain.batch (Int64Histogram) by queue
type MeterMetrics struct {
	duration metric.Float64Histogram
	panics   metric.Int64Counter
	rejected metric.Int64Counter
	depth    metric.Int64Gauge
	sessions metric.Int64Counter
	batch    metric.Int64Histogram
}

var _ core.Metrics = (*MeterMetrics)(nil)

// NewMeterMetrics creates instruments on the global MeterProvider.
func NewMeterMetrics() *MeterMetrics {
	return NewMeterMetricsWithMeter(otelapi.Meter(instrumentationName))
}

// NewMeterMetricsWithMeter creates instruments on the given meter. Instrument
// errors leave a noop instrument in place.
func NewMeterMetricsWithMeter(meter metric.Meter) *MeterMetrics {
	duration, _ := meter.Float64Histogram(
		"dispatch.task.duration",
		metric.WithDescription("Duration of task execution in seconds"),
		metric.WithUnit("s"),
	)
	panics, _ := meter.Int64Counter(
		"dispatch.task.panics",
		metric.WithDescription("Total number of task panics"),
		metric.WithUnit("{panic}"),
	)
	rejected, _ := meter.Int64Counter(
		"dispatch.task.rejected",
		metric.WithDescription("Total number of rejected submissions"),
		metric.WithUnit("{submission}"),
	)
	depth, _ := meter.Int64Gauge(
		"dispatch.queue.depth",
		metric.WithDescription("Pending tasks left when the last drain session ended"),
		metric.WithUnit("{task}"),
	)
	sessions, _ := meter.Int64Counter(
		"dispatch.drain.sessions",
		metric.WithDescription("Total number of drain sessions"),
		metric.WithUnit("{session}"),
	)
	batch, _ := meter.Int64Histogram(
		"dispatch.drain.batch",
		metric.WithDescription("Tasks run per drain session"),
		metric.WithUnit("{task}"),
	)

	return &MeterMetrics{
		duration: duration,
		panics:   panics,
		rejected: rejected,
		depth:    depth,
		sessions: sessions,
		batch:    batch,
	}
}

// RecordTaskDuration implements core.Metrics.
func (m *MeterMetrics) RecordTaskDuration(queueLabel string, duration time.Duration) {
	m.duration.Record(context.Background(), duration.Seconds(), queueAttr(queueLabel))
}

// RecordTaskPanic implements core.Metrics.
func (m *MeterMetrics) RecordTaskPanic(queueLabel string, panicInfo any) {
	m.panics.Add(context.Background(), 1, queueAttr(queueLabel))
}

// RecordQueueDepth implements core.Metrics.
func (m *MeterMetrics) RecordQueueDepth(queueLabel string, depth int) {
	m.depth.Record(context.Background(), int64(depth), queueAttr(queueLabel))
}

// RecordTaskRejected implements core.Metrics.
func (m *MeterMetrics) RecordTaskRejected(source string, reason string) {
	m.rejected.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("reason", reason),
	))
}

// RecordDrainSession implements core.Metrics.
func (m *MeterMetrics) RecordDrainSession(queueLabel string, processed int, yielded bool) {
	ctx := context.Background()
	m.sessions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("queue", queueLabel),
		attribute.String("yielded", strconv.FormatBool(yielded)),
	))
	m.batch.Record(ctx, int64(processed), queueAttr(queueLabel))
}

func queueAttr(label string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("queue", label))
}
