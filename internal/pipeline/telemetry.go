package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/loqa-pitch/pipeline"

type instruments struct {
	tracer   trace.Tracer
	started  metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

func newInstruments(logger *slog.Logger) *instruments {
	meter := otel.Meter(instrumentationName)
	ins := &instruments{tracer: otel.Tracer(instrumentationName)}

	var err error
	if ins.started, err = meter.Int64Counter("pitch.sessions.started", metric.WithDescription("Sessions started per capture mode")); err != nil {
		logger.Warn("failed to create session counter", slogError(err))
	}
	if ins.failures, err = meter.Int64Counter("pitch.stage.failures", metric.WithDescription("Terminal session failures per kind")); err != nil {
		logger.Warn("failed to create failure counter", slogError(err))
	}
	if ins.duration, err = meter.Float64Histogram("pitch.stage.duration", metric.WithDescription("Network stage latency"), metric.WithUnit("ms")); err != nil {
		logger.Warn("failed to create stage histogram", slogError(err))
	}
	return ins
}

func (i *instruments) sessionStarted(mode Mode) {
	if i.started != nil {
		i.started.Add(context.Background(), 1, metric.WithAttributes(attribute.String("mode", string(mode))))
	}
}

func (i *instruments) failed(kind Kind) {
	if i.failures != nil {
		i.failures.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", string(kind))))
	}
}

func (i *instruments) observe(ctx context.Context, stage string, started time.Time, err error) {
	if i.duration == nil {
		return
	}
	ms := float64(time.Since(started)) / float64(time.Millisecond)
	i.duration.Record(ctx, ms, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.Bool("ok", err == nil),
	))
}
