package session

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type sessionMetrics struct {
	recognitions      metric.Int64Counter
	recognitionErrors metric.Int64Counter
	skippedTicks      metric.Int64Counter
	utterances        metric.Int64Counter
	recognizeLatency  metric.Float64Histogram
}

func newSessionMetrics(log *slog.Logger) *sessionMetrics {
	meter := otel.Meter("github.com/lectorlabs/lector-core/session")
	m := &sessionMetrics{}
	var err error
	if m.recognitions, err = meter.Int64Counter("lector.recognitions",
		metric.WithDescription("Completed recognition calls")); err != nil {
		log.Warn("failed to create recognitions counter", slogError(err))
	}
	if m.recognitionErrors, err = meter.Int64Counter("lector.recognition_errors",
		metric.WithDescription("Recognition calls that returned a classified error")); err != nil {
		log.Warn("failed to create recognition errors counter", slogError(err))
	}
	if m.skippedTicks, err = meter.Int64Counter("lector.skipped_ticks",
		metric.WithDescription("Poll ticks skipped because a call was in flight")); err != nil {
		log.Warn("failed to create skipped ticks counter", slogError(err))
	}
	if m.utterances, err = meter.Int64Counter("lector.utterances",
		metric.WithDescription("Spoken announcements")); err != nil {
		log.Warn("failed to create utterances counter", slogError(err))
	}
	if m.recognizeLatency, err = meter.Float64Histogram("lector.recognize_latency_seconds",
		metric.WithDescription("Recognition call latency")); err != nil {
		log.Warn("failed to create latency histogram", slogError(err))
	}
	return m
}

func (m *sessionMetrics) recordRecognition(ctx context.Context, elapsed time.Duration, errClass string) {
	if m.recognitions != nil {
		m.recognitions.Add(ctx, 1)
	}
	if m.recognizeLatency != nil {
		m.recognizeLatency.Record(ctx, elapsed.Seconds())
	}
	if errClass != "" && m.recognitionErrors != nil {
		m.recognitionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("class", errClass)))
	}
}

func (m *sessionMetrics) recordSkippedTick(ctx context.Context) {
	if m.skippedTicks != nil {
		m.skippedTicks.Add(ctx, 1)
	}
}

func (m *sessionMetrics) recordUtterance(ctx context.Context) {
	if m.utterances != nil {
		m.utterances.Add(ctx, 1)
	}
}
