package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"dm-relay/internal/telemetry"
)

const exchangeEventName = "relay.exchange"

// recordEmitter is the part of otellog.Logger the emitter needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an emitter writing one OTel log record per exchange. A nil provider
// yields a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return NewEventEmitterWithLogger(provider.Logger("dm-relay.relay"))
}

// NewEventEmitterWithLogger returns an emitter that writes to logger.
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *telemetry.ExchangeEvent) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

func (e *otelEmitter) Emit(ctx context.Context, event *telemetry.ExchangeEvent) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	rec.SetEventName(exchangeEventName)
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetBody(otellog.StringValue(event.Outcome))
	severity := otellog.SeverityInfo
	if event.Outcome == telemetry.OutcomeLookupFailed || event.Outcome == telemetry.OutcomeUpdateFailed {
		severity = otellog.SeverityWarn
	}
	rec.SetSeverity(severity)
	rec.AddAttributes(
		otellog.String("outcome", event.Outcome),
		otellog.Bool("new_session", event.NewSession),
		otellog.Int("reply_chunks", event.ReplyChunks),
		otellog.Int64("model_latency_ms", event.ModelLatency.Milliseconds()),
		otellog.Int64("duration_ms", event.Duration.Milliseconds()),
	)
	if event.SessionRef != "" {
		rec.AddAttributes(otellog.String("session_ref", event.SessionRef))
	}
	e.logger.Emit(ctx, rec)
	return nil
}
