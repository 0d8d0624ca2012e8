package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the relay instruments. A nil *Metrics records nothing.
type Metrics struct {
	sessionsCreated    metric.Int64Counter
	transcriptFailures metric.Int64Counter
	modelLatency       metric.Float64Histogram
}

// NewMetrics registers the relay instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	created, err := meter.Int64Counter("relay.sessions.created",
		metric.WithDescription("Sessions built because no live session matched the sender."))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("relay.transcript.failures",
		metric.WithDescription("Transcript entries that could not be written."))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("relay.model.latency",
		metric.WithDescription("Model call latency."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Metrics{sessionsCreated: created, transcriptFailures: failures, modelLatency: latency}, nil
}

func (m *Metrics) SessionCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsCreated.Add(ctx, 1)
}

func (m *Metrics) TranscriptFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.transcriptFailures.Add(ctx, 1)
}

func (m *Metrics) ModelLatency(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.modelLatency.Record(ctx, d.Seconds())
}
