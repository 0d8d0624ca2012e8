// Package telemetry carries relay exchange events and metrics. Everything here is best-effort:
// a failed emit never affects the exchange being reported.
package telemetry

import (
	"context"
	"time"
)

// Exchange outcomes.
const (
	OutcomeReplied      = "replied"
	OutcomeUpdateFailed = "update_failed"
	OutcomeLookupFailed = "lookup_failed"
	OutcomeNotEligible  = "not_eligible"
)

// ExchangeEvent describes one handled inbound message. It never carries the raw sender id.
type ExchangeEvent struct {
	SessionRef   string
	Outcome      string
	NewSession   bool
	ReplyChunks  int
	ModelLatency time.Duration
	Duration     time.Duration
	CreatedAt    time.Time
}

// EventEmitter emits exchange events (e.g. to OTel Logs).
type EventEmitter interface {
	Emit(ctx context.Context, event *ExchangeEvent) error
}
