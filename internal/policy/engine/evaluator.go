package engine

import (
	"context"

	"dm-relay/internal/chat"
)

// Evaluator decides whether an inbound message is handled and logged.
type Evaluator interface {
	// Eligible never errors; evaluation problems fall back to chat.Message.Direct.
	Eligible(ctx context.Context, msg chat.Message) bool
	HealthCheck(ctx context.Context) error
}
