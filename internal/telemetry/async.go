package telemetry

import (
	"context"
	"log"
	"time"
)

const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the servers stop before shutting down the
// OTel providers so in-flight async emits can finish. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine bounded by emitTimeout. emitter and event may be nil.
// The emit uses a fresh context so a finished request does not cancel it.
func EmitAsync(emitter EventEmitter, event *ExchangeEvent) {
	if emitter == nil || event == nil {
		return
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			log.Printf("telemetry: async emit failed: %v", err)
		}
	}()
}
