package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*ExchangeEvent
	emitErr error
	done    chan struct{}
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *ExchangeEvent) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("emit context has no deadline")
	}
	if m.done != nil {
		close(m.done)
	}
	return m.emitErr
}

func TestEmitAsync_NilEmitterOrEvent(t *testing.T) {
	// Should not panic
	EmitAsync(nil, &ExchangeEvent{SessionRef: "s"})
	m := &mockEventEmitter{}
	EmitAsync(m, nil)
	time.Sleep(10 * time.Millisecond)
	if len(m.events) != 0 {
		t.Error("nil event should not be emitted")
	}
}

func TestEmitAsync_Emits(t *testing.T) {
	m := &mockEventEmitter{done: make(chan struct{})}
	EmitAsync(m, &ExchangeEvent{SessionRef: "s1", Outcome: OutcomeReplied})
	select {
	case <-m.done:
	case <-time.After(time.Second):
		t.Fatal("emit did not run")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) != 1 || m.events[0].SessionRef != "s1" {
		t.Errorf("events = %+v", m.events)
	}
}

func TestEmitAsync_ErrorIsSwallowed(t *testing.T) {
	m := &mockEventEmitter{done: make(chan struct{}), emitErr: errors.New("collector down")}
	EmitAsync(m, &ExchangeEvent{SessionRef: "s1"})
	select {
	case <-m.done:
	case <-time.After(time.Second):
		t.Fatal("emit did not run")
	}
}

func TestShutdownDrainDuration(t *testing.T) {
	if ShutdownDrainDuration < emitTimeout {
		t.Errorf("ShutdownDrainDuration %v < emitTimeout %v", ShutdownDrainDuration, emitTimeout)
	}
}
