package db

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout bounds one store operation when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// ErrPersistence marks a failed store read or write, including driver timeouts. Session
// operations propagate it; transcript logging swallows it.
var ErrPersistence = errors.New("persistence failure")

// Persistence wraps err as an ErrPersistence for op. Returns nil for a nil err.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: timed out: %w", ErrPersistence, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
