// Package pool provides the optional cap on concurrently handled
// vendor connections.
package pool

import "context"

// Gate is a counting semaphore over connection slots. A zero or
// negative capacity means unlimited; every acquire then succeeds
// immediately.
type Gate struct {
	slots chan struct{}
}

// NewGate creates a gate with n slots, or an unlimited gate when n <= 0.
func NewGate(n int) *Gate {
	if n <= 0 {
		return &Gate{}
	}
	return &Gate{slots: make(chan struct{}, n)}
}

// TryAcquire claims a slot without blocking. It reports false when the
// gate is saturated.
func (g *Gate) TryAcquire() bool {
	if g.slots == nil {
		return true
	}
	select {
	case g.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Acquire blocks for a slot until the context is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if g.slots == nil {
		return nil
	}
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot claimed by a successful acquire.
func (g *Gate) Release() {
	if g.slots == nil {
		return
	}
	<-g.slots
}
