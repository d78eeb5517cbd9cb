package generate

import (
	"context"
	"time"
)

// DefaultThrottleInterval is the minimum spacing between remote dispatches.
const DefaultThrottleInterval = 75 * time.Millisecond

// Throttle spaces remote dispatches at least one interval apart, measured
// from the moment the previous wait ended. One Throttle is shared by every
// session of an engine.
//
// Waiters are admitted one at a time. A waiter that is cancelled leaves the
// last dispatch time untouched, so it never delays the waiters behind it.
type Throttle struct {
	interval time.Duration
	turn     chan struct{} // holds a token while a waiter owns the throttle
	last     time.Time     // guarded by turn
}

// NewThrottle creates a throttle. A non-positive interval disables spacing.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{
		interval: interval,
		turn:     make(chan struct{}, 1),
	}
}

// Interval returns the configured minimum spacing.
func (t *Throttle) Interval() time.Duration { return t.interval }

// AwaitSlot blocks until at least one interval has passed since the previous
// successful AwaitSlot, or until ctx is done.
func (t *Throttle) AwaitSlot(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.interval <= 0 {
		return nil
	}

	select {
	case t.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-t.turn }()

	if !t.last.IsZero() {
		if wait := t.interval - time.Since(t.last); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	t.last = time.Now()
	return nil
}
