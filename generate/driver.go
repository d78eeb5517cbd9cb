package generate

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// failureLogInterval limits transport failure warnings; an endpoint that is
// down fails every session.
const failureLogInterval = 10 * time.Second

// driver runs sessions from Pending to a terminal status. One driver is
// shared by every session of an engine.
type driver struct {
	throttle  *Throttle
	transport Transport
	metrics   *Metrics
	// notify raises a debounced "updated" event for s.
	notify func(s *Session)

	failureLog rate.Sometimes
}

func newDriver(throttle *Throttle, transport Transport, metrics *Metrics, notify func(*Session)) *driver {
	return &driver{
		throttle:   throttle,
		transport:  transport,
		metrics:    metrics,
		notify:     notify,
		failureLog: rate.Sometimes{First: 1, Interval: failureLogInterval},
	}
}

// run drives s to completion. It never panics and always leaves s terminal
// with its handle disposed.
func (d *driver) run(s *Session, req *ChatRequest) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("completion driver panicked", "key", s.Key, "panic", r)
			if s.handle.IsCancelled() {
				d.settle(s, StatusCancelled, "", "")
				return
			}
			d.settle(s, StatusErrored, "", fmt.Sprint("panic: ", r))
		}
	}()

	ctx := s.handle.Context()

	waitStart := time.Now()
	if err := d.throttle.AwaitSlot(ctx); err != nil {
		d.settle(s, StatusCancelled, "", "")
		return
	}
	d.metrics.throttled(time.Since(waitStart))

	if !s.begin() {
		return
	}
	slog.Debug("session streaming", "key", s.Key, "endpoint", d.transport.Name())

	final, err := d.transport.Stream(ctx, req, func(delta string) bool {
		if s.handle.IsCancelled() {
			return false
		}
		if delta == "" {
			return true
		}
		if !s.appendText(delta) {
			return false
		}
		d.notify(s)
		return true
	})

	switch {
	case s.handle.IsCancelled():
		d.settle(s, StatusCancelled, "", "")
	case err == nil:
		d.settle(s, StatusDone, final, "")
	case isCancellation(err):
		d.settle(s, StatusCancelled, "", "")
	default:
		d.logFailure(s, err)
		d.settle(s, StatusErrored, "", failureReason(err))
	}
}

func (d *driver) logFailure(s *Session, err error) {
	warned := false
	d.failureLog.Do(func() {
		warned = true
		slog.Warn("completion failed", "key", s.Key, "endpoint", d.transport.Name(), "error", err)
	})
	if !warned {
		slog.Debug("completion failed", "key", s.Key, "endpoint", d.transport.Name(), "error", err)
	}
}

func (d *driver) settle(s *Session, status Status, final, detail string) {
	if !s.finish(status, final, detail) {
		return
	}
	d.metrics.sessionFinished(status)

	attrs := []any{"key", s.Key, "status", status}
	if status == StatusCancelled {
		if cause := s.handle.Cause(); cause != nil {
			attrs = append(attrs, "cause", cause)
		}
	}
	if status == StatusErrored {
		attrs = append(attrs, "error", detail)
	}
	slog.Debug("session finished", attrs...)

	// Done covers transports that return the text without streaming deltas.
	if status == StatusErrored || status == StatusDone {
		d.notify(s)
	}
}
