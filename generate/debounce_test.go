package generate

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCoalesces(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { calls.Add(1) })
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.Call()
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(80 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("callback ran %d times, want 1", got)
	}
}

func TestDebouncerTrailingEdge(t *testing.T) {
	fired := make(chan time.Time, 1)
	d := NewDebouncer(30*time.Millisecond, func() { fired <- time.Now() })
	defer d.Stop()

	d.Call()
	time.Sleep(20 * time.Millisecond)
	last := time.Now()
	d.Call()

	select {
	case at := <-fired:
		if at.Sub(last) < 25*time.Millisecond {
			t.Errorf("callback fired %v after the last call", at.Sub(last))
		}
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
}

func TestDebouncerSeparateBursts(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(10*time.Millisecond, func() { calls.Add(1) })
	defer d.Stop()

	d.Call()
	time.Sleep(50 * time.Millisecond)
	d.Call()
	time.Sleep(50 * time.Millisecond)

	if got := calls.Load(); got != 2 {
		t.Errorf("callback ran %d times, want 2", got)
	}
}

func TestDebouncerStop(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(10*time.Millisecond, func() { calls.Add(1) })

	d.Call()
	if !d.Pending() {
		t.Error("expected a pending callback")
	}
	d.Stop()
	if d.Pending() {
		t.Error("Stop should drop the pending callback")
	}
	d.Call()
	time.Sleep(40 * time.Millisecond)

	if got := calls.Load(); got != 0 {
		t.Errorf("callback ran %d times after Stop", got)
	}
}
