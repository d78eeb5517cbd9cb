package generate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	ghostline "github.com/Paranoid-AF/ghostline"
)

// Status is a session's position in its lifecycle.
type Status int

const (
	StatusPending Status = iota
	StatusStreaming
	StatusDone
	StatusCancelled
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusStreaming:
		return "streaming"
	case StatusDone:
		return "done"
	case StatusCancelled:
		return "cancelled"
	case StatusErrored:
		return "errored"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether no further mutation can happen in this state.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusCancelled || s == StatusErrored
}

var errHandleDisposed = errors.New("cancel handle disposed")

// CancelHandle is a session's cancellation token. It is a child of the
// engine's root context, so closing the engine cancels every handle.
type CancelHandle struct {
	ctx      context.Context
	cancel   context.CancelCauseFunc
	fired    atomic.Bool
	disposed atomic.Bool
}

// NewCancelHandle creates a handle linked to parent.
func NewCancelHandle(parent context.Context) *CancelHandle {
	ctx, cancel := context.WithCancelCause(parent)
	return &CancelHandle{ctx: ctx, cancel: cancel}
}

// Context is done once the handle is cancelled or disposed.
func (h *CancelHandle) Context() context.Context { return h.ctx }

// Cancel fires the handle with cause. It returns true only for the call that
// fired it; later calls and calls after Dispose are no-ops.
func (h *CancelHandle) Cancel(cause error) bool {
	if h.disposed.Load() || !h.fired.CompareAndSwap(false, true) {
		return false
	}
	h.cancel(cause)
	return true
}

// IsCancelled reports whether the handle (or its parent) was cancelled.
// Disposal alone does not count.
func (h *CancelHandle) IsCancelled() bool {
	if h.fired.Load() {
		return true
	}
	return h.ctx.Err() != nil && !errors.Is(context.Cause(h.ctx), errHandleDisposed)
}

// Cause returns why the handle was cancelled, or nil.
func (h *CancelHandle) Cause() error {
	if !h.IsCancelled() {
		return nil
	}
	return context.Cause(h.ctx)
}

// Dispose releases the handle's resources. It returns true the first time.
func (h *CancelHandle) Dispose() bool {
	if !h.disposed.CompareAndSwap(false, true) {
		return false
	}
	h.cancel(errHandleDisposed)
	return true
}

// Disposed reports whether Dispose has run.
func (h *CancelHandle) Disposed() bool { return h.disposed.Load() }

// Session is the state of one completion attempt at one cursor position and
// document version.
type Session struct {
	Key             string
	DocumentURI     string
	DocumentVersion int
	LanguageID      string
	Anchor          ghostline.Position
	Range           ghostline.Range
	Created         time.Time

	handle *CancelHandle

	mu        sync.Mutex
	text      string
	status    Status
	errDetail string
	detach    func() bool // stops watching the host context
}

func newSession(parent context.Context, key string, doc *ghostline.Document, pos ghostline.Position) *Session {
	return &Session{
		Key:             key,
		DocumentURI:     doc.URI,
		DocumentVersion: doc.Version,
		LanguageID:      doc.LanguageID,
		Anchor:          pos,
		Range:           ghostline.Range{Start: pos, End: pos},
		Created:         time.Now(),
		handle:          NewCancelHandle(parent),
		status:          StatusPending,
	}
}

// Text returns the accumulated completion text.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ErrorDetail returns the failure reason of an Errored session.
func (s *Session) ErrorDetail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errDetail
}

// Handle returns the session's cancellation handle.
func (s *Session) Handle() *CancelHandle { return s.handle }

func (s *Session) snapshot() (string, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text, s.status
}

// begin moves Pending to Streaming.
func (s *Session) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPending {
		return false
	}
	s.status = StatusStreaming
	return true
}

// appendText adds a delta while the session is live.
func (s *Session) appendText(delta string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() || s.handle.IsCancelled() {
		return false
	}
	s.text += delta
	return true
}

// finish records a terminal status and disposes the handle. Only the first
// call has any effect.
func (s *Session) finish(status Status, final, detail string) bool {
	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return false
	}
	if status == StatusDone && s.text == "" {
		s.text = final
	}
	if status == StatusErrored {
		s.errDetail = detail
	}
	s.status = status
	detach := s.detach
	s.detach = nil
	s.mu.Unlock()

	if detach != nil {
		detach()
	}
	s.handle.Dispose()
	return true
}

func (s *Session) setDetach(fn func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		fn()
		return
	}
	s.detach = fn
}
