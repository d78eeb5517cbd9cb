package generate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ghostline "github.com/Paranoid-AF/ghostline"
)

func testSession(t *testing.T) *Session {
	t.Helper()
	doc := &ghostline.Document{URI: "file:///x.go", LanguageID: "go", Version: 4}
	return newSession(context.Background(), "key", doc, ghostline.Position{Line: 2, Character: 5})
}

func TestCancelHandleFiresOnce(t *testing.T) {
	h := NewCancelHandle(context.Background())

	var wg sync.WaitGroup
	var fired int
	var mu sync.Mutex
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.Cancel(ErrStaleSession) {
				mu.Lock()
				fired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fired)
	assert.True(t, h.IsCancelled())
	assert.ErrorIs(t, h.Cause(), ErrStaleSession)
	assert.Error(t, h.Context().Err())
}

func TestCancelHandleDispose(t *testing.T) {
	h := NewCancelHandle(context.Background())

	assert.True(t, h.Dispose())
	assert.False(t, h.Dispose())
	assert.True(t, h.Disposed())
	assert.False(t, h.IsCancelled(), "disposal is not cancellation")
	assert.Nil(t, h.Cause())
	assert.False(t, h.Cancel(ErrSessionExpired), "cancel after dispose is a no-op")
}

func TestCancelHandleParentLinkage(t *testing.T) {
	parent, cancel := context.WithCancelCause(context.Background())
	h := NewCancelHandle(parent)

	cancel(ErrEngineClosed)
	assert.True(t, h.IsCancelled())
	assert.ErrorIs(t, h.Cause(), ErrEngineClosed)
}

func TestNewSession(t *testing.T) {
	s := testSession(t)

	assert.Equal(t, "file:///x.go", s.DocumentURI)
	assert.Equal(t, 4, s.DocumentVersion)
	assert.Equal(t, ghostline.Range{
		Start: ghostline.Position{Line: 2, Character: 5},
		End:   ghostline.Position{Line: 2, Character: 5},
	}, s.Range)
	assert.Equal(t, StatusPending, s.Status())
	assert.Empty(t, s.Text())
}

func TestSessionLifecycle(t *testing.T) {
	s := testSession(t)

	require.True(t, s.begin())
	assert.False(t, s.begin(), "begin only leaves Pending")
	assert.Equal(t, StatusStreaming, s.Status())

	assert.True(t, s.appendText("ab"))
	assert.True(t, s.appendText("c"))
	assert.Equal(t, "abc", s.Text())

	require.True(t, s.finish(StatusDone, "ignored", ""))
	assert.Equal(t, "abc", s.Text(), "final value only fills an empty session")
	assert.False(t, s.appendText("d"))
	assert.False(t, s.finish(StatusErrored, "", "late"))
	assert.Equal(t, StatusDone, s.Status())
	assert.Empty(t, s.ErrorDetail())
	assert.True(t, s.Handle().Disposed())
}

func TestSessionFinishUsesFinalWhenEmpty(t *testing.T) {
	s := testSession(t)
	s.begin()
	s.finish(StatusDone, "final", "")
	assert.Equal(t, "final", s.Text())
}

func TestSessionErrored(t *testing.T) {
	s := testSession(t)
	s.begin()
	s.finish(StatusErrored, "", "rate_limited")
	assert.Equal(t, StatusErrored, s.Status())
	assert.Equal(t, "rate_limited", s.ErrorDetail())
}

func TestSessionAppendAfterCancel(t *testing.T) {
	s := testSession(t)
	s.begin()
	s.Handle().Cancel(ErrSessionExpired)
	assert.False(t, s.appendText("x"))
	assert.Empty(t, s.Text())
}

func TestSessionDetachRunsOnFinish(t *testing.T) {
	s := testSession(t)
	detached := 0
	s.setDetach(func() bool { detached++; return true })
	s.finish(StatusCancelled, "", "")
	s.finish(StatusDone, "", "")
	assert.Equal(t, 1, detached)

	// Attaching to a finished session detaches at once.
	s.setDetach(func() bool { detached++; return true })
	assert.Equal(t, 2, detached)
}

func TestStatus(t *testing.T) {
	for _, st := range []Status{StatusDone, StatusCancelled, StatusErrored} {
		assert.True(t, st.Terminal(), st.String())
	}
	for _, st := range []Status{StatusPending, StatusStreaming} {
		assert.False(t, st.Terminal(), st.String())
	}
	assert.Equal(t, "status(42)", Status(42).String())
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "rate_limited", failureReason(Failed("rate_limited")))
	assert.Equal(t, "boom", failureReason(errors.New("boom")))
	assert.True(t, isCancellation(ErrTransportCancelled))
	assert.True(t, isCancellation(context.Canceled))
	assert.False(t, isCancellation(Failed("x")))
}
