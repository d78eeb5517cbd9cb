package generate

import (
	"context"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Registry defaults.
const (
	DefaultSessionTTL  = 5 * time.Minute
	DefaultMaxSessions = 256
)

// Registry maps request keys to sessions. Sessions the host never accepts or
// expires are cancelled when their TTL runs out or capacity is exceeded.
//
// Get/Put/Remove are individually safe; the engine serializes lookup-or-create
// sequences with its own mutex.
type Registry struct {
	cache *ttlcache.Cache[string, *Session]
	stop  func()
}

// NewRegistry creates a registry and starts its expiration loop.
func NewRegistry(ttl time.Duration, maxSessions int) *Registry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	c := ttlcache.New[string, *Session](
		ttlcache.WithTTL[string, *Session](ttl),
		ttlcache.WithCapacity[string, *Session](uint64(maxSessions)),
		ttlcache.WithDisableTouchOnHit[string, *Session](),
	)
	stop := c.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Session]) {
		if reason == ttlcache.EvictionReasonDeleted {
			return
		}
		s := item.Value()
		cause := ErrSessionExpired
		if reason == ttlcache.EvictionReasonCapacityReached {
			cause = ErrSessionEvicted
		}
		if s.handle.Cancel(cause) {
			slog.Debug("session evicted", "key", s.Key, "reason", cause)
		}
	})
	go c.Start()
	return &Registry{cache: c, stop: stop}
}

// Get returns the session for key, or nil.
func (r *Registry) Get(key string) *Session {
	item := r.cache.Get(key)
	if item == nil {
		return nil
	}
	return item.Value()
}

// Put registers s under its key, replacing any previous entry.
func (r *Registry) Put(s *Session) {
	r.cache.Set(s.Key, s, ttlcache.DefaultTTL)
}

// Remove unregisters key and returns the session it held, or nil.
func (r *Registry) Remove(key string) *Session {
	item, ok := r.cache.GetAndDelete(key)
	if !ok || item == nil {
		return nil
	}
	return item.Value()
}

// RemoveIf unregisters key only while it still maps to s.
func (r *Registry) RemoveIf(key string, s *Session) bool {
	if r.Get(key) != s {
		return false
	}
	r.cache.Delete(key)
	return true
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Sessions returns a snapshot of every registered session.
func (r *Registry) Sessions() []*Session {
	items := r.cache.Items()
	out := make([]*Session, 0, len(items))
	for _, item := range items {
		out = append(out, item.Value())
	}
	return out
}

// Close stops the expiration loop. Registered sessions are left untouched.
func (r *Registry) Close() {
	r.stop()
	r.cache.Stop()
}
