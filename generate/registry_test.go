package generate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ghostline "github.com/Paranoid-AF/ghostline"
)

func registrySession(key string) *Session {
	doc := &ghostline.Document{URI: "file:///r.go", Version: 1}
	return newSession(context.Background(), key, doc, ghostline.Position{})
}

func TestRegistryPutGetRemove(t *testing.T) {
	r := NewRegistry(time.Minute, 8)
	defer r.Close()

	s := registrySession("a")
	r.Put(s)
	assert.Same(t, s, r.Get("a"))
	assert.Nil(t, r.Get("b"))
	assert.Equal(t, 1, r.Len())

	assert.Same(t, s, r.Remove("a"))
	assert.Nil(t, r.Remove("a"))
	assert.Equal(t, 0, r.Len())
	assert.False(t, s.Handle().IsCancelled(), "Remove does not cancel")
}

func TestRegistryRemoveIf(t *testing.T) {
	r := NewRegistry(time.Minute, 8)
	defer r.Close()

	old := registrySession("k")
	current := registrySession("k")
	r.Put(old)
	r.Put(current)

	assert.False(t, r.RemoveIf("k", old))
	assert.Same(t, current, r.Get("k"))
	assert.True(t, r.RemoveIf("k", current))
	assert.Nil(t, r.Get("k"))
}

func TestRegistryExpiryCancels(t *testing.T) {
	r := NewRegistry(20*time.Millisecond, 8)
	defer r.Close()

	s := registrySession("ttl")
	r.Put(s)

	require.Eventually(t, func() bool { return s.Handle().IsCancelled() }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, s.Handle().Cause(), ErrSessionExpired)
	assert.Nil(t, r.Get("ttl"))
}

func TestRegistryCapacityEvicts(t *testing.T) {
	r := NewRegistry(time.Minute, 2)
	defer r.Close()

	var sessions []*Session
	for i := 0; i < 3; i++ {
		s := registrySession(fmt.Sprintf("s%d", i))
		sessions = append(sessions, s)
		r.Put(s)
	}

	assert.Equal(t, 2, r.Len())
	require.Eventually(t, func() bool { return sessions[0].Handle().IsCancelled() }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, sessions[0].Handle().Cause(), ErrSessionEvicted)
	assert.False(t, sessions[2].Handle().IsCancelled())
}

func TestRegistryDeleteDoesNotCancel(t *testing.T) {
	r := NewRegistry(time.Minute, 8)
	defer r.Close()

	s := registrySession("d")
	r.Put(s)
	r.Remove("d")
	time.Sleep(20 * time.Millisecond)
	assert.False(t, s.Handle().IsCancelled())
}

func TestRegistrySessions(t *testing.T) {
	r := NewRegistry(0, 0)
	defer r.Close()

	r.Put(registrySession("x"))
	r.Put(registrySession("y"))
	assert.Len(t, r.Sessions(), 2)
}
