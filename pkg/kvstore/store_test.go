package kvstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(WithClock(clock.Now)), clock
}

func TestStore_SetGet(t *testing.T) {
	s, _ := newTestStore()

	s.Set("k", "v", 0)
	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	assert.True(t, s.Has("k"))

	s.Set("k", "v2", 0)
	v, _ = s.Get("k")
	assert.Equal(t, "v2", v)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestStore_Expiry(t *testing.T) {
	s, clock := newTestStore()

	s.Set("k", "v", time.Second)
	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	clock.Advance(999 * time.Millisecond)
	assert.True(t, s.Has("k"))

	clock.Advance(time.Millisecond)
	assert.False(t, s.Has("k"))
	_, ok = s.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestStore_Delete(t *testing.T) {
	s, clock := newTestStore()

	assert.False(t, s.Delete("missing"))

	s.Set("k", "v", 0)
	assert.True(t, s.Delete("k"))
	assert.False(t, s.Has("k"))

	s.Set("ttl", "v", time.Second)
	clock.Advance(2 * time.Second)
	assert.False(t, s.Delete("ttl"), "expired entries are already absent")
}

func TestStore_Sweep(t *testing.T) {
	s, clock := newTestStore()

	s.Set("a", "1", time.Second)
	s.Set("b", "2", time.Minute)
	s.Set("c", "3", 0)

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 0, s.Sweep())
	assert.Equal(t, 2, s.Len())
}

func TestStore_RealClockExpiry(t *testing.T) {
	s := New()
	s.Set("k", "v", 50*time.Millisecond)
	assert.True(t, s.Has("k"))

	assert.Eventually(t, func() bool { return !s.Has("k") }, time.Second, 10*time.Millisecond)
}

func TestStore_RunStopsOnCancel(t *testing.T) {
	s := New()
	s.Set("k", "v", time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.entries) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
