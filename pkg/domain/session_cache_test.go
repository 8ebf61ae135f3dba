package domain

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultbridge/vaultbridge/pkg/clients/safeguard"
)

type closeCountingClient struct {
	safeguard.ClientInterface
	closed atomic.Int32
}

func (c *closeCountingClient) Close() error {
	c.closed.Add(1)
	return nil
}

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

func newTestSession(key string) (*ApplianceSession, *closeCountingClient) {
	client := &closeCountingClient{}
	return &ApplianceSession{Key: key, Client: client}, client
}

func TestSessionAuthorizationCache_StoreResolveRemove(t *testing.T) {
	cache := NewSessionAuthorizationCache(SessionAuthorizationCacheOptions{})
	session, client := newTestSession("k1")

	cache.Store("k1", session)

	resolved, ok := cache.Resolve("k1")
	require.True(t, ok)
	assert.Same(t, session, resolved)

	cache.Remove("k1")

	_, ok = cache.Resolve("k1")
	assert.False(t, ok)
	assert.Equal(t, int32(1), client.closed.Load())
}

func TestSessionAuthorizationCache_RemoveAbsentKeyIsNoop(t *testing.T) {
	cache := NewSessionAuthorizationCache(SessionAuthorizationCacheOptions{})

	assert.NotPanics(t, func() {
		cache.Remove("missing")
	})
	assert.Equal(t, 0, cache.Len())
}

func TestSessionAuthorizationCache_StoreOverExistingKeyClosesReplaced(t *testing.T) {
	cache := NewSessionAuthorizationCache(SessionAuthorizationCacheOptions{})
	first, firstClient := newTestSession("k1")
	second, secondClient := newTestSession("k1")

	cache.Store("k1", first)
	cache.Store("k1", second)

	resolved, ok := cache.Resolve("k1")
	require.True(t, ok)
	assert.Same(t, second, resolved)
	assert.Equal(t, int32(1), firstClient.closed.Load())
	assert.Equal(t, int32(0), secondClient.closed.Load())
}

func TestSessionAuthorizationCache_EvictIdle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := NewSessionAuthorizationCache(SessionAuthorizationCacheOptions{
		IdleTimeout: 10 * time.Minute,
		Now:         clock.Now,
	})

	idle, idleClient := newTestSession("idle")
	active, activeClient := newTestSession("active")

	cache.Store("idle", idle)
	cache.Store("active", active)

	clock.Advance(6 * time.Minute)
	_, ok := cache.Resolve("active")
	require.True(t, ok)

	clock.Advance(6 * time.Minute)

	assert.Equal(t, 1, cache.EvictIdle())

	_, ok = cache.Resolve("idle")
	assert.False(t, ok)
	_, ok = cache.Resolve("active")
	assert.True(t, ok)

	assert.Equal(t, int32(1), idleClient.closed.Load())
	assert.Equal(t, int32(0), activeClient.closed.Load())
}

func TestSessionAuthorizationCache_EvictionDisabledByDefault(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	cache := NewSessionAuthorizationCache(SessionAuthorizationCacheOptions{Now: clock.Now})
	session, _ := newTestSession("k1")

	cache.Store("k1", session)
	clock.Advance(24 * time.Hour)

	assert.Equal(t, 0, cache.EvictIdle())
	assert.Equal(t, 1, cache.Len())
}

func TestSessionAuthorizationCache_CloseReleasesEverySession(t *testing.T) {
	cache := NewSessionAuthorizationCache(SessionAuthorizationCacheOptions{})

	clients := make([]*closeCountingClient, 0, 3)
	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("k%d", i)
		session, client := newTestSession(key)
		clients = append(clients, client)
		cache.Store(key, session)
	}

	cache.Close()

	assert.Equal(t, 0, cache.Len())
	for _, client := range clients {
		assert.Equal(t, int32(1), client.closed.Load())
	}
}

func TestSessionAuthorizationCache_ConcurrentStoreAndResolve(t *testing.T) {
	cache := NewSessionAuthorizationCache(SessionAuthorizationCacheOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			key := fmt.Sprintf("k%d", i)
			session, _ := newTestSession(key)
			cache.Store(key, session)

			resolved, ok := cache.Resolve(key)
			assert.True(t, ok)
			assert.Equal(t, key, resolved.Key)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, cache.Len())
}

func TestSessionAuthorizationCache_RunStopsWithContext(t *testing.T) {
	cache := NewSessionAuthorizationCache(SessionAuthorizationCacheOptions{
		IdleTimeout:   time.Minute,
		SweepInterval: time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		cache.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
