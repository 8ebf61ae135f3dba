package domain

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// SessionAuthorizationCache maps session keys to live appliance sessions
type SessionAuthorizationCache interface {
	Store(key string, session *ApplianceSession)
	Resolve(key string) (*ApplianceSession, bool)
	Remove(key string)
	Len() int
	EvictIdle() int
	Run(ctx context.Context)
	Close()
}

type SessionAuthorizationCacheOptions struct {
	// IdleTimeout evicts sessions unused for longer than this. Zero disables eviction.
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
}

type sessionEntry struct {
	session  *ApplianceSession
	lastUsed atomic.Int64
}

type sessionAuthorizationCache struct {
	sessions      map[string]*sessionEntry
	sessionsMutex sync.RWMutex
	idleTimeout   time.Duration
	sweepInterval time.Duration
	now           func() time.Time
}

func NewSessionAuthorizationCache(options SessionAuthorizationCacheOptions) SessionAuthorizationCache {
	now := options.Now
	if now == nil {
		now = time.Now
	}

	sweepInterval := options.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	return &sessionAuthorizationCache{
		sessions:      make(map[string]*sessionEntry),
		idleTimeout:   options.IdleTimeout,
		sweepInterval: sweepInterval,
		now:           now,
	}
}

func (c *sessionAuthorizationCache) Store(key string, session *ApplianceSession) {
	entry := &sessionEntry{session: session}
	entry.lastUsed.Store(c.now().UnixNano())

	c.sessionsMutex.Lock()
	replaced, exists := c.sessions[key]
	c.sessions[key] = entry
	c.sessionsMutex.Unlock()

	if exists && replaced.session != session {
		closeSession(key, replaced.session)
	}
}

func (c *sessionAuthorizationCache) Resolve(key string) (*ApplianceSession, bool) {
	c.sessionsMutex.RLock()
	entry, ok := c.sessions[key]
	c.sessionsMutex.RUnlock()

	if !ok {
		return nil, false
	}

	entry.lastUsed.Store(c.now().UnixNano())

	return entry.session, true
}

func (c *sessionAuthorizationCache) Remove(key string) {
	c.sessionsMutex.Lock()
	entry, ok := c.sessions[key]
	delete(c.sessions, key)
	c.sessionsMutex.Unlock()

	if ok {
		closeSession(key, entry.session)
	}
}

func (c *sessionAuthorizationCache) Len() int {
	c.sessionsMutex.RLock()
	defer c.sessionsMutex.RUnlock()

	return len(c.sessions)
}

// EvictIdle removes sessions idle for longer than the idle timeout and returns how many were removed
func (c *sessionAuthorizationCache) EvictIdle() int {
	if c.idleTimeout <= 0 {
		return 0
	}

	cutoff := c.now().Add(-c.idleTimeout).UnixNano()
	evicted := map[string]*ApplianceSession{}

	c.sessionsMutex.Lock()
	for key, entry := range c.sessions {
		if entry.lastUsed.Load() < cutoff {
			evicted[key] = entry.session
			delete(c.sessions, key)
		}
	}
	c.sessionsMutex.Unlock()

	for key, session := range evicted {
		closeSession(key, session)
	}

	if len(evicted) > 0 {
		log.Debug().Int("count", len(evicted)).Msg("Evicted idle sessions")
	}

	return len(evicted)
}

// Run sweeps idle sessions until ctx is done
func (c *sessionAuthorizationCache) Run(ctx context.Context) {
	if c.idleTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.EvictIdle()
		}
	}
}

func (c *sessionAuthorizationCache) Close() {
	c.sessionsMutex.Lock()
	sessions := c.sessions
	c.sessions = make(map[string]*sessionEntry)
	c.sessionsMutex.Unlock()

	for key, entry := range sessions {
		closeSession(key, entry.session)
	}
}

func closeSession(key string, session *ApplianceSession) {
	if err := session.Close(); err != nil {
		log.Warn().Err(err).Str("session_key", key).Msg("Failed to close appliance session")
	}
}
