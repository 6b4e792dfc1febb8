// Package ratelimit provides per-key token bucket admission control. The
// pool manager keys it by requester id and the HTTP API keys it by client
// address.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultCleanupInterval is used when NewKeyed is given no interval.
const DefaultCleanupInterval = 5 * time.Minute

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter keeps one token bucket per key.
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	cleanup  time.Duration
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewKeyed creates a per-key limiter allowing perSecond events with the
// given burst. Buckets idle for longer than cleanup are dropped.
func NewKeyed(perSecond float64, burst int, cleanup time.Duration) *KeyedLimiter {
	if burst < 1 {
		burst = 1
	}
	if cleanup <= 0 {
		cleanup = DefaultCleanupInterval
	}
	kl := &KeyedLimiter{
		limiters: make(map[string]*entry),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		cleanup:  cleanup,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go kl.cleanupLoop()
	return kl
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (kl *KeyedLimiter) Close() {
	kl.stopOnce.Do(func() {
		close(kl.stopCh)
		<-kl.done
	})
}

func (kl *KeyedLimiter) get(key string) *rate.Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	e, ok := kl.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(kl.limit, kl.burst)}
		kl.limiters[key] = e
	}
	e.lastSeen = kl.now()
	return e.limiter
}

// Allow reports whether an event for key may happen now, consuming one
// token if so.
func (kl *KeyedLimiter) Allow(key string) bool {
	return kl.get(key).Allow()
}

// Tokens returns the tokens currently available to key.
func (kl *KeyedLimiter) Tokens(key string) float64 {
	return kl.get(key).Tokens()
}

// Len returns the number of tracked keys.
func (kl *KeyedLimiter) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.limiters)
}

// Sweep drops buckets that have been idle for longer than the cleanup
// interval and are full again.
func (kl *KeyedLimiter) Sweep() {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	now := kl.now()
	for key, e := range kl.limiters {
		if now.Sub(e.lastSeen) > kl.cleanup && e.limiter.TokensAt(now) >= float64(kl.burst) {
			delete(kl.limiters, key)
		}
	}
}

func (kl *KeyedLimiter) cleanupLoop() {
	defer close(kl.done)
	ticker := time.NewTicker(kl.cleanup)
	defer ticker.Stop()
	for {
		select {
		case <-kl.stopCh:
			return
		case <-ticker.C:
			kl.Sweep()
		}
	}
}
