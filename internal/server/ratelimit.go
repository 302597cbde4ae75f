package server

import (
	"sync"
	"time"
)

// byteRateLimiter is a token bucket per client key, counting bytes
// rather than requests so one large paste and many small keystrokes
// draw from the same budget.
type byteRateLimiter struct {
	mu            sync.Mutex
	buckets       map[string]*byteBucket
	ratePerSecond float64
	burst         float64
	lastCleanup   time.Time
}

type byteBucket struct {
	tokens   float64
	lastFill time.Time
}

func newByteRateLimiter(ratePerSecond, burst int) *byteRateLimiter {
	return &byteRateLimiter{
		buckets:       make(map[string]*byteBucket),
		ratePerSecond: float64(ratePerSecond),
		burst:         float64(burst),
		lastCleanup:   time.Now(),
	}
}

// allow reports whether key may spend n bytes now.
func (l *byteRateLimiter) allow(key string, n int) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybeCleanup(now)

	b := l.buckets[key]
	if b == nil {
		b = &byteBucket{tokens: l.burst, lastFill: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastFill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * l.ratePerSecond
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
		b.lastFill = now
	}

	if float64(n) > b.tokens {
		return false
	}
	b.tokens -= float64(n)
	return true
}

// maybeCleanup drops buckets that have been idle long enough to be
// fully refilled. Caller holds the mutex.
func (l *byteRateLimiter) maybeCleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < time.Minute {
		return
	}
	l.lastCleanup = now
	for key, b := range l.buckets {
		if now.Sub(b.lastFill) > time.Minute {
			delete(l.buckets, key)
		}
	}
}
