// Package ratelimit provides a per-client token bucket for request rates.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens   float64
	lastTime time.Time
	rps      float64
	burst    int
}

func (b *bucket) allow(now time.Time) bool {
	elapsed := now.Sub(b.lastTime).Seconds()
	b.tokens += elapsed * b.rps
	if b.tokens > float64(b.burst) {
		b.tokens = float64(b.burst)
	}
	b.lastTime = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Limiter tracks one token bucket per client IP. Idle buckets are dropped
// by a background sweep.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	rps    float64
	burst  int
	stopCh chan struct{}
}

func NewLimiter(rps float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	l := &Limiter{
		buckets: make(map[string]*bucket),
		rps:     rps,
		burst:   burst,
		stopCh:  make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *Limiter) Allow(clientIP string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[clientIP]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastTime: now, rps: l.rps, burst: l.burst}
		l.buckets[clientIP] = b
	}
	return b.allow(now)
}

func (l *Limiter) Stop() {
	close(l.stopCh)
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := time.Now()
			for ip, b := range l.buckets {
				if now.Sub(b.lastTime) > 5*time.Minute {
					delete(l.buckets, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}
