// Package ratelimit implements the per-peer token bucket (C11) and the
// request/path validators shared by the protocol and transport layers.
package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a token bucket with capacity and a continuous refill rate.
type Bucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newBucket(capacity float64) *Bucket {
	return &Bucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: capacity / 60.0,
		lastRefill: time.Now(),
	}
}

// Allow consumes one token if available, refilling first based on
// elapsed time. Returns false when the bucket is depleted.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Limiter holds one Bucket per peer-id, capacity MAX_REQ_PER_MINUTE
// (default 100), refill rate capacity/60s, per §4.11.
type Limiter struct {
	capacity float64

	mu      sync.Mutex
	buckets map[string]*Bucket
}

// New constructs a Limiter with the given per-peer capacity (tokens per
// 60-second window).
func New(maxReqPerMinute int) *Limiter {
	return &Limiter{
		capacity: float64(maxReqPerMinute),
		buckets:  make(map[string]*Bucket),
	}
}

// Allow reports whether peerID may make one more request right now,
// lazily creating its bucket on first use.
func (l *Limiter) Allow(peerID string) bool {
	l.mu.Lock()
	b, ok := l.buckets[peerID]
	if !ok {
		b = newBucket(l.capacity)
		l.buckets[peerID] = b
	}
	l.mu.Unlock()
	return b.Allow()
}
