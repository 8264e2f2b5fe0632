// Package ratelimit implements per-client token bucket admission control.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Defaults: burst of 60, sustained 1 request per second.
const (
	DefaultMaxTokens  = 60
	DefaultRefillRate = 1.0
)

// Bucket is the token state for a single client key.
type Bucket struct {
	Tokens     float64
	LastRefill time.Time
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed   bool
	Remaining float64
	// RetryAfter is how long until one token is available again; zero when allowed.
	RetryAfter time.Duration
}

// Limiter enforces a token bucket per client key. Buckets are created lazily
// at full capacity and are never evicted.
type Limiter struct {
	MaxTokens  float64
	RefillRate float64
	Clock      func() time.Time

	mu      sync.Mutex
	buckets map[string]*Bucket
}

// NewLimiter creates a limiter. Non-positive values fall back to the defaults.
func NewLimiter(maxTokens int, refillRate float64) *Limiter {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if refillRate <= 0 {
		refillRate = DefaultRefillRate
	}
	return &Limiter{
		MaxTokens:  float64(maxTokens),
		RefillRate: refillRate,
		buckets:    make(map[string]*Bucket),
	}
}

// Allow reports whether a request for key is admitted, debiting one token if so.
func (l *Limiter) Allow(key string) bool {
	return l.Decide(key).Allowed
}

// Decide refills the bucket for key, then debits one token if at least one is
// available. Refill and debit happen under one lock so concurrent requests from
// the same key cannot lose updates.
func (l *Limiter) Decide(key string) Decision {
	if l == nil {
		return Decision{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.buckets == nil {
		l.buckets = make(map[string]*Bucket)
	}

	now := l.now()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &Bucket{Tokens: l.MaxTokens, LastRefill: now}
		l.buckets[key] = bucket
	} else {
		elapsed := now.Sub(bucket.LastRefill).Seconds()
		if elapsed > 0 {
			bucket.Tokens = math.Min(l.MaxTokens, bucket.Tokens+elapsed*l.RefillRate)
			bucket.LastRefill = now
		}
	}

	if bucket.Tokens < 1.0 {
		missing := 1.0 - bucket.Tokens
		wait := time.Duration(missing / l.RefillRate * float64(time.Second))
		return Decision{Allowed: false, Remaining: bucket.Tokens, RetryAfter: wait}
	}

	bucket.Tokens -= 1.0
	return Decision{Allowed: true, Remaining: bucket.Tokens}
}

// Tokens returns the current token count for key without refilling or
// debiting. Unknown keys report full capacity.
func (l *Limiter) Tokens(key string) float64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if bucket, ok := l.buckets[key]; ok {
		return bucket.Tokens
	}
	return l.MaxTokens
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) now() time.Time {
	if l != nil && l.Clock != nil {
		return l.Clock()
	}
	return time.Now()
}
