// Package limiter provides per-actor token buckets for the HTTP layer,
// in process or shared through Redis.
package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Policy defines the bucket for one actor.
type Policy struct {
	RPM   int
	Burst int
}

// PerSecond returns the refill rate. Non-positive RPM falls back to one token per second.
func (p Policy) PerSecond() float64 {
	r := float64(p.RPM) / 60.0
	if r <= 0 {
		return 1
	}
	return r
}

// RetryAfter is the whole number of seconds until one token refills.
func (p Policy) RetryAfter() int {
	if p.RPM <= 0 {
		return 1
	}
	secs := (60 + p.RPM - 1) / p.RPM
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Store abstracts the storage for rate limiting buckets.
type Store interface {
	// Allow reports whether actorID may spend cost tokens now.
	Allow(ctx context.Context, actorID string, policy Policy, cost int) (bool, error)
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// InMemoryStore keeps one rate.Limiter per actor. Idle buckets are evicted lazily.
type InMemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	idleTTL time.Duration
	clock   func() time.Time
}

// NewInMemoryStore creates a store for single-instance deployments.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		buckets: make(map[string]*bucket),
		idleTTL: 3 * time.Minute,
		clock:   time.Now,
	}
}

// Allow consumes cost tokens from actorID's bucket.
func (s *InMemoryStore) Allow(_ context.Context, actorID string, policy Policy, cost int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	s.evictIdle(now)

	b, ok := s.buckets[actorID]
	if !ok {
		burst := policy.Burst
		if burst < 1 {
			burst = 1
		}
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(policy.PerSecond()), burst)}
		s.buckets[actorID] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, cost), nil
}

// Len returns the number of tracked actors.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

func (s *InMemoryStore) evictIdle(now time.Time) {
	for id, b := range s.buckets {
		if now.Sub(b.lastSeen) > s.idleTTL {
			delete(s.buckets, id)
		}
	}
}
