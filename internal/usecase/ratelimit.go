package usecase

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterStore hands out one token-bucket limiter per caller key
// (client IP or API key). Idle limiters are swept so the map cannot
// grow without bound.
type RateLimiterStore struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rps      rate.Limit
	burst    int
	idleFor  time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiterStore(rps float64, burst int) *RateLimiterStore {
	return &RateLimiterStore{
		limiters: make(map[string]*limiterEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		idleFor:  10 * time.Minute,
	}
}

// Allow reports whether the caller may proceed now.
func (s *RateLimiterStore) Allow(key string) bool {
	s.mu.Lock()
	entry, ok := s.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(s.rps, s.burst)}
		s.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	s.mu.Unlock()
	return entry.limiter.Allow()
}

// Sweep drops limiters idle longer than the idle window. Run it
// periodically from the server loop.
func (s *RateLimiterStore) Sweep() {
	cutoff := time.Now().Add(-s.idleFor)
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(s.limiters, key)
		}
	}
}
