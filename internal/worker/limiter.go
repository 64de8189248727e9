package worker

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ppiankov/iocscore/internal/normalize"
)

// Limiter throttles ingestion per reporting feed, so one noisy feed in a
// mixed export cannot starve the others
type Limiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a limiter; requestsPerSecond <= 0 disables throttling
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 5
	}

	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}

	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  limit,
		defaultBurst: burst,
	}
}

// Wait blocks until feed may submit another record
func (l *Limiter) Wait(ctx context.Context, feed string) error {
	return l.getLimiter(feed).Wait(ctx)
}

// Allow reports whether feed may submit now without waiting
func (l *Limiter) Allow(feed string) bool {
	return l.getLimiter(feed).Allow()
}

func (l *Limiter) getLimiter(feed string) *rate.Limiter {
	feed = normalize.NormalizeFeedName(feed)

	l.mu.RLock()
	limiter, exists := l.limiters[feed]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, exists := l.limiters[feed]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[feed] = limiter

	return limiter
}

// SetFeedRate overrides the limit for one feed
func (l *Limiter) SetFeedRate(feed string, requestsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if burst <= 0 {
		burst = l.defaultBurst
	}

	l.limiters[normalize.NormalizeFeedName(feed)] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}
