package worker

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter throttles row throughput per batch job
type Limiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a limiter allowing rowsPerSecond per key.
// A rate of 0 or less disables throttling.
func NewLimiter(rowsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}

	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  rate.Limit(rowsPerSecond),
		defaultBurst: burst,
	}
}

// Enabled reports whether the limiter throttles at all
func (l *Limiter) Enabled() bool {
	return l != nil && l.defaultRate > 0
}

// Wait blocks until key may process another row or ctx is done
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if !l.Enabled() {
		return ctx.Err()
	}
	return l.getLimiter(key).Wait(ctx)
}

// Allow reports whether key may process a row right now
func (l *Limiter) Allow(key string) bool {
	if !l.Enabled() {
		return true
	}
	return l.getLimiter(key).Allow()
}

// Forget drops the limiter state for a finished key
func (l *Limiter) Forget(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, key)
}

func (l *Limiter) getLimiter(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[key]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[key] = limiter

	return limiter
}
