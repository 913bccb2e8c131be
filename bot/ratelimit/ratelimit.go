// Package ratelimit throttles per-user request rates. It sits in front
// of queue admission so a spamming user is turned away before the
// fairness rules ever run; it is not part of the admission policy
// itself.
package ratelimit

import (
	"context"
	"errors"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned by Allow when the user has exhausted
// their token bucket.
var ErrRateLimited = errors.New("rate limited")

// PerUser keeps one token bucket per user. A zero or negative rate
// disables limiting entirely.
type PerUser struct {
	mu       sync.RWMutex
	limiters map[snowflake.ID]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// New creates a PerUser limiter allowing reqPerSec requests with the
// given burst. Burst values below one are raised to one.
func New(reqPerSec float64, burst int) *PerUser {
	if burst < 1 {
		burst = 1
	}
	return &PerUser{
		limiters: make(map[snowflake.ID]*rate.Limiter),
		rate:     rate.Limit(reqPerSec),
		burst:    burst,
	}
}

// Enabled reports whether limiting is active.
func (p *PerUser) Enabled() bool {
	return p != nil && p.rate > 0
}

func (p *PerUser) limiter(userID snowflake.ID) *rate.Limiter {
	p.mu.RLock()
	limiter, ok := p.limiters[userID]
	p.mu.RUnlock()
	if ok {
		return limiter
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if limiter, ok := p.limiters[userID]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(p.rate, p.burst)
	p.limiters[userID] = limiter
	return limiter
}

// Allow consumes one token for the user, returning ErrRateLimited when
// none is available. Never blocks.
func (p *PerUser) Allow(userID snowflake.ID) error {
	if !p.Enabled() {
		return nil
	}
	if !p.limiter(userID).Allow() {
		return ErrRateLimited
	}
	return nil
}

// Wait blocks until the user has a token or ctx is done. Used by
// callers that prefer backpressure over rejection.
func (p *PerUser) Wait(ctx context.Context, userID snowflake.ID) error {
	if !p.Enabled() {
		return nil
	}
	return p.limiter(userID).Wait(ctx)
}

// Forget drops the user's bucket, releasing its memory. Called when a
// guild is torn down.
func (p *PerUser) Forget(userID snowflake.ID) {
	if p == nil {
		return
	}
	p.mu.Lock()
	delete(p.limiters, userID)
	p.mu.Unlock()
}
