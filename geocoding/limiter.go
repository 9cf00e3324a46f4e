// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces outbound provider calls by a minimum interval, across every
// caller sharing it.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	limiter  *rate.Limiter
}

// NewLimiter returns a limiter allowing one call per interval. A zero
// interval disables limiting.
func NewLimiter(interval time.Duration) *Limiter {
	l := &Limiter{interval: interval}
	l.limiter = l.build()

	return l
}

func (l *Limiter) build() *rate.Limiter {
	if l.interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}

	return rate.NewLimiter(rate.Every(l.interval), 1)
}

// Interval returns the configured minimum spacing.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the caller may issue a call, or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	lim := l.limiter
	l.mu.Unlock()

	return lim.Wait(ctx)
}

// Reset forgets past reservations, so the next call goes out immediately.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.limiter = l.build()
}
