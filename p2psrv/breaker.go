// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package p2psrv

import (
	"sync"
	"time"
)

const breakerBaseBackoff = time.Second

// breaker gates reconnect attempts per peer. Each failure pushes the next
// allowed attempt out exponentially; crossing the threshold opens the
// breaker for the full reset period.
type breaker struct {
	threshold int
	reset     time.Duration

	lock        sync.Mutex
	failures    int
	nextAttempt time.Time

	now func() time.Time
}

func newBreaker(threshold int, reset time.Duration) *breaker {
	return &breaker{
		threshold: threshold,
		reset:     reset,
		now:       time.Now,
	}
}

// Allow reports whether a connect attempt may proceed right now.
func (b *breaker) Allow() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return !b.now().Before(b.nextAttempt)
}

// Success closes the breaker.
func (b *breaker) Success() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.failures = 0
	b.nextAttempt = time.Time{}
}

// Failure records a failed attempt and schedules the next one.
func (b *breaker) Failure() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.nextAttempt = b.now().Add(b.reset)
		return
	}
	backoff := breakerBaseBackoff << (b.failures - 1)
	if backoff > b.reset {
		backoff = b.reset
	}
	b.nextAttempt = b.now().Add(backoff)
}

// Open reports whether the breaker is fully open.
func (b *breaker) Open() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.failures >= b.threshold && b.now().Before(b.nextAttempt)
}
