// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package p2psrv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker(t *testing.T) {
	now := time.Unix(1700000000, 0)
	b := newBreaker(5, 5*time.Minute)
	b.now = func() time.Time { return now }

	assert.True(t, b.Allow())

	// backoff grows per failure before the threshold
	b.Failure()
	assert.False(t, b.Allow())
	now = now.Add(time.Second)
	assert.True(t, b.Allow())
	assert.False(t, b.Open())

	b.Failure()
	now = now.Add(time.Second)
	assert.False(t, b.Allow(), "second failure backs off 2s")
	now = now.Add(time.Second)
	assert.True(t, b.Allow())

	// crossing the threshold opens for the full reset period
	b.Failure()
	b.Failure()
	b.Failure()
	assert.True(t, b.Open())
	now = now.Add(4 * time.Minute)
	assert.False(t, b.Allow())
	now = now.Add(time.Minute)
	assert.True(t, b.Allow())

	b.Success()
	assert.False(t, b.Open())
	assert.True(t, b.Allow())
}
