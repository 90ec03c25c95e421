package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func TestLimiter_BurstThenRefill(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLimiter(Config{Enabled: true, RunsPerHour: 6, Burst: 2})
	l.now = fixedClock(&now)

	ok, info := l.Allow("10.0.0.1")
	assert.True(t, ok)
	assert.Equal(t, 6, info.Limit)
	assert.Equal(t, 1, info.Remaining)

	ok, _ = l.Allow("10.0.0.1")
	assert.True(t, ok)

	ok, info = l.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.InDelta(t, float64(10*time.Minute), float64(info.RetryAfter), float64(time.Second))

	// Denied attempts do not consume tokens.
	now = now.Add(11 * time.Minute)
	ok, _ = l.Allow("10.0.0.1")
	assert.True(t, ok)
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLimiter(Config{Enabled: true, RunsPerHour: 1, Burst: 1})
	l.now = fixedClock(&now)

	ok, _ := l.Allow("a")
	assert.True(t, ok)
	ok, _ = l.Allow("a")
	assert.False(t, ok)
	ok, _ = l.Allow("b")
	assert.True(t, ok)
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(Config{Enabled: false, RunsPerHour: 1, Burst: 1})
	for i := 0; i < 5; i++ {
		ok, info := l.Allow("a")
		assert.True(t, ok)
		assert.True(t, info.Allowed)
	}
	assert.Equal(t, 0, l.Clients())

	var nilLimiter *Limiter
	ok, _ := nilLimiter.Allow("a")
	assert.True(t, ok)
}

func TestLimiter_SweepsIdleClients(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLimiter(Config{Enabled: true, IdleTTL: time.Minute})
	l.now = fixedClock(&now)

	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Clients())

	now = now.Add(2 * time.Minute)
	l.Allow("c")
	assert.Equal(t, 1, l.Clients())
}

func TestNewLimiter_Defaults(t *testing.T) {
	l := NewLimiter(Config{Enabled: true})
	assert.Equal(t, DefaultConfig().RunsPerHour, l.config.RunsPerHour)
	assert.Equal(t, DefaultConfig().Burst, l.config.Burst)
	assert.Equal(t, time.Hour, l.config.IdleTTL)
}
