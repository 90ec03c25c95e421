// Package ratelimit limits how often one client may start pipeline runs. Each
// run costs several model calls, so only the run endpoints are limited.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiting configuration.
type Config struct {
	Enabled bool
	// RunsPerHour is the sustained rate per client.
	RunsPerHour int
	// Burst is how many runs a fresh client may start at once.
	Burst int
	// IdleTTL drops clients not seen for this long.
	IdleTTL time.Duration
}

// DefaultConfig allows 10 runs per hour with a burst of 2.
func DefaultConfig() Config {
	return Config{Enabled: true, RunsPerHour: 10, Burst: 2, IdleTTL: time.Hour}
}

// Info contains information about rate limit status.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per client.
type Limiter struct {
	config  Config
	now     func() time.Time
	mu      sync.Mutex
	clients map[string]*client
}

// NewLimiter creates a limiter. Zero fields of config take DefaultConfig values.
func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.RunsPerHour <= 0 {
		config.RunsPerHour = def.RunsPerHour
	}
	if config.Burst <= 0 {
		config.Burst = def.Burst
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = def.IdleTTL
	}
	return &Limiter{config: config, now: time.Now, clients: make(map[string]*client)}
}

// Allow consumes one token for clientID if available.
func (l *Limiter) Allow(clientID string) (bool, Info) {
	if l == nil || !l.config.Enabled {
		return true, Info{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	c, ok := l.clients[clientID]
	if !ok {
		every := time.Hour / time.Duration(l.config.RunsPerHour)
		c = &client{limiter: rate.NewLimiter(rate.Every(every), l.config.Burst)}
		l.clients[clientID] = c
	}
	c.lastSeen = now

	info := Info{Limit: l.config.RunsPerHour}
	if c.limiter.AllowN(now, 1) {
		info.Allowed = true
		info.Remaining = int(math.Max(0, c.limiter.TokensAt(now)))
		return true, info
	}

	r := c.limiter.ReserveN(now, 1)
	info.RetryAfter = r.DelayFrom(now)
	r.CancelAt(now)
	return false, info
}

// sweep drops idle clients. Callers hold mu.
func (l *Limiter) sweep(now time.Time) {
	for id, c := range l.clients {
		if now.Sub(c.lastSeen) > l.config.IdleTTL {
			delete(l.clients, id)
		}
	}
}

// Clients returns the number of tracked clients.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
