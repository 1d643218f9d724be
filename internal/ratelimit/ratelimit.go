// Package ratelimit spaces out requests to the same retailer host.
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultRate  = 0.5
	DefaultBurst = 1

	// idleTTL is how long an unused host limiter is kept.
	idleTTL = 10 * time.Minute
)

type hostEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// HostLimiter keeps one token bucket per host.
type HostLimiter struct {
	mu    sync.Mutex
	hosts map[string]*hostEntry
	limit rate.Limit
	burst int
	now   func() time.Time
}

// NewHostLimiter allows perSecond requests per host with the given burst.
func NewHostLimiter(perSecond float64, burst int) *HostLimiter {
	if perSecond <= 0 {
		perSecond = DefaultRate
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &HostLimiter{
		hosts: make(map[string]*hostEntry),
		limit: rate.Limit(perSecond),
		burst: burst,
		now:   time.Now,
	}
}

// Wait blocks until a request to host is allowed or ctx ends.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	return h.limiter(host).Wait(ctx)
}

// Allow reports whether a request to host may happen now, consuming a token
// when it may.
func (h *HostLimiter) Allow(host string) bool {
	return h.limiter(host).Allow()
}

// Hosts returns the number of hosts currently tracked.
func (h *HostLimiter) Hosts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hosts)
}

func (h *HostLimiter) limiter(host string) *rate.Limiter {
	key := normalizeHost(host)
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.prune(now)

	entry, ok := h.hosts[key]
	if !ok {
		entry = &hostEntry{limiter: rate.NewLimiter(h.limit, h.burst)}
		h.hosts[key] = entry
	}
	entry.lastUsed = now
	return entry.limiter
}

func (h *HostLimiter) prune(now time.Time) {
	for host, entry := range h.hosts {
		if now.Sub(entry.lastUsed) > idleTTL {
			delete(h.hosts, host)
		}
	}
}

func normalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
}
