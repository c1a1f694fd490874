package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter paces outbound requests per remote host.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewHostLimiter returns a limiter allowing rps requests per second to each
// host with the given burst. rps <= 0 disables pacing.
func NewHostLimiter(rps float64, burst int) *HostLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      limit,
		burst:    burst,
	}
}

func (h *HostLimiter) get(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(h.rps, h.burst)
		h.limiters[host] = l
	}
	return l
}

// Wait blocks until a request to host may proceed or ctx is done.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	if h == nil {
		return nil
	}
	return h.get(host).Wait(ctx)
}

// Budget caps calls per provider and in total over a rolling day.
type Budget struct {
	mu        sync.Mutex
	limits    map[string]int
	counts    map[string]int
	maxTotal  int
	total     int
	resetTime time.Time
	now       func() time.Time
}

// NewBudget creates a budget. limits maps provider name to its daily cap
// (0 = unlimited); maxTotal caps the sum (0 = unlimited).
func NewBudget(limits map[string]int, maxTotal int) *Budget {
	b := &Budget{
		limits:   make(map[string]int, len(limits)),
		counts:   make(map[string]int),
		maxTotal: maxTotal,
		now:      time.Now,
	}
	for k, v := range limits {
		b.limits[k] = v
	}
	b.resetTime = b.now().Add(24 * time.Hour)
	return b
}

// CanUse reports whether provider still has budget.
func (b *Budget) CanUse(provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkReset()
	return b.allowed(provider) == nil
}

// Use records one call against provider.
func (b *Budget) Use(provider string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkReset()
	if err := b.allowed(provider); err != nil {
		return err
	}

	b.counts[provider]++
	b.total++
	slog.Debug("LLM usage", "provider", provider, "used", b.counts[provider], "limit", b.limits[provider], "total", b.total)
	return nil
}

func (b *Budget) allowed(provider string) error {
	if max := b.limits[provider]; max > 0 && b.counts[provider] >= max {
		return fmt.Errorf("%s rate limit exceeded", provider)
	}
	if b.maxTotal > 0 && b.total >= b.maxTotal {
		return fmt.Errorf("total LLM rate limit exceeded")
	}
	return nil
}

// GetStats returns current usage per provider.
func (b *Budget) GetStats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.limits))
	for k := range b.limits {
		names = append(names, k)
	}
	sort.Strings(names)

	stats := map[string]interface{}{
		"total_used":  b.total,
		"total_limit": b.maxTotal,
		"reset_time":  b.resetTime,
	}
	for _, n := range names {
		stats[n+"_used"] = b.counts[n]
		stats[n+"_limit"] = b.limits[n]
	}
	return stats
}

// checkReset resets counters if reset time has passed
func (b *Budget) checkReset() {
	if b.now().After(b.resetTime) {
		slog.Info("Resetting LLM budget counters", "total", b.total)
		b.counts = make(map[string]int)
		b.total = 0
		b.resetTime = b.now().Add(24 * time.Hour)
	}
}
