package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/checkout/internal/clock"
	"golang.org/x/time/rate"
)

const defaultLocalIdleTTL = 5 * time.Minute

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalBucket keeps one in-process token bucket per key. Buckets idle for
// longer than the idle TTL are evicted.
type LocalBucket struct {
	mu        sync.Mutex
	entries   map[string]*localEntry
	clock     clock.Clock
	idleTTL   time.Duration
	lastSweep time.Time
}

func NewLocalBucket(clk clock.Clock) *LocalBucket {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &LocalBucket{
		entries: make(map[string]*localEntry),
		clock:   clk,
		idleTTL: defaultLocalIdleTTL,
	}
}

func (b *LocalBucket) Take(_ context.Context, key string, perSecond float64, burst int) (*RateLimitResult, error) {
	if err := validateTake(key, perSecond, burst); err != nil {
		return &RateLimitResult{Limit: burst}, err
	}

	now := b.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.sweep(now)
	entry, ok := b.entries[key]
	if !ok || entry.limiter.Limit() != rate.Limit(perSecond) || entry.limiter.Burst() != burst {
		entry = &localEntry{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
		b.entries[key] = entry
	}
	entry.lastSeen = now

	allowed := entry.limiter.AllowN(now, 1)
	remaining := entry.limiter.TokensAt(now)

	var retryAfter time.Duration
	if !allowed {
		if needed := 1.0 - remaining; needed > 0 {
			retryAfter = time.Duration(needed / perSecond * float64(time.Second))
		}
	}
	if remaining < 0 {
		remaining = 0
	}

	return &RateLimitResult{
		Allowed:    allowed,
		Limit:      burst,
		Remaining:  int(remaining),
		ResetTime:  now.Add(retryAfter),
		RetryAfter: retryAfter,
	}, nil
}

func (b *LocalBucket) sweep(now time.Time) {
	if now.Sub(b.lastSweep) < b.idleTTL {
		return
	}
	b.lastSweep = now
	for key, entry := range b.entries {
		if now.Sub(entry.lastSeen) > b.idleTTL {
			delete(b.entries, key)
		}
	}
}

func (b *LocalBucket) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
