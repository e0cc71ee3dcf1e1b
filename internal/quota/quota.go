// Package quota limits how many lease analyses a tenant may request.
//
// Two checks run in order: a per-tenant token bucket that absorbs bursts,
// then a fixed-window counter kept in the shared cache so that every
// instance behind a Redis cache enforces the same tenant quota.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/opensource-finance/leasecheck/internal/domain"
)

// Denial reasons.
const (
	ReasonBurst = "burst"
	ReasonQuota = "quota"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
	ResetAt    time.Time
	Reason     string
}

// Limiter enforces domain.QuotaConfig per tenant.
type Limiter struct {
	cfg   domain.QuotaConfig
	cache domain.Cache

	mu      sync.Mutex
	buckets map[string]*bucket

	now func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// idleBucket is how long an unused tenant bucket is kept.
const idleBucket = 30 * time.Minute

// NewLimiter creates a limiter. cache may be nil, in which case only the
// burst check applies.
func NewLimiter(cfg domain.QuotaConfig, cache domain.Cache) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Limiter{
		cfg:     cfg,
		cache:   cache,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow records one request for tenantID and reports whether it may proceed.
// Cache failures fail open.
func (l *Limiter) Allow(ctx context.Context, tenantID string) Decision {
	if !l.cfg.Enabled {
		return Decision{Allowed: true, Limit: l.cfg.Limit, Remaining: l.cfg.Limit}
	}

	now := l.now()

	if l.cfg.BurstPerSecond > 0 {
		r := l.bucketFor(tenantID, now).ReserveN(now, 1)
		if !r.OK() {
			return Decision{Reason: ReasonBurst, Limit: l.cfg.Limit, RetryAfter: time.Second}
		}
		if delay := r.DelayFrom(now); delay > 0 {
			r.CancelAt(now)
			return Decision{
				Reason:     ReasonBurst,
				Limit:      l.cfg.Limit,
				RetryAfter: delay,
				ResetAt:    now.Add(delay),
			}
		}
	}

	if l.cfg.Limit <= 0 || l.cache == nil {
		return Decision{Allowed: true, Limit: l.cfg.Limit}
	}

	windowStart := now.Truncate(l.cfg.Window)
	resetAt := windowStart.Add(l.cfg.Window)
	key := fmt.Sprintf("quota:%d", windowStart.Unix())

	count, err := l.cache.IncrementCounter(ctx, tenantID, key, resetAt.Sub(now))
	if err != nil {
		slog.Warn("quota counter unavailable, allowing request",
			"tenant_id", tenantID,
			"error", err,
		)
		return Decision{Allowed: true, Limit: l.cfg.Limit, Remaining: l.cfg.Limit}
	}

	d := Decision{
		Allowed:   count <= l.cfg.Limit,
		Limit:     l.cfg.Limit,
		Remaining: max(l.cfg.Limit-count, 0),
		ResetAt:   resetAt,
	}
	if !d.Allowed {
		d.Reason = ReasonQuota
		d.RetryAfter = resetAt.Sub(now)
	}
	return d
}

func (l *Limiter) bucketFor(tenantID string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[tenantID]
	if !ok {
		if len(l.buckets) >= 1000 {
			l.evictIdle(now)
		}
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.cfg.BurstPerSecond), l.cfg.Burst)}
		l.buckets[tenantID] = b
	}
	b.lastSeen = now
	return b.limiter
}

func (l *Limiter) evictIdle(now time.Time) {
	for id, b := range l.buckets {
		if now.Sub(b.lastSeen) > idleBucket {
			delete(l.buckets, id)
		}
	}
}

// Tenants returns the number of tenants with a live burst bucket.
func (l *Limiter) Tenants() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
