package ratelimit

import (
	"context"
	"time"

	"github.com/Zentex1337/crypto-tracker-api/internal/domain/repository"
	"github.com/Zentex1337/crypto-tracker-api/pkg/logger"

	"github.com/jonboulle/clockwork"
)

// Limiter scopes. Standard and strict budgets never share a window.
const (
	scopeStandard = "standard"
	scopeStrict   = "strict"
)

// Result is the outcome of one admission check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Store holds sliding request logs keyed by identifier.
type Store interface {
	// Take expires entries older than now-window, counts the rest, and
	// records the current attempt only when it is allowed (count below
	// limit). Returns the count after the call and the oldest remaining
	// entry (zero time when the window is empty).
	Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (allowed bool, count int, oldest time.Time, err error)
}

// Limiter implements sliding-window admission control. When the store is
// unreachable it fails open: the request is allowed and the error logged.
type Limiter struct {
	store   Store
	clock   clockwork.Clock
	logger  *logger.Logger
	metrics repository.Metrics
}

// New creates a Limiter over the given store.
func New(store Store, clock clockwork.Clock, log *logger.Logger, m repository.Metrics) *Limiter {
	return &Limiter{store: store, clock: clock, logger: log, metrics: m}
}

// Check runs a standard sliding-window check for identifier. A rejected
// attempt is not recorded and does not count against future windows.
func (l *Limiter) Check(ctx context.Context, identifier string, limit int, window time.Duration) Result {
	return l.check(ctx, scopeStandard, identifier, limit, window)
}

// CheckStrict applies the reduced limit for higher-cost operations:
// one tenth of the standard limit, minimum 1, under a separate namespace.
func (l *Limiter) CheckStrict(ctx context.Context, identifier string, limit int, window time.Duration) Result {
	effective := limit / 10
	if effective < 1 {
		effective = 1
	}
	return l.check(ctx, scopeStrict, identifier, effective, window)
}

func (l *Limiter) check(ctx context.Context, scope, identifier string, limit int, window time.Duration) Result {
	now := l.clock.Now()
	key := scope + ":" + identifier

	allowed, count, oldest, err := l.store.Take(ctx, key, limit, window, now)
	if err != nil {
		// Fail open: availability of the data path wins over strict
		// enforcement when the shared counter store is unreachable.
		l.logger.Warn("rate limit store unreachable, failing open",
			logger.String("identifier", identifier),
			logger.Error(err),
		)
		l.metrics.RecordError("ratelimit_store")
		return Result{Allowed: true, Remaining: limit, ResetAt: now.Add(window)}
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	resetAt := now.Add(window)
	if !oldest.IsZero() {
		resetAt = oldest.Add(window)
	}

	if !allowed {
		l.metrics.RecordRateLimited(scope)
	}

	return Result{Allowed: allowed, Remaining: remaining, ResetAt: resetAt}
}
