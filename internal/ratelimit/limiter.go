package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultLimit is the number of generation requests admitted per window
	DefaultLimit = 20
	// DefaultWindow is the fixed window length
	DefaultWindow = time.Minute
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed   bool  `json:"allowed"`
	Remaining int   `json:"remaining"`
	ResetInMs int64 `json:"resetInMs"`
	Limit     int   `json:"limit"`
}

// RetryAfterSeconds returns the reset delay rounded up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	if d.ResetInMs <= 0 {
		return 0
	}
	return int((d.ResetInMs + 999) / 1000)
}

// RateRecord is the per-identifier counter for the current window.
type RateRecord struct {
	Count         int       `json:"count"`
	WindowResetAt time.Time `json:"windowResetAt"`
}

// Policy configures the fixed window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// DefaultPolicy returns 20 requests per minute.
func DefaultPolicy() Policy {
	return Policy{Limit: DefaultLimit, Window: DefaultWindow}
}

// Validate rejects non-positive limits and windows.
func (p Policy) Validate() error {
	if p.Limit <= 0 {
		return fmt.Errorf("rate limit must be positive, got %d", p.Limit)
	}
	if p.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %s", p.Window)
	}
	return nil
}

// ErrStoreContention is returned by stores that gave up on an optimistic update.
var ErrStoreContention = errors.New("rate limit store: too much contention")

// Store persists rate records keyed by identifier.
//
// Update loads the record for id (nil when absent), passes it to fn and writes
// back whatever fn returns. A nil return leaves the stored record untouched.
// The read-modify-write must be atomic per id; fn may be invoked more than once.
type Store interface {
	Update(ctx context.Context, id string, fn func(rec *RateRecord) *RateRecord) error
}

// Limiter is a fixed-window admission controller.
//
// The window is anchored at the first admitted request for an identifier, not at
// clock boundaries, so a client can be admitted up to 2x Limit across a window edge.
type Limiter struct {
	store  Store
	clock  Clock
	logger *zap.Logger

	mu     sync.RWMutex
	policy Policy
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(l *Limiter) {
		l.clock = c
	}
}

// WithLogger sets the logger used for store failures.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// New creates a limiter over store. An invalid policy falls back to DefaultPolicy.
func New(store Store, policy Policy, opts ...Option) *Limiter {
	if policy.Validate() != nil {
		policy = DefaultPolicy()
	}
	l := &Limiter{
		store:  store,
		clock:  RealClock(),
		logger: zap.NewNop(),
		policy: policy,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policy returns the active policy.
func (l *Limiter) Policy() Policy {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.policy
}

// SetPolicy replaces the active policy. Existing records keep their reset time.
func (l *Limiter) SetPolicy(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	l.policy = p
	l.mu.Unlock()
	return nil
}

// Check admits or rejects one request for id. It never fails: if the store is
// unavailable the request is admitted and the failure is logged.
func (l *Limiter) Check(ctx context.Context, id string) Decision {
	policy := l.Policy()
	now := l.clock.Now()

	var decision Decision
	err := l.store.Update(ctx, id, func(rec *RateRecord) *RateRecord {
		next, d := decide(policy, rec, now)
		decision = d
		return next
	})
	if err != nil {
		l.logger.Warn("rate_limit_store_failed_admitting",
			zap.String("identifier", id),
			zap.Error(err),
		)
		return Decision{
			Allowed:   true,
			Remaining: policy.Limit,
			ResetInMs: policy.Window.Milliseconds(),
			Limit:     policy.Limit,
		}
	}
	return decision
}

// decide applies the fixed-window algorithm. It returns the record to persist
// (nil when nothing changes) and the resulting decision.
func decide(p Policy, rec *RateRecord, now time.Time) (*RateRecord, Decision) {
	if rec == nil || !now.Before(rec.WindowResetAt) {
		return &RateRecord{Count: 1, WindowResetAt: now.Add(p.Window)}, Decision{
			Allowed:   true,
			Remaining: p.Limit - 1,
			ResetInMs: p.Window.Milliseconds(),
			Limit:     p.Limit,
		}
	}

	resetIn := ceilMillis(rec.WindowResetAt.Sub(now))
	if rec.Count >= p.Limit {
		return nil, Decision{
			Allowed:   false,
			Remaining: 0,
			ResetInMs: resetIn,
			Limit:     p.Limit,
		}
	}

	next := &RateRecord{Count: rec.Count + 1, WindowResetAt: rec.WindowResetAt}
	return next, Decision{
		Allowed:   true,
		Remaining: p.Limit - next.Count,
		ResetInMs: resetIn,
		Limit:     p.Limit,
	}
}

// ceilMillis rounds d up to whole milliseconds so a pending window never reports 0.
func ceilMillis(d time.Duration) int64 {
	ms := d.Milliseconds()
	if d%time.Millisecond != 0 {
		ms++
	}
	return ms
}
