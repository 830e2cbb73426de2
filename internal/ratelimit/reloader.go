package ratelimit

import (
	"context"
	"time"

	"github.com/benvon/product-studio/internal/models"
	"go.uber.org/zap"
)

// PolicySource loads and seeds the persisted admission policy. Get returns nil when none is stored.
type PolicySource interface {
	Get(ctx context.Context) (*models.RatelimitConfig, error)
	Set(ctx context.Context, c *models.RatelimitConfig) error
}

// PolicyReloader keeps a Limiter's policy in sync with a PolicySource.
type PolicyReloader struct {
	limiter  *Limiter
	source   PolicySource
	fallback Policy
	interval time.Duration
	log      *zap.Logger
}

// NewPolicyReloader creates a reloader. fallback is applied and seeded when nothing is stored.
func NewPolicyReloader(l *Limiter, source PolicySource, fallback Policy, interval time.Duration, log *zap.Logger) *PolicyReloader {
	if log == nil {
		log = zap.NewNop()
	}
	if fallback.Validate() != nil {
		fallback = DefaultPolicy()
	}
	return &PolicyReloader{
		limiter:  l,
		source:   source,
		fallback: fallback,
		interval: interval,
		log:      log,
	}
}

// Start loads once, then reloads every interval until ctx is cancelled.
func (r *PolicyReloader) Start(ctx context.Context) error {
	r.Load(ctx)
	if r.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Load(ctx)
		}
	}
}

// Load reads the stored policy and applies it. On read failure the current policy is kept.
func (r *PolicyReloader) Load(ctx context.Context) {
	cfg, err := r.source.Get(ctx)
	if err != nil {
		r.log.Warn("failed_to_load_ratelimit_config_keeping_current",
			zap.Error(err),
			zap.Int("limit", r.limiter.Policy().Limit),
		)
		return
	}

	if cfg == nil {
		if err := r.source.Set(ctx, &models.RatelimitConfig{
			Limit:    r.fallback.Limit,
			WindowMs: r.fallback.Window.Milliseconds(),
		}); err != nil {
			r.log.Error("failed_to_save_default_ratelimit_config", zap.Error(err))
		}
		r.apply(r.fallback)
		return
	}

	r.apply(Policy{Limit: cfg.Limit, Window: cfg.Window()})
}

func (r *PolicyReloader) apply(p Policy) {
	if p == r.limiter.Policy() {
		return
	}
	if err := r.limiter.SetPolicy(p); err != nil {
		r.log.Error("invalid_ratelimit_config_ignored",
			zap.Error(err),
			zap.Int("limit", p.Limit),
			zap.Duration("window", p.Window),
		)
		return
	}
	r.log.Info("ratelimit_policy_updated",
		zap.Int("limit", p.Limit),
		zap.Duration("window", p.Window),
	)
}
