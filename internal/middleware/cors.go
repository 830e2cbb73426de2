package middleware

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/benvon/product-studio/internal/models"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// CorsConfigSource loads the stored CORS config; nil config means none stored.
type CorsConfigSource interface {
	Get(ctx context.Context) (*models.CorsConfig, error)
}

// CORSReloader serves rs/cors with origins from a CorsConfigSource, falling back to
// FRONTEND_URL when nothing is stored. A failed reload keeps the last good policy.
type CORSReloader struct {
	source   CorsConfigSource
	fallback models.CorsConfig
	log      *zap.Logger
	interval time.Duration

	mu      sync.RWMutex
	next    http.Handler
	applied *models.CorsConfig
	current http.Handler
}

// NewCORSReloader creates the reloader. source may be nil.
func NewCORSReloader(source CorsConfigSource, frontendURL string, log *zap.Logger, interval time.Duration) *CORSReloader {
	if log == nil {
		log = zap.NewNop()
	}
	return &CORSReloader{
		source: source,
		fallback: models.CorsConfig{
			AllowedOrigins:   frontendURL,
			AllowCredentials: true,
			MaxAge:           models.DefaultCorsMaxAge,
		},
		log:      log,
		interval: interval,
	}
}

// Middleware wraps next and performs the first load.
func (r *CORSReloader) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		r.mu.Lock()
		r.next = next
		r.mu.Unlock()
		r.load(context.Background())
		return r
	}
}

// Start reloads every interval until ctx is cancelled. Without a source it returns at once.
func (r *CORSReloader) Start(ctx context.Context) {
	if r.interval <= 0 || r.source == nil {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.load(ctx)
		}
	}
}

func (r *CORSReloader) load(ctx context.Context) {
	cfg := &r.fallback
	if r.source != nil {
		stored, err := r.source.Get(ctx)
		if err != nil {
			r.log.Warn("failed_to_load_cors_config_keeping_current", zap.Error(err))
			r.mu.RLock()
			have := r.current != nil
			r.mu.RUnlock()
			if have {
				return
			}
		} else if stored != nil {
			if verr := stored.Validate(); verr != nil {
				r.log.Warn("invalid_cors_config_ignored", zap.Error(verr))
			} else {
				cfg = stored
			}
		}
	}
	r.apply(cfg)
}

func (r *CORSReloader) apply(cfg *models.CorsConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next == nil || sameCors(r.applied, cfg) {
		return
	}

	origins := cfg.Origins()
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	r.current = cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: cfg.AllowCredentials && !slices.Contains(origins, "*"),
		MaxAge:           cfg.MaxAge,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", RequestIDHeader},
		ExposedHeaders:   []string{"Retry-After", RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
	}).Handler(r.next)

	copied := *cfg
	r.applied = &copied
	r.log.Info("cors_config_applied",
		zap.Strings("origins", origins),
		zap.Bool("allow_credentials", cfg.AllowCredentials),
	)
}

func sameCors(a, b *models.CorsConfig) bool {
	if a == nil || b == nil {
		return false
	}
	return slices.Equal(a.Origins(), b.Origins()) && a.AllowCredentials == b.AllowCredentials && a.MaxAge == b.MaxAge
}

// ServeHTTP implements http.Handler.
func (r *CORSReloader) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	h, next := r.current, r.next
	r.mu.RUnlock()
	if h == nil {
		h = next
	}
	if h != nil {
		h.ServeHTTP(w, req)
	}
}
