package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/benvon/product-studio/internal/database"
	"github.com/redis/go-redis/v9"
)

// Version is overridden at build time with -ldflags "-X .../handlers.Version=...".
var Version = "dev"

// CheckFunc reports the health of one dependency.
type CheckFunc func(ctx context.Context) error

// HealthChecker handles health check requests
type HealthChecker struct {
	checks map[string]CheckFunc
}

// HealthOption registers a dependency check.
type HealthOption func(*HealthChecker)

// WithDatabase checks the Postgres pool.
func WithDatabase(db *database.DB) HealthOption {
	return func(h *HealthChecker) {
		if db != nil {
			h.checks["database"] = db.PingContext
		}
	}
}

// WithRedis checks the shared Redis store.
func WithRedis(client *redis.Client) HealthOption {
	return func(h *HealthChecker) {
		if client != nil {
			h.checks["redis"] = func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			}
		}
	}
}

// WithCheck registers an arbitrary named check.
func WithCheck(name string, fn CheckFunc) HealthOption {
	return func(h *HealthChecker) {
		h.checks[name] = fn
	}
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(opts ...HealthOption) *HealthChecker {
	h := &HealthChecker{checks: make(map[string]CheckFunc)}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles /healthz. With ?mode=extended every configured dependency is pinged.
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	statusCode := http.StatusOK

	if r.URL.Query().Get("mode") == "extended" {
		response.Checks = make(map[string]string, len(h.checks))
		names := make([]string, 0, len(h.checks))
		for name := range h.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			err := h.checks[name](ctx)
			cancel()
			if err != nil {
				response.Status = "unhealthy"
				response.Checks[name] = "unhealthy: " + sanitizeErrorMessage(err.Error())
				continue
			}
			response.Checks[name] = "healthy"
		}
		if response.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
	}

	writeStatusJSON(w, statusCode, response)
}

// Health is the legacy liveness endpoint.
func Health(w http.ResponseWriter, r *http.Request) {
	writeStatusJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// VersionInfo reports the build version.
func VersionInfo(w http.ResponseWriter, r *http.Request) {
	writeStatusJSON(w, http.StatusOK, map[string]string{
		"version":   Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeStatusJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
