package middleware

import (
	"net/http"
	"time"

	logpkg "github.com/benvon/product-studio/internal/logger"
	"github.com/benvon/product-studio/internal/request"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

const (
	// DefaultBurstRate is the coarse per-IP guard applied to every API route.
	DefaultBurstRate = "10-S"
	burstKeyPrefix   = "burst"
)

// NewBurstStore returns a Redis-backed ulule store when client is non-nil, else an in-memory one.
func NewBurstStore(client *redis.Client) (limiter.Store, error) {
	if client == nil {
		return memorystore.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          burstKeyPrefix,
			CleanUpInterval: time.Minute,
		}), nil
	}
	return redisstore.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: burstKeyPrefix})
}

// BurstGuard returns ulule/limiter middleware keyed by client IP. It sits in front
// of the generation admission limiter and only sheds obvious floods.
func BurstGuard(store limiter.Store, rate string, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	if rate == "" {
		rate = DefaultBurstRate
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	instance := limiter.New(store, parsed)

	mw := stdlibmw.NewMiddleware(instance,
		stdlibmw.WithKeyGetter(request.ClientIP),
		stdlibmw.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			retry := int64(parsed.Period / time.Second)
			if retry < 1 {
				retry = 1
			}
			respondErrorJSON(w, r, http.StatusTooManyRequests, ErrorResponse{
				Error:      "RATE_LIMIT_EXCEEDED",
				Message:    "Too many requests",
				RetryAfter: retry,
			}, logger)
		}),
		stdlibmw.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			logpkg.FromContext(r.Context(), logger).Warn("burst_guard_store_failed",
				zap.String("error", logpkg.SanitizeError(err)),
			)
			respondErrorJSON(w, r, http.StatusServiceUnavailable, ErrorResponse{
				Error:   "INTERNAL_ERROR",
				Message: "Rate limiter unavailable",
			}, logger)
		}),
	)
	return mw.Handler, nil
}
