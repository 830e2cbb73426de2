package middleware

import (
	"net/http"

	logpkg "github.com/benvon/product-studio/internal/logger"
	"github.com/benvon/product-studio/internal/request"
	"go.uber.org/zap"
)

// Audit logs rejected credentials and rate-limit rejections for monitoring.
func Audit(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			var event string
			switch wrapped.statusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				event = "credential_rejected"
			case http.StatusTooManyRequests:
				event = "rate_limit_rejected"
			default:
				return
			}
			logpkg.FromContext(r.Context(), logger).Warn(event,
				zap.Int("status_code", wrapped.statusCode),
				zap.String("method", r.Method),
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.String("client", logpkg.SanitizeIdentifier(request.Identifier(r))),
				zap.String("ip", logpkg.SanitizeIdentifier(request.ClientIP(r))),
			)
		})
	}
}
