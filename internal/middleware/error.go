package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	logpkg "github.com/benvon/product-studio/internal/logger"
	"go.uber.org/zap"
)

// ErrorResponse is the error envelope written by middleware.
type ErrorResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retryAfter,omitempty"`
	Timestamp  string `json:"timestamp"`
	Path       string `json:"path"`
}

// ErrorHandler recovers panics and answers with a 500 JSON envelope.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logpkg.FromContext(r.Context(), logger).Error("panic_recovered",
						zap.Any("error", err),
						zap.String("path", logpkg.SanitizePath(r.URL.Path)),
						zap.String("method", r.Method),
					)
					respondErrorJSON(w, r, http.StatusInternalServerError, ErrorResponse{
						Error:   "INTERNAL_ERROR",
						Message: "An unexpected error occurred",
					}, logger)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// respondErrorJSON sends an error JSON response
func respondErrorJSON(w http.ResponseWriter, r *http.Request, status int, body ErrorResponse, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body.Success = false
	body.Timestamp = time.Now().UTC().Format(time.RFC3339)
	body.Path = r.URL.Path

	if err := json.NewEncoder(w).Encode(body); err != nil && logger != nil {
		logger.Error("failed_to_encode_error_response",
			zap.Error(err),
			zap.Int("status_code", status),
			zap.String("path", logpkg.SanitizePath(r.URL.Path)),
		)
	}
}
