package middleware

import (
	"net/http"

	"go.uber.org/zap"
)

const (
	// DefaultMaxRequestSize is the default maximum request body size (20MB), sized for image uploads
	DefaultMaxRequestSize int64 = 20 << 20
)

// MaxRequestSize limits the size of request bodies. Multipart parsing past the
// limit surfaces as an error from the handler's form reader.
func MaxRequestSize(maxBytes int64, logger *zap.Logger) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				respondErrorJSON(w, r, http.StatusRequestEntityTooLarge, ErrorResponse{
					Error:   "INVALID_REQUEST",
					Message: "Request body too large",
				}, logger)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
