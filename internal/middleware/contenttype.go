package middleware

import (
	"mime"
	"net/http"

	"go.uber.org/zap"
)

// ContentType requires JSON or multipart bodies on POST, PATCH and PUT requests.
func ContentType(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
				contentType := r.Header.Get("Content-Type")
				if contentType == "" {
					// Bodyless POSTs (token refresh) are fine.
					if r.ContentLength == 0 {
						next.ServeHTTP(w, r)
						return
					}
					respondErrorJSON(w, r, http.StatusBadRequest, ErrorResponse{
						Error:   "INVALID_REQUEST",
						Message: "Content-Type header is required",
					}, logger)
					return
				}

				mediaType, _, err := mime.ParseMediaType(contentType)
				if err != nil || (mediaType != "application/json" && mediaType != "multipart/form-data") {
					respondErrorJSON(w, r, http.StatusUnsupportedMediaType, ErrorResponse{
						Error:   "INVALID_REQUEST",
						Message: "Content-Type must be application/json or multipart/form-data",
					}, logger)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
