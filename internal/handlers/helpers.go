package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/benvon/product-studio/internal/generation"
	logpkg "github.com/benvon/product-studio/internal/logger"
	"github.com/benvon/product-studio/internal/ratelimit"
	"github.com/benvon/product-studio/internal/request"
	"go.uber.org/zap"
)

const maxErrorMessageLength = 500

// Admitter is the admission check applied to every upstream-consuming route.
type Admitter interface {
	Check(ctx context.Context, id string) ratelimit.Decision
	Policy() ratelimit.Policy
}

// RateLimitSnapshot is the remaining budget returned with successful responses.
type RateLimitSnapshot struct {
	Remaining int   `json:"remaining"`
	ResetInMs int64 `json:"resetInMs"`
}

func snapshot(d ratelimit.Decision) RateLimitSnapshot {
	return RateLimitSnapshot{Remaining: d.Remaining, ResetInMs: d.ResetInMs}
}

// errorBody is the error envelope.
type errorBody struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"`
	Debug      string `json:"debug,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// sanitizeErrorMessage bounds messages that may echo upstream text
func sanitizeErrorMessage(message string) string {
	return logpkg.SanitizeString(message, maxErrorMessageLength)
}

// respondJSONError sends an error JSON response with sanitized error messages
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	writeError(w, status, errorBody{Error: errorType, Message: message})
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body.Success = false
	body.Message = sanitizeErrorMessage(body.Message)
	body.Timestamp = time.Now().UTC().Format(time.RFC3339)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// allowMethod answers other methods with a 405 envelope. Routes on nested
// subrouters use it because mux reports a method mismatch there as 404.
// OPTIONS gets 204 like the catch-all preflight route.
func allowMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case method:
			next(w, r)
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Allow", method)
			respondJSONError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method "+r.Method+" is not allowed")
		}
	}
}

// respondCodedError writes a *generation.Error with the status its code maps to.
func respondCodedError(w http.ResponseWriter, e *generation.Error) {
	writeError(w, statusForCode(e.Code), errorBody{
		Error:   string(e.Code),
		Message: e.Message,
		Debug:   e.Debug,
	})
}

// statusForCode maps machine codes to HTTP statuses.
func statusForCode(code generation.Code) int {
	switch code {
	case generation.CodeRateLimitExceeded, generation.CodeUpstreamRateLimited:
		return http.StatusTooManyRequests
	case generation.CodeNoAPIKey, generation.CodeInvalidAPIKey:
		return http.StatusUnauthorized
	case generation.CodeNoImage, generation.CodeMissingImages, generation.CodeNoPrompt,
		generation.CodeNoAngles, generation.CodeInvalidAngles, generation.CodeInvalidImage,
		generation.CodeInvalidRequest:
		return http.StatusBadRequest
	case generation.CodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	case generation.CodeCancelled:
		return http.StatusServiceUnavailable
	case generation.CodeAPIError, generation.CodeNoImageInResponse, generation.CodeEmptyResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// admit runs the admission check for the request's client identifier. On rejection it
// writes the 429 response and returns false.
func admit(w http.ResponseWriter, r *http.Request, limiter Admitter, logger *zap.Logger) (ratelimit.Decision, bool) {
	id := request.Identifier(r)
	d := limiter.Check(r.Context(), id)

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetInMs, 10))
	if d.Allowed {
		return d, true
	}

	retry := d.RetryAfterSeconds()
	logpkg.FromContext(r.Context(), logger).Info("generation_admission_rejected",
		zap.String("client", logpkg.SanitizeIdentifier(id)),
		zap.Int("retry_after_s", retry),
	)
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, http.StatusTooManyRequests, errorBody{
		Error:      string(generation.CodeRateLimitExceeded),
		Message:    fmt.Sprintf("Maximum %d requests per %s. Retry in %d seconds.", d.Limit, windowPhrase(limiter.Policy().Window), retry),
		RetryAfter: retry,
	})
	return d, false
}

func windowPhrase(window time.Duration) string {
	switch window {
	case time.Minute:
		return "minute"
	case time.Hour:
		return "hour"
	case time.Second:
		return "second"
	}
	return window.String()
}
