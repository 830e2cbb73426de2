package request

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKey string

const requestIDContextKey contextKey = "request_id"

// UnknownClient is the shared bucket for requests without a forwarded address.
const UnknownClient = "unknown"

// ClientIP extracts the client IP from the request, respecting X-Forwarded-For and X-Real-IP.
// The port is stripped from RemoteAddr so one host keeps one key across connections.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Identifier returns the admission-limiter key: the first X-Forwarded-For hop, or
// UnknownClient when the header is absent. Every address-less client shares one budget.
func Identifier(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if first, _, _ := strings.Cut(xff, ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	return UnknownClient
}

// WithRequestID returns a context carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestID returns the request ID from ctx, or "" if none was set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}
