package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		method        string
		path          string
		handlerStatus int
		body          string
	}{
		{name: "GET request", method: http.MethodGet, path: "/healthz", handlerStatus: http.StatusOK, body: "ok"},
		{name: "POST request", method: http.MethodPost, path: "/api/v1/generate/hero", handlerStatus: http.StatusTooManyRequests},
		{name: "404 request", method: http.MethodGet, path: "/notfound", handlerStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.InfoLevel)
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.handlerStatus)
				_, _ = w.Write([]byte(tt.body))
			})

			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
			w := httptest.NewRecorder()
			RequestID(Logging(zap.New(core))(handler)).ServeHTTP(w, req)

			if w.Code != tt.handlerStatus {
				t.Errorf("Expected status %d, got %d", tt.handlerStatus, w.Code)
			}
			entries := logs.FilterMessage("http_request").All()
			if len(entries) != 1 {
				t.Fatalf("got %d http_request entries, want 1", len(entries))
			}
			fields := entries[0].ContextMap()
			if got := fields["status_code"]; got != int64(tt.handlerStatus) {
				t.Errorf("status_code = %v, want %d", got, tt.handlerStatus)
			}
			if got := fields["client"]; got != "203.0.113.7" {
				t.Errorf("client = %v", got)
			}
			if got := fields["bytes"]; got != int64(len(tt.body)) {
				t.Errorf("bytes = %v, want %d", got, len(tt.body))
			}
			if fields["request_id"] != w.Header().Get(RequestIDHeader) {
				t.Errorf("request_id = %v, header = %q", fields["request_id"], w.Header().Get(RequestIDHeader))
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.Header().Get(RequestIDHeader)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if seen != "abc-123" {
		t.Errorf("propagated id = %q, want abc-123", seen)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := w.Header().Get(RequestIDHeader); len(got) != 36 {
		t.Errorf("minted id = %q, want a UUID", got)
	}
}
