package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthChecker(t *testing.T) {
	t.Parallel()

	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		query      string
		checks     map[string]CheckFunc
		wantStatus int
		wantChecks map[string]string
	}{
		{name: "basic mode skips checks", query: "", checks: map[string]CheckFunc{"redis": down}, wantStatus: http.StatusOK},
		{name: "extended healthy", query: "?mode=extended", checks: map[string]CheckFunc{"redis": ok, "database": ok}, wantStatus: http.StatusOK,
			wantChecks: map[string]string{"redis": "healthy", "database": "healthy"}},
		{name: "extended unhealthy", query: "?mode=extended", checks: map[string]CheckFunc{"redis": down, "database": ok}, wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"redis": "unhealthy: connection refused", "database": "healthy"}},
		{name: "extended with nothing configured", query: "?mode=extended", wantStatus: http.StatusOK, wantChecks: map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := []HealthOption{WithDatabase(nil), WithRedis(nil)}
			for name, fn := range tt.checks {
				opts = append(opts, WithCheck(name, fn))
			}
			h := NewHealthChecker(opts...)

			w := httptest.NewRecorder()
			h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/healthz"+tt.query, nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}

			var body HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Timestamp == "" {
				t.Error("timestamp missing")
			}
			if len(body.Checks) != len(tt.wantChecks) {
				t.Fatalf("checks = %v, want %v", body.Checks, tt.wantChecks)
			}
			for k, v := range tt.wantChecks {
				if body.Checks[k] != v {
					t.Errorf("checks[%s] = %q, want %q", k, body.Checks[k], v)
				}
			}
		})
	}
}

func TestVersionInfo(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	VersionInfo(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["version"] != Version {
		t.Errorf("version = %q, want %q", body["version"], Version)
	}
}
