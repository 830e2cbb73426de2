package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benvon/product-studio/internal/generation"
	"github.com/benvon/product-studio/internal/ratelimit"
	"go.uber.org/zap"
)

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	respondJSON(w, http.StatusOK, map[string]string{"imageUrl": "data:image/png;base64,AA=="})

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got '%s'", ct)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if success, ok := body["success"].(bool); !ok || !success {
		t.Error("Expected success to be true")
	}
	ts, ok := body["timestamp"].(string)
	if !ok {
		t.Fatal("Timestamp not found in response")
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("Timestamp '%s' is not valid RFC3339: %v", ts, err)
	}
	data, ok := body["data"].(map[string]any)
	if !ok || data["imageUrl"] != "data:image/png;base64,AA==" {
		t.Errorf("unexpected data %v", body["data"])
	}
}

func TestRespondCodedError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code generation.Code
		want int
	}{
		{generation.CodeNoImage, http.StatusBadRequest},
		{generation.CodeInvalidAngles, http.StatusBadRequest},
		{generation.CodeInvalidAPIKey, http.StatusUnauthorized},
		{generation.CodeNoAPIKey, http.StatusUnauthorized},
		{generation.CodeRateLimitExceeded, http.StatusTooManyRequests},
		{generation.CodeUpstreamRateLimited, http.StatusTooManyRequests},
		{generation.CodeAPIError, http.StatusBadGateway},
		{generation.CodeNoImageInResponse, http.StatusBadGateway},
		{generation.CodeUpstreamTimeout, http.StatusGatewayTimeout},
		{generation.CodeGenerationFailed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			respondCodedError(w, &generation.Error{Code: tt.code, Message: strings.Repeat("m", 2*maxErrorMessageLength), Debug: "model text"})
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			var body errorBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Success || body.Error != string(tt.code) || body.Debug != "model text" {
				t.Errorf("unexpected body %+v", body)
			}
			if len(body.Message) > maxErrorMessageLength+3 {
				t.Errorf("message not truncated: %d bytes", len(body.Message))
			}
		})
	}
}

func TestWindowPhrase(t *testing.T) {
	t.Parallel()
	if got := windowPhrase(time.Minute); got != "minute" {
		t.Errorf("windowPhrase(1m) = %q", got)
	}
	if got := windowPhrase(90 * time.Second); got != "1m30s" {
		t.Errorf("windowPhrase(90s) = %q", got)
	}
}

// Fixtures shared by the handler tests.

func newLimiter(limit int) *ratelimit.Limiter {
	return ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Policy{Limit: limit, Window: time.Minute})
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

type filePart struct {
	data        []byte
	contentType string
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files map[string]filePart) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	for k, f := range files {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="` + k + `"; filename="` + k + `.png"`}
		h["Content-Type"] = []string{f.contentType}
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		_, _ = part.Write(f.data)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, path string, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Message    string          `json:"message"`
	RetryAfter int             `json:"retryAfter"`
	Debug      string          `json:"debug"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

var nopLogger = zap.NewNop()
