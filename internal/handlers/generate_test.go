package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/benvon/product-studio/internal/generation"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	mu    sync.Mutex
	tasks []generation.Task
	keys  []string
	fail  map[string]error
}

func (s *stubGenerator) Generate(_ context.Context, task generation.Task, creds generation.Credentials) (*generation.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	s.keys = append(s.keys, creds.APIKey)
	if err, ok := s.fail[task.Label]; ok {
		return nil, err
	}
	return &generation.Image{Data: []byte("out-" + task.Label), MIMEType: "image/png"}, nil
}

func (s *stubGenerator) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func newGenerateHandler(gen generation.Generator, limit int, opts ...GenerateHandlerOption) *GenerateHandler {
	return NewGenerateHandler(generation.NewOrchestrator(gen), newLimiter(limit), nopLogger, opts...)
}

func TestGenerateHandler_HeroMultipart(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{}
	h := newGenerateHandler(gen, 20)
	img := pngBytes(t, 4, 4)

	req := multipartRequest(t, "/api/v1/generate/hero",
		map[string]string{"prompt": "red mug on oak", "apiKey": "AIzaClient"},
		map[string]filePart{"image": {data: img, contentType: "application/octet-stream"}},
	)
	w := httptest.NewRecorder()
	h.Hero(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data SingleImageResponse
	env := decodeEnvelope(t, w, &data)
	assert.True(t, env.Success)
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString([]byte("out-hero")), data.ImageURL)
	assert.Equal(t, 19, data.RateLimit.Remaining)
	assert.Equal(t, int64(60000), data.RateLimit.ResetInMs)
	assert.Equal(t, 1024, data.Size.Width)
	assert.Empty(t, data.UsedPrompt)

	require.Equal(t, 1, gen.calls())
	task := gen.tasks[0]
	assert.Equal(t, "red mug on oak. High quality, professional product photography, 4k, detailed.", task.Prompt)
	require.Len(t, task.Images, 1)
	assert.Equal(t, "image/png", task.Images[0].MIMEType, "sniffed type replaces the generic one")
	assert.Equal(t, img, task.Images[0].Data)
	assert.Equal(t, "19", w.Header().Get("X-RateLimit-Remaining"))
}

func TestGenerateHandler_HeroJSON(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{}
	h := newGenerateHandler(gen, 20)

	req := jsonRequest(t, "/api/v1/generate/hero", map[string]string{
		"image":      "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t, 2, 2)),
		"prompt":     "walnut desk lamp",
		"resolution": "1536x1024",
		"apiKey":     "AIzaClient",
	})
	w := httptest.NewRecorder()
	h.Hero(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data SingleImageResponse
	decodeEnvelope(t, w, &data)
	assert.Equal(t, generation.OutputSize{Width: 1536, Height: 1024, AspectRatio: "3:2", Tier: "1K"}, data.Size)
}

func TestGenerateHandler_RejectsBeforeUpstream(t *testing.T) {
	t.Parallel()

	img := pngBytes(t, 2, 2)
	tests := []struct {
		name     string
		fields   map[string]string
		files    map[string]filePart
		wantCode int
		wantErr  generation.Code
	}{
		{name: "no image", fields: map[string]string{"prompt": "p", "apiKey": "AIzaX"},
			wantCode: http.StatusBadRequest, wantErr: generation.CodeNoImage},
		{name: "no prompt", fields: map[string]string{"apiKey": "AIzaX"}, files: map[string]filePart{"image": {data: img, contentType: "image/png"}},
			wantCode: http.StatusBadRequest, wantErr: generation.CodeNoPrompt},
		{name: "not an image", fields: map[string]string{"prompt": "p", "apiKey": "AIzaX"}, files: map[string]filePart{"image": {data: []byte("hello"), contentType: "image/png"}},
			wantCode: http.StatusBadRequest, wantErr: generation.CodeInvalidImage},
		{name: "no key", fields: map[string]string{"prompt": "p"}, files: map[string]filePart{"image": {data: img, contentType: "image/png"}},
			wantCode: http.StatusUnauthorized, wantErr: generation.CodeNoAPIKey},
		{name: "malformed key", fields: map[string]string{"prompt": "p", "apiKey": "sk-wrong"}, files: map[string]filePart{"image": {data: img, contentType: "image/png"}},
			wantCode: http.StatusUnauthorized, wantErr: generation.CodeInvalidAPIKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gen := &stubGenerator{}
			limiter := newLimiter(20)
			h := NewGenerateHandler(generation.NewOrchestrator(gen), limiter, nopLogger)

			w := httptest.NewRecorder()
			h.Hero(w, multipartRequest(t, "/api/v1/generate/hero", tt.fields, tt.files))

			assert.Equal(t, tt.wantCode, w.Code)
			env := decodeEnvelope(t, w, nil)
			assert.Equal(t, string(tt.wantErr), env.Error)
			assert.Zero(t, gen.calls())

			d := limiter.Check(context.Background(), "unknown")
			assert.Equal(t, 19, d.Remaining, "rejected input must not consume budget")
		})
	}
}

func TestGenerateHandler_Admission(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{}
	h := newGenerateHandler(gen, 2)
	img := pngBytes(t, 2, 2)

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := multipartRequest(t, "/api/v1/generate/hero",
			map[string]string{"prompt": "p", "apiKey": "AIzaX"},
			map[string]filePart{"image": {data: img, contentType: "image/png"}},
		)
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		last = httptest.NewRecorder()
		h.Hero(last, req)
		codes = append(codes, last.Code)
	}

	assert.Equal(t, []int{200, 200, 429}, codes)
	assert.Equal(t, 2, gen.calls())
	assert.Equal(t, "60", last.Header().Get("Retry-After"))
	env := decodeEnvelope(t, last, nil)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", env.Error)
	assert.Equal(t, 60, env.RetryAfter)
	assert.Equal(t, "Maximum 2 requests per minute. Retry in 60 seconds.", env.Message)

	other := multipartRequest(t, "/api/v1/generate/hero",
		map[string]string{"prompt": "p", "apiKey": "AIzaX"},
		map[string]filePart{"image": {data: img, contentType: "image/png"}},
	)
	other.Header.Set("X-Forwarded-For", "198.51.100.4")
	w := httptest.NewRecorder()
	h.Hero(w, other)
	assert.Equal(t, http.StatusOK, w.Code, "other clients keep their own budget")
}

func TestGenerateHandler_SingleTaskFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantCode  int
		wantErr   generation.Code
		wantDebug string
	}{
		{name: "upstream status", err: &generation.UpstreamError{StatusCode: 400, Message: "Image too small"},
			wantCode: http.StatusBadGateway, wantErr: generation.CodeAPIError},
		{name: "text only", err: &generation.NoImageError{Text: "I cannot draw that"},
			wantCode: http.StatusBadGateway, wantErr: generation.CodeNoImageInResponse, wantDebug: "I cannot draw that"},
		{name: "timeout", err: context.DeadlineExceeded,
			wantCode: http.StatusGatewayTimeout, wantErr: generation.CodeUpstreamTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gen := &stubGenerator{fail: map[string]error{"hero": tt.err}}
			h := newGenerateHandler(gen, 20)
			w := httptest.NewRecorder()
			h.Hero(w, multipartRequest(t, "/api/v1/generate/hero",
				map[string]string{"prompt": "p", "apiKey": "AIzaX"},
				map[string]filePart{"image": {data: pngBytes(t, 2, 2), contentType: "image/png"}},
			))

			assert.Equal(t, tt.wantCode, w.Code)
			env := decodeEnvelope(t, w, nil)
			assert.Equal(t, string(tt.wantErr), env.Error)
			assert.Equal(t, tt.wantDebug, env.Debug)
		})
	}
}

func TestGenerateHandler_MultiAnglePartialFailure(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{fail: map[string]error{"back": &generation.UpstreamError{StatusCode: 500, Message: "internal"}}}
	h := newGenerateHandler(gen, 20)

	w := httptest.NewRecorder()
	h.MultiAngle(w, multipartRequest(t, "/api/v1/generate/multi-angle",
		map[string]string{"angles": `["front","back","worm's eye"]`, "apiKey": "AIzaX"},
		map[string]filePart{"image": {data: pngBytes(t, 2, 2), contentType: "image/png"}},
	))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data BatchResponse
	decodeEnvelope(t, w, &data)
	require.Len(t, data.Images, 3)
	assert.Equal(t, []string{"front", "back", "worm's eye"}, []string{data.Images[0].Label, data.Images[1].Label, data.Images[2].Label})
	assert.True(t, data.Images[0].Success)
	assert.False(t, data.Images[1].Success)
	assert.Equal(t, generation.CodeAPIError, data.Images[1].Error)
	assert.True(t, data.Images[2].Success)
	assert.Equal(t, 19, data.RateLimit.Remaining, "a batch consumes one admission")

	require.Equal(t, 3, gen.calls())
	assert.Equal(t, "Front view, straight on, professional photography. Maintain consistent lighting and style.", gen.tasks[0].Prompt)
	assert.Equal(t, "Create a worm's eye perspective. Maintain consistent lighting and style.", gen.tasks[2].Prompt)
}

func TestGenerateHandler_MultiAngleValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		angles  any
		wantErr generation.Code
	}{
		{name: "missing", angles: nil, wantErr: generation.CodeNoAngles},
		{name: "not json", angles: "front,back", wantErr: generation.CodeInvalidAngles},
		{name: "empty array", angles: []string{}, wantErr: generation.CodeInvalidAngles},
		{name: "blank label", angles: []string{"front", " "}, wantErr: generation.CodeInvalidAngles},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			body := map[string]any{
				"image":  base64.StdEncoding.EncodeToString(pngBytes(t, 2, 2)),
				"apiKey": "AIzaX",
			}
			if tt.angles != nil {
				body["angles"] = tt.angles
			}
			gen := &stubGenerator{}
			w := httptest.NewRecorder()
			newGenerateHandler(gen, 20).MultiAngle(w, jsonRequest(t, "/api/v1/generate/multi-angle", body))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, string(tt.wantErr), decodeEnvelope(t, w, nil).Error)
			assert.Zero(t, gen.calls())
		})
	}
}

func TestGenerateHandler_CameraAngle(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{}
	h := newGenerateHandler(gen, 20)
	img := pngBytes(t, 2, 2)

	w := httptest.NewRecorder()
	h.CameraAngle(w, multipartRequest(t, "/api/v1/generate/camera-angle",
		map[string]string{"apiKey": "AIzaX", "aspectRatio": "16:9", "quality": "2k"},
		map[string]filePart{"image": {data: img, contentType: "image/png"}},
	))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "NO_PROMPT", decodeEnvelope(t, w, nil).Error)

	w = httptest.NewRecorder()
	h.CameraAngle(w, multipartRequest(t, "/api/v1/generate/camera-angle",
		map[string]string{"apiKey": "AIzaX", "angle": "low", "anglePrompt": "Low angle hero shot", "customPrompt": "dramatic sky", "aspectRatio": "16:9", "quality": "2k"},
		map[string]filePart{"image": {data: img, contentType: "image/png"}},
	))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data SingleImageResponse
	decodeEnvelope(t, w, &data)
	assert.Equal(t, "Low angle hero shot dramatic sky", data.UsedPrompt)
	assert.Equal(t, generation.OutputSize{Width: 2048, Height: 1152, AspectRatio: "16:9", Tier: "2K"}, data.Size)
	assert.Equal(t, "low", gen.tasks[0].Label)
}

func TestGenerateHandler_ProductBed(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{}
	h := newGenerateHandler(gen, 20, WithServerAPIKey("AIzaServer"))
	bed := pngBytes(t, 8, 4)
	product := pngBytes(t, 2, 2)

	w := httptest.NewRecorder()
	h.ProductBed(w, multipartRequest(t, "/api/v1/generate/product-bed", nil,
		map[string]filePart{"bedImage": {data: bed, contentType: "image/png"}}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_IMAGES", decodeEnvelope(t, w, nil).Error)

	w = httptest.NewRecorder()
	h.ProductBed(w, multipartRequest(t, "/api/v1/generate/product-bed",
		map[string]string{"productType": "pillow", "apiKey": "not-a-key"},
		map[string]filePart{
			"bedImage":     {data: bed, contentType: "image/png"},
			"productImage": {data: product, contentType: "image/png"},
		}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Equal(t, 1, gen.calls())
	task := gen.tasks[0]
	assert.Equal(t, "AIzaServer", gen.keys[0], "server key wins over the client key")
	require.Len(t, task.Images, 2)
	assert.True(t, bytes.Equal(bed, task.Images[0].Data), "bed image is sent first")
	assert.True(t, strings.HasPrefix(task.Prompt, "Place a pillow naturally on this bed"))
}

func TestGenerateHandler_Routes(t *testing.T) {
	t.Parallel()

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	newGenerateHandler(&stubGenerator{}, 20).RegisterRoutes(api.PathPrefix("/generate").Subrouter())

	for _, path := range []string{"hero", "product-bed", "multi-angle", "camera-angle"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, jsonRequest(t, "/api/v1/generate/"+path, map[string]string{}))
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/generate/hero", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
	env := decodeEnvelope(t, w, nil)
	assert.False(t, env.Success)
	assert.Equal(t, "METHOD_NOT_ALLOWED", env.Error)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/generate/multi-angle", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/generate/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// Not parallel: t.Setenv redirects multipart spill files into a private directory.
func TestGenerateHandler_RemovesSpilledUploads(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TMPDIR", dir)

	img := pngBytes(t, 8, 8)
	tests := []struct {
		name     string
		image    []byte
		fail     bool
		wantCode int
	}{
		{name: "success", image: img, wantCode: http.StatusOK},
		{name: "upstream failure", image: img, fail: true, wantCode: http.StatusBadGateway},
		{name: "invalid image", image: []byte("not an image at all"), wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &stubGenerator{}
			if tt.fail {
				gen.fail = map[string]error{"hero": &generation.UpstreamError{StatusCode: 500, Message: "internal"}}
			}
			h := newGenerateHandler(gen, 20, WithUploadMemory(1))

			req := multipartRequest(t, "/api/v1/generate/hero",
				map[string]string{"prompt": "red mug on oak", "apiKey": "AIzaClient"},
				map[string]filePart{"image": {data: tt.image, contentType: "image/png"}},
			)
			w := httptest.NewRecorder()
			h.Hero(w, req)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries, "spilled upload files must be removed")
		})
	}
}
