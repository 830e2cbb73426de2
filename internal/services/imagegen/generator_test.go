package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benvon/product-studio/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "AIzaTestKey"

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

type upstream struct {
	srv   *httptest.Server
	calls atomic.Int32
	last  atomic.Value // restRequest
}

// newUpstream fakes generateContent. The prompt text selects the behaviour.
func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, ":generateContent") || r.Header.Get("x-goog-api-key") != testKey {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req restRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		u.last.Store(req)

		parts := req.Contents[0].Parts
		prompt := parts[len(parts)-1].Text
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(prompt, "fail"):
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Image input is invalid","status":"INVALID_ARGUMENT"}}`))
		case strings.Contains(prompt, "text only"):
			_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"I cannot draw that."}]}}]}`))
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"candidates": []any{map[string]any{
					"content": map[string]any{
						"role": "model",
						"parts": []any{
							map[string]any{"text": "Here you go"},
							map[string]any{"inlineData": map[string]any{
								"mimeType": "image/png",
								"data":     base64.StdEncoding.EncodeToString(pngBytes),
							}},
						},
					},
				}},
			})
		}
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func testTask(prompt string) generation.Task {
	return generation.Task{
		Label:  "hero",
		Images: []generation.InputImage{{Data: []byte("bed"), MIMEType: "image/jpeg"}, {Data: []byte("prod"), MIMEType: "image/webp"}},
		Prompt: prompt,
		Size:   generation.SizeForAspect("16:9", "2K"),
	}
}

func TestGenerators(t *testing.T) {
	t.Parallel()
	transports := []string{TransportREST, TransportSDK}
	for _, transport := range transports {
		t.Run(transport, func(t *testing.T) {
			t.Parallel()
			u := newUpstream(t)
			gen, err := New(Options{Transport: transport, BaseURL: u.srv.URL, Model: "test-model", HTTPClient: u.srv.Client()}, nil)
			require.NoError(t, err)
			creds := generation.Credentials{Provider: generation.ProviderGemini, APIKey: testKey}
			ctx := context.Background()

			img, err := gen.Generate(ctx, testTask("a chair"), creds)
			require.NoError(t, err)
			assert.Equal(t, pngBytes, img.Data)
			assert.Equal(t, "image/png", img.MIMEType)
			assert.Equal(t, "Here you go", img.Text)

			_, err = gen.Generate(ctx, testTask("please fail"), creds)
			var up *generation.UpstreamError
			require.True(t, errors.As(err, &up), "got %v", err)
			assert.Equal(t, http.StatusBadRequest, up.StatusCode)
			assert.Equal(t, "Image input is invalid", up.Message)

			_, err = gen.Generate(ctx, testTask("text only"), creds)
			var noImage *generation.NoImageError
			require.True(t, errors.As(err, &noImage), "got %v", err)
			assert.Equal(t, "I cannot draw that.", noImage.Text)

			assert.Equal(t, int32(3), u.calls.Load())
		})
	}
}

func TestRESTGenerator_RequestShape(t *testing.T) {
	t.Parallel()
	u := newUpstream(t)
	gen := NewRESTGenerator(u.srv.URL, "m", u.srv.Client(), nil, true)

	_, err := gen.Generate(context.Background(), testTask("a lamp"), generation.Credentials{APIKey: testKey})
	require.NoError(t, err)

	req := u.last.Load().(restRequest)
	require.Len(t, req.Contents, 1)
	parts := req.Contents[0].Parts
	require.Len(t, parts, 3)
	assert.Equal(t, "image/jpeg", parts[0].InlineData.MIMEType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("bed")), parts[0].InlineData.Data)
	assert.Equal(t, "image/webp", parts[1].InlineData.MIMEType)
	assert.Equal(t, "a lamp", parts[2].Text)
	assert.Equal(t, []string{"TEXT", "IMAGE"}, req.GenerationConfig.ResponseModalities)
	require.NotNil(t, req.GenerationConfig.ImageConfig)
	assert.Equal(t, "16:9", req.GenerationConfig.ImageConfig.AspectRatio)
	assert.Equal(t, "2K", req.GenerationConfig.ImageConfig.ImageSize)
}

func TestNew_UnknownTransport(t *testing.T) {
	t.Parallel()
	_, err := New(Options{Transport: "subprocess"}, nil)
	assert.Error(t, err)
}

type countingGenerator struct{ calls atomic.Int32 }

func (c *countingGenerator) Generate(context.Context, generation.Task, generation.Credentials) (*generation.Image, error) {
	c.calls.Add(1)
	return &generation.Image{Data: []byte{1}}, nil
}

func TestPaced(t *testing.T) {
	t.Parallel()
	next := &countingGenerator{}
	p := NewPaced(next, 20)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := p.Generate(ctx, generation.Task{}, generation.Credentials{})
		require.NoError(t, err)
	}
	// burst of one, then 50ms per call
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, int32(3), next.calls.Load())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := p.Generate(cancelled, generation.Task{}, generation.Credentials{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(3), next.calls.Load())
}
