package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/benvon/product-studio/internal/generation"
	logpkg "github.com/benvon/product-studio/internal/logger"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the public Gemini API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	// DefaultModel is the image-capable Gemini model.
	DefaultModel = "gemini-3-pro-image-preview"

	apiVersion       = "v1beta"
	maxResponseBytes = 64 << 20
)

// RESTGenerator calls the generateContent endpoint directly over HTTP.
type RESTGenerator struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
	debug   bool
}

// NewRESTGenerator creates a REST transport. Empty baseURL or model use the defaults.
func NewRESTGenerator(baseURL, model string, client *http.Client, logger *zap.Logger, debug bool) *RESTGenerator {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RESTGenerator{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  client,
		logger:  logger,
		debug:   debug,
	}
}

type restInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type restPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *restInlineData `json:"inlineData,omitempty"`
}

type restContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []restPart `json:"parts"`
}

type restImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type restGenerationConfig struct {
	ResponseModalities []string         `json:"responseModalities"`
	ImageConfig        *restImageConfig `json:"imageConfig,omitempty"`
}

type restRequest struct {
	Contents         []restContent        `json:"contents"`
	GenerationConfig restGenerationConfig `json:"generationConfig"`
}

type restResponse struct {
	Candidates []struct {
		Content *restContent `json:"content"`
	} `json:"candidates"`
}

type restErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate implements generation.Generator.
func (g *RESTGenerator) Generate(ctx context.Context, task generation.Task, creds generation.Credentials) (*generation.Image, error) {
	body, err := json.Marshal(buildRESTRequest(task))
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", g.baseURL, apiVersion, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", creds.APIKey)

	if g.debug {
		g.logger.Debug("gemini_request",
			zap.String("model", g.model),
			zap.String("label", task.Label),
			zap.Int("images", len(task.Images)),
			zap.Int("body_bytes", len(body)),
			zap.String("api_key", logpkg.SanitizeAPIKey(creds.APIKey)),
			zap.String("prompt_preview", logpkg.SanitizePrompt(task.Prompt, false)),
		)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb restErrorBody
		msg := ""
		if json.Unmarshal(raw, &eb) == nil {
			msg = eb.Error.Message
		}
		return nil, &generation.UpstreamError{StatusCode: resp.StatusCode, Message: msg}
	}

	var out restResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("malformed upstream response: %w", err)
	}
	return extractRESTImage(&out)
}

func buildRESTRequest(task generation.Task) restRequest {
	parts := make([]restPart, 0, len(task.Images)+1)
	for _, img := range task.Images {
		parts = append(parts, restPart{InlineData: &restInlineData{
			MIMEType: img.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(img.Data),
		}})
	}
	parts = append(parts, restPart{Text: task.Prompt})

	cfg := restGenerationConfig{ResponseModalities: []string{"TEXT", "IMAGE"}}
	if task.Size.AspectRatio != "" || task.Size.Tier != "" {
		cfg.ImageConfig = &restImageConfig{
			AspectRatio: task.Size.AspectRatio,
			ImageSize:   task.Size.Tier,
		}
	}
	return restRequest{
		Contents:         []restContent{{Role: "user", Parts: parts}},
		GenerationConfig: cfg,
	}
}

func extractRESTImage(out *restResponse) (*generation.Image, error) {
	if len(out.Candidates) == 0 || out.Candidates[0].Content == nil {
		return nil, &generation.NoImageError{}
	}
	var text strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		if p.InlineData != nil && p.InlineData.Data != "" {
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("malformed image data: %w", err)
			}
			return &generation.Image{Data: data, MIMEType: p.InlineData.MIMEType, Text: text.String()}, nil
		}
		text.WriteString(p.Text)
	}
	return nil, &generation.NoImageError{Text: text.String()}
}
