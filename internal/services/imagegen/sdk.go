package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/benvon/product-studio/internal/generation"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// SDKGenerator calls Gemini through google.golang.org/genai. A client is built per call
// because the API key can differ between requests.
type SDKGenerator struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewSDKGenerator creates an SDK transport. An empty baseURL keeps the SDK default.
func NewSDKGenerator(baseURL, model string, httpClient *http.Client, logger *zap.Logger) *SDKGenerator {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SDKGenerator{
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Generate implements generation.Generator.
func (g *SDKGenerator) Generate(ctx context.Context, task generation.Task, creds generation.Credentials) (*generation.Image, error) {
	cfg := &genai.ClientConfig{
		APIKey:     creds.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.httpClient,
	}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL, APIVersion: apiVersion}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	parts := make([]*genai.Part, 0, len(task.Images)+1)
	for _, img := range task.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(task.Prompt))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	genCfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	if task.Size.AspectRatio != "" || task.Size.Tier != "" {
		genCfg.ImageConfig = &genai.ImageConfig{
			AspectRatio: task.Size.AspectRatio,
			ImageSize:   task.Size.Tier,
		}
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, genCfg)
	if err != nil {
		return nil, wrapSDKError(err)
	}
	return extractSDKImage(resp)
}

func extractSDKImage(resp *genai.GenerateContentResponse) (*generation.Image, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &generation.NoImageError{}
	}
	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil {
			continue
		}
		if p.InlineData != nil && len(p.InlineData.Data) > 0 {
			return &generation.Image{Data: p.InlineData.Data, MIMEType: p.InlineData.MIMEType, Text: text.String()}, nil
		}
		text.WriteString(p.Text)
	}
	return nil, &generation.NoImageError{Text: text.String()}
}

// wrapSDKError turns genai API errors into upstream errors; transport errors pass through.
func wrapSDKError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &generation.UpstreamError{StatusCode: apiErr.Code, Message: apiErr.Message}
	}
	return err
}
