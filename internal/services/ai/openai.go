package ai

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/benvon/product-studio/internal/generation"
	logpkg "github.com/benvon/product-studio/internal/logger"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the default timeout for API calls
	DefaultTimeout = 60 * time.Second

	promptMaxTokens   = 500
	promptTemperature = 0.7

	userMessageWithImage    = "Please analyze this product image and generate an optimized AI image generation prompt."
	userMessageWithoutImage = "Generate a professional AI image generation prompt based on the product type and brand information provided."
)

const promptChecklist = `
Create a detailed prompt that includes:
1. Product positioning and composition
2. Lighting style (soft, dramatic, natural, studio)
3. Background setting (white, lifestyle, contextual, gradient)
4. Color mood and palette
5. Camera angle and perspective
6. Style modifiers (professional, commercial, e-commerce)
7. Technical quality (8k, ultra-detailed, professional photography)
Format the prompt as a single paragraph optimized for AI image generation.`

// OpenAIProvider drafts prompts with OpenAI chat completions. The client is built per call
// because credentials come from the request.
type OpenAIProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
	debugMode  bool
}

// NewOpenAIProvider creates a provider. Empty baseURL and model use the defaults.
func NewOpenAIProvider(baseURL, model string, logger *zap.Logger, debugMode bool) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	return &OpenAIProvider{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logger,
		debugMode:  debugMode,
	}
}

// WithHTTPClient replaces the HTTP client used for API calls.
func (p *OpenAIProvider) WithHTTPClient(c *http.Client) *OpenAIProvider {
	p.httpClient = c
	return p
}

// WithLogger sets the logger.
func (p *OpenAIProvider) WithLogger(logger *zap.Logger) *OpenAIProvider {
	p.logger = logger
	return p
}

// DraftPrompt asks the model for a single-paragraph image prompt.
func (p *OpenAIProvider) DraftPrompt(ctx context.Context, req PromptRequest, creds generation.Credentials) (string, error) {
	if err := creds.Validate(); err != nil {
		return "", err
	}

	client := openai.NewClient(
		option.WithAPIKey(creds.APIKey),
		option.WithBaseURL(p.baseURL),
		option.WithHTTPClient(p.httpClient),
		option.WithMaxRetries(0),
	)

	system := BuildSystemPrompt(req)
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			buildUserMessage(req),
		},
		MaxTokens:   openai.Int(promptMaxTokens),
		Temperature: openai.Float(promptTemperature),
	}

	if p.logger != nil && p.debugMode {
		p.logger.Debug("llm_api_request",
			zap.String("operation", "draft_prompt"),
			zap.String("model", p.model),
			zap.Bool("with_image", req.Image != nil),
			zap.Bool("oauth", creds.OAuth),
			zap.String("api_key", logpkg.SanitizeAPIKey(creds.APIKey)),
			zap.String("prompt_preview", logpkg.SanitizePrompt(system, true)),
		)
	}

	start := time.Now()
	resp, err := client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("llm_api_error",
				zap.String("operation", "draft_prompt"),
				zap.String("model", p.model),
				zap.Error(err),
				zap.Int64("latency_ms", latency.Milliseconds()),
			)
		}
		return "", classifyError(err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	if content == "" {
		return "", generation.NewError(generation.CodeEmptyResponse, "The AI returned an empty prompt. Please try again.")
	}

	if p.logger != nil && p.debugMode {
		p.logger.Debug("llm_api_response",
			zap.String("operation", "draft_prompt"),
			zap.String("model", p.model),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", logpkg.SanitizePrompt(content, true)),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}
	return content, nil
}

// BuildSystemPrompt renders the prompt-engineering instructions for req.
func BuildSystemPrompt(req PromptRequest) string {
	var b strings.Builder
	b.WriteString("You are an expert e-commerce product photographer and AI image prompt engineer. ")

	productType := strings.TrimSpace(req.ProductType)
	if productType != "" && productType != "general" {
		b.WriteString("Generate a detailed, high-quality AI image generation prompt for a " + productType + " product. ")
	} else {
		b.WriteString("Generate a detailed, high-quality AI image generation prompt for this product. ")
	}
	if s := strings.TrimSpace(req.BrandStyle); s != "" {
		b.WriteString("The brand style is: " + s + ". ")
	}
	if s := strings.TrimSpace(req.TargetAudience); s != "" {
		b.WriteString("The target audience is: " + s + ". ")
	}
	b.WriteString(promptChecklist)
	return b.String()
}

func buildUserMessage(req PromptRequest) openai.ChatCompletionMessageParamUnion {
	if req.Image == nil {
		return openai.UserMessage(userMessageWithoutImage)
	}
	img := &generation.Image{Data: req.Image.Data, MIMEType: req.Image.MIMEType}
	return openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(userMessageWithImage),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: img.DataURI()}),
	})
}
