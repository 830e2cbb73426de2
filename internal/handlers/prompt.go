package handlers

import (
	"errors"
	"net/http"

	"github.com/benvon/product-studio/internal/generation"
	logpkg "github.com/benvon/product-studio/internal/logger"
	"github.com/benvon/product-studio/internal/services/ai"
	"github.com/benvon/product-studio/internal/services/oauth"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// PromptHandler serves the prompt assistant.
type PromptHandler struct {
	provider     ai.PromptProvider
	limiter      Admitter
	serverKey    string
	oauthClient  *oauth.Client
	cookies      oauth.Cookies
	uploadMemory int64
	logger       *zap.Logger
}

// NewPromptHandler creates a prompt handler. oauthClient may be nil.
func NewPromptHandler(provider ai.PromptProvider, limiter Admitter, serverKey string, oauthClient *oauth.Client, cookies oauth.Cookies, logger *zap.Logger) *PromptHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromptHandler{
		provider:     provider,
		limiter:      limiter,
		serverKey:    serverKey,
		oauthClient:  oauthClient,
		cookies:      cookies,
		uploadMemory: DefaultUploadMemoryBytes,
		logger:       logger,
	}
}

// RegisterRoutes registers the prompt route.
func (h *PromptHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/prompt", allowMethod(http.MethodPost, h.DraftPrompt))
}

// PromptResponse carries the drafted prompt.
type PromptResponse struct {
	Prompt    string            `json:"prompt"`
	RateLimit RateLimitSnapshot `json:"rateLimit"`
}

// DraftPrompt asks the text model for an image prompt.
func (h *PromptHandler) DraftPrompt(w http.ResponseWriter, r *http.Request) {
	in, gerr := readInput(r, h.uploadMemory)
	if gerr != nil {
		respondCodedError(w, gerr)
		return
	}
	defer in.Close()

	req := ai.PromptRequest{
		ProductType:    in.value("productType"),
		BrandStyle:     in.value("brandStyle"),
		TargetAudience: in.value("targetAudience"),
	}
	if _, ok := in.files["image"]; ok || in.value("image") != "" {
		img, gerr := in.image("image", generation.NewError(generation.CodeInvalidImage, "Image is empty"))
		if gerr != nil {
			respondCodedError(w, gerr)
			return
		}
		req.Image = &img
	}

	creds := h.credentials(w, r, in)
	if err := creds.Validate(); err != nil {
		respondCodedError(w, generation.Classify(err))
		return
	}
	decision, ok := admit(w, r, h.limiter, h.logger)
	if !ok {
		return
	}

	prompt, err := h.provider.DraftPrompt(r.Context(), req, creds)
	if err != nil {
		e := generation.Classify(err)
		if e.Code == generation.CodeAPIError && e.Message == "" {
			e.Message = "Failed to generate prompt"
		}
		logpkg.FromContext(r.Context(), h.logger).Warn("prompt_draft_failed",
			zap.String("code", string(e.Code)),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		respondCodedError(w, e)
		return
	}

	respondJSON(w, http.StatusOK, PromptResponse{Prompt: prompt, RateLimit: snapshot(decision)})
}

// credentials picks the server key, then the client key, then the OAuth cookie token.
func (h *PromptHandler) credentials(w http.ResponseWriter, r *http.Request, in *formInput) generation.Credentials {
	creds := generation.ResolveCredentials(generation.ProviderOpenAI, h.serverKey, in.value("apiKey"))
	if creds.APIKey != "" || h.oauthClient == nil {
		return creds
	}
	token, err := oauth.FromRequest(h.oauthClient, h.cookies, w, r).ValidCredential(r.Context())
	if err != nil {
		if !errors.Is(err, oauth.ErrNoCredential) {
			logpkg.FromContext(r.Context(), h.logger).Warn("oauth_token_refresh_failed",
				zap.String("error", logpkg.SanitizeError(err)),
			)
		}
		return creds
	}
	return generation.Credentials{Provider: generation.ProviderOpenAI, APIKey: token, OAuth: true}
}
