package handlers

import (
	"net/http"

	"github.com/benvon/product-studio/internal/generation"
	logpkg "github.com/benvon/product-studio/internal/logger"
	"github.com/benvon/product-studio/internal/ratelimit"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// DefaultUploadMemoryBytes is the multipart in-memory threshold when none is configured.
const DefaultUploadMemoryBytes int64 = 4 << 20

// GenerateHandler serves the image generation actions.
type GenerateHandler struct {
	orchestrator *generation.Orchestrator
	limiter      Admitter
	serverKey    string
	uploadMemory int64
	logger       *zap.Logger
}

// GenerateHandlerOption configures a GenerateHandler.
type GenerateHandlerOption func(*GenerateHandler)

// WithServerAPIKey sets the server-side Gemini key, which takes precedence over client keys.
func WithServerAPIKey(key string) GenerateHandlerOption {
	return func(h *GenerateHandler) {
		h.serverKey = key
	}
}

// WithUploadMemory sets the multipart in-memory threshold.
func WithUploadMemory(n int64) GenerateHandlerOption {
	return func(h *GenerateHandler) {
		if n > 0 {
			h.uploadMemory = n
		}
	}
}

// NewGenerateHandler creates a generation handler.
func NewGenerateHandler(orchestrator *generation.Orchestrator, limiter Admitter, logger *zap.Logger, opts ...GenerateHandlerOption) *GenerateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &GenerateHandler{
		orchestrator: orchestrator,
		limiter:      limiter,
		uploadMemory: DefaultUploadMemoryBytes,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers generation routes under r (expected prefix /generate).
func (h *GenerateHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/hero", allowMethod(http.MethodPost, h.Hero))
	r.HandleFunc("/product-bed", allowMethod(http.MethodPost, h.ProductBed))
	r.HandleFunc("/multi-angle", allowMethod(http.MethodPost, h.MultiAngle))
	r.HandleFunc("/camera-angle", allowMethod(http.MethodPost, h.CameraAngle))
}

// SingleImageResponse is returned by the single-task actions.
type SingleImageResponse struct {
	ImageURL   string                `json:"imageUrl"`
	Size       generation.OutputSize `json:"size"`
	UsedPrompt string                `json:"usedPrompt,omitempty"`
	RateLimit  RateLimitSnapshot     `json:"rateLimit"`
}

// BatchResponse is returned by multi-angle generation.
type BatchResponse struct {
	Images    []generation.Result   `json:"images"`
	Size      generation.OutputSize `json:"size"`
	RateLimit RateLimitSnapshot     `json:"rateLimit"`
}

// Hero generates a studio hero shot from one product image.
func (h *GenerateHandler) Hero(w http.ResponseWriter, r *http.Request) {
	in, gerr := readInput(r, h.uploadMemory)
	if gerr != nil {
		respondCodedError(w, gerr)
		return
	}
	defer in.Close()

	img, gerr := in.image("image", generation.NewError(generation.CodeNoImage, "Please upload an image file"))
	if gerr != nil {
		respondCodedError(w, gerr)
		return
	}
	prompt, gerr := in.prompt("prompt")
	if gerr != nil {
		respondCodedError(w, gerr)
		return
	}
	if prompt == "" {
		respondCodedError(w, generation.NewError(generation.CodeNoPrompt, "Please provide a prompt for the image"))
		return
	}

	task := generation.Task{
		Label:  "hero",
		Images: []generation.InputImage{img},
		Prompt: generation.HeroPrompt(prompt),
		Size:   generation.SizeForResolution(in.value("resolution")),
	}
	h.runSingle(w, r, in, task, false)
}

// ProductBed composites a product onto a bed scene. The bed image is sent first.
func (h *GenerateHandler) ProductBed(w http.ResponseWriter, r *http.Request) {
	in, gerr := readInput(r, h.uploadMemory)
	if gerr != nil {
		respondCodedError(w, gerr)
		return
	}
	defer in.Close()

	missing := generation.NewError(generation.CodeMissingImages, "Please upload both bed and product images")
	bed, gerr := in.image("bedImage", missing)
	if gerr != nil {
		respondCodedError(w, gerr)
		return
	}
	product, gerr := in.image("productImage", missing)
	if gerr != nil {
		respondCodedError(w, gerr)
		return
	}
	prompt, gerr := in.prompt("prompt")
	if gerr != nil {
		respondCodedError(w, gerr)
		return
	}

	task := generation.Task{
		Label:  "product-bed",
		Images: []generation.InputImage{bed, product},
		Prompt: generation.ProductBedPrompt(in.value("productType"), prompt),
		Size:   generation.SizeForResolution(in.value("resolution")),
	}
	h.runSingle(w, r, in, task, false)
}

// CameraAngle renders one image from a described camera angle.
func (h *GenerateHandler) CameraAngle(w http.ResponseWriter, r *http.Request) {
	in, gerr := readInput(r, h.uploadMemory)
	if gerr != nil {
		respondCodedError(w, gerr)
		return
	}
	defer in.Close()

	img, gerr := in.image("image", generation.NewError(generation.CodeNoImage, "Please upload an image"))
	if gerr != nil {
		respondCodedError(w, gerr)
		return
	}
	anglePrompt, gerr := in.prompt("anglePrompt")
	if gerr != nil {
		respondCodedError(w, gerr)
		return
	}
	customPrompt, gerr := in.prompt("customPrompt")
	if gerr != nil {
		respondCodedError(w, gerr)
		return
	}
	prompt := generation.CameraAnglePrompt(anglePrompt, customPrompt)
	if prompt == "" {
		respondCodedError(w, generation.NewError(generation.CodeNoPrompt, "Please choose an angle or describe one"))
		return
	}

	label := in.value("angle")
	if label == "" {
		label = "custom"
	}
	task := generation.Task{
		Label:  label,
		Images: []generation.InputImage{img},
		Prompt: prompt,
		Size:   generation.SizeForAspect(in.value("aspectRatio"), in.value("quality")),
	}
	h.runSingle(w, r, in, task, true)
}

// MultiAngle renders one image per requested angle. Individual failures are reported
// per element and the response status stays 200.
func (h *GenerateHandler) MultiAngle(w http.ResponseWriter, r *http.Request) {
	in, gerr := readInput(r, h.uploadMemory)
	if gerr != nil {
		respondCodedError(w, gerr)
		return
	}
	defer in.Close()

	img, gerr := in.image("image", generation.NewError(generation.CodeNoImage, "Please upload an image"))
	if gerr != nil {
		respondCodedError(w, gerr)
		return
	}
	angles, gerr := parseAngles(in.values["angles"])
	if gerr != nil {
		respondCodedError(w, gerr)
		return
	}
	prompt, gerr := in.prompt("prompt")
	if gerr != nil {
		respondCodedError(w, gerr)
		return
	}

	creds, ok := h.credentials(w, in)
	if !ok {
		return
	}
	decision, ok := admit(w, r, h.limiter, h.logger)
	if !ok {
		return
	}

	size := generation.SizeForResolution(in.value("resolution"))
	tasks := make([]generation.Task, len(angles))
	for i, angle := range angles {
		tasks[i] = generation.Task{
			Label:  angle,
			Images: []generation.InputImage{img},
			Prompt: generation.MultiAnglePrompt(prompt, angle),
			Size:   size,
		}
	}

	results, err := h.orchestrator.Run(r.Context(), tasks, creds)
	if err != nil {
		respondCodedError(w, generation.Classify(err))
		return
	}
	respondJSON(w, http.StatusOK, BatchResponse{
		Images:    results,
		Size:      size,
		RateLimit: snapshot(decision),
	})
}

// credentials resolves and validates the Gemini credential, writing a 401 on failure.
func (h *GenerateHandler) credentials(w http.ResponseWriter, in *formInput) (generation.Credentials, bool) {
	creds := generation.ResolveCredentials(generation.ProviderGemini, h.serverKey, in.value("apiKey"))
	if err := creds.Validate(); err != nil {
		respondCodedError(w, generation.Classify(err))
		return creds, false
	}
	return creds, true
}

func (h *GenerateHandler) runSingle(w http.ResponseWriter, r *http.Request, in *formInput, task generation.Task, echoPrompt bool) {
	creds, ok := h.credentials(w, in)
	if !ok {
		return
	}
	decision, ok := admit(w, r, h.limiter, h.logger)
	if !ok {
		return
	}

	result, err := h.orchestrator.RunOne(r.Context(), task, creds)
	if err != nil {
		respondCodedError(w, generation.Classify(err))
		return
	}
	if e := result.Err(); e != nil {
		logpkg.FromContext(r.Context(), h.logger).Info("generation_request_failed",
			zap.String("label", task.Label),
			zap.String("code", string(e.Code)),
		)
		respondCodedError(w, e)
		return
	}

	resp := SingleImageResponse{
		ImageURL:  result.ImageURL,
		Size:      task.Size,
		RateLimit: snapshot(decision),
	}
	if echoPrompt {
		resp.UsedPrompt = task.Prompt
	}
	respondJSON(w, http.StatusOK, resp)
}

var _ Admitter = (*ratelimit.Limiter)(nil)
