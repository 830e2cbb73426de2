package ai

import (
	"context"

	"github.com/benvon/product-studio/internal/generation"
	"go.uber.org/zap"
)

// PromptRequest describes the product a prompt should be drafted for.
type PromptRequest struct {
	// Image is optional; when set the model is asked to analyze it.
	Image          *generation.InputImage
	ProductType    string
	BrandStyle     string
	TargetAudience string
}

// PromptProvider drafts image-generation prompts with a text model.
type PromptProvider interface {
	DraftPrompt(ctx context.Context, req PromptRequest, creds generation.Credentials) (string, error)
}

// ProviderFactory creates a prompt provider from string settings
type ProviderFactory func(config map[string]string) (PromptProvider, error)

// ProviderRegistry stores available prompt providers
type ProviderRegistry struct {
	providers map[string]ProviderFactory
}

// NewProviderRegistry creates a registry with the built-in providers registered.
func NewProviderRegistry(logger *zap.Logger) *ProviderRegistry {
	r := &ProviderRegistry{
		providers: make(map[string]ProviderFactory),
	}
	r.Register("openai", func(config map[string]string) (PromptProvider, error) {
		return NewOpenAIProvider(config["base_url"], config["model"], logger, config["debug"] == "true"), nil
	})
	return r
}

// Register registers a provider factory
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	r.providers[name] = factory
}

// GetProvider gets a provider by name
func (r *ProviderRegistry) GetProvider(name string, config map[string]string) (PromptProvider, error) {
	factory, ok := r.providers[name]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}

	return factory(config)
}

// ErrProviderNotFound is returned when a provider is not found
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return "AI provider not found: " + e.Name
}
