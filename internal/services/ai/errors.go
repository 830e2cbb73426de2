package ai

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/benvon/product-studio/internal/generation"
	"github.com/openai/openai-go/v3"
)

// APIError represents an error from the AI provider API
type APIError struct {
	Message    string
	Type       string
	Code       string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
}

// ExtractAPIError extracts API error details from an SDK error
func ExtractAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var sdkErr *openai.Error
	if !errors.As(err, &sdkErr) {
		return nil
	}
	return &APIError{
		Message:    sdkErr.Message,
		Type:       sdkErr.Type,
		Code:       sdkErr.Code,
		StatusCode: sdkErr.StatusCode,
	}
}

// IsRateLimitError checks if an error is an upstream rate limit error
func IsRateLimitError(err error) bool {
	apiErr := ExtractAPIError(err)
	return apiErr != nil && apiErr.StatusCode == http.StatusTooManyRequests
}

// classifyError maps SDK failures to coded errors. Transport errors pass through so the
// caller can tell timeouts apart.
func classifyError(err error) error {
	apiErr := ExtractAPIError(err)
	if apiErr == nil {
		return err
	}
	switch apiErr.StatusCode {
	case http.StatusUnauthorized:
		return generation.NewError(generation.CodeInvalidAPIKey, "Your OpenAI API key is invalid or expired")
	case http.StatusTooManyRequests:
		return generation.NewError(generation.CodeUpstreamRateLimited, "OpenAI rate limit exceeded. Please wait and try again.")
	}
	msg := apiErr.Message
	if msg == "" {
		msg = "Failed to generate prompt"
	}
	return &generation.UpstreamError{StatusCode: apiErr.StatusCode, Message: msg}
}
