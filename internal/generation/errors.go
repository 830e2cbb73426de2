package generation

import (
	"context"
	"errors"
	"fmt"
)

// Code is a stable machine-readable error code returned to callers.
type Code string

const (
	CodeRateLimitExceeded   Code = "RATE_LIMIT_EXCEEDED"
	CodeNoImage             Code = "NO_IMAGE"
	CodeMissingImages       Code = "MISSING_IMAGES"
	CodeNoPrompt            Code = "NO_PROMPT"
	CodeNoAngles            Code = "NO_ANGLES"
	CodeInvalidAngles       Code = "INVALID_ANGLES"
	CodeNoAPIKey            Code = "NO_API_KEY"
	CodeInvalidAPIKey       Code = "INVALID_API_KEY"
	CodeInvalidImage        Code = "INVALID_IMAGE"
	CodeInvalidRequest      Code = "INVALID_REQUEST"
	CodeAPIError            Code = "API_ERROR"
	CodeNoImageInResponse   Code = "NO_IMAGE_IN_RESPONSE"
	CodeUpstreamTimeout     Code = "UPSTREAM_TIMEOUT"
	CodeCancelled           Code = "CANCELLED"
	CodeEmptyResponse       Code = "EMPTY_RESPONSE"
	CodeUpstreamRateLimited Code = "UPSTREAM_RATE_LIMITED"
	CodeGenerationFailed    Code = "GENERATION_FAILED"
)

// MaxDebugLength bounds diagnostic text copied from upstream responses.
const MaxDebugLength = 500

// Error is a coded failure surfaced to the caller.
type Error struct {
	Code    Code
	Message string
	Debug   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds an *Error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// UpstreamError is a non-success response from an upstream service.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Message)
}

// NoImageError reports a successful upstream response that carried no image part.
type NoImageError struct {
	Text string
}

func (e *NoImageError) Error() string {
	return "upstream response contained no image"
}

const noImageMessage = "The model returned text instead of an image. Model may not support image generation with this prompt."

// Classify converts an error from a Generator into a coded *Error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr
	}

	var noImage *NoImageError
	if errors.As(err, &noImage) {
		return &Error{
			Code:    CodeNoImageInResponse,
			Message: noImageMessage,
			Debug:   truncate(noImage.Text, MaxDebugLength),
		}
	}

	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		msg := upstream.Message
		if msg == "" {
			msg = "Failed to generate image via Gemini API"
		}
		return &Error{Code: CodeAPIError, Message: msg}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: CodeUpstreamTimeout, Message: "The image service did not respond in time"}
	case errors.Is(err, context.Canceled):
		return &Error{Code: CodeCancelled, Message: "The request was cancelled"}
	}

	return &Error{Code: CodeAPIError, Message: err.Error()}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
