package generation

import (
	"encoding/base64"
	"strings"
)

// DefaultImageMIMEType is used when an upstream image part carries no media type.
const DefaultImageMIMEType = "image/png"

// InputImage is one uploaded image forwarded to the upstream as an inline part.
type InputImage struct {
	Data     []byte
	MIMEType string
}

// Task is one unit of upstream work. Images are sent in order, followed by the prompt.
type Task struct {
	Label  string
	Images []InputImage
	Prompt string
	Size   OutputSize
}

// Image is a generated image returned by the upstream.
type Image struct {
	Data     []byte
	MIMEType string
	// Text is any commentary the model returned alongside the image.
	Text string
}

// DataURI encodes the image as a self-describing data URI.
func (img *Image) DataURI() string {
	mime := strings.TrimSpace(img.MIMEType)
	if mime == "" {
		mime = DefaultImageMIMEType
	}
	var b strings.Builder
	b.Grow(len(mime) + 13 + base64.StdEncoding.EncodedLen(len(img.Data)))
	b.WriteString("data:")
	b.WriteString(mime)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(img.Data))
	return b.String()
}

// Status is the lifecycle state of a task within a batch.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Result is the outcome of one Task.
type Result struct {
	Label    string `json:"label"`
	Status   Status `json:"status"`
	Success  bool   `json:"success"`
	ImageURL string `json:"imageUrl,omitempty"`
	Error    Code   `json:"error,omitempty"`
	Message  string `json:"message,omitempty"`
	Debug    string `json:"debug,omitempty"`
}

// Err returns the task failure as an *Error, or nil when the task succeeded.
func (r Result) Err() *Error {
	if r.Status != StatusFailed {
		return nil
	}
	return &Error{Code: r.Error, Message: r.Message, Debug: r.Debug}
}
