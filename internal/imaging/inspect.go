// Package imaging validates uploaded images before they are forwarded upstream.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrNotImage is returned for payloads that do not decode as a supported image.
var ErrNotImage = errors.New("payload is not a supported image")

// Info describes an inspected image.
type Info struct {
	MIMEType string
	Format   string
	Width    int
	Height   int
}

// Inspect sniffs and decodes the image header. declared is used when it names a
// specific image type; generic or missing types are replaced by the sniffed one.
func Inspect(data []byte, declared string) (Info, error) {
	if len(data) == 0 {
		return Info{}, fmt.Errorf("%w: empty payload", ErrNotImage)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, fmt.Errorf("%w: zero dimensions", ErrNotImage)
	}

	mime := normalizeDeclared(declared)
	if mime == "" {
		mime = mimetype.Detect(data).String()
		if i := strings.IndexByte(mime, ';'); i >= 0 {
			mime = mime[:i]
		}
	}
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/" + format
	}

	return Info{MIMEType: mime, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

func normalizeDeclared(declared string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	switch declared {
	case "", "application/octet-stream", "image/*", "binary/octet-stream":
		return ""
	}
	if !strings.HasPrefix(declared, "image/") {
		return ""
	}
	return declared
}
