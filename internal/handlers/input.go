package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/benvon/product-studio/internal/generation"
	"github.com/benvon/product-studio/internal/imaging"
	"github.com/benvon/product-studio/internal/validation"
)

// formInput is a request body read either as multipart/form-data or as a JSON object.
// JSON images are base64 strings, optionally with a data URI prefix.
type formInput struct {
	values map[string]string
	files  map[string]generation.InputImage
	form   *multipart.Form
}

// readInput parses the request body. Multipart parts above memBytes spill to temp
// files, which Close removes.
func readInput(r *http.Request, memBytes int64) (*formInput, *generation.Error) {
	in := &formInput{
		values: make(map[string]string),
		files:  make(map[string]generation.InputImage),
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(memBytes); err != nil {
			return nil, bodyError(err)
		}
		in.form = r.MultipartForm
		for k, v := range in.form.Value {
			if len(v) > 0 {
				in.values[k] = v[0]
			}
		}
		for k, headers := range in.form.File {
			if len(headers) == 0 {
				continue
			}
			img, err := readFilePart(headers[0])
			if err != nil {
				in.Close()
				return nil, bodyError(err)
			}
			in.files[k] = img
		}
	default:
		raw := make(map[string]json.RawMessage)
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return in, nil
			}
			return nil, bodyError(err)
		}
		for k, v := range raw {
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				in.values[k] = s
				continue
			}
			if t := bytes.TrimSpace(v); !bytes.Equal(t, []byte("null")) {
				in.values[k] = string(t)
			}
		}
	}
	return in, nil
}

func bodyError(err error) *generation.Error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return generation.NewError(generation.CodeInvalidRequest, "Request body too large")
	}
	return generation.NewError(generation.CodeInvalidRequest, "Could not read request body")
}

func readFilePart(fh *multipart.FileHeader) (generation.InputImage, error) {
	f, err := fh.Open()
	if err != nil {
		return generation.InputImage{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return generation.InputImage{}, err
	}
	return generation.InputImage{Data: data, MIMEType: fh.Header.Get("Content-Type")}, nil
}

// Close removes temporary files created for spilled multipart parts.
func (in *formInput) Close() {
	if in != nil && in.form != nil {
		_ = in.form.RemoveAll()
	}
}

func (in *formInput) value(name string) string {
	return strings.TrimSpace(in.values[name])
}

// image returns the named image, verified to decode. A missing image yields missing.
func (in *formInput) image(name string, missing *generation.Error) (generation.InputImage, *generation.Error) {
	img, ok := in.files[name]
	if !ok {
		encoded := in.value(name)
		if encoded == "" {
			return generation.InputImage{}, missing
		}
		var err error
		img, err = decodeDataURI(encoded)
		if err != nil {
			return generation.InputImage{}, generation.NewError(generation.CodeInvalidImage, "Image "+name+" is not valid base64")
		}
	}
	if len(img.Data) == 0 {
		return generation.InputImage{}, missing
	}

	info, err := imaging.Inspect(img.Data, img.MIMEType)
	if err != nil {
		return generation.InputImage{}, generation.NewError(generation.CodeInvalidImage, "Image "+name+" is not a supported image")
	}
	img.MIMEType = info.MIMEType
	return img, nil
}

// prompt returns the named text field after control characters are removed.
func (in *formInput) prompt(name string) (string, *generation.Error) {
	p := validation.SanitizeText(in.values[name])
	if err := validation.Validate.Var(p, "max=4000,prompt_text"); err != nil {
		return "", generation.NewError(generation.CodeInvalidRequest, name+" is too long")
	}
	return p, nil
}

// decodeDataURI accepts "data:<mime>;base64,<payload>" or a bare base64 payload.
func decodeDataURI(s string) (generation.InputImage, error) {
	var mimeType string
	if strings.HasPrefix(s, "data:") {
		header, payload, ok := strings.Cut(s, ",")
		if !ok {
			return generation.InputImage{}, errors.New("malformed data URI")
		}
		mimeType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return generation.InputImage{}, err
		}
	}
	return generation.InputImage{Data: data, MIMEType: mimeType}, nil
}

// parseAngles reads the angles field: a JSON array of labels.
func parseAngles(raw string) ([]string, *generation.Error) {
	if strings.TrimSpace(raw) == "" {
		return nil, generation.NewError(generation.CodeNoAngles, "Please select at least one angle")
	}
	var angles []string
	if err := json.Unmarshal([]byte(raw), &angles); err != nil || len(angles) == 0 {
		return nil, generation.NewError(generation.CodeInvalidAngles, "Please select at least one angle")
	}
	for i := range angles {
		angles[i] = strings.TrimSpace(angles[i])
	}
	if err := validation.Validate.Var(angles, "max=12,dive,angle_label"); err != nil {
		return nil, generation.NewError(generation.CodeInvalidAngles, "Angles must be 1 to 12 short labels")
	}
	return angles, nil
}
