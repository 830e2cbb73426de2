package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const (
	// MaxPromptLength bounds user-supplied prompt text
	MaxPromptLength = 4000
	// MaxAngleLength bounds a single angle label
	MaxAngleLength = 64
	// MaxAngles bounds the number of angles in one batch
	MaxAngles = 12
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("angle_label", validateAngleLabel); err != nil {
		panic(fmt.Sprintf("failed to register angle_label validator: %v", err))
	}
	if err := Validate.RegisterValidation("prompt_text", validatePromptText); err != nil {
		panic(fmt.Sprintf("failed to register prompt_text validator: %v", err))
	}
}

// validateAngleLabel accepts short printable labels such as "side-left" or "worm's eye".
func validateAngleLabel(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if strings.TrimSpace(value) == "" || len(value) > MaxAngleLength {
		return false
	}
	for _, r := range value {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// validatePromptText rejects control characters other than newline and tab.
func validatePromptText(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return false
		}
	}
	return true
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// FirstError renders the first validation failure as "field: rule".
func FirstError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return fmt.Sprintf("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag())
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
