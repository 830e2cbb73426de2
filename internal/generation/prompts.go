package generation

import (
	"fmt"
	"strings"
)

const heroSuffix = ". High quality, professional product photography, 4k, detailed."

// HeroPrompt decorates a user prompt for a studio hero shot.
func HeroPrompt(prompt string) string {
	return strings.TrimSpace(prompt) + heroSuffix
}

// DefaultProductType is used when the caller does not name the product.
const DefaultProductType = "product"

// ProductBedPrompt returns prompt, or the default composite instruction when prompt is blank.
func ProductBedPrompt(productType, prompt string) string {
	if p := strings.TrimSpace(prompt); p != "" {
		return p
	}
	productType = strings.TrimSpace(productType)
	if productType == "" {
		productType = DefaultProductType
	}
	return fmt.Sprintf("Place a %s naturally on this bed, properly aligned, realistic composition, professional product photography, 4k quality", productType)
}

var anglePresets = map[string]string{
	"front":      "Front view, straight on, professional photography",
	"side-left":  "Left side view, 45 degree angle from left",
	"side-right": "Right side view, 45 degree angle from right",
	"back":       "Back view, looking at the rear",
	"top-down":   "Top down view, bird's eye perspective",
	"corner":     "Corner view, 3/4 perspective",
}

// AnglePrompt returns the preset instruction for a named angle.
func AnglePrompt(angle string) string {
	if p, ok := anglePresets[angle]; ok {
		return p
	}
	return fmt.Sprintf("Create a %s perspective", angle)
}

// MultiAnglePrompt combines an optional user prompt with the angle instruction.
func MultiAnglePrompt(prompt, angle string) string {
	anglePrompt := AnglePrompt(angle)
	if p := strings.TrimSpace(prompt); p != "" {
		return p + ". " + anglePrompt
	}
	return anglePrompt + ". Maintain consistent lighting and style."
}

// CameraAnglePrompt joins the angle and custom prompts.
func CameraAnglePrompt(anglePrompt, customPrompt string) string {
	return strings.TrimSpace(strings.TrimSpace(anglePrompt) + " " + strings.TrimSpace(customPrompt))
}
