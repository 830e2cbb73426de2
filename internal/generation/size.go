package generation

import (
	"fmt"
	"math"
	"strings"
)

// OutputSize is the requested output geometry. Width and Height are what the caller is
// told; AspectRatio and Tier are what the upstream is asked for.
type OutputSize struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	AspectRatio string `json:"aspectRatio"`
	Tier        string `json:"quality"`
}

// String renders the size as WIDTHxHEIGHT.
func (s OutputSize) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

const (
	DefaultResolution  = "1024x1024"
	DefaultAspectRatio = "1:1"
	DefaultTier        = "1K"
)

var resolutions = map[string]OutputSize{
	"1024x1024": {Width: 1024, Height: 1024, AspectRatio: "1:1", Tier: "1K"},
	"1024x1536": {Width: 1024, Height: 1536, AspectRatio: "2:3", Tier: "1K"},
	"1536x1024": {Width: 1536, Height: 1024, AspectRatio: "3:2", Tier: "1K"},
}

var tierBase = map[string]int{
	"1K": 1024,
	"2K": 2048,
	"4K": 4096,
}

// aspect ratios as width:height
var aspectRatios = map[string][2]int{
	"1:1":  {1, 1},
	"4:3":  {4, 3},
	"3:4":  {3, 4},
	"16:9": {16, 9},
	"9:16": {9, 16},
}

// SizeForResolution maps a named resolution. Unknown names fall back to 1024x1024.
func SizeForResolution(name string) OutputSize {
	if s, ok := resolutions[strings.TrimSpace(name)]; ok {
		return s
	}
	return resolutions[DefaultResolution]
}

// SizeForAspect maps an aspect ratio and quality tier. Unknown values fall back to 1:1 and 1K.
// The longer edge equals the tier base.
func SizeForAspect(aspect, tier string) OutputSize {
	aspect = strings.TrimSpace(aspect)
	tier = strings.ToUpper(strings.TrimSpace(tier))

	ratio, ok := aspectRatios[aspect]
	if !ok {
		aspect = DefaultAspectRatio
		ratio = aspectRatios[aspect]
	}
	base, ok := tierBase[tier]
	if !ok {
		tier = DefaultTier
		base = tierBase[tier]
	}

	w, h := base, base
	switch {
	case ratio[0] > ratio[1]:
		h = int(math.Round(float64(base) * float64(ratio[1]) / float64(ratio[0])))
	case ratio[1] > ratio[0]:
		w = int(math.Round(float64(base) * float64(ratio[0]) / float64(ratio[1])))
	}
	return OutputSize{Width: w, Height: h, AspectRatio: aspect, Tier: tier}
}

// IsKnownResolution reports whether name is in the resolution table.
func IsKnownResolution(name string) bool {
	_, ok := resolutions[name]
	return ok
}

// IsKnownAspectRatio reports whether ratio is in the aspect table.
func IsKnownAspectRatio(ratio string) bool {
	_, ok := aspectRatios[ratio]
	return ok
}

// IsKnownTier reports whether tier is 1K, 2K or 4K.
func IsKnownTier(tier string) bool {
	_, ok := tierBase[strings.ToUpper(tier)]
	return ok
}
