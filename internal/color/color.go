// Package color maps a party color and a win ratio to a display color.
package color

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/verte-zerg/electmap/internal/model"
)

const (
	minSaturation = 0.8
	minValue      = 0.9

	lowRatio      = 0.25
	highRatio     = 0.70
	minStrength   = 0.15
	maxStrength   = 1.0
	whiteChannel  = 255
	channelLevels = 255.0
)

// LegendRatios are the win ratios shown as legend steps.
var LegendRatios = []float64{0.3, 0.4, 0.5, 0.6, 0.7, 0.8}

// RGB is an 8-bit color triple.
type RGB struct {
	R, G, B int
}

// Hex formats the triple as #rrggbb.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Step is one legend entry.
type Step struct {
	Ratio float64
	Color string
}

// Strength returns the blend weight for a win ratio: 0.15 up to a ratio of
// 0.25, 1.0 from 0.70, linear in between.
func Strength(ratio float64) float64 {
	switch {
	case ratio >= highRatio:
		return maxStrength
	case ratio <= lowRatio:
		return minStrength
	default:
		return minStrength + (maxStrength-minStrength)*(ratio-lowRatio)/(highRatio-lowRatio)
	}
}

// Boost returns the vivid version of a party color with saturation of at
// least 0.8 and value of at least 0.9. ok is false for malformed input.
func Boost(hex string) (RGB, bool) {
	c, ok := parseHex(hex)
	if !ok {
		return RGB{}, false
	}
	h, s, v := c.Hsv()
	boosted := colorful.Hsv(h, math.Max(s, minSaturation), math.Max(v, minValue))
	return RGB{
		R: int(boosted.R * channelLevels),
		G: int(boosted.G * channelLevels),
		B: int(boosted.B * channelLevels),
	}, true
}

// Vivid returns the boosted party color as hex, or the gray sentinel.
func Vivid(hex string) string {
	rgb, ok := Boost(hex)
	if !ok {
		return model.MalformedColor
	}
	return rgb.Hex()
}

// Intensity blends the boosted party color with white according to the win
// ratio. Malformed colors yield the neutral gray sentinel.
func Intensity(hex string, ratio float64) string {
	base, ok := Boost(hex)
	if !ok {
		return model.MalformedColor
	}
	strength := Strength(ratio)
	blend := func(channel int) int {
		return int(float64(channel)*strength + whiteChannel*(1-strength))
	}
	return RGB{R: blend(base.R), G: blend(base.G), B: blend(base.B)}.Hex()
}

// Ramp returns the legend steps for a party color.
func Ramp(hex string) []Step {
	steps := make([]Step, 0, len(LegendRatios))
	for _, ratio := range LegendRatios {
		steps = append(steps, Step{Ratio: ratio, Color: Intensity(hex, ratio)})
	}
	return steps
}

// Valid reports whether hex is a 6-digit color with optional leading '#'.
func Valid(hex string) bool {
	_, ok := parseHex(hex)
	return ok
}

func parseHex(hex string) (colorful.Color, bool) {
	digits := strings.TrimLeft(strings.TrimSpace(hex), "#")
	if len(digits) != 6 {
		return colorful.Color{}, false
	}
	if _, err := strconv.ParseUint(digits, 16, 32); err != nil {
		return colorful.Color{}, false
	}
	c, err := colorful.Hex("#" + strings.ToLower(digits))
	if err != nil {
		return colorful.Color{}, false
	}
	return c, true
}
