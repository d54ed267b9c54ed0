// Package hud formats content for the glasses' fixed 640x400, 16-color display.
package hud

import "image/color"

const (
	DisplayWidth  = 640
	DisplayHeight = 400
	ColorDepth    = 16

	// CharsPerLine is the character-cell width of one HUD text line.
	CharsPerLine = 40
	// VisibleLines is the number of text lines shown at once.
	VisibleLines = 8
)

// Palette indices of the device's 16-color palette.
const (
	ColorVoid uint8 = iota
	ColorWhite
	ColorGrey
	ColorRed
	ColorPink
	ColorDarkBrown
	ColorBrown
	ColorOrange
	ColorYellow
	ColorDarkGreen
	ColorGreen
	ColorLightGreen
	ColorNightBlue
	ColorSeaBlue
	ColorSkyBlue
	ColorCloudBlue
)

// Palette is the device's default display palette.
var Palette = color.Palette{
	color.RGBA{R: 0x00, G: 0x00, B: 0x00, A: 0xff},
	color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	color.RGBA{R: 0x9d, G: 0x9d, B: 0x9d, A: 0xff},
	color.RGBA{R: 0xbe, G: 0x26, B: 0x33, A: 0xff},
	color.RGBA{R: 0xe0, G: 0x6f, B: 0x8b, A: 0xff},
	color.RGBA{R: 0x49, G: 0x3c, B: 0x2b, A: 0xff},
	color.RGBA{R: 0xa4, G: 0x64, B: 0x22, A: 0xff},
	color.RGBA{R: 0xeb, G: 0x89, B: 0x31, A: 0xff},
	color.RGBA{R: 0xf7, G: 0xe2, B: 0x6b, A: 0xff},
	color.RGBA{R: 0x2f, G: 0x48, B: 0x4e, A: 0xff},
	color.RGBA{R: 0x44, G: 0x89, B: 0x1a, A: 0xff},
	color.RGBA{R: 0xa3, G: 0xce, B: 0x27, A: 0xff},
	color.RGBA{R: 0x1b, G: 0x26, B: 0x32, A: 0xff},
	color.RGBA{R: 0x00, G: 0x57, B: 0x84, A: 0xff},
	color.RGBA{R: 0x31, G: 0xa2, B: 0xf2, A: 0xff},
	color.RGBA{R: 0xb2, G: 0xdc, B: 0xef, A: 0xff},
}

var colorNames = map[string]uint8{
	"void":       ColorVoid,
	"white":      ColorWhite,
	"grey":       ColorGrey,
	"red":        ColorRed,
	"pink":       ColorPink,
	"darkbrown":  ColorDarkBrown,
	"brown":      ColorBrown,
	"orange":     ColorOrange,
	"yellow":     ColorYellow,
	"darkgreen":  ColorDarkGreen,
	"green":      ColorGreen,
	"lightgreen": ColorLightGreen,
	"nightblue":  ColorNightBlue,
	"seablue":    ColorSeaBlue,
	"skyblue":    ColorSkyBlue,
	"cloudblue":  ColorCloudBlue,
}

// ColorIndex resolves a palette color name; unknown names map to white.
func ColorIndex(name string) uint8 {
	if idx, ok := colorNames[name]; ok {
		return idx
	}
	return ColorWhite
}
