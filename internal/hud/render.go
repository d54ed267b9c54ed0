package hud

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	renderDPI      = 72
	renderFontSize = 28
	renderMarginX  = 12
)

// Renderer draws text windows onto a display-sized image in the device palette.
type Renderer struct {
	font       *truetype.Font
	lineHeight int
	ascent     int
}

func NewRenderer() (*Renderer, error) {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse hud font: %w", err)
	}

	face := truetype.NewFace(f, &truetype.Options{Size: renderFontSize, DPI: renderDPI})
	metrics := face.Metrics()

	return &Renderer{
		font:       f,
		lineHeight: DisplayHeight / VisibleLines,
		ascent:     metrics.Ascent.Ceil(),
	}, nil
}

// Render draws at most VisibleLines lines in white on the void background.
func (r *Renderer) Render(lines []string) *image.Paletted {
	return r.RenderColor(lines, ColorWhite)
}

// RenderColor draws at most VisibleLines lines using the given palette index.
func (r *Renderer) RenderColor(lines []string, fg uint8) *image.Paletted {
	bounds := image.Rect(0, 0, DisplayWidth, DisplayHeight)
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, &image.Uniform{C: Palette[ColorVoid]}, image.Point{}, draw.Src)

	if int(fg) >= len(Palette) {
		fg = ColorWhite
	}

	c := freetype.NewContext()
	c.SetDPI(renderDPI)
	c.SetFont(r.font)
	c.SetFontSize(renderFontSize)
	c.SetClip(bounds)
	c.SetDst(canvas)
	c.SetSrc(&image.Uniform{C: Palette[fg]})
	c.SetHinting(font.HintingFull)

	if len(lines) > VisibleLines {
		lines = lines[:VisibleLines]
	}
	baselineOffset := (r.lineHeight-r.ascent)/2 + r.ascent
	for i, line := range lines {
		pt := freetype.Pt(renderMarginX, i*r.lineHeight+baselineOffset)
		if _, err := c.DrawString(line, pt); err != nil {
			break
		}
	}

	out := image.NewPaletted(bounds, Palette)
	draw.Draw(out, bounds, canvas, image.Point{}, draw.Src)

	return out
}
