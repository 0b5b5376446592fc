package ui

import (
	"image"
	"image/draw"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// LoadFont parses a TrueType/OpenType file at path into a font.Face,
// adapted from ctxmenu.go's parseFontString (the ctxmenu fontconfig
// lookup helper FontMatch is dropped: label text in this overlay is
// always the fixed set of instance-state names, so a configured file
// path is sufficient and fontconfig matching is out of scope).
func LoadFont(path string, opts *opentype.FaceOptions) (font.Face, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fnt, err := opentype.Parse(content)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(fnt, opts)
}

// drawText rasterizes text onto dest starting at (originX, originY+ascent),
// adapted directly from ctxmenu.go's drawText/messureText pair.
func drawText(dest draw.Image, face font.Face, text string, originX, originY int) int {
	var dot fixed.Point26_6
	dot.X = fixed.I(originX)
	dot.Y = fixed.I(originY) + face.Metrics().Ascent

	prev := rune(-1)
	for _, chr := range text {
		if prev != -1 {
			dot.X += face.Kern(prev, chr)
		}
		prev = chr
		dr, mask, maskp, advance, ok := face.Glyph(dot, chr)
		if ok {
			draw.DrawMask(dest, dr, image.Opaque, image.Point{}, mask, maskp, draw.Over)
		}
		dot.X += advance
	}
	return dot.X.Ceil()
}

func measureText(face font.Face, text string) int {
	prev := rune(-1)
	width := fixed.Int26_6(0)
	for _, chr := range text {
		if prev != -1 {
			width += face.Kern(prev, chr)
		}
		prev = chr
		advance, _ := face.GlyphAdvance(chr)
		width += advance
	}
	return width.Ceil()
}
