package collage

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/internal/domain/theme"
)

// roundedMask is an alpha mask of a rectangle with rounded corners.
type roundedMask struct {
	rect   image.Rectangle
	radius int
}

func (m roundedMask) ColorModel() color.Model { return color.AlphaModel }

func (m roundedMask) Bounds() image.Rectangle { return m.rect }

func (m roundedMask) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}).In(m.rect) {
		return color.Transparent
	}
	r := m.radius
	cx, cy := -1, -1
	switch {
	case x < m.rect.Min.X+r:
		cx = m.rect.Min.X + r
	case x >= m.rect.Max.X-r:
		cx = m.rect.Max.X - r - 1
	}
	switch {
	case y < m.rect.Min.Y+r:
		cy = m.rect.Min.Y + r
	case y >= m.rect.Max.Y-r:
		cy = m.rect.Max.Y - r - 1
	}
	if cx >= 0 && cy >= 0 {
		dx, dy := x-cx, y-cy
		if dx*dx+dy*dy > r*r {
			return color.Transparent
		}
	}
	return color.Opaque
}

// fillRounded paints rect with c through a rounded mask.
func fillRounded(dst draw.Image, rect image.Rectangle, radius int, c color.Color) {
	draw.DrawMask(dst, rect, image.NewUniform(c), image.Point{}, roundedMask{rect: rect, radius: radius}, rect.Min, draw.Over)
}

// drawRounded paints src into rect through a rounded mask.
func drawRounded(dst draw.Image, rect image.Rectangle, radius int, src image.Image) {
	draw.DrawMask(dst, rect, src, src.Bounds().Min, roundedMask{rect: rect, radius: radius}, rect.Min, draw.Over)
}

var face = basicfont.Face7x13

// textWidth returns the rendered width of s in pixels.
func textWidth(s string) int {
	return font.MeasureString(face, s).Ceil()
}

// drawText writes s with its baseline at (x, y).
func drawText(dst draw.Image, x, y int, s string, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// pill draws a rounded label box with text and returns its width.
func pill(dst draw.Image, x, y int, s string, bg, fg color.Color) int {
	const padX, h = 6, 18
	w := textWidth(s) + 2*padX
	fillRounded(dst, image.Rect(x, y, x+w, y+h), h/2, bg)
	drawText(dst, x+padX, y+h-5, s, fg)
	return w
}

var glyphInk = color.NRGBA{R: 40, G: 30, B: 20, A: 255}

// EmotionGlyph draws a size×size face for e on a transparent background:
// a disc in the emotion colour with eyes, a mouth and, for anger, brows.
// It stands in for the emoji, which the bitmap font cannot render.
func EmotionGlyph(e model.Emotion, size int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	c := float64(size) / 2
	r := c - 1
	stroke := math.Max(0.8, r/9)

	disc(img, c, c, r, theme.Color(e))

	eye := math.Max(1, r/8)
	if e == model.EmotionSurprised {
		eye *= 1.5
	}
	disc(img, c-0.35*r, c-0.2*r, eye, glyphInk)
	disc(img, c+0.35*r, c-0.2*r, eye, glyphInk)

	switch e {
	case model.EmotionHappy:
		curve(img, c, c+0.25*r, 0.5*r, 0.25*r, stroke)
	case model.EmotionSad:
		curve(img, c, c+0.5*r, 0.45*r, -0.2*r, stroke)
	case model.EmotionSurprised:
		ring(img, c, c+0.42*r, 0.22*r, stroke)
	case model.EmotionAngry:
		curve(img, c, c+0.42*r, 0.4*r, 0, stroke)
		segment(img, c-0.6*r, c-0.6*r, c-0.15*r, c-0.4*r, stroke)
		segment(img, c+0.6*r, c-0.6*r, c+0.15*r, c-0.4*r, stroke)
	default:
		curve(img, c, c+0.42*r, 0.4*r, 0, stroke)
	}
	return img
}

func disc(img *image.NRGBA, cx, cy, r float64, col color.Color) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dx, dy := float64(x)+0.5-cx, float64(y)+0.5-cy
			if dx*dx+dy*dy <= r*r {
				img.Set(x, y, col)
			}
		}
	}
}

// curve strokes y = cy + bend·(1−t²) for x = cx + half·t, t in [−1, 1].
// A positive bend sags in the middle (a smile), a negative one arches.
func curve(img *image.NRGBA, cx, cy, half, bend, stroke float64) {
	for i := 0; i <= 24; i++ {
		t := float64(i)/12 - 1
		disc(img, cx+half*t, cy+bend*(1-t*t), stroke, glyphInk)
	}
}

func ring(img *image.NRGBA, cx, cy, r, stroke float64) {
	for i := range 32 {
		a := float64(i) / 32 * 2 * math.Pi
		disc(img, cx+r*math.Cos(a), cy+r*math.Sin(a), stroke, glyphInk)
	}
}

func segment(img *image.NRGBA, x0, y0, x1, y1, stroke float64) {
	for i := 0; i <= 12; i++ {
		t := float64(i) / 12
		disc(img, x0+(x1-x0)*t, y0+(y1-y0)*t, stroke, glyphInk)
	}
}
