package collage

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/internal/domain/theme"
)

// Item is one moment placed on the collage.
type Item struct {
	ImageRef   string
	Emotion    model.Emotion
	Smile      int
	CapturedAt time.Time
}

// Loader fetches the image behind an item reference.
type Loader interface {
	Load(ctx context.Context, ref string) (image.Image, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, ref string) (image.Image, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, ref string) (image.Image, error) {
	return f(ctx, ref)
}

// Stats summarise one render.
type Stats struct {
	Layout   Layout        `json:"layout"`
	Drawn    int           `json:"drawn"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

var (
	background  = theme.MustHex("#101420")
	border      = theme.MustHex("#f2f2f2")
	placeholder = theme.MustHex("#3a4150")
	textLight   = color.White
	barShade    = color.NRGBA{A: 160}
)

const (
	borderWidth = 4
	radius      = 14
	barHeight   = 22
	glyphSize   = 18
)

// Render draws title and items onto one canvas. Images are loaded
// concurrently; an item whose image is missing or fails to load becomes a
// placeholder tile and is counted in Stats.Failed. Only context
// cancellation aborts the render.
func Render(ctx context.Context, title string, items []Item, loader Loader, o Options) (*image.NRGBA, Stats, error) {
	start := time.Now()
	o = o.normalized()
	layout := ComputeLayout(len(items), o)

	tiles := make([]image.Image, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Concurrency)
	for i, it := range items {
		if it.ImageRef == "" || loader == nil {
			continue
		}
		g.Go(func() error {
			img, err := loader.Load(gctx, it.ImageRef)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return nil
			}
			tiles[i] = imaging.Fill(img, layout.PhotoSize, layout.PhotoSize, imaging.Center, imaging.Lanczos)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, fmt.Errorf("render collage: %w", err)
	}

	canvas := imaging.New(layout.Width, layout.Height, background)
	drawHeader(canvas, title, len(items), o)

	stats := Stats{Layout: layout}
	for i, it := range items {
		x, y := layout.Origin(i, o)
		rect := image.Rect(x, y, x+layout.PhotoSize, y+layout.PhotoSize)
		if tiles[i] == nil {
			drawPlaceholder(canvas, rect)
			stats.Failed++
		} else {
			drawPhoto(canvas, rect, tiles[i], it.Emotion)
			stats.Drawn++
		}
		drawBadges(canvas, rect, it)
	}
	stats.Duration = time.Since(start)
	return canvas, stats, nil
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}

func drawHeader(dst draw.Image, title string, n int, o Options) {
	if o.Header == 0 {
		return
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Time Capsule"
	}
	drawText(dst, o.Padding, o.Padding+24, title, textLight)
	sub := fmt.Sprintf("%d moments", n)
	if n == 1 {
		sub = "1 moment"
	}
	drawText(dst, o.Padding, o.Padding+48, sub, border)
}

func drawPhoto(dst draw.Image, rect image.Rectangle, tile image.Image, e model.Emotion) {
	frame := theme.Color(e).BlendLab(border, 0.5).Clamped()
	fillRounded(dst, rect, radius, frame)
	inner := rect.Inset(borderWidth)
	drawRounded(dst, inner, radius-borderWidth, imaging.Resize(tile, inner.Dx(), inner.Dy(), imaging.Linear))
}

func drawPlaceholder(dst draw.Image, rect image.Rectangle) {
	fillRounded(dst, rect, radius, placeholder)
	msg := "no image"
	drawText(dst, rect.Min.X+(rect.Dx()-textWidth(msg))/2, rect.Min.Y+rect.Dy()/2, msg, border)
}

func drawBadges(dst draw.Image, rect image.Rectangle, it Item) {
	const inset = 8
	if it.Emotion != "" {
		glyph := EmotionGlyph(it.Emotion, glyphSize)
		at := image.Pt(rect.Min.X+inset, rect.Min.Y+inset)
		draw.Draw(dst, glyph.Bounds().Add(at), glyph, image.Point{}, draw.Over)
		pill(dst, at.X+glyphSize+3, at.Y, string(it.Emotion), theme.Color(it.Emotion), textLight)
	}
	smile := fmt.Sprintf("%d%%", it.Smile)
	sw := textWidth(smile) + 12
	pill(dst, rect.Max.X-inset-sw, rect.Min.Y+inset, smile, color.NRGBA{R: 20, G: 20, B: 20, A: 200}, textLight)

	if it.CapturedAt.IsZero() {
		return
	}
	bar := image.Rect(rect.Min.X+borderWidth, rect.Max.Y-borderWidth-barHeight, rect.Max.X-borderWidth, rect.Max.Y-borderWidth)
	draw.Draw(dst, bar, image.NewUniform(barShade), image.Point{}, draw.Over)
	ts := it.CapturedAt.Format("Jan 2 15:04:05")
	drawText(dst, bar.Min.X+(bar.Dx()-textWidth(ts))/2, bar.Max.Y-6, ts, textLight)
}
