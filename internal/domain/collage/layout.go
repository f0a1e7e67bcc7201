// Package collage composes captured moments into a single grid image.
package collage

import "math"

// Default layout bounds.
const (
	DefaultMaxWidth    = 2000
	DefaultMaxColumns  = 10
	DefaultPadding     = 40
	DefaultGap         = 20
	DefaultHeader      = 90
	DefaultConcurrency = 8
)

// Options bound the canvas.
type Options struct {
	MaxWidth    int
	MaxColumns  int
	Padding     int
	Gap         int
	Header      int
	Concurrency int
}

// DefaultOptions returns the standard layout bounds.
func DefaultOptions() Options {
	return Options{
		MaxWidth:    DefaultMaxWidth,
		MaxColumns:  DefaultMaxColumns,
		Padding:     DefaultPadding,
		Gap:         DefaultGap,
		Header:      DefaultHeader,
		Concurrency: DefaultConcurrency,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.MaxWidth <= 0 {
		o.MaxWidth = d.MaxWidth
	}
	if o.MaxColumns <= 0 {
		o.MaxColumns = d.MaxColumns
	}
	if o.Padding < 0 {
		o.Padding = d.Padding
	}
	if o.Gap < 0 {
		o.Gap = d.Gap
	}
	if o.Header < 0 {
		o.Header = d.Header
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	return o
}

// Layout is the computed grid geometry.
type Layout struct {
	Count     int `json:"count"`
	PhotoSize int `json:"photo_size"`
	Columns   int `json:"columns"`
	Rows      int `json:"rows"`
	Width     int `json:"width"`
	Height    int `json:"height"`
}

// PhotoSize shrinks tiles as the collage grows.
func PhotoSize(n int) int {
	switch {
	case n <= 50:
		return 180
	case n <= 100:
		return 150
	case n <= 200:
		return 120
	default:
		return 100
	}
}

// ComputeLayout returns the grid for n photos. Columns are
// min(ceil(sqrt(n)), MaxColumns, widthBound) where widthBound is how many
// tiles fit in MaxWidth after padding, never less than one.
func ComputeLayout(n int, o Options) Layout {
	o = o.normalized()
	size := PhotoSize(n)

	widthBound := (o.MaxWidth - 2*o.Padding + o.Gap) / (size + o.Gap)
	widthBound = max(1, widthBound)

	cols := 1
	if n > 0 {
		cols = int(math.Ceil(math.Sqrt(float64(n))))
	}
	cols = min(cols, o.MaxColumns, widthBound)

	rows := 0
	if n > 0 {
		rows = (n + cols - 1) / cols
	}

	width := 2*o.Padding + cols*size + (cols-1)*o.Gap
	height := 2*o.Padding + o.Header
	if rows > 0 {
		height += rows*size + (rows-1)*o.Gap
	}
	return Layout{
		Count:     n,
		PhotoSize: size,
		Columns:   cols,
		Rows:      rows,
		Width:     width,
		Height:    height,
	}
}

// Origin returns the top-left corner of tile i.
func (l Layout) Origin(i int, o Options) (x, y int) {
	o = o.normalized()
	col, row := i%l.Columns, i/l.Columns
	x = o.Padding + col*(l.PhotoSize+o.Gap)
	y = o.Padding + o.Header + row*(l.PhotoSize+o.Gap)
	return x, y
}
