package invoice

import (
	"fmt"
	"strings"
)

// PaperSize names a supported page format
type PaperSize string

const (
	PaperSizeA4     PaperSize = "A4"
	PaperSizeLetter PaperSize = "LETTER"
	PaperSizeLegal  PaperSize = "LEGAL"
)

// ParsePaperSize parses a paper size name case-insensitively
func ParsePaperSize(s string) (PaperSize, error) {
	p := PaperSize(strings.ToUpper(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("unsupported paper size %q", s)
	}
	return p, nil
}

// IsValid reports whether the paper size is supported
func (p PaperSize) IsValid() bool {
	switch p {
	case PaperSizeA4, PaperSizeLetter, PaperSizeLegal:
		return true
	}
	return false
}

// Dimensions returns the portrait width and height in millimeters
func (p PaperSize) Dimensions() (width, height float64) {
	switch p {
	case PaperSizeLetter:
		return 215.9, 279.4
	case PaperSizeLegal:
		return 215.9, 355.6
	default:
		return 210, 297
	}
}

// Orientation is portrait or landscape
type Orientation string

const (
	OrientationPortrait  Orientation = "PORTRAIT"
	OrientationLandscape Orientation = "LANDSCAPE"
)

// Margins are page margins in millimeters
type Margins struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// DefaultMargins returns the margins used when none are configured
func DefaultMargins() Margins {
	return Margins{Top: 15, Right: 15, Bottom: 15, Left: 15}
}

// PageGeometry is the printable frame of one page, in millimeters
type PageGeometry struct {
	Width   float64
	Height  float64
	Margins Margins
}

// NewPageGeometry builds the geometry for a paper size and orientation
func NewPageGeometry(size PaperSize, orientation Orientation, margins Margins) PageGeometry {
	w, h := size.Dimensions()
	if orientation == OrientationLandscape {
		w, h = h, w
	}
	return PageGeometry{Width: w, Height: h, Margins: margins}
}

// UsableWidth is the page width minus the left and right margins
func (g PageGeometry) UsableWidth() float64 {
	return g.Width - g.Margins.Left - g.Margins.Right
}

// Top is the first writable Y coordinate on a page
func (g PageGeometry) Top() float64 {
	return g.Margins.Top
}

// Bottom is the last writable Y coordinate on a page
func (g PageGeometry) Bottom() float64 {
	return g.Height - g.Margins.Bottom
}

// Validate checks that the margins leave a printable area
func (g PageGeometry) Validate() error {
	m := g.Margins
	if m.Top < 0 || m.Right < 0 || m.Bottom < 0 || m.Left < 0 {
		return NewInvalidRequestError("margins cannot be negative")
	}
	if g.UsableWidth() <= 0 {
		return NewInvalidRequestError("margins leave no usable page width")
	}
	if g.Bottom() <= g.Top() {
		return NewInvalidRequestError("margins leave no usable page height")
	}
	return nil
}

// Columns is the horizontal geometry of the invoice table
type Columns struct {
	Widths []float64
	X      []float64
}

// ComputeColumns divides the usable width evenly between n columns.
// All widths are equal and X holds the left edge of each column.
func ComputeColumns(g PageGeometry, n int) Columns {
	cols := Columns{
		Widths: make([]float64, n),
		X:      make([]float64, n),
	}
	if n <= 0 {
		return cols
	}
	width := g.UsableWidth() / float64(n)
	for i := range n {
		cols.Widths[i] = width
		cols.X[i] = g.Margins.Left + float64(i)*width
	}
	return cols
}

// TotalWidth is the sum of all column widths
func (c Columns) TotalWidth() float64 {
	var total float64
	for _, w := range c.Widths {
		total += w
	}
	return total
}
