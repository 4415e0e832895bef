package printing

import (
	"github.com/go-pdf/fpdf"

	"github.com/storefront/backend/internal/domain/invoice"
)

// mmPerPoint converts a font size in points to millimeters
const mmPerPoint = 25.4 / 72

// fpdfMeasurer reports glyph metrics of the document's core font. Text is
// translated to cp1252 first, which is the encoding the core fonts are drawn
// in, so measured and painted widths agree.
type fpdfMeasurer struct {
	pdf        *fpdf.Fpdf
	family     string
	size       float64
	lineHeight float64
	translate  func(string) string
}

func newFpdfMeasurer(pdf *fpdf.Fpdf, family string, size, lineSpacing float64) *fpdfMeasurer {
	return &fpdfMeasurer{
		pdf:        pdf,
		family:     family,
		size:       size,
		lineHeight: size * mmPerPoint * lineSpacing,
		translate:  pdf.UnicodeTranslatorFromDescriptor(""),
	}
}

// TextWidth implements invoice.TextMeasurer
func (m *fpdfMeasurer) TextWidth(style invoice.FontStyle, text string) float64 {
	m.use(style)
	return m.pdf.GetStringWidth(m.translate(text))
}

// LineHeight implements invoice.TextMeasurer
func (m *fpdfMeasurer) LineHeight() float64 {
	return m.lineHeight
}

// baseline returns the distance from the top of a line box to its baseline
func (m *fpdfMeasurer) baseline() float64 {
	fontMM := m.size * mmPerPoint
	return (m.lineHeight-fontMM)/2 + 0.8*fontMM
}

func (m *fpdfMeasurer) use(style invoice.FontStyle) {
	m.pdf.SetFont(m.family, fontStyle(style), m.size)
}

func fontStyle(style invoice.FontStyle) string {
	if style == invoice.StyleBold {
		return "B"
	}
	return ""
}

var _ invoice.TextMeasurer = (*fpdfMeasurer)(nil)
