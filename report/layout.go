package report

import (
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// A4 portrait geometry, in millimeters.
const (
	pageW    = 210.0
	pageH    = 297.0
	marginL  = 12.0
	marginR  = 12.0
	marginT  = 12.0
	footerH  = 14.0
	contentW = pageW - marginL - marginR
)

// doc tracks a manual vertical cursor over the pdf. Auto page breaks are off:
// every block asks for room first, so a wrapped line or an image never
// straddles two pages.
type doc struct {
	pdf *gofpdf.Fpdf
	tr  func(string) string
	y   float64
}

func newDoc() *doc {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(marginL, marginT, marginR)
	d := &doc{
		pdf: pdf,
		tr:  pdf.UnicodeTranslatorFromDescriptor(""),
	}
	d.addPage()
	return d
}

func (d *doc) addPage() {
	d.pdf.AddPage()
	d.y = marginT
}

// ensure starts a new page when the current one cannot fit h more
// millimeters above the footer band.
func (d *doc) ensure(h float64) {
	if d.y+h > pageH-footerH-4 {
		d.addPage()
	}
}

func (d *doc) setFont(style string, size float64) {
	d.pdf.SetFont("Helvetica", style, size)
}

// wrap word-wraps s to the given width at the current font, never breaking
// inside a word. Overlong single words get a line of their own.
func (d *doc) wrap(s string, width float64) []string {
	var lines []string
	for _, para := range strings.Split(s, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if d.pdf.GetStringWidth(d.tr(line+" "+w)) <= width {
				line += " " + w
			} else {
				lines = append(lines, line)
				line = w
			}
		}
		lines = append(lines, line)
	}
	return lines
}

// writeLines emits pre-wrapped lines at the cursor, paginating between them.
func (d *doc) writeLines(lines []string, lineH float64) {
	for _, line := range lines {
		d.ensure(lineH)
		d.pdf.Text(marginL, d.y+lineH-1.2, d.tr(line))
		d.y += lineH
	}
}

// writeWrapped is the common wrap-then-write path for a styled text block.
func (d *doc) writeWrapped(s string, style string, size float64, r, g, b int, lineH float64) {
	d.setFont(style, size)
	d.pdf.SetTextColor(r, g, b)
	d.writeLines(d.wrap(s, contentW), lineH)
}

func (d *doc) spacer(h float64) {
	d.y += h
}
