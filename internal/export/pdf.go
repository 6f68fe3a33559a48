package export

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"

	"rideguardian/internal/utils"
)

// A4 альбомная, поля в пунктах.
const (
	pdfMarginLeft   = 72.0
	pdfMarginTop    = 72.0
	pdfMarginRight  = 72.0
	pdfMarginBottom = 18.0

	pdfFontSize    = 8.0
	pdfTitleSize   = 16.0
	pdfLineHeight  = 10.0
	pdfCellPadding = 2.0
	pdfMinRow      = 14.0
	pdfSpacerRow   = 8.0
	pdfQRSize      = 40.0
	pdfQRImage     = "audit-qr"
)

type pdfRenderer struct {
	pdf   *fpdf.Fpdf
	tr    func(string) string
	pageH float64
	width float64 // ширина области печати
}

func hexRGB(hex string) (int, int, int) {
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 255, 255, 255
	}
	return int(v >> 16 & 0xFF), int(v >> 8 & 0xFF), int(v & 0xFF)
}

// renderPDF пишет документ в w: страница на секцию, тексты те же, что в xlsx.
func renderPDF(doc *Document, w io.Writer) error {
	pdf := fpdf.New("L", "pt", "A4", "")
	pdf.SetMargins(pdfMarginLeft, pdfMarginTop, pdfMarginRight)
	pdf.SetAutoPageBreak(true, pdfMarginBottom)
	pdf.SetTitle(doc.Title, true)
	pdf.SetSubject(doc.Subject, true)
	pdf.SetAuthor(doc.Company, true)
	pdf.SetCreator("RideGuardian", true)
	pdf.SetKeywords("audit:"+doc.AuditID, true)

	pageW, pageH := pdf.GetPageSize()
	r := &pdfRenderer{
		pdf:   pdf,
		tr:    pdf.UnicodeTranslatorFromDescriptor(""),
		pageH: pageH,
		width: pageW - pdfMarginLeft - pdfMarginRight,
	}

	qr, err := utils.GenerateAuditQRCode(utils.AuditReference(doc.AuditID, doc.Kind, doc.Subject), 256)
	if err != nil {
		return err
	}
	pdf.RegisterImageOptionsReader(pdfQRImage, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qr))
	pdf.SetFooterFunc(func() {
		pdf.ImageOptions(pdfQRImage, pageW-pdfMarginRight-pdfQRSize, pageH-pdfMarginBottom-pdfQRSize,
			pdfQRSize, pdfQRSize, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
		pdf.SetFont("Helvetica", "", 7)
		pdf.SetXY(pdfMarginLeft, pageH-pdfMarginBottom-pdfLineHeight)
		pdf.CellFormat(r.width-pdfQRSize, pdfLineHeight,
			r.tr(fmt.Sprintf("Prüf-ID: %s    Seite %d", doc.AuditID, pdf.PageNo())), "", 0, "L", false, 0, "")
	})

	for _, sh := range doc.Sheets {
		pdf.AddPage()
		r.sheet(sh)
		if pdf.Err() {
			return pdf.Error()
		}
	}
	return pdf.Output(w)
}

func (r *pdfRenderer) bottomLimit() float64 {
	return r.pageH - pdfMarginBottom - pdfQRSize - 4
}

func (r *pdfRenderer) sheet(sh *Sheet) {
	var total float64
	for _, w := range sh.Widths {
		total += w
	}
	scale := r.width / total
	rows := sh.Rows()
	y := pdfMarginTop
	for i, cells := range rows {
		rowNo := i + 1
		h := r.rowHeight(cells, sh.Widths, scale)
		if y+h > r.bottomLimit() {
			r.pdf.AddPage()
			y = pdfMarginTop
			if sh.HeaderRow > 0 && rowNo > sh.HeaderRow {
				header := rows[sh.HeaderRow-1]
				hh := r.rowHeight(header, sh.Widths, scale)
				r.row(header, sh.Widths, scale, y, hh)
				y += hh
			}
		}
		r.row(cells, sh.Widths, scale, y, h)
		y += h
	}
}

func span(widths []float64, c Cell, scale float64) (x, w float64) {
	x = pdfMarginLeft
	for i := 0; i < c.Col-1 && i < len(widths); i++ {
		x += widths[i] * scale
	}
	for i := c.Col - 1; i < c.EndCol && i < len(widths); i++ {
		w += widths[i] * scale
	}
	return x, w
}

func fontFor(sp styleSpec) (string, float64) {
	style := ""
	if sp.Bold {
		style += "B"
	}
	if sp.Italic {
		style += "I"
	}
	size := pdfFontSize
	if sp.Size >= pdfTitleSize {
		size = pdfTitleSize
	} else if sp.Size < pdfFontSize {
		size = sp.Size
	}
	return style, size
}

func (r *pdfRenderer) lines(text string, width float64) []string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := words[0]
		for _, word := range words[1:] {
			candidate := line + " " + word
			if r.pdf.GetStringWidth(r.tr(candidate)) > width {
				out = append(out, line)
				line = word
				continue
			}
			line = candidate
		}
		out = append(out, line)
	}
	return out
}

func (r *pdfRenderer) rowHeight(cells []Cell, widths []float64, scale float64) float64 {
	if len(cells) == 0 {
		return pdfSpacerRow
	}
	h := pdfMinRow
	for _, c := range cells {
		sp := styleSpecs[c.Style]
		style, size := fontFor(sp)
		r.pdf.SetFont("Helvetica", style, size)
		_, w := span(widths, c, scale)
		lineH := pdfLineHeight * size / pdfFontSize
		if need := float64(len(r.lines(c.Text, w-2*pdfCellPadding)))*lineH + 2*pdfCellPadding; need > h {
			h = need
		}
	}
	return h
}

func (r *pdfRenderer) row(cells []Cell, widths []float64, scale, y, h float64) {
	for _, c := range cells {
		sp := styleSpecs[c.Style]
		x, w := span(widths, c, scale)
		mode := ""
		if sp.Fill != "" {
			r.pdf.SetFillColor(hexRGB(sp.Fill))
			mode = "F"
		}
		if sp.Border {
			mode += "D"
		}
		if mode != "" {
			r.pdf.SetDrawColor(0, 0, 0)
			r.pdf.SetLineWidth(0.5)
			r.pdf.Rect(x, y, w, h, mode)
		}

		style, size := fontFor(sp)
		r.pdf.SetFont("Helvetica", style, size)
		lineH := pdfLineHeight * size / pdfFontSize
		lines := r.lines(c.Text, w-2*pdfCellPadding)
		top := y + (h-float64(len(lines))*lineH)/2
		align := "L"
		switch sp.Align {
		case "center":
			align = "C"
		case "right":
			align = "R"
		}
		for k, line := range lines {
			r.pdf.SetXY(x+pdfCellPadding, top+float64(k)*lineH)
			r.pdf.CellFormat(w-2*pdfCellPadding, lineH, r.tr(line), "", 0, align, false, 0, "")
		}
	}
}
