package artifact

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
)

// TicketView is everything printed on one ticket page.
type TicketView struct {
	Code         string
	ShowTitle    string
	VenueName    string
	StartsAt     time.Time
	Section      string
	Row          string
	Number       uint32
	OrderNumber  string
	CustomerName string
	IssuedAt     time.Time
}

// RenderTicketPDF lays out one A4 page per ticket. The output depends only
// on its inputs: the document dates come from the first ticket's IssuedAt.
func RenderTicketPDF(b Branding, tickets ...TicketView) ([]byte, error) {
	if len(tickets) == 0 {
		return nil, fmt.Errorf("render pdf: no tickets")
	}
	loc := b.location()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(tickets[0].IssuedAt)
	pdf.SetModificationDate(tickets[0].IssuedAt)
	pdf.SetCatalogSort(true)
	pdf.SetCompression(true)
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(b.StudioName+" tickets"), false)
	pdf.SetAuthor(tr(b.StudioName), false)
	pdf.SetCreator(tr(b.StudioName), false)

	for _, t := range tickets {
		png, err := QRCodePNG(t.Code)
		if err != nil {
			return nil, err
		}
		img := "qr-" + t.Code
		pdf.RegisterImageOptionsReader(img, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(png))

		pdf.AddPage()

		// header band
		pdf.SetFillColor(33, 37, 41)
		pdf.Rect(0, 0, 210, 32, "F")
		pdf.SetTextColor(255, 255, 255)
		pdf.SetFont("Helvetica", "B", 20)
		pdf.SetXY(15, 10)
		pdf.CellFormat(180, 12, tr(b.StudioName), "", 1, "L", false, 0, "")

		pdf.SetTextColor(33, 37, 41)
		pdf.SetXY(15, 45)
		pdf.SetFont("Helvetica", "B", 24)
		pdf.MultiCell(180, 11, tr(t.ShowTitle), "", "L", false)

		starts := t.StartsAt.In(loc)
		pdf.SetFont("Helvetica", "", 14)
		pdf.SetX(15)
		pdf.CellFormat(180, 8, starts.Format("Monday, January 2, 2006"), "", 1, "L", false, 0, "")
		pdf.SetX(15)
		pdf.CellFormat(180, 8, starts.Format("3:04 PM MST"), "", 1, "L", false, 0, "")
		pdf.SetX(15)
		pdf.CellFormat(180, 8, tr(t.VenueName), "", 1, "L", false, 0, "")

		pdf.Ln(6)
		y := pdf.GetY()
		for i, col := range [][2]string{
			{"SECTION", t.Section},
			{"ROW", t.Row},
			{"SEAT", fmt.Sprint(t.Number)},
		} {
			x := 15 + float64(i)*60
			pdf.SetDrawColor(200, 200, 200)
			pdf.Rect(x, y, 55, 24, "D")
			pdf.SetXY(x, y+3)
			pdf.SetFont("Helvetica", "", 9)
			pdf.CellFormat(55, 5, col[0], "", 2, "C", false, 0, "")
			pdf.SetFont("Helvetica", "B", 16)
			pdf.CellFormat(55, 10, tr(col[1]), "", 0, "C", false, 0, "")
		}

		pdf.ImageOptions(img, 65, y+34, 80, 80, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

		pdf.SetXY(15, y+118)
		pdf.SetFont("Courier", "B", 13)
		pdf.CellFormat(180, 8, t.Code, "", 1, "C", false, 0, "")

		pdf.SetFont("Helvetica", "", 11)
		pdf.SetX(15)
		pdf.CellFormat(180, 7, tr("Order "+t.OrderNumber+"  |  "+t.CustomerName), "", 1, "C", false, 0, "")

		pdf.SetXY(15, 270)
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(110, 110, 110)
		pdf.CellFormat(180, 5, tr("Present this page at the door. Questions: "+b.SupportEmail), "", 1, "C", false, 0, "")
		if b.StudioURL != "" {
			pdf.SetX(15)
			pdf.CellFormat(180, 5, b.StudioURL, "", 1, "C", false, 0, "")
		}
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
