package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// ID-1 card dimensions in millimetres.
const (
	cardWidth  = 85.6
	cardHeight = 54.0
)

// Card is a single printable credential.
type Card struct {
	Title          string
	Institution    string
	FullName       string
	Role           string
	GroupLabel     string
	SchoolYear     int
	EnrollmentCode string
	Handle         string
	IssuedOn       time.Time
}

// CardRenderer lays out credential cards, one per PDF page.
type CardRenderer struct {
	defaultTitle string
}

// NewCardRenderer constructs a renderer using title when a card carries none.
func NewCardRenderer(title string) *CardRenderer {
	if title == "" {
		title = "Credential"
	}
	return &CardRenderer{defaultTitle: title}
}

// Render produces a PDF with one ID-1 sized page per card.
func (r *CardRenderer) Render(cards ...Card) ([]byte, error) {
	if len(cards) == 0 {
		return nil, fmt.Errorf("pdf requires at least one card")
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           gofpdf.SizeType{Wd: cardWidth, Ht: cardHeight},
	})
	pdf.SetMargins(4, 4, 4)
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for i, card := range cards {
		if card.EnrollmentCode == "" {
			return nil, fmt.Errorf("card %d has no enrollment code", i+1)
		}
		r.drawCard(pdf, tr, card)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *CardRenderer) drawCard(pdf *gofpdf.Fpdf, tr func(string) string, card Card) {
	pdf.AddPage()

	pdf.SetFillColor(28, 61, 110)
	pdf.Rect(0, 0, cardWidth, 11, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Arial", "B", 9)
	title := card.Title
	if title == "" {
		title = r.defaultTitle
	}
	pdf.SetXY(4, 2)
	pdf.CellFormat(cardWidth-8, 4, tr(strings.ToUpper(title)), "", 1, "L", false, 0, "")
	if card.Institution != "" {
		pdf.SetFont("Arial", "", 6)
		pdf.SetX(4)
		pdf.CellFormat(cardWidth-8, 3.5, tr(card.Institution), "", 1, "L", false, 0, "")
	}

	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(4, 14)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(cardWidth-8, 5, tr(card.FullName), "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 7)
	for _, line := range detailLines(card) {
		pdf.SetX(4)
		pdf.CellFormat(cardWidth-8, 3.8, tr(line), "", 1, "L", false, 0, "")
	}

	pdf.SetFillColor(235, 238, 243)
	pdf.Rect(4, 40, cardWidth-8, 10, "F")
	pdf.SetXY(6, 41)
	pdf.SetFont("Courier", "B", 11)
	pdf.CellFormat(cardWidth-12, 5, card.EnrollmentCode, "", 1, "C", false, 0, "")
	if card.Handle != "" && card.Handle != card.EnrollmentCode {
		pdf.SetFont("Courier", "", 7)
		pdf.SetX(6)
		pdf.CellFormat(cardWidth-12, 3, "login: "+card.Handle, "", 1, "C", false, 0, "")
	}
}

func detailLines(card Card) []string {
	var lines []string
	if card.Role != "" {
		lines = append(lines, "Role: "+card.Role)
	}
	if card.GroupLabel != "" {
		lines = append(lines, "Group: "+card.GroupLabel)
	}
	if card.SchoolYear > 0 {
		lines = append(lines, "School year: "+strconv.Itoa(card.SchoolYear))
	}
	if !card.IssuedOn.IsZero() {
		lines = append(lines, "Issued: "+card.IssuedOn.Format("2006-01-02"))
	}
	return lines
}
