package report

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/fiscalpos/fiscalpos/internal/shifts"
)

//go:embed templates/*.html
var templates embed.FS

// PDFClient exposes the subset of the Gotenberg client used by renderers.
type PDFClient interface {
	RenderHTML(ctx context.Context, html string, page PageOptions) ([]byte, error)
}

// ShiftClosing is the data printed on a shift closing report.
type ShiftClosing struct {
	Title       string
	Shift       shifts.Shift
	Preview     shifts.ClosingPreview
	GeneratedAt time.Time
}

// ShiftRenderer turns closed shifts into receipt-sized PDFs.
type ShiftRenderer struct {
	tpl      *template.Template
	client   PDFClient
	location *time.Location
}

// NewShiftRenderer parses the closing template. Amounts and counts are
// formatted for tag, times are shown in loc.
func NewShiftRenderer(client PDFClient, tag language.Tag, loc *time.Location) (*ShiftRenderer, error) {
	if client == nil {
		return nil, fmt.Errorf("shift renderer: pdf client required")
	}
	if loc == nil {
		loc = time.UTC
	}
	printer := message.NewPrinter(tag)
	funcMap := template.FuncMap{
		"money": func(v decimal.Decimal) string {
			return printer.Sprintf("L %.2f", v.InexactFloat64())
		},
		"count": func(n int) string {
			return printer.Sprintf("%d", n)
		},
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.In(loc).Format("02/01/2006 15:04")
		},
	}
	tpl, err := template.New("shift_closing.html").Funcs(funcMap).ParseFS(templates, "templates/shift_closing.html")
	if err != nil {
		return nil, err
	}
	return &ShiftRenderer{tpl: tpl, client: client, location: loc}, nil
}

// HTML executes the template only.
func (r *ShiftRenderer) HTML(data ShiftClosing) (string, error) {
	if data.Title == "" {
		data.Title = "Cierre de turno"
	}
	if data.GeneratedAt.IsZero() {
		data.GeneratedAt = time.Now()
	}
	buf := &bytes.Buffer{}
	if err := r.tpl.Execute(buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Render produces the PDF bytes of a shift closing.
func (r *ShiftRenderer) Render(ctx context.Context, data ShiftClosing) ([]byte, error) {
	if r == nil || r.tpl == nil || r.client == nil {
		return nil, fmt.Errorf("shift renderer not initialised")
	}
	html, err := r.HTML(data)
	if err != nil {
		return nil, err
	}
	return r.client.RenderHTML(ctx, html, ReceiptPage)
}
