// Package render turns packing slips and customs invoices into printable HTML.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/brc-ops/backoffice/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	packingSlipTemplate = "packing_slip.html"
	invoiceTemplate     = "customs_invoice.html"
	dateLayout          = "02 Jan 2006"
)

// Renderer renders document models with the embedded templates.
type Renderer struct {
	templates *template.Template
	notes     *bluemonday.Policy
	printer   *message.Printer
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	r := &Renderer{
		notes:   newNotePolicy(),
		printer: message.NewPrinter(language.English),
	}
	tmpl, err := template.New("documents").Funcs(template.FuncMap{
		"money": r.money,
		"date":  formatDate,
		"note":  r.note,
		"lines": func(a domain.Address) []string { return a.Lines() },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("render: parse templates: %w", err)
	}
	r.templates = tmpl
	return r, nil
}

// PackingSlip renders the slip handed to the warehouse with the parcel.
func (r *Renderer) PackingSlip(slip domain.PackingSlip) ([]byte, error) {
	return r.execute(packingSlipTemplate, slip)
}

// CustomsInvoice renders the commercial invoice that travels with international parcels.
func (r *Renderer) CustomsInvoice(invoice domain.CustomsInvoice) ([]byte, error) {
	return r.execute(invoiceTemplate, invoice)
}

func (r *Renderer) execute(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render: %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// money prints the currency symbol for code followed by the amount to two places.
func (r *Renderer) money(code string, amount decimal.Decimal) string {
	fixed := amount.StringFixed(2)
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return strings.TrimSpace(code + " " + fixed)
	}
	return r.printer.Sprint(currency.Symbol(unit)) + " " + fixed
}

// note sanitizes merchant-entered order notes, which may carry markup from the storefront admin.
func (r *Renderer) note(raw string) template.HTML {
	cleaned := strings.TrimSpace(r.notes.Sanitize(raw))
	return template.HTML(strings.ReplaceAll(cleaned, "\n", "<br>"))
}

func newNotePolicy() *bluemonday.Policy {
	policy := bluemonday.StrictPolicy()
	policy.AllowElements("b", "strong", "i", "em", "br", "p")
	return policy
}

func formatDate(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(dateLayout)
}
