package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ComponentLine is one component of a bundled product, carrying the fields customs paperwork needs.
type ComponentLine struct {
	Reference            string
	ProductID            string
	VariantID            string
	Name                 string
	HSCode               string
	UnitPrice            decimal.Decimal
	Quantity             int
	CountryOfManufacture string
}

// ExpandedLine is a sold item resolved to its display name and components.
type ExpandedLine struct {
	Item       SoldItem
	Name       string
	HSCode     string
	Components []ComponentLine
}

// HasComponents reports whether the line expanded into sub-items.
func (l ExpandedLine) HasComponents() bool {
	return len(l.Components) > 0
}

// AggregatedLineItem is a customs invoice row keyed by name and harmonized code.
type AggregatedLineItem struct {
	Key                  string
	Name                 string
	HSCode               string
	Quantity             int
	UnitPrice            decimal.Decimal
	Total                decimal.Decimal
	CountryOfManufacture string
}

// AggregationResult is the ordered list of merged customs rows and their sum.
type AggregationResult struct {
	Lines      []AggregatedLineItem
	GrandTotal decimal.Decimal
}

// AggregationKey is the merge key for customs rows.
func AggregationKey(name, hsCode string) string {
	return name + "-" + hsCode
}

// PackingSlip is the render model for a packing slip.
type PackingSlip struct {
	Order       Order
	Lines       []ExpandedLine
	GeneratedAt time.Time
}

// CustomsInvoice is the render model for a commercial/customs invoice.
type CustomsInvoice struct {
	Number     string
	IssuedAt   time.Time
	Order      Order
	Currency   string
	Lines      []AggregatedLineItem
	GrandTotal decimal.Decimal
}

// Document is a rendered artefact ready to be served or archived.
type Document struct {
	FileName    string
	ContentType string
	Body        []byte
	ObjectPath  string
}
