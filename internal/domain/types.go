package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCountryOfManufacture is stamped on customs lines unless overridden.
const DefaultCountryOfManufacture = "IN"

// Property is a free-text name/value pair attached to a sold line item.
type Property struct {
	Name  string
	Value string
}

// SoldItem is a single order line as received from the storefront. It is immutable per request.
type SoldItem struct {
	ID         string
	ProductID  string
	VariantID  string
	SKU        string
	Title      string
	Quantity   int
	Price      decimal.Decimal
	Properties []Property
}

// IsTerminal reports whether the item carries no product reference at all.
// Terminal items are described entirely by their title.
func (i SoldItem) IsTerminal() bool {
	return strings.TrimSpace(i.ProductID) == "" && strings.TrimSpace(i.SKU) == ""
}

// IsSample reports whether the item is a sample pack.
func (i SoldItem) IsSample() bool {
	return strings.HasPrefix(strings.TrimSpace(i.Title), "Sample")
}

// Address is a postal address used on slips, invoices, labels and fulfillment requests.
type Address struct {
	Name         string
	Company      string
	Address1     string
	Address2     string
	City         string
	Province     string
	ProvinceCode string
	Zip          string
	Country      string
	CountryCode  string
	Phone        string
	Email        string
}

// Lines returns the non-empty address lines in display order.
func (a Address) Lines() []string {
	parts := []string{a.Name, a.Company, a.Address1, a.Address2}
	cityLine := strings.TrimSpace(strings.Join(nonEmpty(a.City, a.Province, a.Zip), " "))
	parts = append(parts, cityLine, a.Country)
	return nonEmpty(parts...)
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Order is the storefront order snapshot used to produce documents and shipments.
type Order struct {
	ID               string
	Name             string
	CreatedAt        time.Time
	Currency         string
	Email            string
	Note             string
	ShippingAddress  Address
	LineItems        []SoldItem
	TotalWeightGrams int
}

// LineItem returns the order line with the supplied id.
func (o Order) LineItem(id string) (SoldItem, bool) {
	for _, item := range o.LineItems {
		if item.ID == id {
			return item, true
		}
	}
	return SoldItem{}, false
}
