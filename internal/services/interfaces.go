package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/brc-ops/backoffice/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	SoldItem          = domain.SoldItem
	Order             = domain.Order
	ProductMetadata   = domain.ProductMetadata
	ExpandedLine      = domain.ExpandedLine
	ComponentLine     = domain.ComponentLine
	AggregationResult = domain.AggregationResult
	Rate              = domain.Rate
	RateBand          = domain.RateBand
	CourierQuote      = domain.CourierQuote
	SKUMap            = domain.SKUMap
	SKUComponent      = domain.SKUComponent
	Document          = domain.Document
	Label             = domain.Label
)

// MetadataProvider loads product metadata from the storefront. Missing products are reported
// with an error wrapping domain.ErrProductNotFound.
type MetadataProvider interface {
	Metadata(ctx context.Context, productID string) (ProductMetadata, error)
	MetadataBySKU(ctx context.Context, sku string) (ProductMetadata, error)
}

// InventoryProvider resolves customs data kept on storefront inventory items.
type InventoryProvider interface {
	InventoryItemID(ctx context.Context, variantID string) (string, error)
	HSCode(ctx context.Context, inventoryItemID string) (string, error)
}

// OrderSource loads orders. Missing orders are reported with domain.ErrOrderNotFound.
type OrderSource interface {
	Order(ctx context.Context, orderID string) (Order, error)
}

// ComponentExpander resolves a sold item into its display name and components.
type ComponentExpander interface {
	Expand(ctx context.Context, item SoldItem) (ExpandedLine, error)
}

// LineItemAggregator turns sold items into merged customs rows.
type LineItemAggregator interface {
	Aggregate(ctx context.Context, items []SoldItem) (AggregationResult, error)
}

// RateService resolves courier prices and maintains the rate tables.
type RateService interface {
	ResolveRate(ctx context.Context, courier, country string, weight decimal.Decimal) (Rate, error)
	BestCourier(ctx context.Context, country string, weight decimal.Decimal, carriers []string) (CourierQuote, error)
	PutZone(ctx context.Context, cmd PutZoneCommand) (domain.ZoneMapping, error)
	PutRateTable(ctx context.Context, cmd PutRateTableCommand) (domain.RateTable, error)
	PutSpecialRates(ctx context.Context, cmd PutSpecialRatesCommand) (domain.SpecialRateTable, error)
	DeleteSpecialRates(ctx context.Context, courier, country string) error
}

// CounterService issues invoice numbers from one sequence per financial year.
type CounterService interface {
	NextInvoiceNumber(ctx context.Context) (string, error)
	Series(at time.Time) InvoiceSeries
}

// DocumentService renders order paperwork.
type DocumentService interface {
	PackingSlip(ctx context.Context, orderID string) (Document, error)
	CustomsInvoice(ctx context.Context, orderID string) (domain.CustomsInvoice, Document, error)
}

// FulfillmentService maintains SKU maps and forwards order lines to the fulfillment partner.
type FulfillmentService interface {
	GetSKUMap(ctx context.Context, sku string) (SKUMap, error)
	ListSKUMaps(ctx context.Context) ([]SKUMap, error)
	PutSKUMap(ctx context.Context, cmd PutSKUMapCommand) (SKUMap, error)
	DeleteSKUMap(ctx context.Context, sku string) error
	Forward(ctx context.Context, cmd ForwardCommand) (domain.FulfillmentResult, error)
}

// LabelService creates carrier shipping labels for orders.
type LabelService interface {
	CreateLabel(ctx context.Context, cmd CreateLabelCommand) (Label, error)
}

// SystemService reports dependency health for readiness checks.
type SystemService interface {
	HealthReport(ctx context.Context) (domain.HealthReport, error)
}

// DocumentRenderer turns document models into HTML.
type DocumentRenderer interface {
	PackingSlip(slip domain.PackingSlip) ([]byte, error)
	CustomsInvoice(invoice domain.CustomsInvoice) ([]byte, error)
}

// DocumentArchive persists rendered documents and labels.
type DocumentArchive interface {
	Store(ctx context.Context, objectPath, contentType string, body []byte) error
}

// LabelCarrier books shipments with a carrier.
type LabelCarrier interface {
	CreateShipment(ctx context.Context, req domain.ShipmentRequest) (domain.CarrierShipment, error)
}

// FulfillmentPartner accepts warehouse orders.
type FulfillmentPartner interface {
	SubmitOrder(ctx context.Context, order domain.FulfillmentOrder) (domain.FulfillmentReceipt, error)
}

// FulfillmentEventPublisher announces forwarded fulfillment requests to downstream consumers.
type FulfillmentEventPublisher interface {
	PublishFulfillmentEvent(ctx context.Context, event FulfillmentEvent) (string, error)
}

// FulfillmentEventForwarded is emitted once order lines were accepted by the fulfillment partner.
const FulfillmentEventForwarded = "fulfillment.forwarded"

// FulfillmentEvent is the payload published for fulfillment lifecycle changes.
type FulfillmentEvent struct {
	Type            string                   `json:"type"`
	RequestID       string                   `json:"requestId"`
	OrderID         string                   `json:"orderId"`
	OrderName       string                   `json:"orderName,omitempty"`
	ExternalOrderID string                   `json:"externalOrderId,omitempty"`
	Lines           []domain.FulfillmentLine `json:"lines"`
	RequestedBy     string                   `json:"requestedBy,omitempty"`
	OccurredAt      time.Time                `json:"occurredAt"`
}

// InvoiceSeries identifies the invoice sequence of one financial year.
type InvoiceSeries struct {
	Prefix    string
	StartYear int
}

// CounterID is the counter document holding the series, e.g. "invoices:BRC-2025".
func (s InvoiceSeries) CounterID() string {
	return fmt.Sprintf("invoices:%s-%04d", s.Prefix, s.StartYear)
}

// Label renders the financial year as "25-26".
func (s InvoiceSeries) Label() string {
	return fmt.Sprintf("%02d-%02d", s.StartYear%100, (s.StartYear+1)%100)
}

// Number formats seq as "BRC/25-26/0042".
func (s InvoiceSeries) Number(seq int64) string {
	return fmt.Sprintf("%s/%s/%04d", s.Prefix, s.Label(), seq)
}

// PutZoneCommand assigns a destination country to a courier zone.
type PutZoneCommand struct {
	Courier string
	Country string
	Zone    string
}

// PutRateTableCommand replaces a courier's bands for a zone.
type PutRateTableCommand struct {
	Courier string
	Zone    string
	Bands   []RateBand
}

// PutSpecialRatesCommand replaces a courier's country-specific bands.
type PutSpecialRatesCommand struct {
	Courier string
	Country string
	Bands   []RateBand
}

// PutSKUMapCommand replaces the warehouse components of a storefront SKU.
type PutSKUMapCommand struct {
	SKU        string
	Components []SKUComponent
}

// ForwardCommand selects order lines to send to the fulfillment partner.
type ForwardCommand struct {
	OrderID     string
	LineItemIDs []string
	RequestedBy string
}

// CreateLabelCommand describes the parcel a label is created for.
type CreateLabelCommand struct {
	OrderID     string
	WeightKg    decimal.Decimal
	Dimensions  domain.Dimensions
	ServiceType string
	RequestedBy string
}
