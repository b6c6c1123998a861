package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SKUComponent is one warehouse SKU and how many of it a sold unit consumes.
type SKUComponent struct {
	SKU      string
	Quantity int
}

// SKUMap translates a storefront SKU into the warehouse SKUs that make it up.
type SKUMap struct {
	SKU        string
	Components []SKUComponent
	UpdatedAt  time.Time
}

// FulfillmentLine is a warehouse SKU and quantity forwarded to the fulfillment partner.
type FulfillmentLine struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// FulfillmentResult describes a forwarded fulfillment request.
type FulfillmentResult struct {
	RequestID       string            `json:"requestId"`
	OrderID         string            `json:"orderId"`
	OrderName       string            `json:"orderName"`
	ExternalOrderID string            `json:"externalOrderId"`
	Lines           []FulfillmentLine `json:"lines"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// Dimensions are package measurements in centimetres.
type Dimensions struct {
	Length int `json:"length"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Label is a created shipping label.
type Label struct {
	RequestID      string    `json:"requestId"`
	OrderID        string    `json:"orderId"`
	TrackingNumber string    `json:"trackingNumber"`
	ServiceType    string    `json:"serviceType"`
	ObjectPath     string    `json:"objectPath,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ShipmentRequest is what a carrier needs to produce a label.
type ShipmentRequest struct {
	Shipper     Address
	Recipient   Address
	ServiceType string
	WeightKg    decimal.Decimal
	Dimensions  Dimensions
	ShipDate    time.Time
	Reference   string
}

// CarrierShipment is a carrier's answer to a ShipmentRequest.
type CarrierShipment struct {
	TrackingNumber string
	ServiceType    string
	Label          []byte
	LabelFormat    string
}

// FulfillmentOrder is the warehouse order submitted to the fulfillment partner.
type FulfillmentOrder struct {
	Reference string
	Recipient Address
	Lines     []FulfillmentLine
}

// FulfillmentReceipt acknowledges a submitted fulfillment order.
type FulfillmentReceipt struct {
	ExternalOrderID string
	Status          string
}
