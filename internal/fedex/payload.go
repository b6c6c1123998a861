package fedex

import (
	"encoding/json"
	"strings"

	domain "github.com/brc-ops/backoffice/internal/domain"
)

type shipmentPayload struct {
	LabelResponseOptions string            `json:"labelResponseOptions"`
	AccountNumber        accountNumber     `json:"accountNumber"`
	RequestedShipment    requestedShipment `json:"requestedShipment"`
}

type accountNumber struct {
	Value string `json:"value"`
}

type requestedShipment struct {
	ShipDatestamp          string             `json:"shipDatestamp,omitempty"`
	Shipper                party              `json:"shipper"`
	Recipients             []party            `json:"recipients"`
	ServiceType            string             `json:"serviceType"`
	PackagingType          string             `json:"packagingType"`
	PickupType             string             `json:"pickupType"`
	ShippingChargesPayment payment            `json:"shippingChargesPayment"`
	LabelSpecification     labelSpecification `json:"labelSpecification"`
	CustomsClearance       *customsClearance  `json:"customsClearanceDetail,omitempty"`
	PackageLineItems       []packageLineItem  `json:"requestedPackageLineItems"`
}

type party struct {
	Contact contact `json:"contact"`
	Address address `json:"address"`
}

type contact struct {
	PersonName   string `json:"personName,omitempty"`
	CompanyName  string `json:"companyName,omitempty"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

type address struct {
	StreetLines         []string `json:"streetLines"`
	City                string   `json:"city"`
	StateOrProvinceCode string   `json:"stateOrProvinceCode,omitempty"`
	PostalCode          string   `json:"postalCode,omitempty"`
	CountryCode         string   `json:"countryCode"`
}

type payment struct {
	PaymentType string `json:"paymentType"`
}

type labelSpecification struct {
	ImageType      string `json:"imageType"`
	LabelStockType string `json:"labelStockType"`
}

type customsClearance struct {
	DutiesPayment payment `json:"dutiesPayment"`
}

type packageLineItem struct {
	Weight             weight              `json:"weight"`
	Dimensions         *dimensions         `json:"dimensions,omitempty"`
	CustomerReferences []customerReference `json:"customerReferences,omitempty"`
}

type weight struct {
	Units string      `json:"units"`
	Value json.Number `json:"value"`
}

type dimensions struct {
	Length int    `json:"length"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Units  string `json:"units"`
}

type customerReference struct {
	Type  string `json:"customerReferenceType"`
	Value string `json:"value"`
}

func buildShipmentPayload(account string, req domain.ShipmentRequest, serviceType string) shipmentPayload {
	item := packageLineItem{
		Weight: weight{Units: "KG", Value: json.Number(req.WeightKg.Round(2).String())},
	}
	if d := req.Dimensions; d.Length > 0 && d.Width > 0 && d.Height > 0 {
		item.Dimensions = &dimensions{Length: d.Length, Width: d.Width, Height: d.Height, Units: "CM"}
	}
	if req.Reference != "" {
		item.CustomerReferences = []customerReference{{Type: "CUSTOMER_REFERENCE", Value: req.Reference}}
	}

	shipment := requestedShipment{
		Shipper:                toParty(req.Shipper),
		Recipients:             []party{toParty(req.Recipient)},
		ServiceType:            serviceType,
		PackagingType:          "YOUR_PACKAGING",
		PickupType:             "USE_SCHEDULED_PICKUP",
		ShippingChargesPayment: payment{PaymentType: "SENDER"},
		LabelSpecification:     labelSpecification{ImageType: "PDF", LabelStockType: "PAPER_85X11_TOP_HALF_LABEL"},
		PackageLineItems:       []packageLineItem{item},
	}
	if !req.ShipDate.IsZero() {
		shipment.ShipDatestamp = req.ShipDate.Format("2006-01-02")
	}
	if isInternational(req.Shipper, req.Recipient) {
		shipment.CustomsClearance = &customsClearance{DutiesPayment: payment{PaymentType: "RECIPIENT"}}
	}

	return shipmentPayload{
		LabelResponseOptions: "LABEL",
		AccountNumber:        accountNumber{Value: account},
		RequestedShipment:    shipment,
	}
}

func toParty(a domain.Address) party {
	lines := make([]string, 0, 2)
	for _, line := range []string{a.Address1, a.Address2} {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return party{
		Contact: contact{
			PersonName:   strings.TrimSpace(a.Name),
			CompanyName:  strings.TrimSpace(a.Company),
			PhoneNumber:  strings.TrimSpace(a.Phone),
			EmailAddress: strings.TrimSpace(a.Email),
		},
		Address: address{
			StreetLines:         lines,
			City:                strings.TrimSpace(a.City),
			StateOrProvinceCode: strings.TrimSpace(a.ProvinceCode),
			PostalCode:          strings.TrimSpace(a.Zip),
			CountryCode:         strings.ToUpper(strings.TrimSpace(a.CountryCode)),
		},
	}
}

func isInternational(shipper, recipient domain.Address) bool {
	return !strings.EqualFold(strings.TrimSpace(shipper.CountryCode), strings.TrimSpace(recipient.CountryCode))
}
