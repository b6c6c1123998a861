package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// NoServiceLabel is the rendered form of an unavailable rate.
const NoServiceLabel = "No Service"

var (
	weightStep     = decimal.RequireFromString("0.5")
	markupRate     = decimal.RequireFromString("0.30")
	serviceTaxRate = decimal.RequireFromString("0.18")
)

// RateBand is one row of a courier rate table.
type RateBand struct {
	Weight decimal.Decimal
	Rate   decimal.Decimal
}

// ZoneMapping places a destination country into a courier zone.
type ZoneMapping struct {
	Courier   string
	Country   string
	Zone      string
	UpdatedAt time.Time
}

// RateTable is a courier's banded price list for one zone, sorted ascending by weight.
type RateTable struct {
	Courier   string
	Zone      string
	Bands     []RateBand
	UpdatedAt time.Time
}

// SpecialRateTable is a per-country price list that overrides the zone lookup.
type SpecialRateTable struct {
	Courier   string
	Country   string
	Bands     []RateBand
	UpdatedAt time.Time
}

// Lookup returns the rate for an exact band weight.
func Lookup(bands []RateBand, weight decimal.Decimal) Rate {
	for _, band := range bands {
		if band.Weight.Equal(weight) {
			return RateOf(band.Rate)
		}
	}
	return NoService
}

// RoundWeight rounds a weight up to the next half-kilogram band.
func RoundWeight(weight decimal.Decimal) decimal.Decimal {
	return weight.Div(weightStep).Ceil().Mul(weightStep)
}

// Rate is a price or the NoService sentinel. NoService is a value, not an error.
type Rate struct {
	amount    decimal.Decimal
	available bool
}

// NoService marks a lane the courier does not serve.
var NoService = Rate{}

// RateOf wraps a concrete amount.
func RateOf(amount decimal.Decimal) Rate {
	return Rate{amount: amount, available: true}
}

// Available reports whether the rate carries an amount.
func (r Rate) Available() bool { return r.available }

// Amount returns the price; it is zero for NoService.
func (r Rate) Amount() decimal.Decimal { return r.amount }

// Less orders available rates by amount; NoService never sorts before anything.
func (r Rate) Less(other Rate) bool {
	if !r.available {
		return false
	}
	if !other.available {
		return true
	}
	return r.amount.LessThan(other.amount)
}

func (r Rate) Equal(other Rate) bool {
	if r.available != other.available {
		return false
	}
	return !r.available || r.amount.Equal(other.amount)
}

func (r Rate) String() string {
	if !r.available {
		return NoServiceLabel
	}
	return r.amount.String()
}

// MarshalJSON encodes the amount as a number and NoService as its label.
func (r Rate) MarshalJSON() ([]byte, error) {
	if !r.available {
		return json.Marshal(NoServiceLabel)
	}
	return []byte(r.amount.String()), nil
}

// FinalPrice applies the 30% markup and 18% service tax on the marked-up amount.
// The result is exact and unrounded; NoService passes through.
func FinalPrice(r Rate) Rate {
	if !r.available {
		return NoService
	}
	subtotal := r.amount.Add(r.amount.Mul(markupRate))
	return RateOf(subtotal.Add(subtotal.Mul(serviceTaxRate)))
}

// CarrierRate is the resolved price of one courier for a destination and weight.
type CarrierRate struct {
	Courier    string `json:"courier"`
	Rate       Rate   `json:"rate"`
	FinalPrice Rate   `json:"finalPrice"`
}

// CourierQuote summarises every configured courier for a destination.
type CourierQuote struct {
	Country       string          `json:"country"`
	Weight        decimal.Decimal `json:"weight"`
	Rates         []CarrierRate   `json:"rates"`
	Cheapest      string          `json:"cheapest,omitempty"`
	CheapestRate  Rate            `json:"cheapestRate"`
	CheapestFinal Rate            `json:"cheapestFinalPrice"`
	Benchmark     Rate            `json:"benchmark"`
}
