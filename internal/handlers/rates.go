package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/brc-ops/backoffice/internal/domain"
	"github.com/brc-ops/backoffice/internal/platform/httpx"
	"github.com/brc-ops/backoffice/internal/services"
)

// RateHandlers exposes rate quotes and rate table maintenance.
type RateHandlers struct {
	rates services.RateService
}

// NewRateHandlers constructs RateHandlers.
func NewRateHandlers(rates services.RateService) *RateHandlers {
	return &RateHandlers{rates: rates}
}

// Routes registers the /rates endpoints.
func (h *RateHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.quote)
	r.Get("/couriers/{courier}", h.courierRate)
	r.Put("/zones/{courier}/{country}", h.putZone)
	r.Put("/tables/{courier}/{zone}", h.putTable)
	r.Put("/special/{courier}/{country}", h.putSpecial)
	r.Delete("/special/{courier}/{country}", h.deleteSpecial)
}

type bandPayload struct {
	Weight decimal.Decimal `json:"weight"`
	Rate   decimal.Decimal `json:"rate"`
}

type bandsRequest struct {
	Bands []bandPayload `json:"bands"`
}

type zoneRequest struct {
	Zone string `json:"zone"`
}

type rateTableResponse struct {
	Courier   string        `json:"courier"`
	Zone      string        `json:"zone,omitempty"`
	Country   string        `json:"country,omitempty"`
	Bands     []bandPayload `json:"bands"`
	UpdatedAt string        `json:"updatedAt,omitempty"`
}

type zoneResponse struct {
	Courier   string `json:"courier"`
	Country   string `json:"country"`
	Zone      string `json:"zone"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func (h *RateHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rates == nil {
		serviceUnavailable(ctx, w, "rate")
		return
	}
	query := r.URL.Query()
	weight, ok := parseWeight(ctx, w, query.Get("weight"))
	if !ok {
		return
	}
	var carriers []string
	for _, carrier := range strings.Split(query.Get("carriers"), ",") {
		if trimmed := strings.TrimSpace(carrier); trimmed != "" {
			carriers = append(carriers, trimmed)
		}
	}

	quote, err := h.rates.BestCourier(ctx, query.Get("country"), weight, carriers)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, quote)
}

func (h *RateHandlers) courierRate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rates == nil {
		serviceUnavailable(ctx, w, "rate")
		return
	}
	weight, ok := parseWeight(ctx, w, r.URL.Query().Get("weight"))
	if !ok {
		return
	}
	courier := chi.URLParam(r, "courier")
	rate, err := h.rates.ResolveRate(ctx, courier, r.URL.Query().Get("country"), weight)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, domain.CarrierRate{Courier: courier, Rate: rate, FinalPrice: domain.FinalPrice(rate)})
}

func (h *RateHandlers) putZone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rates == nil {
		serviceUnavailable(ctx, w, "rate")
		return
	}
	var body zoneRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	zone, err := h.rates.PutZone(ctx, services.PutZoneCommand{
		Courier: chi.URLParam(r, "courier"),
		Country: chi.URLParam(r, "country"),
		Zone:    body.Zone,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, zoneResponse{
		Courier:   zone.Courier,
		Country:   zone.Country,
		Zone:      zone.Zone,
		UpdatedAt: formatTime(zone.UpdatedAt),
	})
}

func (h *RateHandlers) putTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rates == nil {
		serviceUnavailable(ctx, w, "rate")
		return
	}
	var body bandsRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	table, err := h.rates.PutRateTable(ctx, services.PutRateTableCommand{
		Courier: chi.URLParam(r, "courier"),
		Zone:    chi.URLParam(r, "zone"),
		Bands:   toBands(body.Bands),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rateTableResponse{
		Courier:   table.Courier,
		Zone:      table.Zone,
		Bands:     fromBands(table.Bands),
		UpdatedAt: formatTime(table.UpdatedAt),
	})
}

func (h *RateHandlers) putSpecial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rates == nil {
		serviceUnavailable(ctx, w, "rate")
		return
	}
	var body bandsRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	table, err := h.rates.PutSpecialRates(ctx, services.PutSpecialRatesCommand{
		Courier: chi.URLParam(r, "courier"),
		Country: chi.URLParam(r, "country"),
		Bands:   toBands(body.Bands),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rateTableResponse{
		Courier:   table.Courier,
		Country:   table.Country,
		Bands:     fromBands(table.Bands),
		UpdatedAt: formatTime(table.UpdatedAt),
	})
}

func (h *RateHandlers) deleteSpecial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rates == nil {
		serviceUnavailable(ctx, w, "rate")
		return
	}
	if err := h.rates.DeleteSpecialRates(ctx, chi.URLParam(r, "courier"), chi.URLParam(r, "country")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseWeight(ctx context.Context, w http.ResponseWriter, raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "weight is required", http.StatusBadRequest))
		return decimal.Decimal{}, false
	}
	weight, err := decimal.NewFromString(raw)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "weight must be a decimal number of kilograms", http.StatusBadRequest))
		return decimal.Decimal{}, false
	}
	return weight, true
}

func toBands(payload []bandPayload) []domain.RateBand {
	bands := make([]domain.RateBand, 0, len(payload))
	for _, band := range payload {
		bands = append(bands, domain.RateBand{Weight: band.Weight, Rate: band.Rate})
	}
	return bands
}

func fromBands(bands []domain.RateBand) []bandPayload {
	payload := make([]bandPayload, 0, len(bands))
	for _, band := range bands {
		payload = append(payload, bandPayload{Weight: band.Weight, Rate: band.Rate})
	}
	return payload
}

func writeDecodeError(ctx context.Context, w http.ResponseWriter, err error) {
	var envelope httpx.Error
	if errors.As(err, &envelope) {
		httpx.WriteError(ctx, w, envelope)
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
}
