package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/brc-ops/backoffice/internal/domain"
	"github.com/brc-ops/backoffice/internal/platform/httpx"
	"github.com/brc-ops/backoffice/internal/services"
)

// SKUMapHandlers maintains storefront SKU to warehouse component mappings.
type SKUMapHandlers struct {
	fulfillment services.FulfillmentService
}

// NewSKUMapHandlers constructs SKUMapHandlers.
func NewSKUMapHandlers(fulfillment services.FulfillmentService) *SKUMapHandlers {
	return &SKUMapHandlers{fulfillment: fulfillment}
}

// Routes registers the /sku-maps endpoints.
func (h *SKUMapHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.list)
	r.Get("/{sku}", h.get)
	r.Put("/{sku}", h.put)
	r.Delete("/{sku}", h.delete)
}

type skuComponentPayload struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type skuMapRequest struct {
	Components []skuComponentPayload `json:"components"`
}

type skuMapResponse struct {
	SKU        string                `json:"sku"`
	Components []skuComponentPayload `json:"components"`
	UpdatedAt  string                `json:"updatedAt,omitempty"`
}

func (h *SKUMapHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.fulfillment == nil {
		serviceUnavailable(ctx, w, "fulfillment")
		return
	}
	maps, err := h.fulfillment.ListSKUMaps(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]skuMapResponse, 0, len(maps))
	for _, m := range maps {
		items = append(items, toSKUMapResponse(m))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *SKUMapHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.fulfillment == nil {
		serviceUnavailable(ctx, w, "fulfillment")
		return
	}
	m, err := h.fulfillment.GetSKUMap(ctx, skuParam(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSKUMapResponse(m))
}

func (h *SKUMapHandlers) put(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.fulfillment == nil {
		serviceUnavailable(ctx, w, "fulfillment")
		return
	}
	var body skuMapRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	components := make([]domain.SKUComponent, 0, len(body.Components))
	for _, c := range body.Components {
		components = append(components, domain.SKUComponent{SKU: c.SKU, Quantity: c.Quantity})
	}
	m, err := h.fulfillment.PutSKUMap(ctx, services.PutSKUMapCommand{SKU: skuParam(r), Components: components})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSKUMapResponse(m))
}

func (h *SKUMapHandlers) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.fulfillment == nil {
		serviceUnavailable(ctx, w, "fulfillment")
		return
	}
	if err := h.fulfillment.DeleteSKUMap(ctx, skuParam(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError treats a missing map as the addressed resource being absent.
func (h *SKUMapHandlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, services.ErrSKUMapNotFound) {
		httpx.WriteError(r.Context(), w, httpx.NewError("sku_map_not_found", err.Error(), http.StatusNotFound))
		return
	}
	writeServiceError(r.Context(), w, err)
}

func toSKUMapResponse(m domain.SKUMap) skuMapResponse {
	components := make([]skuComponentPayload, 0, len(m.Components))
	for _, c := range m.Components {
		components = append(components, skuComponentPayload{SKU: c.SKU, Quantity: c.Quantity})
	}
	return skuMapResponse{SKU: m.SKU, Components: components, UpdatedAt: formatTime(m.UpdatedAt)}
}

func skuParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "sku"))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
