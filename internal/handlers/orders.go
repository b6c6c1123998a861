package handlers

import (
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/brc-ops/backoffice/internal/domain"
	"github.com/brc-ops/backoffice/internal/platform/auth"
	"github.com/brc-ops/backoffice/internal/platform/httpx"
	"github.com/brc-ops/backoffice/internal/services"
)

const invoiceNumberHeader = "X-Invoice-Number"

// OrderHandlers serves per-order paperwork, fulfillment forwarding and labels.
type OrderHandlers struct {
	documents   services.DocumentService
	fulfillment services.FulfillmentService
	labels      services.LabelService
}

// NewOrderHandlers constructs OrderHandlers. Nil services answer 503.
func NewOrderHandlers(documents services.DocumentService, fulfillment services.FulfillmentService, labels services.LabelService) *OrderHandlers {
	return &OrderHandlers{documents: documents, fulfillment: fulfillment, labels: labels}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{orderID}/packing-slip", h.packingSlip)
	r.Post("/{orderID}/customs-invoice", h.customsInvoice)
	r.Post("/{orderID}/fulfillments", h.forward)
	r.Post("/{orderID}/labels", h.createLabel)
}

type forwardRequest struct {
	LineItemIDs []string `json:"lineItemIds"`
}

type labelRequest struct {
	WeightKg    decimal.Decimal   `json:"weightKg"`
	Dimensions  domain.Dimensions `json:"dimensions"`
	ServiceType string            `json:"serviceType"`
}

func (h *OrderHandlers) packingSlip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.documents == nil {
		serviceUnavailable(ctx, w, "document")
		return
	}
	doc, err := h.documents.PackingSlip(ctx, orderID(r))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeDocument(w, http.StatusOK, doc)
}

func (h *OrderHandlers) customsInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.documents == nil {
		serviceUnavailable(ctx, w, "document")
		return
	}
	invoice, doc, err := h.documents.CustomsInvoice(ctx, orderID(r))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set(invoiceNumberHeader, invoice.Number)
	writeDocument(w, http.StatusCreated, doc)
}

func (h *OrderHandlers) forward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.fulfillment == nil {
		serviceUnavailable(ctx, w, "fulfillment")
		return
	}
	var body forwardRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	result, err := h.fulfillment.Forward(ctx, services.ForwardCommand{
		OrderID:     orderID(r),
		LineItemIDs: body.LineItemIDs,
		RequestedBy: actor(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, result)
}

func (h *OrderHandlers) createLabel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.labels == nil {
		serviceUnavailable(ctx, w, "label")
		return
	}
	var body labelRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	label, err := h.labels.CreateLabel(ctx, services.CreateLabelCommand{
		OrderID:     orderID(r),
		WeightKg:    body.WeightKg,
		Dimensions:  body.Dimensions,
		ServiceType: body.ServiceType,
		RequestedBy: actor(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, label)
}

func writeDocument(w http.ResponseWriter, status int, doc domain.Document) {
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	if doc.FileName != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": doc.FileName}))
	}
	if doc.ObjectPath != "" {
		w.Header().Set("X-Object-Path", doc.ObjectPath)
	}
	w.WriteHeader(status)
	_, _ = w.Write(doc.Body)
}

func orderID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "orderID"))
}

func actor(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil {
		return identity.Actor()
	}
	return ""
}
