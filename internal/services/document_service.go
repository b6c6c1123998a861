package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/brc-ops/backoffice/internal/domain"
	"github.com/brc-ops/backoffice/internal/platform/storage"
)

const htmlContentType = "text/html; charset=utf-8"

// ErrDocumentInvalidInput indicates a document was requested without an order id.
var ErrDocumentInvalidInput = errors.New("document: invalid input")

// DocumentServiceDeps wires document rendering.
type DocumentServiceDeps struct {
	Orders    OrderSource
	Metadata  MetadataProvider
	Inventory InventoryProvider
	Counters  CounterService
	Renderer  DocumentRenderer
	// Archive is optional; when nil rendered documents are only returned.
	Archive              DocumentArchive
	CallTimeout          time.Duration
	CountryOfManufacture string
	Concurrency          int
	Clock                func() time.Time
	Logger               func(ctx context.Context, event string, fields map[string]any)
}

type documentService struct {
	orders      OrderSource
	metadata    MetadataProvider
	inventory   InventoryProvider
	counters    CounterService
	renderer    DocumentRenderer
	archive     DocumentArchive
	timeout     time.Duration
	country     string
	concurrency int
	clock       func() time.Time
	logger      func(context.Context, string, map[string]any)
}

var _ DocumentService = (*documentService)(nil)

// NewDocumentService constructs the packing slip and customs invoice service.
func NewDocumentService(deps DocumentServiceDeps) (DocumentService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("document service: order source is required")
	case deps.Metadata == nil:
		return nil, errors.New("document service: metadata provider is required")
	case deps.Counters == nil:
		return nil, errors.New("document service: counter service is required")
	case deps.Renderer == nil:
		return nil, errors.New("document service: renderer is required")
	}
	timeout := deps.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	country := strings.ToUpper(strings.TrimSpace(deps.CountryOfManufacture))
	if country == "" {
		country = domain.DefaultCountryOfManufacture
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &documentService{
		orders:      deps.Orders,
		metadata:    deps.Metadata,
		inventory:   deps.Inventory,
		counters:    deps.Counters,
		renderer:    deps.Renderer,
		archive:     deps.Archive,
		timeout:     timeout,
		country:     country,
		concurrency: deps.Concurrency,
		clock:       func() time.Time { return clock().UTC() },
		logger:      logger,
	}, nil
}

func (s *documentService) PackingSlip(ctx context.Context, orderID string) (Document, error) {
	order, err := s.order(ctx, orderID)
	if err != nil {
		return Document{}, err
	}

	// Slips only need names and components; harmonized codes are an invoice concern.
	expander, err := s.expander(nil)
	if err != nil {
		return Document{}, err
	}
	lines, err := ExpandAll(ctx, expander, order.LineItems, s.concurrency)
	if err != nil {
		return Document{}, err
	}

	body, err := s.renderer.PackingSlip(domain.PackingSlip{Order: order, Lines: lines, GeneratedAt: s.clock()})
	if err != nil {
		return Document{}, fmt.Errorf("document service: render packing slip: %w", err)
	}

	doc := Document{
		FileName:    "packing-slip-" + fileSafe(order.Name, order.ID) + ".html",
		ContentType: htmlContentType,
		Body:        body,
	}
	path, err := s.store(ctx, storage.KindPackingSlip, storage.ObjectRef{OrderID: order.ID, FileName: doc.FileName}, doc)
	if err != nil {
		return Document{}, err
	}
	doc.ObjectPath = path
	return doc, nil
}

func (s *documentService) CustomsInvoice(ctx context.Context, orderID string) (domain.CustomsInvoice, Document, error) {
	order, err := s.order(ctx, orderID)
	if err != nil {
		return domain.CustomsInvoice{}, Document{}, err
	}

	expander, err := s.expander(s.inventory)
	if err != nil {
		return domain.CustomsInvoice{}, Document{}, err
	}
	aggregator, err := NewLineItemAggregator(LineItemAggregatorDeps{
		Expander:             expander,
		CountryOfManufacture: s.country,
		Concurrency:          s.concurrency,
	})
	if err != nil {
		return domain.CustomsInvoice{}, Document{}, err
	}
	aggregated, err := aggregator.Aggregate(ctx, order.LineItems)
	if err != nil {
		return domain.CustomsInvoice{}, Document{}, err
	}

	// Numbers are only allocated once the rows are known, so failed attempts leave no gaps.
	number, err := s.counters.NextInvoiceNumber(ctx)
	if err != nil {
		return domain.CustomsInvoice{}, Document{}, err
	}

	invoice := domain.CustomsInvoice{
		Number:     number,
		IssuedAt:   s.clock(),
		Order:      order,
		Currency:   order.Currency,
		Lines:      aggregated.Lines,
		GrandTotal: aggregated.GrandTotal,
	}
	body, err := s.renderer.CustomsInvoice(invoice)
	if err != nil {
		return domain.CustomsInvoice{}, Document{}, fmt.Errorf("document service: render invoice %s: %w", number, err)
	}

	doc := Document{
		FileName:    "invoice-" + strings.ReplaceAll(number, "/", "-") + ".html",
		ContentType: htmlContentType,
		Body:        body,
	}
	path, err := s.store(ctx, storage.KindInvoice, storage.ObjectRef{OrderID: order.ID, InvoiceNumber: number, ContentType: doc.ContentType}, doc)
	if err != nil {
		return domain.CustomsInvoice{}, Document{}, err
	}
	doc.ObjectPath = path

	s.logger(ctx, "documents.invoice_issued", map[string]any{
		"orderId":       order.ID,
		"invoiceNumber": number,
		"lines":         len(invoice.Lines),
		"grandTotal":    invoice.GrandTotal.String(),
	})
	return invoice, doc, nil
}

func (s *documentService) order(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrDocumentInvalidInput)
	}
	return loadOrder(ctx, s.orders, orderID, s.timeout)
}

// expander builds a per-request expander over a fresh metadata cache.
func (s *documentService) expander(inventory InventoryProvider) (ComponentExpander, error) {
	return NewComponentExpander(ComponentExpanderDeps{
		Metadata:             NewRequestMetadataCache(s.metadata),
		Inventory:            inventory,
		CallTimeout:          s.timeout,
		CountryOfManufacture: s.country,
		Logger:               s.logger,
	})
}

func (s *documentService) store(ctx context.Context, kind storage.DocumentKind, ref storage.ObjectRef, doc Document) (string, error) {
	if s.archive == nil {
		return "", nil
	}
	path, err := storage.ObjectPath(kind, ref)
	if err != nil {
		return "", fmt.Errorf("document service: object path: %w", err)
	}
	if err := s.archive.Store(ctx, path, doc.ContentType, doc.Body); err != nil {
		return "", fmt.Errorf("document service: archive %s: %w", path, err)
	}
	return path, nil
}

// fileSafe reduces an order name such as "#1042" to characters safe in a file name.
func fileSafe(values ...string) string {
	for _, value := range values {
		cleaned := strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
				return r
			default:
				return -1
			}
		}, value)
		if cleaned != "" {
			return cleaned
		}
	}
	return "order"
}
