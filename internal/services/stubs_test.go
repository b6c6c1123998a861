package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/brc-ops/backoffice/internal/domain"
)

type metadataStub struct {
	mu       sync.Mutex
	products map[string]ProductMetadata
	skus     map[string]ProductMetadata
	errs     map[string]error
	block    bool
	calls    []string
}

func (s *metadataStub) Metadata(ctx context.Context, productID string) (ProductMetadata, error) {
	return s.lookup(ctx, "id:"+productID, s.products, productID)
}

func (s *metadataStub) MetadataBySKU(ctx context.Context, sku string) (ProductMetadata, error) {
	return s.lookup(ctx, "sku:"+sku, s.skus, sku)
}

func (s *metadataStub) lookup(ctx context.Context, call string, source map[string]ProductMetadata, key string) (ProductMetadata, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	block := s.block
	err := s.errs[call]
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return ProductMetadata{}, ctx.Err()
	}
	if err != nil {
		return ProductMetadata{}, err
	}
	meta, ok := source[key]
	if !ok {
		return ProductMetadata{}, fmt.Errorf("%s: %w", key, domain.ErrProductNotFound)
	}
	return meta, nil
}

func (s *metadataStub) callCount(call string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, c := range s.calls {
		if c == call {
			count++
		}
	}
	return count
}

func (s *metadataStub) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// inventoryStub maps variant ids to inventory item ids and inventory item ids to HS codes.
type inventoryStub struct {
	mu      sync.Mutex
	items   map[string]string
	codes   map[string]string
	err     error
	lookups []string
}

func (s *inventoryStub) InventoryItemID(_ context.Context, variantID string) (string, error) {
	s.mu.Lock()
	s.lookups = append(s.lookups, variantID)
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.items[variantID], nil
}

func (s *inventoryStub) HSCode(_ context.Context, inventoryItemID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.codes[inventoryItemID], nil
}

type orderSourceStub struct {
	orders map[string]Order
	err    error
}

func (s *orderSourceStub) Order(_ context.Context, orderID string) (Order, error) {
	if s.err != nil {
		return Order{}, s.err
	}
	order, ok := s.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("%s: %w", orderID, domain.ErrOrderNotFound)
	}
	return order, nil
}

type repoNotFound struct{}

func (repoNotFound) Error() string       { return "document not found" }
func (repoNotFound) IsNotFound() bool    { return true }
func (repoNotFound) IsConflict() bool    { return false }
func (repoNotFound) IsUnavailable() bool { return false }

type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) log(_ context.Context, event string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func metadata(productID, title, variantID, price string, fields map[domain.MetadataKey]string) ProductMetadata {
	return ProductMetadata{
		ProductID: productID,
		Title:     title,
		VariantID: variantID,
		Price:     dec(price),
		Fields:    fields,
	}
}

type invoiceCounterStub struct {
	mu     sync.Mutex
	next   int
	err    error
	issued []string
}

func (s *invoiceCounterStub) Series(time.Time) InvoiceSeries {
	return InvoiceSeries{Prefix: "BRC", StartYear: 2025}
}

func (s *invoiceCounterStub) NextInvoiceNumber(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.next++
	number := fmt.Sprintf("BRC/25-26/%04d", s.next)
	s.issued = append(s.issued, number)
	return number, nil
}

// rendererStub records the models it was asked to render.
type rendererStub struct {
	slip    domain.PackingSlip
	invoice domain.CustomsInvoice
	err     error
}

func (r *rendererStub) PackingSlip(slip domain.PackingSlip) ([]byte, error) {
	r.slip = slip
	if r.err != nil {
		return nil, r.err
	}
	return []byte("<html>slip " + slip.Order.Name + "</html>"), nil
}

func (r *rendererStub) CustomsInvoice(invoice domain.CustomsInvoice) ([]byte, error) {
	r.invoice = invoice
	if r.err != nil {
		return nil, r.err
	}
	return []byte("<html>invoice " + invoice.Number + "</html>"), nil
}

type archiveStub struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
	err     error
}

func (a *archiveStub) Store(_ context.Context, objectPath, contentType string, body []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if a.objects == nil {
		a.objects = map[string]string{}
		a.types = map[string]string{}
	}
	a.objects[objectPath] = string(body)
	a.types[objectPath] = contentType
	return nil
}

type skuMapRepositoryStub struct {
	maps   map[string]SKUMap
	getErr error
	puts   []SKUMap
}

func (s *skuMapRepositoryStub) Get(_ context.Context, sku string) (SKUMap, error) {
	if s.getErr != nil {
		return SKUMap{}, s.getErr
	}
	mapping, ok := s.maps[sku]
	if !ok {
		return SKUMap{}, repoNotFound{}
	}
	return mapping, nil
}

func (s *skuMapRepositoryStub) List(context.Context) ([]SKUMap, error) {
	out := make([]SKUMap, 0, len(s.maps))
	for _, mapping := range s.maps {
		out = append(out, mapping)
	}
	return out, nil
}

func (s *skuMapRepositoryStub) Put(_ context.Context, mapping SKUMap) (SKUMap, error) {
	s.puts = append(s.puts, mapping)
	if s.maps == nil {
		s.maps = map[string]SKUMap{}
	}
	s.maps[mapping.SKU] = mapping
	return mapping, nil
}

func (s *skuMapRepositoryStub) Delete(_ context.Context, sku string) error {
	if _, ok := s.maps[sku]; !ok {
		return repoNotFound{}
	}
	delete(s.maps, sku)
	return nil
}

type partnerStub struct {
	orders  []domain.FulfillmentOrder
	receipt domain.FulfillmentReceipt
	err     error
}

func (p *partnerStub) SubmitOrder(_ context.Context, order domain.FulfillmentOrder) (domain.FulfillmentReceipt, error) {
	p.orders = append(p.orders, order)
	if p.err != nil {
		return domain.FulfillmentReceipt{}, p.err
	}
	return p.receipt, nil
}

type publisherStub struct {
	events []FulfillmentEvent
	err    error
}

func (p *publisherStub) PublishFulfillmentEvent(_ context.Context, event FulfillmentEvent) (string, error) {
	p.events = append(p.events, event)
	if p.err != nil {
		return "", p.err
	}
	return "msg-1", nil
}

type carrierStub struct {
	requests []domain.ShipmentRequest
	shipment domain.CarrierShipment
	err      error
}

func (c *carrierStub) CreateShipment(_ context.Context, req domain.ShipmentRequest) (domain.CarrierShipment, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return domain.CarrierShipment{}, c.err
	}
	return c.shipment, nil
}
