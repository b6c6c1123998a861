package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/brc-ops/backoffice/internal/domain"
	"github.com/brc-ops/backoffice/internal/repositories"
)

var (
	// ErrSKUMapNotFound indicates a storefront SKU has no warehouse mapping.
	ErrSKUMapNotFound = errors.New("fulfillment: sku map not found")
	// ErrFulfillmentInvalidInput reports malformed SKU maps or forward requests.
	ErrFulfillmentInvalidInput = errors.New("fulfillment: invalid input")
)

// FulfillmentServiceDeps wires SKU map maintenance and forwarding.
type FulfillmentServiceDeps struct {
	SKUMaps repositories.SKUMapRepository
	Orders  OrderSource
	Partner FulfillmentPartner
	// Events is optional; when nil forwarded requests are not announced.
	Events      FulfillmentEventPublisher
	CallTimeout time.Duration
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type fulfillmentService struct {
	skuMaps repositories.SKUMapRepository
	orders  OrderSource
	partner FulfillmentPartner
	events  FulfillmentEventPublisher
	timeout time.Duration
	clock   func() time.Time
	newID   func() string
	logger  func(context.Context, string, map[string]any)
}

var _ FulfillmentService = (*fulfillmentService)(nil)

// NewFulfillmentService constructs a FulfillmentService. Orders and Partner are only needed by Forward.
func NewFulfillmentService(deps FulfillmentServiceDeps) (FulfillmentService, error) {
	if deps.SKUMaps == nil {
		return nil, errors.New("fulfillment service: sku map repository is required")
	}
	timeout := deps.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &fulfillmentService{
		skuMaps: deps.SKUMaps,
		orders:  deps.Orders,
		partner: deps.Partner,
		events:  deps.Events,
		timeout: timeout,
		clock:   func() time.Time { return clock().UTC() },
		newID:   idGen,
		logger:  logger,
	}, nil
}

func (s *fulfillmentService) GetSKUMap(ctx context.Context, sku string) (SKUMap, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return SKUMap{}, fmt.Errorf("%w: sku is required", ErrFulfillmentInvalidInput)
	}
	mapping, err := s.skuMaps.Get(ctx, sku)
	if err != nil {
		if isRepoNotFound(err) {
			return SKUMap{}, fmt.Errorf("%w: %s", ErrSKUMapNotFound, sku)
		}
		return SKUMap{}, err
	}
	return mapping, nil
}

func (s *fulfillmentService) ListSKUMaps(ctx context.Context) ([]SKUMap, error) {
	return s.skuMaps.List(ctx)
}

func (s *fulfillmentService) PutSKUMap(ctx context.Context, cmd PutSKUMapCommand) (SKUMap, error) {
	sku := strings.TrimSpace(cmd.SKU)
	if sku == "" {
		return SKUMap{}, fmt.Errorf("%w: sku is required", ErrFulfillmentInvalidInput)
	}
	if len(cmd.Components) == 0 {
		return SKUMap{}, fmt.Errorf("%w: at least one component is required", ErrFulfillmentInvalidInput)
	}
	components := make([]SKUComponent, 0, len(cmd.Components))
	seen := make(map[string]struct{}, len(cmd.Components))
	for _, component := range cmd.Components {
		componentSKU := strings.TrimSpace(component.SKU)
		if componentSKU == "" {
			return SKUMap{}, fmt.Errorf("%w: component sku is required", ErrFulfillmentInvalidInput)
		}
		if component.Quantity < 1 {
			return SKUMap{}, fmt.Errorf("%w: component %s quantity must be at least 1", ErrFulfillmentInvalidInput, componentSKU)
		}
		if _, dup := seen[componentSKU]; dup {
			return SKUMap{}, fmt.Errorf("%w: duplicate component %s", ErrFulfillmentInvalidInput, componentSKU)
		}
		seen[componentSKU] = struct{}{}
		components = append(components, SKUComponent{SKU: componentSKU, Quantity: component.Quantity})
	}
	return s.skuMaps.Put(ctx, SKUMap{SKU: sku, Components: components})
}

func (s *fulfillmentService) DeleteSKUMap(ctx context.Context, sku string) error {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return fmt.Errorf("%w: sku is required", ErrFulfillmentInvalidInput)
	}
	if err := s.skuMaps.Delete(ctx, sku); err != nil {
		if isRepoNotFound(err) {
			return fmt.Errorf("%w: %s", ErrSKUMapNotFound, sku)
		}
		return err
	}
	return nil
}

func (s *fulfillmentService) Forward(ctx context.Context, cmd ForwardCommand) (domain.FulfillmentResult, error) {
	if s.orders == nil || s.partner == nil {
		return domain.FulfillmentResult{}, fmt.Errorf("%w: fulfillment partner not configured", ErrUnavailable)
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.FulfillmentResult{}, fmt.Errorf("%w: order id is required", ErrFulfillmentInvalidInput)
	}
	if len(cmd.LineItemIDs) == 0 {
		return domain.FulfillmentResult{}, fmt.Errorf("%w: at least one line item is required", ErrFulfillmentInvalidInput)
	}

	order, err := loadOrder(ctx, s.orders, orderID, s.timeout)
	if err != nil {
		return domain.FulfillmentResult{}, err
	}
	items, err := selectLineItems(order, cmd.LineItemIDs)
	if err != nil {
		return domain.FulfillmentResult{}, err
	}
	lines, err := s.mapLines(ctx, items)
	if err != nil {
		return domain.FulfillmentResult{}, err
	}

	receipt, err := s.partner.SubmitOrder(ctx, domain.FulfillmentOrder{
		Reference: order.Name,
		Recipient: order.ShippingAddress,
		Lines:     lines,
	})
	if err != nil {
		return domain.FulfillmentResult{}, fmt.Errorf("%w: %w", ErrUpstreamFetch, err)
	}

	result := domain.FulfillmentResult{
		RequestID:       s.newID(),
		OrderID:         order.ID,
		OrderName:       order.Name,
		ExternalOrderID: receipt.ExternalOrderID,
		Lines:           lines,
		CreatedAt:       s.clock(),
	}
	s.publish(ctx, result, strings.TrimSpace(cmd.RequestedBy))
	return result, nil
}

// mapLines translates sold items into warehouse lines, merging repeated SKUs in first-seen order.
// Every unmapped SKU is collected so the caller can fix them in one pass.
func (s *fulfillmentService) mapLines(ctx context.Context, items []SoldItem) ([]domain.FulfillmentLine, error) {
	var (
		lines   []domain.FulfillmentLine
		index   = make(map[string]int)
		missing []string
		mapped  = make(map[string]SKUMap)
	)
	for _, item := range items {
		sku := strings.TrimSpace(item.SKU)
		mapping, ok := mapped[sku]
		if !ok {
			if sku == "" {
				missing = appendUnique(missing, item.Title)
				continue
			}
			var err error
			mapping, err = s.skuMaps.Get(ctx, sku)
			if err != nil {
				if isRepoNotFound(err) {
					missing = appendUnique(missing, sku)
					continue
				}
				return nil, err
			}
			mapped[sku] = mapping
		}
		for _, component := range mapping.Components {
			quantity := item.Quantity * component.Quantity
			if i, seen := index[component.SKU]; seen {
				lines[i].Quantity += quantity
				continue
			}
			index[component.SKU] = len(lines)
			lines = append(lines, domain.FulfillmentLine{SKU: component.SKU, Quantity: quantity})
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrSKUMapNotFound, strings.Join(missing, ", "))
	}
	return lines, nil
}

func (s *fulfillmentService) publish(ctx context.Context, result domain.FulfillmentResult, requestedBy string) {
	fields := map[string]any{
		"requestId":       result.RequestID,
		"orderId":         result.OrderID,
		"externalOrderId": result.ExternalOrderID,
		"lines":           len(result.Lines),
	}
	if s.events == nil {
		s.logger(ctx, "fulfillment.forwarded", fields)
		return
	}
	messageID, err := s.events.PublishFulfillmentEvent(ctx, FulfillmentEvent{
		Type:            FulfillmentEventForwarded,
		RequestID:       result.RequestID,
		OrderID:         result.OrderID,
		OrderName:       result.OrderName,
		ExternalOrderID: result.ExternalOrderID,
		Lines:           result.Lines,
		RequestedBy:     requestedBy,
		OccurredAt:      result.CreatedAt,
	})
	if err != nil {
		// The partner has accepted the order at this point; publish failures are only logged.
		fields["error"] = err.Error()
		s.logger(ctx, "fulfillment.publish_failed", fields)
		return
	}
	fields["messageId"] = messageID
	s.logger(ctx, "fulfillment.forwarded", fields)
}

func selectLineItems(order Order, ids []string) ([]SoldItem, error) {
	items := make([]SoldItem, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	var unknown []string
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		item, ok := order.LineItem(id)
		if !ok {
			unknown = append(unknown, raw)
			continue
		}
		items = append(items, item)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: unknown line items %s", ErrFulfillmentInvalidInput, strings.Join(unknown, ", "))
	}
	return items, nil
}

func appendUnique(values []string, value string) []string {
	for _, existing := range values {
		if existing == value {
			return values
		}
	}
	return append(values, value)
}
