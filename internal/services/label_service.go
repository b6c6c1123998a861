package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/brc-ops/backoffice/internal/domain"
	"github.com/brc-ops/backoffice/internal/platform/storage"
)

const defaultLabelServiceType = "INTERNATIONAL_PRIORITY"

// ErrLabelInvalidInput reports malformed label requests.
var ErrLabelInvalidInput = errors.New("label: invalid input")

// LabelServiceDeps wires label creation.
type LabelServiceDeps struct {
	Orders  OrderSource
	Carrier LabelCarrier
	Shipper domain.Address
	// Archive is optional; without it labels are created but not retained.
	Archive            DocumentArchive
	DefaultServiceType string
	CallTimeout        time.Duration
	Clock              func() time.Time
	IDGenerator        func() string
	Logger             func(ctx context.Context, event string, fields map[string]any)
}

type labelService struct {
	orders      OrderSource
	carrier     LabelCarrier
	shipper     domain.Address
	archive     DocumentArchive
	serviceType string
	timeout     time.Duration
	clock       func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
}

var _ LabelService = (*labelService)(nil)

// NewLabelService constructs a LabelService.
func NewLabelService(deps LabelServiceDeps) (LabelService, error) {
	if deps.Orders == nil {
		return nil, errors.New("label service: order source is required")
	}
	if deps.Carrier == nil {
		return nil, errors.New("label service: carrier is required")
	}
	if strings.TrimSpace(deps.Shipper.CountryCode) == "" {
		return nil, errors.New("label service: shipper country is required")
	}
	serviceType := strings.TrimSpace(deps.DefaultServiceType)
	if serviceType == "" {
		serviceType = defaultLabelServiceType
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
	return &labelService{
		orders:      deps.Orders,
		carrier:     deps.Carrier,
		shipper:     deps.Shipper,
		archive:     deps.Archive,
		serviceType: serviceType,
		timeout:     timeout,
		clock:       func() time.Time { return clock().UTC() },
		newID:       idGen,
		logger:      logger,
	}, nil
}

func (s *labelService) CreateLabel(ctx context.Context, cmd CreateLabelCommand) (Label, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Label{}, fmt.Errorf("%w: order id is required", ErrLabelInvalidInput)
	}
	if !cmd.WeightKg.IsPositive() {
		return Label{}, fmt.Errorf("%w: weight must be positive", ErrLabelInvalidInput)
	}
	if d := cmd.Dimensions; d.Length < 0 || d.Width < 0 || d.Height < 0 {
		return Label{}, fmt.Errorf("%w: dimensions must not be negative", ErrLabelInvalidInput)
	}

	order, err := loadOrder(ctx, s.orders, orderID, s.timeout)
	if err != nil {
		return Label{}, err
	}
	if strings.TrimSpace(order.ShippingAddress.CountryCode) == "" {
		return Label{}, fmt.Errorf("%w: order %s has no shipping address", ErrLabelInvalidInput, orderID)
	}

	serviceType := strings.TrimSpace(cmd.ServiceType)
	if serviceType == "" {
		serviceType = s.serviceType
	}
	now := s.clock()
	shipment, err := s.carrier.CreateShipment(ctx, domain.ShipmentRequest{
		Shipper:     s.shipper,
		Recipient:   order.ShippingAddress,
		ServiceType: serviceType,
		WeightKg:    cmd.WeightKg,
		Dimensions:  cmd.Dimensions,
		ShipDate:    now,
		Reference:   order.Name,
	})
	if err != nil {
		return Label{}, fmt.Errorf("%w: %w", ErrUpstreamFetch, err)
	}

	label := Label{
		RequestID:      s.newID(),
		OrderID:        order.ID,
		TrackingNumber: shipment.TrackingNumber,
		ServiceType:    shipment.ServiceType,
		CreatedAt:      now,
	}
	if label.ServiceType == "" {
		label.ServiceType = serviceType
	}

	if s.archive != nil && len(shipment.Label) > 0 {
		contentType := shipment.LabelFormat
		if contentType == "" {
			contentType = "application/pdf"
		}
		path, err := storage.ObjectPath(storage.KindLabel, storage.ObjectRef{
			OrderID:        order.ID,
			TrackingNumber: shipment.TrackingNumber,
			ContentType:    contentType,
		})
		if err != nil {
			return Label{}, fmt.Errorf("label service: object path: %w", err)
		}
		if err := s.archive.Store(ctx, path, contentType, shipment.Label); err != nil {
			return Label{}, fmt.Errorf("label service: archive %s: %w", path, err)
		}
		label.ObjectPath = path
	}

	s.logger(ctx, "labels.created", map[string]any{
		"requestId":      label.RequestID,
		"orderId":        label.OrderID,
		"trackingNumber": label.TrackingNumber,
		"serviceType":    label.ServiceType,
		"requestedBy":    strings.TrimSpace(cmd.RequestedBy),
	})
	return label, nil
}
