package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/brc-ops/backoffice/internal/domain"
	"github.com/brc-ops/backoffice/internal/platform/config"
	"github.com/brc-ops/backoffice/internal/platform/observability"
	"github.com/brc-ops/backoffice/internal/repositories"
	"github.com/brc-ops/backoffice/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Rates       services.RateService
	Counters    services.CounterService
	Documents   services.DocumentService
	Fulfillment services.FulfillmentService
	// Labels is nil when no carrier is configured.
	Labels services.LabelService
	System services.SystemService
}

// Integrations carries the external collaborators built in main. Storefront and Renderer are
// required; the rest switch their features off when nil.
type Integrations struct {
	Storefront Storefront
	Renderer   services.DocumentRenderer
	Archive    services.DocumentArchive
	Events     services.FulfillmentEventPublisher
	Carrier    services.LabelCarrier
	Partner    services.FulfillmentPartner
	Health     repositories.HealthRepository
	Build      services.BuildInfo
	Logger     *zap.Logger
	Clock      func() time.Time
}

// Storefront is the subset of the Shopify client the services read orders and products from.
type Storefront interface {
	services.OrderSource
	services.MetadataProvider
	services.InventoryProvider
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Tests can supply in-memory registries and fakes.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, in Integrations) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if in.Storefront == nil {
		return nil, errors.New("storefront client is required")
	}
	if in.Renderer == nil {
		return nil, errors.New("document renderer is required")
	}

	svc, err := buildServices(ctx, cfg, reg, in)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, cfg config.Config, reg repositories.Registry, in Integrations) (Services, error) {
	var svc Services

	logger := in.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := in.Clock
	if clock == nil {
		clock = time.Now
	}
	callTimeout := cfg.Core.CallTimeout

	rates, err := services.NewRateService(services.RateServiceDeps{
		Rates:            reg.Rates(),
		Carriers:         cfg.Rates.Carriers,
		BenchmarkCountry: cfg.Rates.BenchmarkCountry,
	})
	if err != nil {
		return svc, fmt.Errorf("rate service: %w", err)
	}
	svc.Rates = rates

	counters, err := services.NewCounterService(services.CounterServiceDeps{
		Repository:              reg.Counters(),
		Clock:                   clock,
		InvoicePrefix:           cfg.Invoice.Prefix,
		FinancialYearStartMonth: time.Month(cfg.Invoice.FinancialYearStartMonth),
		MaxSequence:             int64(cfg.Invoice.MaxSequence),
	})
	if err != nil {
		return svc, fmt.Errorf("counter service: %w", err)
	}
	svc.Counters = counters

	documents, err := services.NewDocumentService(services.DocumentServiceDeps{
		Orders:               in.Storefront,
		Metadata:             in.Storefront,
		Inventory:            in.Storefront,
		Counters:             counters,
		Renderer:             in.Renderer,
		Archive:              in.Archive,
		CallTimeout:          callTimeout,
		CountryOfManufacture: cfg.Invoice.CountryOfManufacture,
		Concurrency:          cfg.Core.ExpandConcurrency,
		Clock:                clock,
		Logger:               observability.EventLogger(logger.Named("documents")),
	})
	if err != nil {
		return svc, fmt.Errorf("document service: %w", err)
	}
	svc.Documents = documents

	fulfillment, err := services.NewFulfillmentService(services.FulfillmentServiceDeps{
		SKUMaps:     reg.SKUMaps(),
		Orders:      in.Storefront,
		Partner:     in.Partner,
		Events:      in.Events,
		CallTimeout: callTimeout,
		Clock:       clock,
		Logger:      observability.EventLogger(logger.Named("fulfillment")),
	})
	if err != nil {
		return svc, fmt.Errorf("fulfillment service: %w", err)
	}
	svc.Fulfillment = fulfillment

	if in.Carrier != nil {
		labels, err := services.NewLabelService(services.LabelServiceDeps{
			Orders:      in.Storefront,
			Carrier:     in.Carrier,
			Shipper:     shipperAddress(cfg.FedEx.Shipper),
			Archive:     in.Archive,
			CallTimeout: callTimeout,
			Clock:       clock,
			Logger:      observability.EventLogger(logger.Named("labels")),
		})
		if err != nil {
			return svc, fmt.Errorf("label service: %w", err)
		}
		svc.Labels = labels
	}

	health := in.Health
	if health == nil {
		health = reg.Health()
	}
	if health != nil {
		system, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: health,
			Clock:            clock,
			Build:            in.Build,
			Disabled:         disabledIntegrations(in),
		})
		if err != nil {
			return svc, fmt.Errorf("system service: %w", err)
		}
		svc.System = system
	}

	return svc, nil
}

func shipperAddress(cfg config.ShipperConfig) domain.Address {
	return domain.Address{
		Name:         strings.TrimSpace(cfg.Name),
		Company:      strings.TrimSpace(cfg.Company),
		Phone:        strings.TrimSpace(cfg.Phone),
		Address1:     strings.TrimSpace(cfg.Street),
		City:         strings.TrimSpace(cfg.City),
		ProvinceCode: strings.TrimSpace(cfg.StateCode),
		Zip:          strings.TrimSpace(cfg.PostalCode),
		CountryCode:  strings.ToUpper(strings.TrimSpace(cfg.CountryCode)),
	}
}

func disabledIntegrations(in Integrations) []string {
	var off []string
	if in.Carrier == nil {
		off = append(off, "fedex")
	}
	if in.Partner == nil {
		off = append(off, "flexport")
	}
	if in.Archive == nil {
		off = append(off, "storage")
	}
	if in.Events == nil {
		off = append(off, "pubsub")
	}
	return off
}
