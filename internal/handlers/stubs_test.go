package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	domain "github.com/brc-ops/backoffice/internal/domain"
	"github.com/brc-ops/backoffice/internal/services"
)

type stubDocumentService struct {
	slip       domain.Document
	invoice    domain.CustomsInvoice
	invoiceDoc domain.Document
	err        error
	orderIDs   []string
}

func (s *stubDocumentService) PackingSlip(_ context.Context, orderID string) (domain.Document, error) {
	s.orderIDs = append(s.orderIDs, orderID)
	return s.slip, s.err
}

func (s *stubDocumentService) CustomsInvoice(_ context.Context, orderID string) (domain.CustomsInvoice, domain.Document, error) {
	s.orderIDs = append(s.orderIDs, orderID)
	return s.invoice, s.invoiceDoc, s.err
}

type stubFulfillmentService struct {
	maps       map[string]domain.SKUMap
	putCmd     services.PutSKUMapCommand
	deleted    []string
	forwardCmd services.ForwardCommand
	result     domain.FulfillmentResult
	err        error
}

func (s *stubFulfillmentService) GetSKUMap(_ context.Context, sku string) (domain.SKUMap, error) {
	if s.err != nil {
		return domain.SKUMap{}, s.err
	}
	m, ok := s.maps[sku]
	if !ok {
		return domain.SKUMap{}, services.ErrSKUMapNotFound
	}
	return m, nil
}

func (s *stubFulfillmentService) ListSKUMaps(context.Context) ([]domain.SKUMap, error) {
	out := make([]domain.SKUMap, 0, len(s.maps))
	for _, m := range s.maps {
		out = append(out, m)
	}
	return out, s.err
}

func (s *stubFulfillmentService) PutSKUMap(_ context.Context, cmd services.PutSKUMapCommand) (domain.SKUMap, error) {
	s.putCmd = cmd
	if s.err != nil {
		return domain.SKUMap{}, s.err
	}
	return domain.SKUMap{SKU: cmd.SKU, Components: cmd.Components}, nil
}

func (s *stubFulfillmentService) DeleteSKUMap(_ context.Context, sku string) error {
	if _, ok := s.maps[sku]; !ok {
		return services.ErrSKUMapNotFound
	}
	s.deleted = append(s.deleted, sku)
	return nil
}

func (s *stubFulfillmentService) Forward(_ context.Context, cmd services.ForwardCommand) (domain.FulfillmentResult, error) {
	s.forwardCmd = cmd
	return s.result, s.err
}

type stubLabelService struct {
	cmd   services.CreateLabelCommand
	label domain.Label
	err   error
}

func (s *stubLabelService) CreateLabel(_ context.Context, cmd services.CreateLabelCommand) (domain.Label, error) {
	s.cmd = cmd
	return s.label, s.err
}

type stubRateService struct {
	quote      domain.CourierQuote
	rate       domain.Rate
	err        error
	country    string
	weight     decimal.Decimal
	carriers   []string
	zoneCmd    services.PutZoneCommand
	tableCmd   services.PutRateTableCommand
	specialCmd services.PutSpecialRatesCommand
	deleted    [][2]string
}

func (s *stubRateService) ResolveRate(_ context.Context, _ string, country string, weight decimal.Decimal) (domain.Rate, error) {
	s.country, s.weight = country, weight
	return s.rate, s.err
}

func (s *stubRateService) BestCourier(_ context.Context, country string, weight decimal.Decimal, carriers []string) (domain.CourierQuote, error) {
	s.country, s.weight, s.carriers = country, weight, carriers
	return s.quote, s.err
}

func (s *stubRateService) PutZone(_ context.Context, cmd services.PutZoneCommand) (domain.ZoneMapping, error) {
	s.zoneCmd = cmd
	return domain.ZoneMapping{Courier: cmd.Courier, Country: cmd.Country, Zone: cmd.Zone}, s.err
}

func (s *stubRateService) PutRateTable(_ context.Context, cmd services.PutRateTableCommand) (domain.RateTable, error) {
	s.tableCmd = cmd
	return domain.RateTable{Courier: cmd.Courier, Zone: cmd.Zone, Bands: cmd.Bands}, s.err
}

func (s *stubRateService) PutSpecialRates(_ context.Context, cmd services.PutSpecialRatesCommand) (domain.SpecialRateTable, error) {
	s.specialCmd = cmd
	return domain.SpecialRateTable{Courier: cmd.Courier, Country: cmd.Country, Bands: cmd.Bands}, s.err
}

func (s *stubRateService) DeleteSpecialRates(_ context.Context, courier, country string) error {
	s.deleted = append(s.deleted, [2]string{courier, country})
	return s.err
}

type stubRepoError struct {
	notFound bool
}

func (e stubRepoError) Error() string       { return "repository error" }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return false }
func (e stubRepoError) IsUnavailable() bool { return !e.notFound }

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

var (
	_ services.DocumentService    = (*stubDocumentService)(nil)
	_ services.FulfillmentService = (*stubFulfillmentService)(nil)
	_ services.LabelService       = (*stubLabelService)(nil)
	_ services.RateService        = (*stubRateService)(nil)
)
