// Package fedex creates shipping labels through the FedEx Ship API.
package fedex

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	domain "github.com/brc-ops/backoffice/internal/domain"
)

const (
	defaultBaseURL     = "https://apis.fedex.com"
	defaultTimeout     = 30 * time.Second
	DefaultServiceType = "INTERNATIONAL_PRIORITY"

	tokenPath    = "/oauth/token"
	shipmentPath = "/ship/v1/shipments"

	maxResponseBytes = 8 << 20
	tracerName       = "github.com/brc-ops/backoffice/internal/fedex"
)

// Config holds API credentials and the billed account.
type Config struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	AccountNumber string
	Timeout       time.Duration
}

// Client calls the Ship API with an OAuth2 client-credentials token.
type Client struct {
	baseURL string
	account string
	http    *http.Client
	tracer  trace.Tracer
}

// New constructs a Client. base, when non-nil, carries both token and API requests.
func New(cfg Config, base *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("fedex: client id and secret are required")
	}
	if strings.TrimSpace(cfg.AccountNumber) == "" {
		return nil, errors.New("fedex: account number is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if base == nil {
		base = &http.Client{}
	}

	credentials := clientcredentials.Config{
		ClientID:     strings.TrimSpace(cfg.ClientID),
		ClientSecret: strings.TrimSpace(cfg.ClientSecret),
		TokenURL:     baseURL + tokenPath,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	return &Client{
		baseURL: baseURL,
		account: strings.TrimSpace(cfg.AccountNumber),
		http: &http.Client{
			Timeout: timeout,
			Transport: &oauth2.Transport{
				Source: credentials.TokenSource(tokenCtx),
				Base:   base.Transport,
			},
		},
		tracer: otel.Tracer(tracerName),
	}, nil
}

// CreateShipment books a single-package shipment and returns the tracking number and PDF label.
func (c *Client) CreateShipment(ctx context.Context, req domain.ShipmentRequest) (domain.CarrierShipment, error) {
	ctx, span := c.tracer.Start(ctx, "fedex.CreateShipment", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	serviceType := strings.TrimSpace(req.ServiceType)
	if serviceType == "" {
		serviceType = DefaultServiceType
	}
	span.SetAttributes(attribute.String("fedex.service_type", serviceType))

	shipment, err := c.createShipment(ctx, req, serviceType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.CarrierShipment{}, fmt.Errorf("fedex: create shipment: %w", err)
	}
	return shipment, nil
}

func (c *Client) createShipment(ctx context.Context, req domain.ShipmentRequest, serviceType string) (domain.CarrierShipment, error) {
	payload := buildShipmentPayload(c.account, req, serviceType)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return domain.CarrierShipment{}, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+shipmentPath, &buf)
	if err != nil {
		return domain.CarrierShipment{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-locale", "en_US")
	if req.Reference != "" {
		httpReq.Header.Set("x-customer-transaction-id", req.Reference)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.CarrierShipment{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.CarrierShipment{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.CarrierShipment{}, apiError(resp.StatusCode, body)
	}
	return parseShipment(body, serviceType)
}

func parseShipment(body []byte, serviceType string) (domain.CarrierShipment, error) {
	shipment := gjson.GetBytes(body, "output.transactionShipments.0")
	if !shipment.Exists() {
		return domain.CarrierShipment{}, errors.New("response has no shipment")
	}
	tracking := shipment.Get("masterTrackingNumber").String()
	if tracking == "" {
		tracking = shipment.Get("pieceResponses.0.trackingNumber").String()
	}
	if tracking == "" {
		return domain.CarrierShipment{}, errors.New("response has no tracking number")
	}
	encoded := shipment.Get("pieceResponses.0.packageDocuments.0.encodedLabel").String()
	if encoded == "" {
		return domain.CarrierShipment{}, errors.New("response has no label")
	}
	label, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return domain.CarrierShipment{}, fmt.Errorf("decode label: %w", err)
	}
	if returned := shipment.Get("serviceType").String(); returned != "" {
		serviceType = returned
	}
	return domain.CarrierShipment{
		TrackingNumber: tracking,
		ServiceType:    serviceType,
		Label:          label,
		LabelFormat:    "application/pdf",
	}, nil
}

func apiError(status int, body []byte) error {
	first := gjson.GetBytes(body, "errors.0")
	if first.Exists() {
		return fmt.Errorf("status %d: %s: %s", status, first.Get("code").String(), first.Get("message").String())
	}
	return fmt.Errorf("status %d: %s", status, http.StatusText(status))
}
