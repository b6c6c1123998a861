// Package flexport submits warehouse orders to the Flexport logistics API.
package flexport

import (
	"bytes"
	"context"
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

	domain "github.com/brc-ops/backoffice/internal/domain"
)

const (
	defaultBaseURL = "https://logistics-api.flexport.com"
	defaultTimeout = 20 * time.Second
	ordersPath     = "/logistics/api/2023-04/orders"

	maxResponseBytes = 1 << 20
	tracerName       = "github.com/brc-ops/backoffice/internal/flexport"
)

// HTTPClient matches the subset of http.Client used by Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Config holds the API location and token.
type Config struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
}

// Client is a bearer-token Flexport client.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    HTTPClient
	tracer  trace.Tracer
}

// New constructs a Client. httpClient may be nil.
func New(cfg Config, httpClient HTTPClient) (*Client, error) {
	token := strings.TrimSpace(cfg.APIToken)
	if token == "" {
		return nil, errors.New("flexport: api token is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		timeout: timeout,
		http:    httpClient,
		tracer:  otel.Tracer(tracerName),
	}, nil
}

type orderRequest struct {
	ExternalOrderID string      `json:"externalOrderId"`
	ShipTo          shipTo      `json:"shipTo"`
	Items           []orderItem `json:"items"`
}

type shipTo struct {
	Name       string `json:"name"`
	Company    string `json:"company,omitempty"`
	Street1    string `json:"street1"`
	Street2    string `json:"street2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
}

type orderItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// SubmitOrder creates a fulfillment order and returns Flexport's order id.
func (c *Client) SubmitOrder(ctx context.Context, order domain.FulfillmentOrder) (domain.FulfillmentReceipt, error) {
	ctx, span := c.tracer.Start(ctx, "flexport.SubmitOrder", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("flexport.external_order_id", order.Reference),
		attribute.Int("flexport.lines", len(order.Lines)),
	)

	receipt, err := c.submit(ctx, order)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.FulfillmentReceipt{}, fmt.Errorf("flexport: submit order: %w", err)
	}
	return receipt, nil
}

func (c *Client) submit(ctx context.Context, order domain.FulfillmentOrder) (domain.FulfillmentReceipt, error) {
	if len(order.Lines) == 0 {
		return domain.FulfillmentReceipt{}, errors.New("order has no lines")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := orderRequest{
		ExternalOrderID: order.Reference,
		ShipTo: shipTo{
			Name:       order.Recipient.Name,
			Company:    order.Recipient.Company,
			Street1:    order.Recipient.Address1,
			Street2:    order.Recipient.Address2,
			City:       order.Recipient.City,
			State:      order.Recipient.ProvinceCode,
			PostalCode: order.Recipient.Zip,
			Country:    strings.ToUpper(order.Recipient.CountryCode),
			Phone:      order.Recipient.Phone,
			Email:      order.Recipient.Email,
		},
		Items: make([]orderItem, 0, len(order.Lines)),
	}
	for _, line := range order.Lines {
		payload.Items = append(payload.Items, orderItem{SKU: line.SKU, Quantity: line.Quantity})
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return domain.FulfillmentReceipt{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ordersPath, &buf)
	if err != nil {
		return domain.FulfillmentReceipt{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.FulfillmentReceipt{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.FulfillmentReceipt{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := gjson.GetBytes(body, "message").String()
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return domain.FulfillmentReceipt{}, fmt.Errorf("status %d: %s", resp.StatusCode, message)
	}

	result := gjson.ParseBytes(body)
	id := result.Get("id").String()
	if id == "" {
		id = result.Get("orderId").String()
	}
	if id == "" {
		return domain.FulfillmentReceipt{}, errors.New("response has no order id")
	}
	return domain.FulfillmentReceipt{ExternalOrderID: id, Status: result.Get("status").String()}, nil
}
