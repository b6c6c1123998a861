// Package shopify implements the storefront collaborators on top of the Shopify GraphQL Admin API.
package shopify

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
	"golang.org/x/time/rate"
)

const (
	defaultAPIVersion = "2024-10"
	defaultNamespace  = "custom"
	defaultTimeout    = 15 * time.Second
	defaultRPS        = 2
	defaultBurst      = 4

	maxResponseBytes = 4 << 20
	tracerName       = "github.com/brc-ops/backoffice/internal/shopify"
)

// ErrNotFound is wrapped by every lookup of a product, variant or order the shop does not have.
var ErrNotFound = errors.New("shopify: not found")

// HTTPClient matches the subset of http.Client used by Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Config describes how to reach a shop.
type Config struct {
	ShopDomain         string
	AccessToken        string
	APIVersion         string
	MetafieldNamespace string
	RequestsPerSecond  float64
	Burst              int
	Timeout            time.Duration
	// BaseURL replaces https://{ShopDomain}; tests point it at a local server.
	BaseURL string
}

// Option customises the client.
type Option func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// Client is a rate limited GraphQL Admin API client.
type Client struct {
	endpoint  string
	token     string
	namespace string
	timeout   time.Duration
	http      HTTPClient
	limiter   *rate.Limiter
	tracer    trace.Tracer
}

// New constructs a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		domain := strings.TrimSpace(cfg.ShopDomain)
		if domain == "" {
			return nil, errors.New("shopify: shop domain is required")
		}
		base = "https://" + strings.TrimPrefix(strings.TrimPrefix(domain, "https://"), "http://")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("shopify: access token is required")
	}
	version := strings.TrimSpace(cfg.APIVersion)
	if version == "" {
		version = defaultAPIVersion
	}
	namespace := strings.TrimSpace(cfg.MetafieldNamespace)
	if namespace == "" {
		namespace = defaultNamespace
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRPS
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	client := &Client{
		endpoint:  fmt.Sprintf("%s/admin/api/%s/graphql.json", base, version),
		token:     strings.TrimSpace(cfg.AccessToken),
		namespace: namespace,
		timeout:   timeout,
		http:      &http.Client{},
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// query executes a GraphQL operation and returns its data object.
func (c *Client) query(ctx context.Context, operation, query string, variables map[string]any) (gjson.Result, error) {
	ctx, span := c.tracer.Start(ctx, "shopify."+operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("graphql.operation.name", operation))

	data, err := c.execute(ctx, query, variables)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return gjson.Result{}, fmt.Errorf("shopify: %s: %w", operation, err)
	}
	return data, nil
}

func (c *Client) execute(ctx context.Context, query string, variables map[string]any) (gjson.Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(graphQLRequest{Query: query, Variables: variables}); err != nil {
		return gjson.Result{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gjson.Result{}, statusError(resp.StatusCode, body)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, errors.New("invalid JSON response")
	}

	result := gjson.ParseBytes(body)
	if errs := result.Get("errors"); errs.Exists() && len(errs.Array()) > 0 {
		messages := make([]string, 0, len(errs.Array()))
		for _, e := range errs.Array() {
			messages = append(messages, e.Get("message").String())
		}
		return gjson.Result{}, fmt.Errorf("graphql errors: %s", strings.Join(messages, "; "))
	}
	return result.Get("data"), nil
}

func statusError(status int, body []byte) error {
	message := strings.TrimSpace(gjson.GetBytes(body, "errors").String())
	if message == "" {
		message = http.StatusText(status)
	}
	return fmt.Errorf("unexpected status %d: %s", status, message)
}

func gid(kind, id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "gid://") {
		return id
	}
	return "gid://shopify/" + kind + "/" + id
}

// legacyID strips the gid prefix so identifiers match the numeric ids used in order payloads.
func legacyID(value string) string {
	value = strings.TrimSpace(value)
	if idx := strings.LastIndex(value, "/"); idx >= 0 {
		value = value[idx+1:]
	}
	if idx := strings.Index(value, "?"); idx >= 0 {
		value = value[:idx]
	}
	return value
}
