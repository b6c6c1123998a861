// Package secrets resolves secret:// references in configuration against Google Secret Manager.
package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const meterName = "github.com/brc-ops/backoffice/internal/platform/secrets"

// ErrNotFound is returned when neither Secret Manager nor the local file has the secret.
var ErrNotFound = errors.New("secrets: secret not found")

// AccessClient is the Secret Manager surface used by Resolver.
type AccessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver fetches secrets once per process and falls back to a local dotenv-style file
// (".secrets.local") when Secret Manager is unreachable or no project is configured.
type Resolver struct {
	client     AccessClient
	ownsClient bool
	project    string
	logger     *zap.Logger

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string
	fallbackErr  error

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]string

	resolutions metric.Int64Counter
	latency     metric.Float64Histogram
}

type options struct {
	client       AccessClient
	clientOpts   []option.ClientOption
	project      string
	logger       *zap.Logger
	fallbackPath string
	meter        metric.Meter
}

// Option customises a Resolver.
type Option func(*options)

// WithProject sets the Google Cloud project holding the secrets.
func WithProject(projectID string) Option {
	return func(o *options) { o.project = strings.TrimSpace(projectID) }
}

// WithClient injects a Secret Manager client. The Resolver does not close injected clients.
func WithClient(client AccessClient) Option {
	return func(o *options) { o.client = client }
}

// WithClientOptions forwards options used when the Resolver dials Secret Manager itself.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.clientOpts = append(o.clientOpts, opts...) }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithFallbackFile overrides the local fallback path. An empty path disables the fallback.
func WithFallbackFile(path string) Option {
	return func(o *options) { o.fallbackPath = strings.TrimSpace(path) }
}

// WithMeter overrides the OpenTelemetry meter.
func WithMeter(meter metric.Meter) Option {
	return func(o *options) { o.meter = meter }
}

// NewResolver builds a Resolver. Failing to dial Secret Manager is not fatal; the
// Resolver then serves only the fallback file.
func NewResolver(ctx context.Context, opts ...Option) (*Resolver, error) {
	o := options{logger: zap.NewNop(), fallbackPath: ".secrets.local"}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.meter == nil {
		o.meter = otel.GetMeterProvider().Meter(meterName)
	}

	r := &Resolver{
		client:       o.client,
		project:      o.project,
		logger:       o.logger,
		fallbackPath: o.fallbackPath,
		cache:        make(map[string]string),
	}
	var err error
	if r.resolutions, err = o.meter.Int64Counter("secrets.resolutions",
		metric.WithDescription("Secret resolutions by source")); err != nil {
		return nil, fmt.Errorf("secrets: register counter: %w", err)
	}
	if r.latency, err = o.meter.Float64Histogram("secrets.fetch.latency",
		metric.WithUnit("ms"), metric.WithDescription("Secret Manager access latency")); err != nil {
		return nil, fmt.Errorf("secrets: register histogram: %w", err)
	}

	if r.client == nil && r.project != "" {
		client, dialErr := secretmanager.NewClient(ctx, o.clientOpts...)
		if dialErr != nil {
			r.logger.Warn("secret manager unavailable, using local fallback only", zap.Error(dialErr))
		} else {
			r.client = client
			r.ownsClient = true
		}
	}
	return r, nil
}

// ResolveSecret returns the value for ref, e.g. "secret://shopify-admin-token?version=3".
func (r *Resolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	parsed, err := parseRef(ref)
	if err != nil {
		return "", err
	}

	r.mu.RLock()
	value, ok := r.cache[parsed.key()]
	r.mu.RUnlock()
	if ok {
		r.record(ctx, "cache")
		return value, nil
	}

	result, err, _ := r.group.Do(parsed.key(), func() (any, error) {
		value, source, err := r.fetch(ctx, parsed)
		if err != nil {
			return "", err
		}
		r.mu.Lock()
		r.cache[parsed.key()] = value
		r.mu.Unlock()
		r.record(ctx, source)
		return value, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Invalidate drops every cached version of ref so the next call refetches it.
func (r *Resolver) Invalidate(ref string) {
	parsed, err := parseRef(ref)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.cache {
		if key == parsed.name || strings.HasPrefix(key, parsed.name+"@") {
			delete(r.cache, key)
		}
	}
}

// Close releases the Secret Manager client when the Resolver created it.
func (r *Resolver) Close() error {
	if r.ownsClient && r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *Resolver) fetch(ctx context.Context, ref secretRef) (string, string, error) {
	project := ref.project
	if project == "" {
		project = r.project
	}
	if r.client != nil && project != "" {
		start := time.Now()
		resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
			Name: fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.name, ref.versionOrLatest()),
		})
		r.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond))
		switch {
		case err == nil && resp.GetPayload() != nil:
			return string(resp.GetPayload().GetData()), "secret_manager", nil
		case err == nil:
			return "", "", fmt.Errorf("secrets: %s has an empty payload", ref.name)
		case !fallbackEligible(err):
			return "", "", fmt.Errorf("secrets: access %s: %w", ref.name, err)
		}
		r.logger.Debug("secret manager unreachable, trying local fallback", zap.String("secret", ref.name), zap.Error(err))
	}

	values, err := r.loadFallback()
	if err != nil {
		return "", "", err
	}
	if value, ok := values[ref.key()]; ok {
		return value, "fallback", nil
	}
	if value, ok := values[ref.name]; ok {
		return value, "fallback", nil
	}
	return "", "", fmt.Errorf("%w: %s", ErrNotFound, ref.name)
}

// loadFallback reads NAME=VALUE lines where NAME is a bare secret name or a secret:// reference.
func (r *Resolver) loadFallback() (map[string]string, error) {
	r.fallbackOnce.Do(func() {
		r.fallback = map[string]string{}
		if r.fallbackPath == "" {
			return
		}
		file, err := os.Open(r.fallbackPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				r.fallbackErr = fmt.Errorf("secrets: open fallback file: %w", err)
			}
			return
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			key = strings.TrimSpace(key)
			if parsed, err := parseRef(key); err == nil {
				key = parsed.key()
			}
			if key != "" {
				r.fallback[key] = strings.TrimSpace(value)
			}
		}
		if err := scanner.Err(); err != nil {
			r.fallbackErr = fmt.Errorf("secrets: read fallback file: %w", err)
		}
	})
	return r.fallback, r.fallbackErr
}

func (r *Resolver) record(ctx context.Context, source string) {
	r.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

type secretRef struct {
	name    string
	version string
	project string
}

func (s secretRef) key() string {
	if s.version == "" {
		return s.name
	}
	return s.name + "@" + s.version
}

func (s secretRef) versionOrLatest() string {
	if s.version == "" {
		return "latest"
	}
	return s.version
}

func parseRef(ref string) (secretRef, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return secretRef{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return secretRef{}, fmt.Errorf("secrets: unsupported reference %q", ref)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return secretRef{}, fmt.Errorf("secrets: reference %q has no secret name", ref)
	}
	query := u.Query()
	return secretRef{
		name:    name,
		version: strings.TrimSpace(query.Get("version")),
		project: strings.TrimSpace(query.Get("project")),
	}, nil
}

func fallbackEligible(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}
