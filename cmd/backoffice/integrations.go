package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/brc-ops/backoffice/internal/di"
	"github.com/brc-ops/backoffice/internal/fedex"
	"github.com/brc-ops/backoffice/internal/flexport"
	"github.com/brc-ops/backoffice/internal/platform/config"
	"github.com/brc-ops/backoffice/internal/platform/jobs"
	"github.com/brc-ops/backoffice/internal/platform/secrets"
	platformstorage "github.com/brc-ops/backoffice/internal/platform/storage"
	"github.com/brc-ops/backoffice/internal/repositories"
	"github.com/brc-ops/backoffice/internal/shopify"
)

const closeTimeout = 5 * time.Second

type closer struct {
	name  string
	close func(context.Context) error
}

// closers releases clients in reverse order of opening.
type closers []closer

func (c *closers) add(name string, fn func(context.Context) error) {
	*c = append(*c, closer{name: name, close: fn})
}

func (c closers) run(logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].close(ctx); err != nil {
			logger.Warn("close failed", zap.String("client", c[i].name), zap.Error(err))
		}
	}
}

// openIntegrations builds the external clients. Shopify is required; storage, Pub/Sub,
// FedEx and Flexport stay nil when unconfigured, and the container reports them disabled.
func openIntegrations(ctx context.Context, cfg config.Config, logger *zap.Logger, cleanup *closers) (di.Integrations, []repositories.DependencyCheck, error) {
	var (
		in     di.Integrations
		checks []repositories.DependencyCheck
		err    error
	)

	in.Storefront, err = shopify.New(shopify.Config{
		ShopDomain:         cfg.Shopify.ShopDomain,
		AccessToken:        cfg.Shopify.AccessToken,
		APIVersion:         cfg.Shopify.APIVersion,
		MetafieldNamespace: cfg.Shopify.MetafieldNamespace,
		RequestsPerSecond:  cfg.Shopify.RequestsPerSecond,
		Burst:              cfg.Shopify.Burst,
		Timeout:            cfg.Shopify.Timeout,
	})
	if err != nil {
		return in, nil, fmt.Errorf("shopify client: %w", err)
	}

	if bucket := strings.TrimSpace(cfg.Storage.DocumentsBucket); bucket != "" {
		client, err := cloudstorage.NewClient(ctx)
		if err != nil {
			return in, nil, fmt.Errorf("storage client: %w", err)
		}
		cleanup.add("storage", func(context.Context) error { return client.Close() })
		archive, err := platformstorage.NewArchive(client, bucket)
		if err != nil {
			return in, nil, fmt.Errorf("document archive: %w", err)
		}
		in.Archive = archive
		checks = append(checks, repositories.DependencyCheck{Name: "storage", Check: func(ctx context.Context) error {
			_, err := client.Bucket(bucket).Attrs(ctx)
			return err
		}})
	} else {
		logger.Info("document archive disabled; no bucket configured")
	}

	if topicName := strings.TrimSpace(cfg.PubSub.FulfillmentTopic); topicName != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return in, nil, fmt.Errorf("pubsub client: %w", err)
		}
		topic := client.Topic(topicName)
		cleanup.add("pubsub", func(context.Context) error {
			topic.Stop()
			return client.Close()
		})
		var opts []jobs.TopicOption
		if cfg.PubSub.OrderedDelivery {
			opts = append(opts, jobs.WithOrderedDelivery())
		}
		events, err := jobs.NewFulfillmentEventTopic(topic, opts...)
		if err != nil {
			return in, nil, fmt.Errorf("fulfillment events: %w", err)
		}
		in.Events = events
		checks = append(checks, repositories.DependencyCheck{Name: "pubsub", Check: func(ctx context.Context) error {
			exists, err := topic.Exists(ctx)
			if err == nil && !exists {
				err = fmt.Errorf("topic %s does not exist", topicName)
			}
			return err
		}})
	}

	if cfg.FedEx.Enabled() {
		carrier, err := fedex.New(fedex.Config{
			BaseURL:       cfg.FedEx.BaseURL,
			ClientID:      cfg.FedEx.ClientID,
			ClientSecret:  cfg.FedEx.ClientSecret,
			AccountNumber: cfg.FedEx.AccountNumber,
			Timeout:       cfg.FedEx.Timeout,
		}, nil)
		if err != nil {
			return in, nil, fmt.Errorf("fedex client: %w", err)
		}
		in.Carrier = carrier
	} else {
		logger.Info("label creation disabled; fedex is not configured")
	}

	if cfg.Flexport.Enabled() {
		partner, err := flexport.New(flexport.Config{
			BaseURL:  cfg.Flexport.BaseURL,
			APIToken: cfg.Flexport.APIToken,
			Timeout:  cfg.Flexport.Timeout,
		}, nil)
		if err != nil {
			return in, nil, fmt.Errorf("flexport client: %w", err)
		}
		in.Partner = partner
	} else {
		logger.Info("fulfillment forwarding disabled; flexport is not configured")
	}
	return in, checks, nil
}

func newSecretResolver(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Resolver, error) {
	get := func(keys ...string) string {
		for _, key := range keys {
			if v := strings.TrimSpace(env[key]); v != "" {
				return v
			}
		}
		return ""
	}
	fallback := get("BO_SECRET_FALLBACK_FILE")
	if fallback == "" {
		fallback = ".secrets.local"
	}
	opts := []secrets.Option{
		secrets.WithProject(get("BO_SECRET_PROJECT_ID", "BO_FIREBASE_PROJECT_ID")),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallback),
	}
	if creds := get("BO_FIREBASE_CREDENTIALS_FILE"); creds != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(creds)))
	}
	return secrets.NewResolver(ctx, opts...)
}

// requiredSecretNames lists secrets whose absence stops startup. The FedEx secret is
// only required once a FedEx client id is configured.
func requiredSecretNames(env map[string]string) []string {
	required := []string{"Shopify.AccessToken"}
	if strings.TrimSpace(env["BO_FEDEX_CLIENT_ID"]) != "" {
		required = append(required, "FedEx.ClientSecret")
	}
	return required
}

// secretManagerCheck resolves a probe secret; a missing secret still proves the API answers.
func secretManagerCheck(resolver *secrets.Resolver) func(context.Context) error {
	const probe = "secret://system-healthz"
	return func(ctx context.Context) error {
		resolver.Invalidate(probe)
		_, err := resolver.ResolveSecret(ctx, probe)
		if err != nil && (errors.Is(err, secrets.ErrNotFound) || status.Code(err) == codes.NotFound) {
			return nil
		}
		return err
	}
}
