package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/brc-ops/backoffice/internal/di"
	"github.com/brc-ops/backoffice/internal/handlers"
	"github.com/brc-ops/backoffice/internal/platform/auth"
	"github.com/brc-ops/backoffice/internal/platform/config"
	pfirestore "github.com/brc-ops/backoffice/internal/platform/firestore"
	"github.com/brc-ops/backoffice/internal/platform/idempotency"
	"github.com/brc-ops/backoffice/internal/platform/observability"
	"github.com/brc-ops/backoffice/internal/render"
	"github.com/brc-ops/backoffice/internal/repositories"
	firestoreRepo "github.com/brc-ops/backoffice/internal/repositories/firestore"
	"github.com/brc-ops/backoffice/internal/services"
)

const drainTimeout = 10 * time.Second

func main() {
	logger, err := observability.NewLogger(observability.WithLevel(os.Getenv("LOG_LEVEL")))
	if err != nil {
		fmt.Fprintf(os.Stderr, "backoffice: logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, logger.Named("backoffice"))
	stop()
	if err != nil {
		logger.Error("backoffice stopped", zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run wires every dependency, serves until ctx is cancelled, then drains.
func run(ctx context.Context, logger *zap.Logger) error {
	startedAt := time.Now().UTC()
	ctx = observability.WithLogger(ctx, logger)

	var cleanup closers
	defer cleanup.run(logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	resolver, err := newSecretResolver(ctx, logger, envValues)
	if err != nil {
		return fmt.Errorf("secret resolver: %w", err)
	}
	cleanup.add("secret resolver", func(context.Context) error { return resolver.Close() })

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(resolver),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	var providerOpts []pfirestore.ProviderOption
	if cfg.Firebase.CredentialsFile != "" {
		providerOpts = append(providerOpts, pfirestore.WithClientOptions(option.WithCredentialsFile(cfg.Firebase.CredentialsFile)))
	}
	provider := pfirestore.NewProvider(cfg.Firestore, providerOpts...)
	if _, err := provider.Client(ctx); err != nil {
		return fmt.Errorf("firestore client: %w", err)
	}
	registry, err := firestoreRepo.NewRegistry(provider, nil)
	if err != nil {
		return fmt.Errorf("repositories: %w", err)
	}

	in, checks, err := openIntegrations(ctx, cfg, logger, &cleanup)
	if err != nil {
		return err
	}
	checks = append([]repositories.DependencyCheck{
		{Name: "firestore", Timeout: 1500 * time.Millisecond, Critical: true, Check: provider.Ping},
		{Name: "secretManager", Timeout: time.Second, Check: secretManagerCheck(resolver)},
	}, checks...)

	if in.Renderer, err = render.New(); err != nil {
		return fmt.Errorf("document renderer: %w", err)
	}
	if in.Health, err = repositories.NewDependencyHealthRepository(checks); err != nil {
		return fmt.Errorf("health checks: %w", err)
	}
	in.Build = buildInfo
	in.Logger = logger

	container, err := di.NewContainer(ctx, cfg, registry, in)
	if err != nil {
		return fmt.Errorf("services: %w", err)
	}
	cleanup.add("firestore", container.Close)

	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase, auth.WithRevocationCheck(cfg.Security.CheckRevoked))
	if err != nil {
		return fmt.Errorf("firebase verifier: %w", err)
	}
	replayStore, err := idempotency.NewFirestoreStore(provider, cfg.Idempotency.Collection)
	if err != nil {
		return fmt.Errorf("idempotency store: %w", err)
	}

	server := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: newRouter(cfg, logger, container.Services, buildInfo,
			auth.NewAuthenticator(verifier, auth.WithRoleClaim(cfg.Security.RoleClaim)),
			replayStore,
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	logger.Named("http").Info("back office listening",
		zap.String("addr", server.Addr),
		zap.String("version", buildInfo.Version),
		zap.Bool("labels", in.Carrier != nil),
		zap.Bool("forwarding", in.Partner != nil),
	)
	return serve(ctx, server, logger)
}

func newRouter(cfg config.Config, logger *zap.Logger, svc di.Services, build services.BuildInfo, authn *auth.Authenticator, replays idempotency.Store) http.Handler {
	return handlers.NewRouter(
		handlers.WithRequestTimeout(cfg.Server.RequestTimeout),
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(traceProjectID(cfg)),
			observability.RecoveryMiddleware(logger),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithAPIMiddlewares(
			authn.RequireRoles(cfg.Security.StaffRoles...),
			idempotency.Middleware(replays, idempotency.WithTTL(cfg.Idempotency.TTL)),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthSystemService(svc.System),
			handlers.WithHealthBuildInfo(build),
		)),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(svc.Documents, svc.Fulfillment, svc.Labels).Routes),
		handlers.WithRateRoutes(handlers.NewRateHandlers(svc.Rates).Routes),
		handlers.WithSKUMapRoutes(handlers.NewSKUMapHandlers(svc.Fulfillment).Routes),
	)
}

// serve blocks until the listener fails or ctx is done, then shuts the server down.
func serve(ctx context.Context, server *http.Server, logger *zap.Logger) error {
	failed := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
		close(failed)
	}()

	select {
	case err := <-failed:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received; draining requests")
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	pick := func(value, fallback string) string {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
		return fallback
	}
	return services.BuildInfo{
		Version:     pick(env["BO_BUILD_VERSION"], "dev"),
		CommitSHA:   pick(env["BO_BUILD_COMMIT_SHA"], "unknown"),
		Environment: pick(cfg.Security.Environment, "local"),
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
