package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brc-ops/backoffice/internal/platform/httpx"
)

const (
	apiPrefix         = "/api/v1"
	errorNotFoundCode = "route_not_found"
)

// resourcePaths are mounted under /api/v1 in this order. A path without routes answers 501.
var resourcePaths = []string{"/orders", "/rates", "/sku-maps"}

// RouteRegistrar adds one resource's routes to r.
type RouteRegistrar func(r chi.Router)

type router struct {
	timeout   time.Duration
	global    []func(http.Handler) http.Handler
	api       []func(http.Handler) http.Handler
	health    *HealthHandlers
	resources map[string]RouteRegistrar
}

// Option configures NewRouter.
type Option func(*router)

// WithMiddlewares runs mw on every request, after request id, real ip and timeout.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(rt *router) { rt.global = append(rt.global, mw...) }
}

// WithAPIMiddlewares runs mw on /api/v1 only; probes stay public.
func WithAPIMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(rt *router) { rt.api = append(rt.api, mw...) }
}

// WithRequestTimeout overrides the 60s per-request deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(rt *router) {
		if d > 0 {
			rt.timeout = d
		}
	}
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(rt *router) { rt.health = h }
}

// WithResource mounts routes at /api/v1{path}.
func WithResource(path string, routes RouteRegistrar) Option {
	return func(rt *router) { rt.resources[path] = routes }
}

func WithOrderRoutes(routes RouteRegistrar) Option  { return WithResource("/orders", routes) }
func WithRateRoutes(routes RouteRegistrar) Option   { return WithResource("/rates", routes) }
func WithSKUMapRoutes(routes RouteRegistrar) Option { return WithResource("/sku-maps", routes) }

// NewRouter builds the back-office HTTP surface.
func NewRouter(opts ...Option) chi.Router {
	rt := &router{timeout: 60 * time.Second, resources: make(map[string]RouteRegistrar)}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.health == nil {
		rt.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Timeout(rt.timeout))
	use(r, rt.global)
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed",
			fmt.Sprintf("%s is not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", rt.health.Healthz)
	r.Get("/readyz", rt.health.Readyz)

	r.Route(apiPrefix, func(api chi.Router) {
		// Compression sits outside the API middlewares so idempotent replays store plain bodies.
		api.Use(middleware.Compress(5, "text/html"))
		use(api, rt.api)
		for _, path := range resourcePaths {
			routes := rt.resources[path]
			if routes == nil {
				routes = notImplemented(path)
			}
			api.Route(path, routes)
		}
	})
	return r
}

func use(r chi.Router, mws []func(http.Handler) http.Handler) {
	for _, mw := range mws {
		if mw != nil {
			r.Use(mw)
		}
	}
}

func notImplemented(path string) RouteRegistrar {
	return func(r chi.Router) {
		handler := func(w http.ResponseWriter, req *http.Request) {
			httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented",
				fmt.Sprintf("%s is not available on this deployment", apiPrefix+path), http.StatusNotImplemented))
		}
		r.HandleFunc("/", handler)
		r.HandleFunc("/*", handler)
	}
}
