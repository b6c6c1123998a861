package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/brc-ops/backoffice/internal/platform/httpx"
	"github.com/brc-ops/backoffice/internal/platform/requestctx"
	"github.com/brc-ops/backoffice/internal/repositories"
	"github.com/brc-ops/backoffice/internal/services"
)

var invalidInputErrors = []error{
	services.ErrRateInvalidInput,
	services.ErrFulfillmentInvalidInput,
	services.ErrLabelInvalidInput,
	services.ErrDocumentInvalidInput,
	services.ErrCounterInvalidInput,
}

// writeServiceError maps service sentinels onto the JSON envelope. Unmapped SKUs are 422 here;
// SKU map CRUD handlers translate them to 404 before calling in.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	httpx.WriteError(ctx, w, toHTTPError(ctx, err))
}

func toHTTPError(ctx context.Context, err error) httpx.Error {
	for _, sentinel := range invalidInputErrors {
		if errors.Is(err, sentinel) {
			return httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest)
		}
	}

	var repoErr repositories.RepositoryError
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		return httpx.NewError("order_not_found", err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrSKUMapNotFound):
		return httpx.NewError("sku_unmapped", err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, services.ErrCounterExhausted):
		return httpx.NewError("counter_exhausted", err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrUnavailable):
		return httpx.NewError("service_unavailable", err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, services.ErrUpstreamFetch):
		requestctx.Logger(ctx).Warn("upstream call failed", zap.Error(err))
		return httpx.NewError("upstream_failed", "upstream service call failed", http.StatusBadGateway)
	case errors.As(err, &repoErr) && repoErr.IsNotFound():
		return httpx.NewError("not_found", "resource not found", http.StatusNotFound)
	case errors.As(err, &repoErr) && repoErr.IsUnavailable():
		return httpx.NewError("storage_unavailable", "storage temporarily unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		return httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout)
	}

	requestctx.Logger(ctx).Error("request failed", zap.Error(err))
	return httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError)
}

func serviceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}
