package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/brc-ops/backoffice/internal/platform/requestctx"
)

func TestParseCloudTraceContextDecimalSpan(t *testing.T) {
	sc, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	require.True(t, ok)
	assert.Equal(t, "105445aa7843bc8bf206b12000100000", sc.TraceID().String())
	assert.Equal(t, "0000000000000001", sc.SpanID().String())
	assert.True(t, sc.IsSampled())
	assert.True(t, sc.IsRemote())
}

func TestParseCloudTraceContextRejectsMalformed(t *testing.T) {
	for _, header := range []string{"", "nothex/1", "105445aa7843bc8bf206b12000100000", "105445aa7843bc8bf206b12000100000/0;o=1"} {
		_, ok := parseCloudTraceContext(header)
		assert.False(t, ok, header)
	}
}

func TestParseSpanIDHexFallback(t *testing.T) {
	id, ok := parseSpanID("00f067aa0ba902b7")
	require.True(t, ok)
	assert.Equal(t, "00f067aa0ba902b7", id.String())
}

func TestTraceMiddlewareRecordsTraceInfo(t *testing.T) {
	var got requestctx.TraceInfo
	handler := TraceMiddleware("brc-prod")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "brc-prod", got.ProjectID)
	assert.Equal(t, "105445aa7843bc8bf206b12000100000", got.TraceID)
}

func TestRequestLoggerMiddlewareLogsStaffAndRoute(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	router := chi.NewRouter()
	router.Use(InjectLoggerMiddleware(zap.New(core)))
	router.Use(RequestLoggerMiddleware())
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestctx.SetActor(r.Context(), "ops@brc.example")
			next.ServeHTTP(w, r)
		})
	})
	router.Get("/orders/{orderID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/42", nil))

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "/orders/{orderID}", fields["route"])
	assert.Equal(t, int64(http.StatusNotFound), fields["status"])
	assert.Equal(t, "ops@brc.example", fields["staff"])
}

func TestRecoveryMiddlewareWritesEnvelope(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_server_error")
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestEventLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := EventLogger(zap.New(core))

	log(context.Background(), "fulfillment.forwarded", map[string]any{"orderId": "1"})
	log(context.Background(), "fulfillment.publish_failed", nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "1", entries[0].ContextMap()["orderId"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zapcore.InfoLevel)
	requestCore, requestLogs := observer.New(zapcore.InfoLevel)
	log := EventLogger(zap.New(fallbackCore))

	ctx := WithLogger(context.Background(), zap.New(requestCore))
	log(ctx, "labels.created", nil)

	assert.Equal(t, 0, fallbackLogs.Len())
	assert.Equal(t, 1, requestLogs.Len())
}

func TestClean(t *testing.T) {
	assert.Equal(t, "abc", clean("a\nb\tc", 10))
	assert.Equal(t, "ab", clean("abcdef", 2))
}

func TestNewLoggerWritesCloudLoggingFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(WithLevel("WARN"), WithOutput(&buf))
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("rate lookup slow", zap.String("courier", "fedex"))
	require.NoError(t, logger.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "WARNING", entry["severity"])
	assert.Equal(t, "rate lookup slow", entry["message"])
	assert.Equal(t, "fedex", entry["courier"])
	assert.Contains(t, entry, "timestamp")
}

func TestWithLevelIgnoresUnknownNames(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(WithLevel("loud"), WithOutput(&buf))
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("shown")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, zapcore.InfoLevel, levelFor(http.StatusCreated))
	assert.Equal(t, zapcore.WarnLevel, levelFor(http.StatusConflict))
	assert.Equal(t, zapcore.ErrorLevel, levelFor(http.StatusBadGateway))
}
