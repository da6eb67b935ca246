package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"notification-pipeline/internal/observability/correlation"
)

const parentTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"

// useExporter installs an in-memory provider and W3C propagator for one test.
func useExporter(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return exporter
}

func attrs(s tracetest.SpanStub) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value, len(s.Attributes))
	for _, kv := range s.Attributes {
		out[kv.Key] = kv.Value
	}
	return out
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	Middleware(h).ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_RecordsServerSpan(t *testing.T) {
	exporter := useExporter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", nil)
	req.Header.Set("X-Service-Name", "billing")
	req = req.WithContext(correlation.WithID(req.Context(), "corr-7"))

	rec := serve(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}, req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "POST /api/v1/notifications", span.Name)

	a := attrs(span)
	assert.Equal(t, "POST", a["http.method"].AsString())
	assert.Equal(t, "/api/v1/notifications", a["http.path"].AsString())
	assert.Equal(t, int64(http.StatusAccepted), a["http.status_code"].AsInt64())
	assert.Equal(t, "billing", a["service.caller"].AsString())
	assert.Equal(t, "corr-7", a["correlation.id"].AsString())
	assert.Equal(t, codes.Unset, span.Status.Code)

	traceID := rec.Header().Get(TraceHeader)
	assert.Len(t, traceID, 32)
	assert.Equal(t, span.SpanContext.TraceID().String(), traceID)
}

func TestMiddleware_ImplicitStatusIsOK(t *testing.T) {
	exporter := useExporter(t)

	serve(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("alive"))
	}, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, int64(http.StatusOK), attrs(spans[0])["http.status_code"].AsInt64())
}

func TestMiddleware_ContinuesInboundTrace(t *testing.T) {
	exporter := useExporter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("traceparent", "00-"+parentTraceID+"-00f067aa0ba902b7-01")
	serve(func(w http.ResponseWriter, r *http.Request) {}, req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, parentTraceID, spans[0].SpanContext.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent.SpanID().String())
}

func TestMiddleware_StatusCodes(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantError bool
	}{
		{"client error stays unset", http.StatusNotFound, false},
		{"conflict stays unset", http.StatusConflict, false},
		{"server error", http.StatusInternalServerError, true},
		{"timeout", http.StatusGatewayTimeout, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter := useExporter(t)
			serve(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}, httptest.NewRequest(http.MethodGet, "/api/v1/notifications/req_0123456789ab", nil))

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			if tt.wantError {
				assert.Equal(t, codes.Error, spans[0].Status.Code)
			} else {
				assert.Equal(t, codes.Unset, spans[0].Status.Code)
			}
		})
	}
}

func TestMiddleware_NormalizesSpanName(t *testing.T) {
	exporter := useExporter(t)

	serve(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, httptest.NewRequest(http.MethodGet, "/api/v1/notifications/req_0123456789ab", nil))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/v1/notifications/:request_id", spans[0].Name)
	assert.Equal(t, "/api/v1/notifications/:request_id", attrs(spans[0])["http.route"].AsString())
}

func TestMiddleware_HandlerSeesSpan(t *testing.T) {
	useExporter(t)

	var seen bool
	serve(func(w http.ResponseWriter, r *http.Request) {
		seen = trace.SpanContextFromContext(r.Context()).IsValid()
	}, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.True(t, seen)
}

func TestStatusWriter_FirstStatusWins(t *testing.T) {
	sw := &statusWriter{ResponseWriter: httptest.NewRecorder()}
	sw.WriteHeader(http.StatusCreated)
	sw.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusCreated, sw.status)
}
