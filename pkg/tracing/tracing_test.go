package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestMiddlewareNamesSpanAfterRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	var inRequest trace.SpanContext
	e := echo.New()
	e.Use(Middleware(provider.Tracer("coop-test")))
	e.POST("/api/applications/:id/approve", func(c echo.Context) error {
		inRequest = trace.SpanFromContext(c.Request().Context()).SpanContext()
		return c.NoContent(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/applications/42/approve", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "[POST] /api/applications/:id/approve", spans[0].Name())
	assert.True(t, inRequest.IsValid())
	assert.Equal(t, spans[0].SpanContext().SpanID(), inRequest.SpanID())
}
