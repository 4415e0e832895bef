package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/storefront/backend/internal/infrastructure/telemetry"
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// Filter, when set, skips tracing for requests it returns false for
	Filter func(*http.Request) bool
}

// Tracing starts a server span per request through otelgin. SpanEnricher
// adds the invoice attributes.
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	opts := []otelgin.Option{}
	if cfg.Filter != nil {
		opts = append(opts, otelgin.WithFilter(cfg.Filter))
	}
	return otelgin.Middleware(cfg.ServiceName, opts...)
}

// SpanEnricher adds request attributes to the server span and marks error
// responses. It runs after Tracing and RequestID.
func SpanEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}

		if requestID := GetRequestID(c); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		if orderID, err := uuid.Parse(c.Param("order_id")); err == nil {
			span.SetAttributes(attribute.String(telemetry.SpanAttrOrderID, orderID.String()))
		}

		c.Next()

		status := c.Writer.Status()
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		if status >= http.StatusBadRequest {
			span.SetAttributes(attribute.Int("http.status_code", status))
		}
	}
}

// HealthFilter keeps health check requests out of traces
func HealthFilter(r *http.Request) bool {
	return r.URL.Path != "/health" && r.URL.Path != "/health/ready"
}
