package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/interfaces/http/handler"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
)

// EngineConfig configures the middleware chain of the HTTP engine
type EngineConfig struct {
	ServiceName    string
	TracingEnabled bool
	MaxBodySize    int64
	CORS           middleware.CORSConfig
	TrustedProxies []string

	// Meter records HTTP server metrics; nil disables them
	Meter metric.Meter
}

// NewEngine builds a gin engine with the standard middleware chain:
// recovery, request ID, tracing, request logging, CORS, security headers,
// metrics and the body limit.
func NewEngine(cfg EngineConfig, log *zap.Logger) (*gin.Engine, error) {
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	middleware.SetupValidator()

	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName: cfg.ServiceName,
			Enabled:     cfg.TracingEnabled,
			Filter:      middleware.HealthFilter,
		}),
		middleware.SpanEnricher(),
		logger.GinMiddleware(log),
		middleware.CORS(cfg.CORS),
		middleware.Secure(),
	)

	if cfg.Meter != nil {
		metrics, err := middleware.HTTPMetrics(cfg.Meter)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
		}
		engine.Use(metrics)
	}
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}
	return engine, nil
}

// RegisterHealth mounts the liveness and readiness endpoints at the root
func RegisterHealth(engine *gin.Engine, h *handler.HealthHandler) {
	engine.GET("/health", h.Live)
	engine.GET("/health/ready", h.Ready)
}

// RegisterSwagger serves the API docs UI and doc.json under /swagger. The
// spec comes from the registered docs package, so the caller must import it.
func RegisterSwagger(engine *gin.Engine) {
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// InvoiceRoutes returns the invoice API resources. A non-nil limiter
// throttles the email endpoint per client and order.
func InvoiceRoutes(h *handler.InvoiceHandler, limiter *middleware.RateLimiter) []*Resource {
	var throttle gin.HandlerFunc
	if limiter != nil {
		throttle = middleware.RateLimitByKey(limiter, middleware.ClientAndOrderKey)
	}

	orders := NewResource("/orders").
		Handle(http.MethodPost, "/:order_id/invoice", h.Generate)

	invoices := NewResource("/invoices").
		Handle(http.MethodGet, "", h.List).
		Handle(http.MethodGet, "/:order_id", h.Get).
		Handle(http.MethodGet, "/:order_id/download", h.Download).
		Handle(http.MethodPost, "/:order_id/email", h.Email, throttle)

	return []*Resource{orders, invoices}
}
