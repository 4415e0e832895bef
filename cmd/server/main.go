package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "github.com/storefront/backend/docs"
	appinvoice "github.com/storefront/backend/internal/application/invoice"
	"github.com/storefront/backend/internal/domain/invoice"
	"github.com/storefront/backend/internal/infrastructure/cache"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/mail"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"github.com/storefront/backend/internal/infrastructure/printing"
	"github.com/storefront/backend/internal/infrastructure/scheduler"
	"github.com/storefront/backend/internal/infrastructure/storage"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"github.com/storefront/backend/internal/interfaces/http/handler"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"github.com/storefront/backend/internal/interfaces/http/router"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			Storefront Invoice API
//	@version		1.0
//	@description	Generates, stores and delivers PDF invoices for storefront orders.

//	@host		localhost:8080
//	@BasePath	/api/v1

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting invoice service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mp.Shutdown(shutdownCtx); err != nil {
			log.Warn("Meter provider shutdown failed", zap.Error(err))
		}
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("Tracer provider shutdown failed", zap.Error(err))
		}
	}()
	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize OTEL logs", zap.Error(err))
	}
	log = lp.Bridge(log, cfg.Telemetry.ServiceName)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := lp.Shutdown(shutdownCtx); err != nil {
			log.Warn("Logger provider shutdown failed", zap.Error(err))
		}
	}()

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
		ProfileTypes:      cfg.Profiling.ProfileTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Warn("Profiler stop failed", zap.Error(err))
		}
	}()
	if profiler.IsEnabled() && cfg.Profiling.SpanProfiles {
		tp.EnableSpanProfiles()
	}

	meter := mp.Meter("github.com/storefront/backend")

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.Open(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")
	if err := db.RegisterPoolMetrics(meter); err != nil {
		log.Fatal("Failed to register connection pool metrics", zap.Error(err))
	}

	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	if err := telemetry.NewDBTracingPlugin(dbTracing, log).RegisterOtelGorm(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	healthChecks := map[string]handler.HealthCheck{"database": db.PingContext}

	// Invoice pipeline
	renderer, err := printing.NewInvoicePDFRenderer(printing.RendererConfigFromSettings(&cfg.Invoice, log))
	if err != nil {
		log.Fatal("Failed to create invoice renderer", zap.Error(err))
	}

	store, err := newArtifactStore(ctx, cfg, log, healthChecks)
	if err != nil {
		log.Fatal("Failed to create artifact store", zap.Error(err))
	}

	mailer, err := newMailer(cfg, log)
	if err != nil {
		log.Fatal("Failed to create mailer", zap.Error(err))
	}

	invoiceMetrics, err := telemetry.NewInvoiceMetrics(telemetry.InvoiceMetricsConfig{Meter: meter, Logger: log})
	if err != nil {
		log.Fatal("Failed to create invoice metrics", zap.Error(err))
	}

	invoiceService := appinvoice.NewService(
		persistence.NewGormOrderRepository(db.DB),
		persistence.NewGormInvoiceRecordRepository(db.DB),
		renderer,
		store,
		mailer,
		log,
		appinvoice.WithMetrics(invoiceMetrics),
		appinvoice.WithRenderTimeout(cfg.Invoice.RenderTimeout),
		appinvoice.WithDownloadURLExpiry(cfg.Storage.PresignExpiration),
	)

	cleanupConfig := scheduler.DefaultCleanupSchedulerConfig()
	cleanupConfig.Retention = cfg.Invoice.Retention
	if cfg.Invoice.CleanupInterval > 0 {
		cleanupConfig.Interval = cfg.Invoice.CleanupInterval
	}
	cleanup, err := scheduler.NewCleanupScheduler(invoiceService, log, cleanupConfig)
	if err != nil {
		log.Fatal("Failed to create artifact cleanup scheduler", zap.Error(err))
	}
	if err := cleanup.Start(ctx); err != nil {
		log.Fatal("Failed to start artifact cleanup scheduler", zap.Error(err))
	}

	// HTTP
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: cfg.Telemetry.Enabled,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		CORS:           corsConfig,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Meter:          meter,
	}, log)
	if err != nil {
		log.Fatal("Failed to create HTTP engine", zap.Error(err))
	}

	var emailLimiter *middleware.RateLimiter
	if cfg.HTTP.EmailRateLimit > 0 {
		emailLimiter = middleware.NewRateLimiter(cfg.HTTP.EmailRateLimit, cfg.HTTP.EmailRateWindow)
		go emailLimiter.Run(ctx)
	}

	router.RegisterHealth(engine, handler.NewHealthHandler(version, healthChecks))
	if cfg.HTTP.SwaggerEnabled {
		router.RegisterSwagger(engine)
	}
	router.Mount(engine, router.DefaultAPIVersion,
		router.InvoiceRoutes(handler.NewInvoiceHandler(invoiceService), emailLimiter)...)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := cleanup.Stop(shutdownCtx); err != nil {
		log.Warn("Artifact cleanup scheduler did not stop", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}

// newArtifactStore builds the configured artifact store and, when Redis is
// enabled, puts the artifact cache in front of it
func newArtifactStore(ctx context.Context, cfg *config.Config, log *zap.Logger, checks map[string]handler.HealthCheck) (invoice.ArtifactStore, error) {
	var store invoice.ArtifactStore
	switch cfg.Storage.Backend {
	case "s3":
		s3Store, err := storage.NewS3ArtifactStore(&cfg.Storage, storage.WithLogger(log))
		if err != nil {
			return nil, err
		}
		if err := s3Store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		store = s3Store
	default:
		fsStore, err := printing.NewFileSystemArtifactStoreFromSettings(&cfg.Storage, log)
		if err != nil {
			return nil, err
		}
		store = fsStore
	}

	if !cfg.Redis.Enabled {
		return store, nil
	}
	client, err := cache.NewRedisClient(cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	checks["redis"] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	log.Info("Artifact cache enabled", zap.String("redis", cfg.Redis.Addr()))
	return cache.NewCachedArtifactStore(store, client, cache.ArtifactCacheConfig{
		KeyPrefix: cfg.Redis.KeyPrefix,
		TTL:       cfg.Redis.ArtifactTTL,
		MaxBytes:  cfg.Redis.MaxCacheBytes,
		Logger:    log,
	}), nil
}

func newMailer(cfg *config.Config, log *zap.Logger) (invoice.Mailer, error) {
	if !cfg.SMTP.Enabled {
		log.Warn("SMTP disabled, invoice emails will be rejected")
		return mail.DisabledMailer{}, nil
	}
	mailer, err := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:      cfg.SMTP.Host,
		Port:      cfg.SMTP.Port,
		Username:  cfg.SMTP.Username,
		Password:  cfg.SMTP.Password,
		From:      cfg.SMTP.From,
		TLSPolicy: cfg.SMTP.TLSPolicy,
		Timeout:   cfg.SMTP.Timeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("smtp: %w", err)
	}
	return mailer, nil
}
