package persistence

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/storefront/backend/internal/infrastructure/config"
)

// Database owns the GORM connection pool of the order and invoice tables
type Database struct {
	DB *gorm.DB
}

// Option configures Open
type Option func(*gorm.Config)

// WithGormLogger routes GORM's query log through l, usually the zap adapter
func WithGormLogger(l logger.Interface) Option {
	return func(c *gorm.Config) {
		c.Logger = l
	}
}

// Open connects to postgres, sizes the pool from cfg and pings the server.
// Without options GORM logging is silent.
func Open(cfg *config.DatabaseConfig, opts ...Option) (*Database, error) {
	gormCfg := &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	}
	for _, opt := range opts {
		opt(gormCfg)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Database{DB: db}, nil
}

// Close closes the pool
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// PingContext checks the connection within the deadline of ctx. It backs the
// readiness check.
func (d *Database) PingContext(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// PoolStats is a snapshot of the connection pool
type PoolStats struct {
	MaxOpen      int
	Open         int
	InUse        int
	Idle         int
	WaitCount    int64
	WaitDuration time.Duration
}

// Stats returns the current pool statistics
func (d *Database) Stats() (PoolStats, error) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return PoolStats{}, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	s := sqlDB.Stats()
	return PoolStats{
		MaxOpen:      s.MaxOpenConnections,
		Open:         s.OpenConnections,
		InUse:        s.InUse,
		Idle:         s.Idle,
		WaitCount:    s.WaitCount,
		WaitDuration: s.WaitDuration,
	}, nil
}

var (
	poolStateUsed = attribute.String("state", "used")
	poolStateIdle = attribute.String("state", "idle")
)

// RegisterPoolMetrics publishes the pool statistics as observable instruments
// read at every collection
func (d *Database) RegisterPoolMetrics(meter metric.Meter) error {
	usage, err := meter.Int64ObservableGauge("db.client.connections.usage",
		metric.WithDescription("Connections in the pool by state"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return fmt.Errorf("failed to create pool usage gauge: %w", err)
	}
	maxOpen, err := meter.Int64ObservableGauge("db.client.connections.max",
		metric.WithDescription("Maximum number of open connections"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return fmt.Errorf("failed to create pool max gauge: %w", err)
	}
	waits, err := meter.Int64ObservableCounter("db.client.connections.wait_count",
		metric.WithDescription("Connections waited for"),
		metric.WithUnit("{wait}"))
	if err != nil {
		return fmt.Errorf("failed to create pool wait counter: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s, err := d.Stats()
		if err != nil {
			return err
		}
		o.ObserveInt64(usage, int64(s.InUse), metric.WithAttributes(poolStateUsed))
		o.ObserveInt64(usage, int64(s.Idle), metric.WithAttributes(poolStateIdle))
		o.ObserveInt64(maxOpen, int64(s.MaxOpen))
		o.ObserveInt64(waits, s.WaitCount)
		return nil
	}, usage, maxOpen, waits)
	if err != nil {
		return fmt.Errorf("failed to register pool metrics callback: %w", err)
	}
	return nil
}
