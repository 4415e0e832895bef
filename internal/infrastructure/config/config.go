package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/currency"

	"github.com/storefront/backend/internal/domain/invoice"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Invoice   InvoiceConfig
	Storage   StorageConfig
	SMTP      SMTPConfig
	Telemetry TelemetryConfig
	Profiling ProfilingConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings. Redis only caches rendered
// invoices; the service runs without it when Enabled is false.
type RedisConfig struct {
	Enabled       bool
	Host          string
	Port          int
	Password      string
	DB            int
	KeyPrefix     string
	ArtifactTTL   time.Duration
	MaxCacheBytes int64 // documents larger than this are not cached
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
	EmailRateLimit   int // invoice emails per client per window, 0 disables the limit
	EmailRateWindow  time.Duration
	SwaggerEnabled   bool // serve the API docs under /swagger
}

// InvoiceConfig holds invoice layout and artifact lifecycle settings
type InvoiceConfig struct {
	PaperSize       string // A4, LETTER, LEGAL
	Orientation     string // PORTRAIT, LANDSCAPE
	MarginTop       float64
	MarginRight     float64
	MarginBottom    float64
	MarginLeft      float64
	FontFamily      string
	FontSize        float64 // points
	LineSpacing     float64
	RowGap          float64 // millimeters
	CellPadding     float64 // millimeters
	Currency        string  // ISO 4217 code printed after every amount
	Title           string
	Compress        bool
	RenderTimeout   time.Duration
	Retention       time.Duration // artifacts older than this are removed, 0 keeps them forever
	CleanupInterval time.Duration
}

// Margins returns the configured page margins
func (c InvoiceConfig) Margins() invoice.Margins {
	return invoice.Margins{
		Top:    c.MarginTop,
		Right:  c.MarginRight,
		Bottom: c.MarginBottom,
		Left:   c.MarginLeft,
	}
}

// StorageConfig selects and configures the artifact store
type StorageConfig struct {
	Backend           string // local or s3
	LocalPath         string
	Endpoint          string
	Region            string
	Bucket            string
	Prefix            string
	AccessKey         string
	SecretKey         string
	UseSSL            bool
	UsePathStyle      bool
	PresignExpiration time.Duration
}

// SMTPConfig holds outbound mail settings
type SMTPConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	TLSPolicy string // mandatory, opportunistic, none
	Timeout   time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsInterval   time.Duration
	DBTraceEnabled    bool // Enable database query tracing (otelgorm)
	LogsEnabled       bool // Also export zap logs over OTLP
}

// ProfilingConfig holds Pyroscope continuous profiling settings
type ProfilingConfig struct {
	Enabled           bool
	ServerAddress     string // e.g. http://pyroscope:4040
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
	ProfileTypes      []string // cpu, alloc_objects, alloc_space, inuse_objects, inuse_space, goroutines, mutex, block
	SpanProfiles      bool     // label CPU samples with the active span id
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with SHOP_ prefix (e.g., SHOP_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	return load(v)
}

// LoadFile loads configuration from an explicit TOML file plus environment variables
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("SHOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// booleans that default to true cannot be told apart from unset after Get
	v.SetDefault("invoice.compress", true)
	v.SetDefault("storage.use_path_style", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:       v.GetBool("redis.enabled"),
			Host:          v.GetString("redis.host"),
			Port:          v.GetInt("redis.port"),
			Password:      v.GetString("redis.password"),
			DB:            v.GetInt("redis.db"),
			KeyPrefix:     v.GetString("redis.key_prefix"),
			ArtifactTTL:   v.GetDuration("redis.artifact_ttl"),
			MaxCacheBytes: v.GetInt64("redis.max_cache_bytes"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			EmailRateLimit:   v.GetInt("http.email_rate_limit"),
			EmailRateWindow:  v.GetDuration("http.email_rate_window"),
			SwaggerEnabled:   v.GetBool("http.swagger_enabled"),
		},
		Invoice: InvoiceConfig{
			PaperSize:       v.GetString("invoice.paper_size"),
			Orientation:     v.GetString("invoice.orientation"),
			MarginTop:       v.GetFloat64("invoice.margin_top"),
			MarginRight:     v.GetFloat64("invoice.margin_right"),
			MarginBottom:    v.GetFloat64("invoice.margin_bottom"),
			MarginLeft:      v.GetFloat64("invoice.margin_left"),
			FontFamily:      v.GetString("invoice.font_family"),
			FontSize:        v.GetFloat64("invoice.font_size"),
			LineSpacing:     v.GetFloat64("invoice.line_spacing"),
			RowGap:          v.GetFloat64("invoice.row_gap"),
			CellPadding:     v.GetFloat64("invoice.cell_padding"),
			Currency:        v.GetString("invoice.currency"),
			Title:           v.GetString("invoice.title"),
			Compress:        v.GetBool("invoice.compress"),
			RenderTimeout:   v.GetDuration("invoice.render_timeout"),
			Retention:       v.GetDuration("invoice.retention"),
			CleanupInterval: v.GetDuration("invoice.cleanup_interval"),
		},
		Storage: StorageConfig{
			Backend:           v.GetString("storage.backend"),
			LocalPath:         v.GetString("storage.local_path"),
			Endpoint:          v.GetString("storage.endpoint"),
			Region:            v.GetString("storage.region"),
			Bucket:            v.GetString("storage.bucket"),
			Prefix:            v.GetString("storage.prefix"),
			AccessKey:         v.GetString("storage.access_key"),
			SecretKey:         v.GetString("storage.secret_key"),
			UseSSL:            v.GetBool("storage.use_ssl"),
			UsePathStyle:      v.GetBool("storage.use_path_style"),
			PresignExpiration: v.GetDuration("storage.presign_expiration"),
		},
		SMTP: SMTPConfig{
			Enabled:   v.GetBool("smtp.enabled"),
			Host:      v.GetString("smtp.host"),
			Port:      v.GetInt("smtp.port"),
			Username:  v.GetString("smtp.username"),
			Password:  v.GetString("smtp.password"),
			From:      v.GetString("smtp.from"),
			TLSPolicy: v.GetString("smtp.tls_policy"),
			Timeout:   v.GetDuration("smtp.timeout"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
		},
		Profiling: ProfilingConfig{
			Enabled:           v.GetBool("profiling.enabled"),
			ServerAddress:     v.GetString("profiling.server_address"),
			ApplicationName:   v.GetString("profiling.application_name"),
			BasicAuthUser:     v.GetString("profiling.basic_auth_user"),
			BasicAuthPassword: v.GetString("profiling.basic_auth_password"),
			ProfileTypes:      v.GetStringSlice("profiling.profile_types"),
			SpanProfiles:      v.GetBool("profiling.span_profiles"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "storefront-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "storefront"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "invoice:artifact:"
	}
	if cfg.Redis.ArtifactTTL == 0 {
		cfg.Redis.ArtifactTTL = 10 * time.Minute
	}
	if cfg.Redis.MaxCacheBytes == 0 {
		cfg.Redis.MaxCacheBytes = 2 << 20 // 2MB
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	// An empty origin list allows no cross-origin requests until configured.
	if cfg.HTTP.EmailRateWindow == 0 {
		cfg.HTTP.EmailRateWindow = time.Minute
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}

	inv := &cfg.Invoice
	if inv.PaperSize == "" {
		inv.PaperSize = string(invoice.PaperSizeA4)
	}
	if inv.Orientation == "" {
		inv.Orientation = string(invoice.OrientationPortrait)
	}
	inv.PaperSize = strings.ToUpper(strings.TrimSpace(inv.PaperSize))
	inv.Orientation = strings.ToUpper(strings.TrimSpace(inv.Orientation))
	defaults := invoice.DefaultMargins()
	if inv.MarginTop == 0 && inv.MarginRight == 0 && inv.MarginBottom == 0 && inv.MarginLeft == 0 {
		inv.MarginTop, inv.MarginRight, inv.MarginBottom, inv.MarginLeft =
			defaults.Top, defaults.Right, defaults.Bottom, defaults.Left
	}
	if inv.FontFamily == "" {
		inv.FontFamily = "Helvetica"
	}
	if inv.FontSize == 0 {
		inv.FontSize = 9
	}
	if inv.LineSpacing == 0 {
		inv.LineSpacing = 1.4
	}
	if inv.RowGap == 0 {
		inv.RowGap = 2
	}
	if inv.CellPadding == 0 {
		inv.CellPadding = 1
	}
	if inv.Currency == "" {
		inv.Currency = invoice.DefaultCurrency
	}
	inv.Currency = strings.ToUpper(inv.Currency)
	if inv.Title == "" {
		inv.Title = "INVOICE"
	}
	if inv.RenderTimeout == 0 {
		inv.RenderTimeout = 30 * time.Second
	}
	if inv.CleanupInterval == 0 {
		inv.CleanupInterval = time.Hour
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./data/invoices"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "invoices/"
	}
	if cfg.Storage.PresignExpiration == 0 {
		cfg.Storage.PresignExpiration = 15 * time.Minute
	}

	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.SMTP.TLSPolicy == "" {
		cfg.SMTP.TLSPolicy = "mandatory"
	}
	if cfg.SMTP.Timeout == 0 {
		cfg.SMTP.Timeout = 15 * time.Second
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 30 * time.Second
	}
	if cfg.Profiling.ApplicationName == "" {
		cfg.Profiling.ApplicationName = cfg.Telemetry.ServiceName
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{"cpu", "alloc_space", "inuse_space", "goroutines"}
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if err := c.Invoice.validate(); err != nil {
		return err
	}

	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend must be local or s3, got %q", c.Storage.Backend)
	}

	if c.SMTP.Enabled {
		if c.SMTP.Host == "" {
			return fmt.Errorf("smtp.host is required when smtp is enabled")
		}
		if c.SMTP.From == "" {
			return fmt.Errorf("smtp.from is required when smtp is enabled")
		}
		switch c.SMTP.TLSPolicy {
		case "mandatory", "opportunistic", "none":
		default:
			return fmt.Errorf("smtp.tls_policy must be mandatory, opportunistic or none, got %q", c.SMTP.TLSPolicy)
		}
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.SMTP.Enabled && c.SMTP.TLSPolicy == "none" {
			return fmt.Errorf("smtp.tls_policy cannot be 'none' in production")
		}
		if c.HTTP.SwaggerEnabled {
			return fmt.Errorf("http.swagger_enabled must be false in production")
		}
	}

	if c.Profiling.Enabled && c.Profiling.ServerAddress == "" {
		return fmt.Errorf("profiling.server_address is required when profiling is enabled")
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

func (c InvoiceConfig) validate() error {
	size, err := invoice.ParsePaperSize(c.PaperSize)
	if err != nil {
		return fmt.Errorf("invoice.paper_size: %w", err)
	}
	orientation := invoice.Orientation(c.Orientation)
	if orientation != invoice.OrientationPortrait && orientation != invoice.OrientationLandscape {
		return fmt.Errorf("invoice.orientation must be PORTRAIT or LANDSCAPE, got %q", c.Orientation)
	}
	if err := invoice.NewPageGeometry(size, orientation, c.Margins()).Validate(); err != nil {
		return fmt.Errorf("invoice margins: %w", err)
	}
	if c.FontSize <= 0 {
		return fmt.Errorf("invoice.font_size must be positive")
	}
	if _, err := currency.ParseISO(c.Currency); err != nil {
		return fmt.Errorf("invoice.currency %q is not an ISO 4217 code: %w", c.Currency, err)
	}
	if c.Retention < 0 {
		return fmt.Errorf("invoice.retention cannot be negative")
	}
	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the host:port address of the Redis server
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
