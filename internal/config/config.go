package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/marketplace/internal/engine"
	pkgconfig "github.com/utafrali/marketplace/pkg/config"
	"github.com/utafrali/marketplace/pkg/database"
	"github.com/utafrali/marketplace/pkg/httpclient"
	"github.com/utafrali/marketplace/pkg/middleware"
	"github.com/utafrali/marketplace/pkg/tracing"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Notifier backends.
const (
	NotifierMemory = "memory"
	NotifierRedis  = "redis"
	NotifierKafka  = "kafka"
)

// Order backends.
const (
	OrderBackendHTTP     = "http"
	OrderBackendPostgres = "postgres"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// InstanceID names this process to the notifier backends. A random id
	// is generated when unset.
	InstanceID string `env:"INSTANCE_ID"`

	// HTTP server
	HTTPPort           int `env:"STOREFRONT_HTTP_PORT" envDefault:"8010"`
	RequestTimeoutSecs int `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
	SSEHeartbeatSecs   int `env:"SSE_HEARTBEAT_SECONDS" envDefault:"25"`

	// Storage
	StorageBackend    string `env:"STORAGE_BACKEND" envDefault:"memory"`
	StorageQuotaBytes int    `env:"STORAGE_QUOTA_BYTES" envDefault:"5242880"`
	StorageKeyPrefix  string `env:"STORAGE_KEY_PREFIX" envDefault:"storefront:"`
	StorageTTLHours   int    `env:"STORAGE_TTL_HOURS" envDefault:"720"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Cross-tab notifier
	NotifierBackend string `env:"NOTIFIER_BACKEND" envDefault:"memory"`
	NotifierChannel string `env:"NOTIFIER_CHANNEL" envDefault:"storefront:changes"`

	// State managers
	ConflictPolicy string `env:"CONFLICT_POLICY" envDefault:"last-write-wins"`

	// Kafka
	KafkaBrokers        []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	DomainEventsEnabled bool     `env:"DOMAIN_EVENTS_ENABLED" envDefault:"false"`

	// Order placement
	OrderBackend    string `env:"ORDER_BACKEND" envDefault:"http"`
	OrderServiceURL string `env:"ORDER_SERVICE_URL" envDefault:"http://localhost:8003"`

	// Circuit breaker for the order service
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"storefront"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:""`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"storefront"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"1"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Per-profile API rate limit (0 RPS disables)
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// Pprof debug endpoints (IP allowlist in CIDR notation, empty disables)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return LoadFrom(nil)
}

// LoadFrom is Load over an explicit environment. A nil map reads the
// process environment.
func LoadFrom(environment map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFrom(cfg, environment); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	c.NotifierBackend = strings.ToLower(strings.TrimSpace(c.NotifierBackend))
	c.OrderBackend = strings.ToLower(strings.TrimSpace(c.OrderBackend))
	if c.InstanceID == "" {
		c.InstanceID = uuid.NewString()
	}
}

// validate checks configuration invariants. Every violation is reported.
func (c *Config) validate() error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}
	if c.RequestTimeoutSecs < 1 {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive, got %d", c.RequestTimeoutSecs))
	}
	if c.SSEHeartbeatSecs < 0 {
		errs = append(errs, fmt.Errorf("SSE_HEARTBEAT_SECONDS must not be negative, got %d", c.SSEHeartbeatSecs))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must not be negative, got %g", c.RateLimitRPS))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be positive when limiting, got %d", c.RateLimitBurst))
	}

	switch c.StorageBackend {
	case StorageMemory:
		if c.StorageQuotaBytes < 0 {
			errs = append(errs, fmt.Errorf("STORAGE_QUOTA_BYTES must not be negative, got %d", c.StorageQuotaBytes))
		}
	case StorageRedis:
		if c.StorageTTLHours < 0 {
			errs = append(errs, fmt.Errorf("STORAGE_TTL_HOURS must not be negative, got %d", c.StorageTTLHours))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StorageMemory, StorageRedis, c.StorageBackend))
	}

	switch c.NotifierBackend {
	case NotifierMemory, NotifierRedis, NotifierKafka:
	default:
		errs = append(errs, fmt.Errorf("NOTIFIER_BACKEND must be one of memory, redis, kafka, got %q", c.NotifierBackend))
	}

	if c.StorageBackend == StorageRedis || c.NotifierBackend == NotifierRedis {
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required"))
		}
	}
	if c.NotifierBackend == NotifierKafka || c.DomainEventsEnabled {
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required"))
		}
	}

	if _, err := engine.ParsePolicy(c.ConflictPolicy); err != nil {
		errs = append(errs, fmt.Errorf("CONFLICT_POLICY: %w", err))
	}

	switch c.OrderBackend {
	case OrderBackendHTTP:
		if _, err := url.ParseRequestURI(c.OrderServiceURL); err != nil || c.OrderServiceURL == "" {
			errs = append(errs, fmt.Errorf("invalid ORDER_SERVICE_URL %q", c.OrderServiceURL))
		}
		if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1.0 {
			errs = append(errs, fmt.Errorf("CB_FAILURE_RATIO must be in (0, 1], got %f", c.CBFailureRatio))
		}
	case OrderBackendPostgres:
		if c.PostgresHost == "" {
			errs = append(errs, errors.New("POSTGRES_HOST is required"))
		}
		if c.PostgresUser == "" {
			errs = append(errs, errors.New("POSTGRES_USER is required"))
		}
		if c.DBMinConns > c.DBMaxConns {
			errs = append(errs, fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns))
		}
	default:
		errs = append(errs, fmt.Errorf("ORDER_BACKEND must be %q or %q, got %q", OrderBackendHTTP, OrderBackendPostgres, c.OrderBackend))
	}

	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate))
	}

	return errors.Join(errs...)
}

// Policy returns the parsed conflict policy. validate guarantees it parses.
func (c *Config) Policy() engine.Policy {
	p, _ := engine.ParsePolicy(c.ConflictPolicy)
	return p
}

// StorageTTL returns the Redis key TTL. Zero keeps keys forever.
func (c *Config) StorageTTL() time.Duration {
	return time.Duration(c.StorageTTLHours) * time.Hour
}

// RedisConfig returns the Redis client settings.
func (c *Config) RedisConfig() database.RedisConfig {
	cfg := database.DefaultRedisConfig()
	cfg.Addr = c.RedisAddr
	cfg.Password = c.RedisPass
	cfg.DB = c.RedisDB
	return cfg
}

// PostgresConfig returns the order database settings.
func (c *Config) PostgresConfig() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// RateLimitConfig returns the per-profile API limiter settings.
func (c *Config) RateLimitConfig() middleware.RateLimitConfig {
	return middleware.RateLimitConfig{RPS: c.RateLimitRPS, Burst: c.RateLimitBurst}
}

// CircuitBreakerConfig returns the breaker settings for the order service.
func (c *Config) CircuitBreakerConfig() httpclient.CircuitBreakerConfig {
	return httpclient.CircuitBreakerConfig{
		Name:         "order-service",
		MaxRequests:  c.CBMaxRequests,
		Interval:     time.Duration(c.CBInterval) * time.Second,
		Timeout:      time.Duration(c.CBTimeout) * time.Second,
		FailureRatio: c.CBFailureRatio,
		MinRequests:  c.CBMinRequests,
	}
}

// TracingConfig returns the OpenTelemetry settings.
func (c *Config) TracingConfig(serviceName string) tracing.Config {
	cfg := tracing.DefaultConfig(serviceName)
	cfg.Environment = c.Environment
	cfg.OTLPEndpoint = c.OTELEndpoint
	cfg.SampleRate = c.OTELSampleRate
	cfg.Enabled = c.OTELEnabled
	return cfg
}
