package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Vault         VaultConfig         `mapstructure:"vault"`
	Checkout      CheckoutConfig      `mapstructure:"checkout"`
	Idempotency   IdempotencyConfig   `mapstructure:"idempotency"`
	Webhook       WebhookConfig       `mapstructure:"webhook"`
	Events        EventsConfig        `mapstructure:"events"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RateLimit is requests per minute per client IP on /api/v1; 0 disables it
	RateLimit       int           `mapstructure:"rate_limit"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// VaultConfig holds the master secret the credential encryption key is derived from.
type VaultConfig struct {
	MasterKey string `mapstructure:"master_key"`
}

// CheckoutConfig holds order pricing and provider call settings
type CheckoutConfig struct {
	DefaultCurrency         string        `mapstructure:"default_currency"`
	TaxRate                 string        `mapstructure:"tax_rate"`
	SuccessURL              string        `mapstructure:"success_url"`
	CancelURL               string        `mapstructure:"cancel_url"`
	ProviderTimeout         time.Duration `mapstructure:"provider_timeout"`
	MaxRetries              uint          `mapstructure:"max_retries"`
	RetryDelay              time.Duration `mapstructure:"retry_delay"`
	CircuitBreakerThreshold uint32        `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
	EnableMockProvider      bool          `mapstructure:"enable_mock_provider"`
}

// TaxRateDecimal returns the parsed tax rate. Validate guarantees it parses.
func (c *CheckoutConfig) TaxRateDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(c.TaxRate)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// IdempotencyConfig selects the shared store for client idempotency keys
type IdempotencyConfig struct {
	Store         string        `mapstructure:"store"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type WebhookConfig struct {
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	ReclaimAfter      time.Duration `mapstructure:"reclaim_after"`
	Retention         time.Duration `mapstructure:"retention"`
	RetentionInterval time.Duration `mapstructure:"retention_interval"`
	RateLimit         int           `mapstructure:"rate_limit"`
}

// EventsConfig selects where the outbox relay publishes order events
type EventsConfig struct {
	Backend      string   `mapstructure:"backend"`
	RedisStream  string   `mapstructure:"redis_stream"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
}

type WorkerConfig struct {
	BatchSize          int           `mapstructure:"batch_size"`
	OutboxPollInterval time.Duration `mapstructure:"outbox_poll_interval"`
	LockTTL            time.Duration `mapstructure:"lock_ttl"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

// Load reads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ORDERS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/orders")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields have valid values.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if len(c.Vault.MasterKey) < 32 {
		errs = append(errs, fmt.Errorf("vault.master_key must be at least 32 characters"))
	}
	if len(c.Checkout.DefaultCurrency) != 3 {
		errs = append(errs, fmt.Errorf("checkout.default_currency must be a 3-letter ISO code"))
	}
	if rate, err := decimal.NewFromString(c.Checkout.TaxRate); err != nil || rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("checkout.tax_rate must be a decimal in [0, 1), got %q", c.Checkout.TaxRate))
	}
	if c.Checkout.ProviderTimeout <= 0 {
		errs = append(errs, fmt.Errorf("checkout.provider_timeout must be positive"))
	}
	if c.Idempotency.Store != "postgres" && c.Idempotency.Store != "redis" {
		errs = append(errs, fmt.Errorf("idempotency.store must be postgres or redis, got %q", c.Idempotency.Store))
	}
	if c.Idempotency.TTL <= 0 {
		errs = append(errs, fmt.Errorf("idempotency.ttl must be positive"))
	}
	if c.Webhook.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("webhook.max_body_bytes must be positive"))
	}
	if c.Webhook.ReclaimAfter <= 0 {
		errs = append(errs, fmt.Errorf("webhook.reclaim_after must be positive"))
	}
	switch c.Events.Backend {
	case "redis":
	case "kafka":
		if len(c.Events.KafkaBrokers) == 0 {
			errs = append(errs, fmt.Errorf("events.kafka_brokers is required for the kafka backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("events.backend must be redis or kafka, got %q", c.Events.Backend))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}

	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("auth.jwt_secret required in production"))
		}
		if c.Checkout.EnableMockProvider {
			errs = append(errs, fmt.Errorf("checkout.enable_mock_provider must be off in production"))
		}
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit", 300)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "orders")
	v.SetDefault("database.password", "orders")
	v.SetDefault("database.database", "orders")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("vault.master_key", "")

	// Checkout defaults
	v.SetDefault("checkout.default_currency", "USD")
	v.SetDefault("checkout.tax_rate", "0")
	v.SetDefault("checkout.success_url", "http://localhost:3000/orders/{ORDER_ID}/success")
	v.SetDefault("checkout.cancel_url", "http://localhost:3000/orders/{ORDER_ID}/cancel")
	v.SetDefault("checkout.provider_timeout", "10s")
	v.SetDefault("checkout.max_retries", 3)
	v.SetDefault("checkout.retry_delay", "200ms")
	v.SetDefault("checkout.circuit_breaker_threshold", 10)
	v.SetDefault("checkout.circuit_breaker_timeout", "30s")
	v.SetDefault("checkout.enable_mock_provider", false)

	// Idempotency defaults
	v.SetDefault("idempotency.store", "postgres")
	v.SetDefault("idempotency.ttl", "1h")
	v.SetDefault("idempotency.sweep_interval", "5m")

	// Webhook defaults
	v.SetDefault("webhook.max_body_bytes", 1<<20)
	v.SetDefault("webhook.reclaim_after", "5m")
	v.SetDefault("webhook.retention", "720h")
	v.SetDefault("webhook.retention_interval", "1h")
	v.SetDefault("webhook.rate_limit", 600)

	// Events defaults
	v.SetDefault("events.backend", "redis")
	v.SetDefault("events.redis_stream", "orders:events")
	v.SetDefault("events.kafka_brokers", []string{})
	v.SetDefault("events.kafka_topic", "order-events")

	// Worker defaults
	v.SetDefault("worker.batch_size", 50)
	v.SetDefault("worker.outbox_poll_interval", "2s")
	v.SetDefault("worker.lock_ttl", "30s")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	v.SetDefault("instance_id", "orders-1")
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
