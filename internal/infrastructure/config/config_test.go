package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "test",
			Password: "test",
			Database: "test_db",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Vault: VaultConfig{MasterKey: "0123456789abcdef0123456789abcdef"},
		Checkout: CheckoutConfig{
			DefaultCurrency: "USD",
			TaxRate:         "0.0825",
			ProviderTimeout: 10 * time.Second,
		},
		Idempotency: IdempotencyConfig{Store: "postgres", TTL: time.Hour},
		Webhook: WebhookConfig{
			MaxBodyBytes: 1 << 20,
			ReclaimAfter: 5 * time.Minute,
		},
		Events: EventsConfig{Backend: "redis", RedisStream: "orders:events"},
		Worker: WorkerConfig{BatchSize: 10},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	err := validConfig().Validate()
	assert.NoError(t, err)
}

func TestConfig_Validate_InvalidServerPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"port too low", 0},
		{"port negative", -1},
		{"port too high", 99999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Port = tt.port

			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "server.port")
		})
	}
}

func TestConfig_Validate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"read timeout", func(c *Config) { c.Server.ReadTimeout = 0 }, "read_timeout"},
		{"write timeout", func(c *Config) { c.Server.WriteTimeout = 0 }, "write_timeout"},
		{"database host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"database port", func(c *Config) { c.Database.Port = 0 }, "database.port"},
		{"redis port", func(c *Config) { c.Redis.Port = 0 }, "redis.port"},
		{"short master key", func(c *Config) { c.Vault.MasterKey = "short" }, "vault.master_key"},
		{"currency", func(c *Config) { c.Checkout.DefaultCurrency = "US" }, "checkout.default_currency"},
		{"tax rate garbage", func(c *Config) { c.Checkout.TaxRate = "abc" }, "checkout.tax_rate"},
		{"tax rate negative", func(c *Config) { c.Checkout.TaxRate = "-0.1" }, "checkout.tax_rate"},
		{"tax rate too high", func(c *Config) { c.Checkout.TaxRate = "1" }, "checkout.tax_rate"},
		{"provider timeout", func(c *Config) { c.Checkout.ProviderTimeout = 0 }, "checkout.provider_timeout"},
		{"idempotency store", func(c *Config) { c.Idempotency.Store = "memory" }, "idempotency.store"},
		{"idempotency ttl", func(c *Config) { c.Idempotency.TTL = 0 }, "idempotency.ttl"},
		{"webhook body limit", func(c *Config) { c.Webhook.MaxBodyBytes = 0 }, "webhook.max_body_bytes"},
		{"webhook reclaim", func(c *Config) { c.Webhook.ReclaimAfter = 0 }, "webhook.reclaim_after"},
		{"events backend", func(c *Config) { c.Events.Backend = "nats" }, "events.backend"},
		{"kafka brokers", func(c *Config) { c.Events.Backend = "kafka" }, "events.kafka_brokers"},
		{"worker batch size", func(c *Config) { c.Worker.BatchSize = 0 }, "worker.batch_size"},
		{"short jwt secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "auth.jwt_secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_Validate_KafkaBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Events.Backend = "kafka"
	cfg.Events.KafkaBrokers = []string{"localhost:9092"}

	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate()
	require.Error(t, err)

	errStr := err.Error()
	assert.Contains(t, errStr, "server.port")
	assert.Contains(t, errStr, "read_timeout")
	assert.Contains(t, errStr, "database.host")
	assert.Contains(t, errStr, "redis.port")
	assert.Contains(t, errStr, "vault.master_key")
	assert.Contains(t, errStr, "idempotency.store")
	assert.Contains(t, errStr, "events.backend")
	assert.Contains(t, errStr, "worker.batch_size")
}

func TestConfig_Validate_Production(t *testing.T) {
	t.Setenv("ENV", "production")

	cfg := validConfig()
	cfg.Database.Password = ""
	cfg.Checkout.EnableMockProvider = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.password")
	assert.Contains(t, err.Error(), "auth.jwt_secret")
	assert.Contains(t, err.Error(), "enable_mock_provider")
}

func TestCheckoutConfig_TaxRateDecimal(t *testing.T) {
	cfg := CheckoutConfig{TaxRate: "0.0825"}
	assert.Equal(t, "0.0825", cfg.TaxRateDecimal().String())

	cfg.TaxRate = "nope"
	assert.True(t, cfg.TaxRateDecimal().IsZero())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.example.com",
		Port:     5432,
		User:     "app_user",
		Password: "secret",
		Database: "orders_db",
		SSLMode:  "require",
	}

	assert.Equal(t,
		"host=db.example.com port=5432 user=app_user password=secret dbname=orders_db sslmode=require",
		cfg.DatabaseDSN())
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "redis.example.com", Port: 6380}
	assert.Equal(t, "redis.example.com:6380", cfg.RedisAddr())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ORDERS_VAULT_MASTER_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("ORDERS_SERVER_PORT", "9090")
	t.Setenv("ORDERS_CHECKOUT_TAX_RATE", "0.05")
	t.Setenv("ORDERS_IDEMPOTENCY_STORE", "redis")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.05", cfg.Checkout.TaxRate)
	assert.Equal(t, "redis", cfg.Idempotency.Store)
	assert.Equal(t, time.Hour, cfg.Idempotency.TTL)
	assert.Equal(t, 720*time.Hour, cfg.Webhook.Retention)
	assert.Equal(t, "USD", cfg.Checkout.DefaultCurrency)
}
