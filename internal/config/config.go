package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Env string `envconfig:"ENV" default:"development"`

	HTTP     HTTPConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Gateway  GatewayConfig
	Webhook  WebhookConfig
}

type HTTPConfig struct {
	Addr            string        `envconfig:"HTTP_ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"5s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

type DatabaseConfig struct {
	// postgreSQL connection string.
	DSN string `envconfig:"DATABASE_DSN" required:"true"`

	// where golang-migrate looks for SQL files.
	MigrationsPath string `envconfig:"DATABASE_MIGRATIONS_PATH" default:"file://migrations"`

	MaxConns int32 `envconfig:"DATABASE_MAX_CONNS" default:"20"`

	MinConns int32 `envconfig:"DATABASE_MIN_CONNS" default:"5"`

	MaxConnLifeTime time.Duration `envconfig:"DATABASE_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `envconfig:"DATABASE_MAX_CONN_IDLE" default:"30m"`
	HealthPeriod    time.Duration `envconfig:"DATABASE_HEALTH_PERIOD" default:"1m"`
}

type RedisConfig struct {
	// host:port, "localhost:6379" for dev, cluster endpoint for prod.
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`

	Namespace string `envconfig:"REDIS_NAMESPACE" default:"lease-service"`

	// window in which an identical notification is treated as a redelivery
	// burst and skipped.
	DedupTTL time.Duration `envconfig:"REDIS_DEDUP_TTL" default:"30s"`
}

type GatewayConfig struct {
	AccessToken string        `envconfig:"MERCADOPAGO_ACCESS_TOKEN" required:"true"`
	Timeout     time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"5s"`
}

type WebhookConfig struct {
	// upper bound for processing one notification before relying on
	// gateway redelivery.
	ProcessTimeout time.Duration `envconfig:"WEBHOOK_PROCESS_TIMEOUT" default:"25s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parse environment config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) IsProd() bool {
	return c.Env == "production"
}
