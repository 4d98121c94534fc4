// Package config loads gateway configuration from the environment.
//
// Load never fails on missing credentials: each subsystem validates its own
// section on first use, so a gateway deployed without warehouse credentials
// still serves proxy traffic and only analytics calls fail.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the full gateway configuration.
type Config struct {
	Server        ServerConfig
	Auth          AuthConfig
	Warehouse     WarehouseConfig
	NATS          NATSConfig
	Microservices MicroserviceConfig
	Cache         CacheConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `env:"PORT,default=4000"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT,default=30s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT,default=60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=15s"`
	RateLimitRPS    int           `env:"RATE_LIMIT_RPS,default=50"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST,default=100"`
	AllowedOrigins  string        `env:"CORS_ALLOWED_ORIGINS"`
}

// AuthConfig configures bearer-token verification.
type AuthConfig struct {
	JWKSPublicKeyFile string `env:"AUTH_PUBLIC_KEY_FILE"`
	Audience          string `env:"AUTH_AUDIENCE"`
	// M2MToken is the machine credential attached to downstream calls made
	// on the gateway's own behalf (public endpoints, background jobs).
	M2MToken string `env:"AUTH_M2M_TOKEN"`
}

// WarehouseConfig configures the Snowflake analytics connection pool.
type WarehouseConfig struct {
	Account   string `env:"SNOWFLAKE_ACCOUNT"`
	User      string `env:"SNOWFLAKE_USER"`
	Password  string `env:"SNOWFLAKE_PASSWORD"`
	Database  string `env:"SNOWFLAKE_DATABASE"`
	Schema    string `env:"SNOWFLAKE_SCHEMA,default=PUBLIC"`
	Warehouse string `env:"SNOWFLAKE_WAREHOUSE"`
	Role      string `env:"SNOWFLAKE_ROLE"`

	MaxOpenConns    int           `env:"SNOWFLAKE_POOL_MAX,default=10"`
	MaxIdleConns    int           `env:"SNOWFLAKE_POOL_MIN,default=2"`
	ConnMaxIdleTime time.Duration `env:"SNOWFLAKE_POOL_IDLE_TIMEOUT,default=5m"`
	AcquireTimeout  time.Duration `env:"SNOWFLAKE_POOL_ACQUIRE_TIMEOUT,default=30s"`
	PingOnFirstUse  bool          `env:"SNOWFLAKE_POOL_VALIDATE,default=true"`
	QueryTimeout    time.Duration `env:"SNOWFLAKE_QUERY_TIMEOUT,default=2m"`
}

// Validate reports missing required warehouse credentials. Called by the
// executor on first use, never at process start.
func (c WarehouseConfig) Validate() error {
	missing := ""
	switch {
	case c.Account == "":
		missing = "SNOWFLAKE_ACCOUNT"
	case c.User == "":
		missing = "SNOWFLAKE_USER"
	case c.Password == "":
		missing = "SNOWFLAKE_PASSWORD"
	case c.Database == "":
		missing = "SNOWFLAKE_DATABASE"
	case c.Warehouse == "":
		missing = "SNOWFLAKE_WAREHOUSE"
	}
	if missing != "" {
		return fmt.Errorf("%s is required", missing)
	}
	return nil
}

// DSN builds the Snowflake connection string.
func (c WarehouseConfig) DSN() string {
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s?warehouse=%s",
		c.User, c.Password, c.Account, c.Database, c.Schema, c.Warehouse)
	if c.Role != "" {
		dsn += "&role=" + c.Role
	}
	return dsn
}

// NATSConfig configures the identity service connection.
type NATSConfig struct {
	URL            string        `env:"NATS_URL"`
	RequestTimeout time.Duration `env:"NATS_REQUEST_TIMEOUT,default=5s"`
}

// Validate reports a missing NATS URL.
func (c NATSConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("NATS_URL is required")
	}
	return nil
}

// MicroserviceConfig holds downstream HTTP service base URLs.
type MicroserviceConfig struct {
	QueryServiceURL string        `env:"QUERY_SERVICE_URL"`
	RequestTimeout  time.Duration `env:"MICROSERVICE_TIMEOUT,default=30s"`
}

// Validate reports a missing query service URL.
func (c MicroserviceConfig) Validate() error {
	if c.QueryServiceURL == "" {
		return fmt.Errorf("QUERY_SERVICE_URL is required")
	}
	return nil
}

// CacheConfig configures the optional analytics result cache.
type CacheConfig struct {
	RedisURL string        `env:"REDIS_URL"`
	TTL      time.Duration `env:"RESULT_CACHE_TTL,default=5m"`
}

// Enabled reports whether a cache backend is configured.
func (c CacheConfig) Enabled() bool {
	return c.RedisURL != ""
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &cfg, nil
}
