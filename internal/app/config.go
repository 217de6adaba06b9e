package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/coupon"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage      string `default:"postgres" usage:"Storage backend: postgres or memory"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	MaxConns     int32  `default:"10" usage:"Maximum PostgreSQL pool connections" flag:"max-conns"`
	RedisURL     string `usage:"Optional Redis URL for idempotency keys and the product cache (SHOP_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	Auth         AuthConfig
	Checkout     CheckoutConfig
	Cache        CacheConfig
	Log          LogConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// AuthConfig holds credential secrets.
type AuthConfig struct {
	JWTSecret    string `env:"JWT_SECRET" usage:"HS256 secret for customer bearer tokens (SHOP_AUTH_JWT_SECRET)" flag:"jwt-secret"`
	APIKeyPepper string `env:"API_KEY_PEPPER" usage:"HMAC pepper for API key hashing (SHOP_AUTH_API_KEY_PEPPER)" flag:"api-key-pepper"`
	// AdminKey registers an admin API key at startup in memory mode.
	AdminKey string `usage:"Admin API key for memory mode" flag:"admin-key"`
}

// CheckoutConfig tunes order placement.
type CheckoutConfig struct {
	CouponPolicy    string        `default:"lenient" usage:"Coupon failure policy at checkout: lenient or strict" flag:"coupon-policy"`
	ReserveAttempts int           `default:"5" usage:"Coupon reservation attempts on write conflicts" flag:"reserve-attempts"`
	ReturnWindow    time.Duration `default:"720h" usage:"How long after placement an order may be returned" flag:"return-window"`
	IdempotencyTTL  time.Duration `default:"24h" usage:"Lifetime of checkout idempotency keys" flag:"idempotency-ttl"`
	// IdempotencyClaim bounds how long an unfinished checkout holds its key.
	IdempotencyClaim time.Duration `default:"30s" usage:"Lease of an idempotency key while its checkout runs" flag:"idempotency-claim"`
}

// CacheConfig controls the Redis product cache.
type CacheConfig struct {
	Prefix     string        `default:"storefront" usage:"Redis key prefix"`
	ProductTTL time.Duration `default:"5m" usage:"Product cache entry lifetime" flag:"product-ttl"`
}

// LogConfig enables an additional rotating JSON log file.
type LogConfig struct {
	File       string `usage:"Path of a rotating JSON log file; empty disables it" flag:"log-file"`
	MaxSizeMB  int    `default:"100" usage:"Log file size before rotation, in megabytes"`
	MaxBackups int    `default:"5" usage:"Rotated log files to keep"`
	MaxAgeDays int    `default:"30" usage:"Days to keep rotated log files"`
	Compress   bool   `default:"true" usage:"Gzip rotated log files"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, ac)
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage %q: want %s or %s", c.Storage, StoragePostgres, StorageMemory)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT secret is required: set SHOP_AUTH_JWT_SECRET")
	}
	if _, err := coupon.ParsePolicy(c.Checkout.CouponPolicy); err != nil {
		return err
	}
	if c.Checkout.ReserveAttempts < 1 {
		return errors.New("reserve attempts must be at least 1")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
