package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/pricing"
)

const defaultAddr = "0.0.0.0:8080"

// Cart storage backends.
const (
	CartBackendPostgres = "postgres"
	CartBackendRedis    = "redis"
	CartBackendMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (BISTRO_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (BISTRO_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	MaxConns     int32  `default:"0" usage:"Maximum PostgreSQL pool size, 0 keeps the pgx default" flag:"max-conns"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (BISTRO_API_KEY_PEPPER)" flag:"api-key-pepper"`
	JWT          JWTConfig
	Cart         CartConfig
	Pricing      PricingConfig
	Lifecycle    LifecycleConfig
	Events       EventsConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// JWTConfig controls bearer token verification. Bearer tokens are rejected
// when Secret is empty.
type JWTConfig struct {
	Secret string `usage:"HS256 secret for bearer tokens" flag:"jwt-secret"`
	Issuer string `default:"" usage:"Required iss claim, empty accepts any" flag:"jwt-issuer"`
}

// CartConfig selects and configures cart storage.
type CartConfig struct {
	Backend       string        `default:"postgres" usage:"Cart storage: postgres, redis or memory" flag:"cart-backend"`
	RedisURL      string        `usage:"Redis URL, overrides address/password/db (BISTRO_CART_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	RedisAddr     string        `default:"localhost:6379" usage:"Redis address" flag:"redis-addr"`
	RedisPassword string        `usage:"Redis password" flag:"redis-password"`
	RedisDB       int           `default:"0" usage:"Redis database" flag:"redis-db"`
	TTL           time.Duration `default:"168h" usage:"Idle cart expiry for the redis backend, 0 disables" flag:"cart-ttl"`
}

// PricingConfig holds the delivery fee table and tip presets, in whole
// currency units.
type PricingConfig struct {
	BaseFee          int64   `default:"3000" usage:"Standard delivery fee" flag:"base-fee"`
	ExpressSurcharge int64   `default:"2000" usage:"Express delivery surcharge" flag:"express-surcharge"`
	TipPresets       []int64 `default:"1000,2000,5000" usage:"Offered fixed tip amounts" flag:"tip-presets"`
}

// Calculator returns a pricing calculator for the configured fees.
func (c PricingConfig) Calculator() *pricing.Calculator {
	presets := make([]decimal.Decimal, len(c.TipPresets))
	for i, p := range c.TipPresets {
		presets[i] = decimal.NewFromInt(p)
	}
	return pricing.NewCalculator(pricing.FeeTable{
		Base:             decimal.NewFromInt(c.BaseFee),
		ExpressSurcharge: decimal.NewFromInt(c.ExpressSurcharge),
	}, presets)
}

// LifecycleConfig controls order status transitions.
type LifecycleConfig struct {
	Policy string `default:"flexible" usage:"Transition policy: flexible or strict" flag:"transition-policy"`
}

// EventsConfig controls order event publishing. Events are not published
// when Brokers is empty.
type EventsConfig struct {
	Brokers []string `usage:"Kafka brokers" flag:"kafka-brokers"`
	Topic   string   `default:"bistro.orders" usage:"Kafka topic for order events" flag:"kafka-topic"`
	// Timeout bounds one publish, retries included.
	Timeout time.Duration `default:"2s" usage:"Order event publish timeout" flag:"kafka-timeout"`
}

// RateLimitConfig controls the per-caller sliding window rate limiter.
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

// LoadConfig loads configuration from command-line flags, environment
// variables and YAML config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		Files: []string{"config.yaml", "/etc/bistro/config.yaml"},
	})
}

func loadConfig(base aconfig.Config) (*Config, error) {
	var cfg Config
	base.EnvPrefix = "BISTRO"
	base.FileDecoders = map[string]aconfig.FileDecoder{
		".yaml": aconfigyaml.New(),
	}
	loader := aconfig.LoaderFor(&cfg, base)
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's BISTRO_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Cart.RedisURL == "" {
		c.Cart.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set BISTRO_DATABASE_URL or DATABASE_URL")
	}
	switch c.Cart.Backend {
	case CartBackendPostgres, CartBackendRedis, CartBackendMemory:
	default:
		return errors.Errorf("unknown cart backend %q", c.Cart.Backend)
	}
	if _, err := order.ParsePolicy(c.Lifecycle.Policy); err != nil {
		return errors.Wrap(err, "lifecycle policy")
	}
	if c.Events.Timeout <= 0 {
		return errors.New("event publish timeout must be positive")
	}
	if c.Cart.Backend == CartBackendRedis && c.Cart.TTL > 0 && c.Cart.TTL < time.Second {
		return errors.Errorf("redis cart TTL %s is below one second", c.Cart.TTL)
	}
	if len(c.Pricing.TipPresets) == 0 {
		return errors.New("at least one tip preset is required")
	}
	return nil
}
