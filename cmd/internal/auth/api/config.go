package authapi

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls HTTP-level limits of the auth API.
type Config struct {
	// TrustProxy keys rate limits by X-Forwarded-For / X-Real-IP.
	TrustProxy   bool  `env:"LINKUP_API_TRUST_PROXY" envDefault:"false"`
	MaxBodyBytes int64 `env:"LINKUP_API_MAX_BODY_BYTES" envDefault:"65536"`

	// AuthRateLimit bounds register/login/refresh requests per client IP.
	AuthRateLimit  int           `env:"LINKUP_API_AUTH_RATE_LIMIT" envDefault:"20"`
	AuthRateWindow time.Duration `env:"LINKUP_API_AUTH_RATE_WINDOW" envDefault:"1m"`
}

// DefaultConfig mirrors the envDefault tags.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:   64 << 10,
		AuthRateLimit:  20,
		AuthRateWindow: time.Minute,
	}
}

// LoadConfigFromEnv parses LINKUP_API_*.
func LoadConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("authapi config: %w", err)
	}
	return cfg.normalized(), nil
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.AuthRateLimit <= 0 {
		c.AuthRateLimit = d.AuthRateLimit
	}
	if c.AuthRateWindow <= 0 {
		c.AuthRateWindow = d.AuthRateWindow
	}
	return c
}
