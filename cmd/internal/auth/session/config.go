package session

import (
	"fmt"
	"strings"
	"time"

	"linkup/cmd/security/token"

	"github.com/caarlos0/env/v11"
)

// Config defines the runtime configuration of the session authority.
type Config struct {
	// Issuer is the "iss" claim of every token.
	Issuer string `env:"LINKUP_AUTH_ISSUER" envDefault:"linkup"`

	AccessTokenTTL  time.Duration `env:"LINKUP_AUTH_ACCESS_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"LINKUP_AUTH_REFRESH_TTL" envDefault:"168h"`

	// ProfileCacheTTL bounds how long a user:{id} snippet lives.
	ProfileCacheTTL time.Duration `env:"LINKUP_AUTH_PROFILE_CACHE_TTL" envDefault:"1h"`

	// ClockSkew is the leeway applied to exp/iat during verification.
	ClockSkew time.Duration `env:"LINKUP_AUTH_CLOCK_SKEW" envDefault:"30s"`

	// StoreRetries bounds retries of transient store faults per call.
	StoreRetries uint64 `env:"LINKUP_AUTH_STORE_RETRIES" envDefault:"2"`
	// StoreRetryBase is the first backoff step.
	StoreRetryBase time.Duration `env:"LINKUP_AUTH_STORE_RETRY_BASE" envDefault:"50ms"`

	AccessSecret  string `env:"LINKUP_JWT_ACCESS_SECRET"`
	RefreshSecret string `env:"LINKUP_JWT_REFRESH_SECRET"`

	// EncryptionKeyHex is the 32-byte field cipher master key, hex encoded.
	EncryptionKeyHex string `env:"LINKUP_ENCRYPTION_KEY"`

	// TokenHMACKey keys the refresh-token digests.
	TokenHMACKey string `env:"LINKUP_TOKEN_HMAC_KEY"`
}

// DefaultConfig returns the defaults without any secrets.
func DefaultConfig() Config {
	return Config{
		Issuer:          "linkup",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		ProfileCacheTTL: time.Hour,
		ClockSkew:       30 * time.Second,
		StoreRetries:    2,
		StoreRetryBase:  50 * time.Millisecond,
	}
}

// LoadConfigFromEnv parses LINKUP_AUTH_*, LINKUP_JWT_*, LINKUP_ENCRYPTION_KEY
// and LINKUP_TOKEN_HMAC_KEY. Any problem is ErrConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks secrets and durations. The encryption key itself is checked
// by the field cipher when the service is built.
func (c Config) Validate() error {
	bad := func(msg string) error { return fmt.Errorf("%w: %s", ErrConfig, msg) }

	switch {
	case strings.TrimSpace(c.Issuer) == "":
		return bad("issuer is empty")
	case c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.ProfileCacheTTL <= 0:
		return bad("ttls must be positive")
	case c.AccessTokenTTL >= c.RefreshTokenTTL:
		return bad("access ttl must be shorter than refresh ttl")
	case c.ClockSkew < 0 || c.ClockSkew > 5*time.Minute:
		return bad("clock skew out of range")
	case c.StoreRetries > 10:
		return bad("store retries out of range")
	case len(c.AccessSecret) < 32 || len(c.RefreshSecret) < 32:
		return bad("jwt secrets must be at least 32 bytes")
	case c.AccessSecret == c.RefreshSecret:
		return bad("access and refresh secrets must differ")
	case strings.TrimSpace(c.EncryptionKeyHex) == "":
		return bad("LINKUP_ENCRYPTION_KEY is required")
	case len(strings.TrimSpace(c.TokenHMACKey)) < token.MinHMACKeyBytes:
		return bad("token hmac key must be at least 32 bytes")
	}
	return nil
}
