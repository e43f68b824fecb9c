package password

import (
	"fmt"
	"runtime"

	"github.com/caarlos0/env/v11"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32 `env:"LINKUP_ARGON2_MEMORY_KIB"`
	Iterations  uint32 `env:"LINKUP_ARGON2_ITERATIONS"`
	Parallelism uint8  `env:"LINKUP_ARGON2_PARALLELISM"`
	SaltLength  uint32 `env:"LINKUP_ARGON2_SALT_LEN"`
	KeyLength   uint32 `env:"LINKUP_ARGON2_KEY_LEN"`
}

// Policy bounds accepted passwords, counted in runes.
type Policy struct {
	MinLength      int  `env:"LINKUP_PASSWORD_MIN_LEN"`
	MaxLength      int  `env:"LINKUP_PASSWORD_MAX_LEN"`
	RejectVeryWeak bool `env:"LINKUP_PASSWORD_REJECT_VERY_WEAK"`
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns the production baseline.
func DefaultConfig() Config {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 8,
			MaxLength: 256,
		},
	}
}

// FromEnv overlays LINKUP_ARGON2_* and LINKUP_PASSWORD_* variables on DefaultConfig.
// Unset variables keep their defaults.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("password config: %w", err)
	}
	if err := cfg.check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) check() error {
	p := c.Params
	switch {
	case p.MemoryKiB < 8*1024 || p.MemoryKiB > 1024*1024:
		return fmt.Errorf("LINKUP_ARGON2_MEMORY_KIB: out of range [%d..%d]", 8*1024, 1024*1024)
	case p.Iterations < 1 || p.Iterations > 20:
		return fmt.Errorf("LINKUP_ARGON2_ITERATIONS: out of range [1..20]")
	case p.Parallelism < 1 || p.Parallelism > 64:
		return fmt.Errorf("LINKUP_ARGON2_PARALLELISM: out of range [1..64]")
	case p.SaltLength < 8 || p.SaltLength > 64:
		return fmt.Errorf("LINKUP_ARGON2_SALT_LEN: out of range [8..64]")
	case p.KeyLength < 16 || p.KeyLength > 64:
		return fmt.Errorf("LINKUP_ARGON2_KEY_LEN: out of range [16..64]")
	}

	if c.Policy.MinLength < 1 || c.Policy.MaxLength > 4096 {
		return fmt.Errorf("password policy invalid: lengths out of range")
	}
	if c.Policy.MinLength > c.Policy.MaxLength {
		return fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			c.Policy.MinLength,
			c.Policy.MaxLength,
		)
	}
	return nil
}
