package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string `env:"LINKUP_HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	LogLevel  string `env:"LINKUP_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LINKUP_LOG_FORMAT" envDefault:"json"`

	// Development relaxes HTTPS-only security headers.
	Development bool `env:"LINKUP_DEV"`

	ReadHeaderTimeout time.Duration `env:"LINKUP_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"LINKUP_HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"LINKUP_HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"LINKUP_HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"LINKUP_HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxHeaderBytes    int           `env:"LINKUP_HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`

	DatabaseURL string `env:"LINKUP_DATABASE_URL"`
	DBMaxConns  int32  `env:"LINKUP_DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"LINKUP_DB_MIN_CONNS" envDefault:"0"`
	DBMigrate   bool   `env:"LINKUP_DB_MIGRATE"`

	RedisAddr     string `env:"LINKUP_REDIS_ADDR"`
	RedisPassword string `env:"LINKUP_REDIS_PASSWORD"`
	RedisDB       int    `env:"LINKUP_REDIS_DB" envDefault:"0"`

	Neo4jURI      string `env:"LINKUP_NEO4J_URI"`
	Neo4jUser     string `env:"LINKUP_NEO4J_USER" envDefault:"neo4j"`
	Neo4jPassword string `env:"LINKUP_NEO4J_PASSWORD"`
	Neo4jDatabase string `env:"LINKUP_NEO4J_DATABASE"`

	ReconcileConcurrency int `env:"LINKUP_RECONCILE_CONCURRENCY" envDefault:"2"`

	// If true:
	// - /readyz returns 503 unless every durable backend is configured and reachable.
	ReadinessRequireDB bool `env:"LINKUP_READINESS_REQUIRE_DB"`
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("app: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the runtime cannot start with.
func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "json", "text":
	default:
		return fmt.Errorf("app: LINKUP_LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if c.DBMigrate && c.DatabaseURL == "" {
		return fmt.Errorf("app: LINKUP_DB_MIGRATE requires LINKUP_DATABASE_URL")
	}
	if c.DBMinConns < 0 || (c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns) {
		return fmt.Errorf("app: invalid pool bounds min=%d max=%d", c.DBMinConns, c.DBMaxConns)
	}
	if c.Neo4jURI != "" && c.Neo4jPassword == "" {
		return fmt.Errorf("app: LINKUP_NEO4J_PASSWORD is required with LINKUP_NEO4J_URI")
	}
	return nil
}

// Durable reports whether every backend the session authority writes to is external.
func (c Config) Durable() bool {
	return c.DatabaseURL != "" && c.Neo4jURI != ""
}
