package realtime

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config tunes the websocket gateway. Origin is required by default and only
// localhost is allowed.
type Config struct {
	// DevInsecure disables the websocket library's own origin check. Dev only.
	DevInsecure bool `env:"LINKUP_WS_DEV_INSECURE" envDefault:"false"`

	OriginRequired bool     `env:"LINKUP_WS_ORIGIN_REQUIRED" envDefault:"true"`
	AllowedOrigins []string `env:"LINKUP_WS_ALLOWED_ORIGINS" envDefault:"http://localhost,http://127.0.0.1" envSeparator:","`

	WriteTimeout    time.Duration `env:"LINKUP_WS_WRITE_TIMEOUT" envDefault:"5s"`
	ReadIdleTimeout time.Duration `env:"LINKUP_WS_READ_IDLE_TIMEOUT" envDefault:"2m"`
	SendQueueSize   int           `env:"LINKUP_WS_SEND_QUEUE" envDefault:"64"`

	HeartbeatInterval time.Duration `env:"LINKUP_WS_HEARTBEAT_INTERVAL" envDefault:"25s"`
	HeartbeatTimeout  time.Duration `env:"LINKUP_WS_HEARTBEAT_TIMEOUT" envDefault:"5s"`

	RateEvents int           `env:"LINKUP_WS_RATE_EVENTS" envDefault:"60"`
	RateWindow time.Duration `env:"LINKUP_WS_RATE_WINDOW" envDefault:"10s"`
}

const minSendQueueSize = 16

// DefaultConfig mirrors the envDefault tags.
func DefaultConfig() Config {
	return Config{
		OriginRequired:    true,
		AllowedOrigins:    []string{"http://localhost", "http://127.0.0.1"},
		WriteTimeout:      5 * time.Second,
		ReadIdleTimeout:   2 * time.Minute,
		SendQueueSize:     64,
		HeartbeatInterval: heartbeatInterval,
		HeartbeatTimeout:  heartbeatTimeout,
		RateEvents:        rateLimitEvents,
		RateWindow:        rateLimitWindow,
	}
}

// LoadConfigFromEnv parses LINKUP_WS_*.
func LoadConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("realtime config: %w", err)
	}
	return cfg.normalized(), nil
}

// normalized replaces non-positive values with defaults.
func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ReadIdleTimeout <= 0 {
		c.ReadIdleTimeout = d.ReadIdleTimeout
	}
	if c.SendQueueSize < minSendQueueSize {
		c.SendQueueSize = minSendQueueSize
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if c.RateEvents <= 0 {
		c.RateEvents = d.RateEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = d.RateWindow
	}
	return c
}
