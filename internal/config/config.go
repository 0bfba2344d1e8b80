package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration for the aweb service.
// Environment variables are parsed from the AWEB_ prefix.
type Config struct {
	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8001"`

	// Durable store (Postgres) connection string.
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// Ephemeral KV connection string. Only the in-process driver is
	// supported: "memory://". Presence and stream bookkeeping live here;
	// mail and reservations never depend on it.
	KVDSN string `envconfig:"KV_DSN" default:"memory://"`

	// Proxy-trust mode. When enabled, requests must carry a signed internal
	// auth context and Bearer fallback is disabled.
	TrustProxyHeaders  bool   `envconfig:"TRUST_PROXY_HEADERS" default:"false"`
	InternalAuthSecret string `envconfig:"INTERNAL_AUTH_SECRET" default:""`

	// Chat wait tuning.
	HangOnExtensionSeconds int `envconfig:"HANG_ON_EXTENSION_SECONDS" default:"300"`
	ChatStartWaitSeconds   int `envconfig:"CHAT_START_WAIT_SECONDS" default:"120"`
	ChatSendWaitSeconds    int `envconfig:"CHAT_SEND_WAIT_SECONDS" default:"30"`
	ChatWaitingTTLSeconds  int `envconfig:"CHAT_WAITING_TTL_SECONDS" default:"90"`

	// Reservation TTL bounds.
	ReservationDefaultTTLSeconds int `envconfig:"RESERVATION_DEFAULT_TTL_SECONDS" default:"3600"`
	ReservationMaxTTLSeconds     int `envconfig:"RESERVATION_MAX_TTL_SECONDS" default:"86400"`

	// Presence heartbeat TTL.
	HeartbeatTTLSeconds int `envconfig:"HEARTBEAT_TTL_SECONDS" default:"1800"`
}

// Validate enforces startup invariants. Proxy trust without a signing secret
// must fail fast rather than silently accepting unsigned contexts.
func (c *Config) Validate() error {
	if c.TrustProxyHeaders && c.InternalAuthSecret == "" {
		return fmt.Errorf("AWEB_TRUST_PROXY_HEADERS is enabled but AWEB_INTERNAL_AUTH_SECRET is not set")
	}
	if c.ReservationMaxTTLSeconds < c.ReservationDefaultTTLSeconds {
		return fmt.Errorf("reservation max TTL (%d) below default TTL (%d)", c.ReservationMaxTTLSeconds, c.ReservationDefaultTTLSeconds)
	}
	if c.HangOnExtensionSeconds <= 0 {
		return fmt.Errorf("hang-on extension must be positive, got %d", c.HangOnExtensionSeconds)
	}
	return nil
}

// New creates a Config by parsing AWEB_-prefixed environment variables.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("AWEB", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Int("port", cfg.HTTPPort).
		Str("postgres_dsn_present", boolStr(cfg.PostgresDSN != "")).
		Str("kv_dsn", cfg.KVDSN).
		Bool("trust_proxy_headers", cfg.TrustProxyHeaders).
		Int("hang_on_extension_seconds", cfg.HangOnExtensionSeconds).
		Int("reservation_default_ttl", cfg.ReservationDefaultTTLSeconds).
		Int("heartbeat_ttl", cfg.HeartbeatTTLSeconds).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config with defaults suitable for tests.
func NewForTesting() *Config {
	return &Config{
		HTTPPort:                     8001,
		KVDSN:                        "memory://",
		HangOnExtensionSeconds:       300,
		ChatStartWaitSeconds:         120,
		ChatSendWaitSeconds:          30,
		ChatWaitingTTLSeconds:        90,
		ReservationDefaultTTLSeconds: 3600,
		ReservationMaxTTLSeconds:     86400,
		HeartbeatTTLSeconds:          1800,
	}
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
