package config

import (
	"time"
)

// Config represents the complete application configuration. Values come from
// built-in defaults, an optional YAML config file and AGENTFLEET_* environment
// variables, in increasing order of precedence.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Security  SecurityConfig  `mapstructure:"security"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Sender    SenderConfig    `mapstructure:"sender"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig contains HTTP server configuration. Ports come from agent
// definitions, not from here.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// TrustProxyHeaders takes the client IP from X-Forwarded-For / X-Real-IP.
	// Only enable behind a proxy that overwrites those headers.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers"`
}

// SecurityConfig contains admission limits and the shared API key
type SecurityConfig struct {
	// APIKey enables X-API-Key authentication. Empty means development mode.
	APIKey          string `mapstructure:"api_key"`
	MaxRequestBytes int64  `mapstructure:"max_request_bytes"`
	MaxMessageChars int    `mapstructure:"max_message_chars"`
}

// RateLimitConfig configures the per-client token bucket
type RateLimitConfig struct {
	MaxTokens  int     `mapstructure:"max_tokens"`
	RefillRate float64 `mapstructure:"refill_rate"`
	// Key selects the bucket key: "ip" or "api_key".
	Key string `mapstructure:"key"`
}

// BreakerConfig configures per-destination circuit breakers
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
}

// RetryConfig configures outbound retries
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
}

// SenderConfig configures outbound inter-agent calls
type SenderConfig struct {
	// Timeout bounds each outbound attempt.
	Timeout time.Duration `mapstructure:"timeout"`
	// PeerHost is the host used to build peer endpoints from definition ports.
	PeerHost string `mapstructure:"peer_host"`
}

// AgentsConfig locates agent definitions
type AgentsConfig struct {
	Dir string `mapstructure:"dir"`
	// Registry is a JSON object of name to URL merged over the definitions.
	Registry string `mapstructure:"registry"`
}

// StoreConfig contains task store configuration. Driver "memory" keeps tasks
// in process; "libsql" persists them to a local file or a Turso URL.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}
