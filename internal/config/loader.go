// Package config provides centralized configuration management for agentfleet.
// Defaults are registered on a viper instance, overlaid by an optional config
// file and AGENTFLEET_* environment variables, then decoded into Config.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName names the XDG config, data and cache directories.
	AppName = "agentfleet"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "AGENTFLEET"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreLibsql = "libsql"
)

// Rate limit keys.
const (
	RateLimitKeyIP     = "ip"
	RateLimitKeyAPIKey = "api_key"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// SetDefaults registers every configuration default on v.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "180s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.trust_proxy_headers", false)

	// Admission defaults
	v.SetDefault("security.api_key", "")
	v.SetDefault("security.max_request_bytes", 1<<20)
	v.SetDefault("security.max_message_chars", 50000)

	v.SetDefault("rate_limit.max_tokens", 60)
	v.SetDefault("rate_limit.refill_rate", 1.0)
	v.SetDefault("rate_limit.key", RateLimitKeyIP)

	// Resilience defaults
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.recovery_timeout", "60s")
	v.SetDefault("retry.max_retries", 2)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.max_delay", "30s")
	v.SetDefault("sender.timeout", "120s")
	v.SetDefault("sender.peer_host", "localhost")

	v.SetDefault("agents.dir", "./agents")
	v.SetDefault("agents.registry", "")

	// Store defaults
	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	v.SetDefault("logging.level", "info")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
}

// BindEnv makes AGENTFLEET_SECTION_KEY override section.key.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// short aliases used by existing deployments
	_ = v.BindEnv("security.api_key", EnvPrefix+"_API_KEY", EnvPrefix+"_SECURITY_API_KEY")
	_ = v.BindEnv("agents.registry", EnvPrefix+"_AGENT_REGISTRY", EnvPrefix+"_AGENTS_REGISTRY")
	_ = v.BindEnv("logging.level", EnvPrefix+"_LOG_LEVEL", EnvPrefix+"_LOGGING_LEVEL")
}

// Load decodes the settings of v into a typed Config, validates it and makes
// it the current configuration.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, errors.New("viper instance is required")
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := Load(v)
	if err != nil {
		// defaults always validate
		panic(err)
	}
	return cfg
}

func normalize(cfg *Config) {
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	cfg.RateLimit.Key = strings.ToLower(strings.TrimSpace(cfg.RateLimit.Key))
	cfg.Security.APIKey = strings.TrimSpace(cfg.Security.APIKey)
	if cfg.Store.Driver == StoreLibsql && strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
}

// Validate reports settings that cannot be served.
func (c *Config) Validate() error {
	var problems []string

	if c.Security.MaxRequestBytes <= 0 {
		problems = append(problems, "security.max_request_bytes must be positive")
	}
	if c.Security.MaxMessageChars <= 0 {
		problems = append(problems, "security.max_message_chars must be positive")
	}
	if c.RateLimit.MaxTokens <= 0 {
		problems = append(problems, "rate_limit.max_tokens must be positive")
	}
	if c.RateLimit.RefillRate < 0 {
		problems = append(problems, "rate_limit.refill_rate must not be negative")
	}
	switch c.RateLimit.Key {
	case RateLimitKeyIP, RateLimitKeyAPIKey:
	default:
		problems = append(problems, fmt.Sprintf("rate_limit.key %q must be ip or api_key", c.RateLimit.Key))
	}
	if c.Breaker.FailureThreshold <= 0 {
		problems = append(problems, "breaker.failure_threshold must be positive")
	}
	if c.Breaker.RecoveryTimeout <= 0 {
		problems = append(problems, "breaker.recovery_timeout must be positive")
	}
	if c.Retry.MaxRetries < 0 {
		problems = append(problems, "retry.max_retries must not be negative")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay <= 0 {
		problems = append(problems, "retry delays must be positive")
	}
	if c.Sender.Timeout <= 0 {
		problems = append(problems, "sender.timeout must be positive")
	}
	switch c.Store.Driver {
	case StoreMemory, StoreLibsql:
	default:
		problems = append(problems, fmt.Sprintf("unsupported store driver: %s", c.Store.Driver))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigDir returns the XDG-compliant config directory for the app.
func DefaultConfigDir() string {
	return gfconfig.GetAppConfigDir(AppName)
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := DefaultConfigDir()
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

// DefaultStorePath returns the XDG-compliant path to the task database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}
