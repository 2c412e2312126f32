// pkg/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix    = "SHUTTLEGATE_"
	configEnvVar = "CONFIG_PATH"
)

// Loader loads configuration from defaults, a JSON file, and the environment.
type Loader struct {
	k           *koanf.Koanf
	configPaths []string
	envPrefix   string
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k: koanf.New("."),
		configPaths: []string{
			"config.json",
			"config/config.json",
			"/etc/shuttlegate/config.json",
		},
		envPrefix: envPrefix,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithConfigPaths overrides the list of config file search paths.
func WithConfigPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.configPaths = paths
	}
}

// WithEnvPrefix overrides the environment variable prefix.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// Load loads configuration with the following precedence, lowest first:
// 1. Defaults
// 2. Config file (JSON)
// 3. Environment variables
func (l *Loader) Load() (*Config, error) {
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := l.loadConfigFile(); err != nil {
		// a config file is optional; its absence is not fatal
		fmt.Printf("Warning: %v\n", err)
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDefaults seeds the koanf instance with default values.
func (l *Loader) loadDefaults() error {
	defaults := map[string]any{
		// App
		"app.name":        "shuttlegate",
		"app.version":     "1.0.0",
		"app.environment": "development",
		"app.debug":       false,

		// HTTP
		"http.port":             8080,
		"http.read_timeout":     10 * time.Second,
		"http.write_timeout":    10 * time.Second,
		"http.shutdown_timeout": 15 * time.Second,

		// Log
		"log.level":       "info",
		"log.format":      "json",
		"log.output":      "stdout",
		"log.max_size":    100,
		"log.max_backups": 3,
		"log.max_age":     7,
		"log.compress":    true,

		// Metrics
		"metrics.enabled":   true,
		"metrics.port":      9090,
		"metrics.path":      "/metrics",
		"metrics.namespace": "shuttlegate",
		"metrics.subsystem": "",

		// Tracing
		"tracing.enabled":      false,
		"tracing.endpoint":     "localhost:4317",
		"tracing.service_name": "shuttlegate",
		"tracing.sample_rate":  0.1,

		// Cache
		"cache.enabled":     true,
		"cache.driver":      "memory",
		"cache.host":        "localhost",
		"cache.port":        6379,
		"cache.db":          0,
		"cache.default_ttl": 5 * time.Minute,
		"cache.max_entries": 10000,

		// Rate limit
		"rate_limit.enabled":          true,
		"rate_limit.requests":         20,
		"rate_limit.window":           time.Second,
		"rate_limit.strategy":         "token_bucket",
		"rate_limit.backend":          "memory",
		"rate_limit.burst_size":       5,
		"rate_limit.cleanup_interval": 5 * time.Minute,

		// Audit
		"audit.enabled":      true,
		"audit.backend":      "stdout",
		"audit.buffer_size":  1000,
		"audit.flush_period": 5 * time.Second,

		// Report
		"report.default_company_name":   "Warehouse Operations",
		"report.output_dir":             "./reports",
		"report.pdf.page_size":          "A4",
		"report.pdf.orientation":        "portrait",
		"report.pdf.margin_top":         15.0,
		"report.pdf.margin_bottom":      15.0,
		"report.pdf.margin_left":        15.0,
		"report.pdf.margin_right":       15.0,
		"report.pdf.font_family":        "Arial",
		"report.pdf.font_size":          10.0,

		// Matchmaker
		"matchmaker.dispatch_stagger":     2 * time.Second,
		"matchmaker.signal_poll_interval": 200 * time.Millisecond,

		// Device defaults applied by cmd/gateway (DeviceConfig.Resolve) when
		// a configured device leaves these at the zero value.
		"device_defaults.connect_timeout":   5 * time.Second,
		"device_defaults.operation_timeout": 3 * time.Second,
		"device_defaults.command_timeout":   30 * time.Second,
		"device_defaults.recovery_interval": time.Second,

		// Barcode validator
		"barcode_validator.enabled":    false,
		"barcode_validator.timeout":    3 * time.Second,
		"barcode_validator.cache_ttl":  5 * time.Minute,
		"barcode_validator.jwt_expiry": time.Minute,
		"barcode_validator.jwt_issuer": "shuttlegate",
	}

	return l.k.Load(confmap.Provider(defaults, "."), nil)
}

// loadConfigFile loads configuration from a JSON file.
func (l *Loader) loadConfigFile() error {
	if configPath := os.Getenv(configEnvVar); configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return l.k.Load(file.Provider(configPath), json.Parser())
		}
	}

	for _, path := range l.configPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}

		if _, err := os.Stat(absPath); err == nil {
			return l.k.Load(file.Provider(absPath), json.Parser())
		}
	}

	return fmt.Errorf("config file not found in paths: %v", l.configPaths)
}

// loadEnv loads configuration overrides from environment variables, e.g.
// SHUTTLEGATE_LOG_LEVEL -> log.level.
func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(l.envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(
				strings.TrimPrefix(s, l.envPrefix),
			),
			"_", ".",
		)
	}), nil)
}

// MustLoad loads configuration or panics.
func MustLoad(opts ...LoaderOption) *Config {
	cfg, err := NewLoader(opts...).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Load is a convenience function that loads configuration with defaults.
func Load() (*Config, error) {
	return NewLoader().Load()
}
