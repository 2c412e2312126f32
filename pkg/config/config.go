// pkg/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure for the gateway.
type Config struct {
	App              AppConfig        `koanf:"app"`
	HTTP             HTTPConfig       `koanf:"http"`
	Log              LogConfig        `koanf:"log"`
	Metrics          MetricsConfig    `koanf:"metrics"`
	Tracing          TracingConfig    `koanf:"tracing"`
	Cache            CacheConfig      `koanf:"cache"`
	RateLimit        RateLimitConfig  `koanf:"rate_limit"`
	Audit            AuditConfig      `koanf:"audit"`
	Report           ReportConfig     `koanf:"report"`
	Matchmaker       MatchmakerConfig `koanf:"matchmaker"`
	Devices          []DeviceConfig   `koanf:"devices"`
	DeviceDefaults   DeviceDefaults   `koanf:"device_defaults"`
	BarcodeValidator ValidatorConfig  `koanf:"barcode_validator"`
}

// HTTPConfig configures the gateway's operator-facing HTTP server.
type HTTPConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DeviceDefaults fills the zero-valued timeout fields of a DeviceConfig
// that a deployment did not set explicitly.
type DeviceDefaults struct {
	ConnectTimeout   time.Duration `koanf:"connect_timeout"`
	OperationTimeout time.Duration `koanf:"operation_timeout"`
	CommandTimeout   time.Duration `koanf:"command_timeout"`
	RecoveryInterval time.Duration `koanf:"recovery_interval"`
}

// Resolve returns d with every zero-valued timeout replaced by the default.
func (d DeviceConfig) Resolve(defaults DeviceDefaults) DeviceConfig {
	if d.ConnectTimeout == 0 {
		d.ConnectTimeout = defaults.ConnectTimeout
	}
	if d.OperationTimeout == 0 {
		d.OperationTimeout = defaults.OperationTimeout
	}
	if d.CommandTimeout == 0 {
		d.CommandTimeout = defaults.CommandTimeout
	}
	if d.RecoveryInterval == 0 {
		d.RecoveryInterval = defaults.RecoveryInterval
	}
	return d
}

// AppConfig holds process-wide settings.
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level      string `koanf:"level"`       // debug, info, warn, error
	Format     string `koanf:"format"`      // json, text
	Output     string `koanf:"output"`      // stdout, stderr, file
	FilePath   string `koanf:"file_path"`
	MaxSize    int    `koanf:"max_size"`    // MB
	MaxBackups int    `koanf:"max_backups"`
	MaxAge     int    `koanf:"max_age"` // days
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Port      int    `koanf:"port"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig configures the OpenTelemetry tracer.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// CacheConfig configures the barcode-validation response cache.
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"` // redis, memory
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	MaxEntries int           `koanf:"max_entries"` // in-memory only
}

// Address returns the cache backend's host:port.
func (c CacheConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig throttles calls to the external barcode validator.
type RateLimitConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Requests        int           `koanf:"requests"`
	Window          time.Duration `koanf:"window"`
	Strategy        string        `koanf:"strategy"`
	Backend         string        `koanf:"backend"`
	BurstSize       int           `koanf:"burst_size"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	RedisAddr       string        `koanf:"redis_addr"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Backend     string        `koanf:"backend"` // stdout, file
	FilePath    string        `koanf:"file_path"`
	BufferSize  int           `koanf:"buffer_size"`
	FlushPeriod time.Duration `koanf:"flush_period"`
}

// ReportConfig configures shift-report export.
type ReportConfig struct {
	DefaultCompanyName string    `koanf:"default_company_name"`
	OutputDir          string    `koanf:"output_dir"`
	PDF                PDFConfig `koanf:"pdf"`
}

// PDFConfig configures the PDF shift-summary generator.
type PDFConfig struct {
	PageSize     string  `koanf:"page_size"`   // A4, Letter, Legal
	Orientation  string  `koanf:"orientation"` // portrait, landscape
	MarginTop    float64 `koanf:"margin_top"`
	MarginBottom float64 `koanf:"margin_bottom"`
	MarginLeft   float64 `koanf:"margin_left"`
	MarginRight  float64 `koanf:"margin_right"`
	FontFamily   string  `koanf:"font_family"`
	FontSize     float64 `koanf:"font_size"`
}

// MatchmakerConfig holds dispatch-scheduling values loaded from
// configuration. The engine does not read them: its dispatch stagger and
// signal poll interval are fixed constants in internal/engine.
type MatchmakerConfig struct {
	DispatchStagger    time.Duration `koanf:"dispatch_stagger"`
	SignalPollInterval time.Duration `koanf:"signal_poll_interval"`
}

// DeviceConfig describes a single PLC-connected device (shuttle/elevator)
// to register with the coordinator at startup.
type DeviceConfig struct {
	DeviceID         string        `koanf:"device_id"`
	Transport        string        `koanf:"transport"` // tcp, s7
	Address          string        `koanf:"address"`
	RecoveryOn       string        `koanf:"recovery_on"` // auto, manual
	FailOnAlarm      bool          `koanf:"fail_on_alarm"`
	ConnectTimeout   time.Duration `koanf:"connect_timeout"`
	OperationTimeout time.Duration `koanf:"operation_timeout"`
	CommandTimeout   time.Duration `koanf:"command_timeout"`
	RecoveryInterval time.Duration `koanf:"recovery_interval"`
	Slots            []SlotConfig  `koanf:"slots"`
}

// SlotConfig describes one slot owned by a device. DB number must be
// positive and unique within the device; it is prepended to every address
// in the signal-map template to bind it to this slot.
type SlotConfig struct {
	SlotID       int      `koanf:"slot_id"`
	DBNumber     int      `koanf:"db_number"`
	Capabilities []string `koanf:"capabilities"` // Inbound, Outbound, Transfer, CheckPallet; empty = all
}

// ValidatorConfig configures the outbound barcode-validation collaborator.
type ValidatorConfig struct {
	Enabled    bool          `koanf:"enabled"`
	BaseURL    string        `koanf:"base_url"`
	Timeout    time.Duration `koanf:"timeout"`
	CacheTTL   time.Duration `koanf:"cache_ttl"`
	JWTSecret  string        `koanf:"jwt_secret"`
	JWTExpiry  time.Duration `koanf:"jwt_expiry"`
	JWTIssuer  string        `koanf:"jwt_issuer"`
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	var errs []string

	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
		errs = append(errs, fmt.Sprintf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port))
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Sprintf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}

	seen := make(map[string]bool, len(c.Devices))
	for _, d := range c.Devices {
		if d.DeviceID == "" {
			errs = append(errs, "devices[].device_id is required")
			continue
		}
		if seen[d.DeviceID] {
			errs = append(errs, fmt.Sprintf("duplicate device_id %q", d.DeviceID))
		}
		seen[d.DeviceID] = true
	}

	validPageSizes := map[string]bool{"A4": true, "Letter": true, "Legal": true, "A3": true}
	if c.Report.PDF.PageSize != "" && !validPageSizes[c.Report.PDF.PageSize] {
		errs = append(errs, fmt.Sprintf("report.pdf.page_size must be one of: A4, Letter, Legal, A3, got %s", c.Report.PDF.PageSize))
	}

	validOrientations := map[string]bool{"portrait": true, "landscape": true}
	if c.Report.PDF.Orientation != "" && !validOrientations[c.Report.PDF.Orientation] {
		errs = append(errs, fmt.Sprintf("report.pdf.orientation must be one of: portrait, landscape, got %s", c.Report.PDF.Orientation))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsDevelopment reports whether the app is running in a dev-like environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}

// IsProduction reports whether the app is running in production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production" || c.App.Environment == "prod"
}
