package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrLimiterClosed     = errors.New("limiter is closed")
)

// Limiter bounds the rate of outbound calls to a single collaborator key
// (e.g. one barcode-validation endpoint).
type Limiter interface {
	// Allow reports whether one request is currently permitted.
	Allow(ctx context.Context, key string) (bool, error)

	// AllowN reports whether n requests are currently permitted.
	AllowN(ctx context.Context, key string, n int) (bool, error)

	// Wait blocks until a request is permitted or ctx is cancelled.
	Wait(ctx context.Context, key string) error

	// Reset clears the limit state for key.
	Reset(ctx context.Context, key string) error

	// GetInfo returns the current limit state for key.
	GetInfo(ctx context.Context, key string) (*LimitInfo, error)

	// Close releases the limiter's resources.
	Close() error
}

// LimitInfo is a snapshot of one key's limit state.
type LimitInfo struct {
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Config configures a rate limiter.
type Config struct {
	// Requests is the number of requests allowed per Window.
	Requests int `koanf:"requests"`

	// Window is the rolling or fixed time window.
	Window time.Duration `koanf:"window"`

	// Strategy selects the memory backend's algorithm: sliding_window or
	// token_bucket. Any other value, fixed_window included, uses
	// sliding_window; the redis backend always uses a sliding window.
	Strategy string `koanf:"strategy"`

	// KeyFunc selects how the limiting key is derived: ip, user, method.
	KeyFunc string `koanf:"key_func"`

	// Backend selects the storage: memory, redis.
	Backend string `koanf:"backend"`

	// BurstSize is the token bucket's burst allowance above Requests.
	BurstSize int `koanf:"burst_size"`

	// CleanupInterval is the in-memory backend's stale-bucket sweep cadence.
	CleanupInterval time.Duration `koanf:"cleanup_interval"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
}

// DefaultConfig returns a reasonable default configuration.
func DefaultConfig() *Config {
	return &Config{
		Requests:        100,
		Window:          time.Minute,
		Strategy:        "sliding_window",
		KeyFunc:         "ip",
		Backend:         "memory",
		BurstSize:       10,
		CleanupInterval: 5 * time.Minute,
	}
}

// New builds a limiter from the given configuration.
func New(cfg *Config) (Limiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch cfg.Backend {
	case "redis":
		return NewRedisLimiter(cfg)
	case "memory", "":
		return NewMemoryLimiter(cfg), nil
	default:
		return NewMemoryLimiter(cfg), nil
	}
}

// KeyExtractor derives the limiting key from a call's method and metadata.
type KeyExtractor func(ctx context.Context, method string, metadata map[string]string) string

// DefaultKeyExtractor derives the key from the caller's IP.
func DefaultKeyExtractor(_ context.Context, _ string, metadata map[string]string) string {
	if ip, ok := metadata["x-forwarded-for"]; ok && ip != "" {
		return ip
	}
	if ip, ok := metadata["x-real-ip"]; ok && ip != "" {
		return ip
	}
	if peer, ok := metadata[":authority"]; ok {
		return peer
	}
	return "unknown"
}

// MethodKeyExtractor derives the key from the call's method name.
func MethodKeyExtractor(_ context.Context, method string, _ map[string]string) string {
	return method
}

// UserKeyExtractor derives the key from the caller's user id.
func UserKeyExtractor(ctx context.Context, method string, metadata map[string]string) string {
	if userID, ok := metadata["x-user-id"]; ok && userID != "" {
		return userID
	}
	return DefaultKeyExtractor(ctx, method, metadata)
}

// CompositeKeyExtractor concatenates the keys from several extractors.
func CompositeKeyExtractor(extractors ...KeyExtractor) KeyExtractor {
	return func(ctx context.Context, method string, metadata map[string]string) string {
		var key string
		for _, ext := range extractors {
			key += ext(ctx, method, metadata) + ":"
		}
		return key
	}
}

// RateLimitedMethods holds a per-method override over a default limiter
// configuration.
type RateLimitedMethods struct {
	mu            sync.RWMutex
	methods       map[string]*Config
	defaultConfig *Config
}

// NewRateLimitedMethods creates an empty per-method configuration set.
func NewRateLimitedMethods(defaultCfg *Config) *RateLimitedMethods {
	if defaultCfg == nil {
		defaultCfg = DefaultConfig()
	}
	return &RateLimitedMethods{
		methods:       make(map[string]*Config),
		defaultConfig: defaultCfg,
	}
}

// Set installs a limit override for method.
func (r *RateLimitedMethods) Set(method string, cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[method] = cfg
}

// Get returns method's configuration, or the default if none was set.
func (r *RateLimitedMethods) Get(method string) *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.methods[method]; ok {
		return cfg
	}
	return r.defaultConfig
}
