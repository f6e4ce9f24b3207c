// Package config loads the gateway's configuration from environment
// variables, with optional non-secret structural overrides from a YAML
// file. Grounded on adapter/oauth.go's LoadSaxoEnvironmentConfig
// (os.Getenv-based loading with typed defaults), generalized to cover the
// full configuration surface instead of just the OAuth2 provider block.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the gateway's full configuration. Field groups mirror the
// dotted key families below (api.*, auth.*, session.*, websocket.*,
// resilience.*, cache.*).
type Config struct {
	API       APIConfig
	Auth      AuthConfig
	Session   SessionConfig
	WebSocket WebSocketConfig
	Resilience ResilienceConfig
	Cache     CacheConfig
}

type APIConfig struct {
	Key          string
	Hostname     string
	URL          string
	WebSocketURL string
	RateLimit    float64
}

type AuthConfig struct {
	Username          string
	Password          string
	AutoLogin         bool
	KeepAlive         bool
	RefreshInterval   time.Duration
}

// SessionStorageKind selects the session persistence backend.
type SessionStorageKind string

const (
	SessionStorageDatabase SessionStorageKind = "database"
	SessionStorageFile     SessionStorageKind = "file"
)

type SessionConfig struct {
	Storage         SessionStorageKind
	FilePath        string
	ExpirationHours int
	RetentionDays   int
	CleanupCron     string
	AutoCleanup     bool
}

type WebSocketConfig struct {
	Enabled           bool
	AutoConnect       bool
	HeartbeatInterval time.Duration
	ConnectionTimeout time.Duration
	Reconnect         ReconnectConfig
}

type ReconnectConfig struct {
	Enabled      bool
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int
}

type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig
	Retry          RetryConfig
	TimeLimiter    TimeLimiterConfig
}

type CircuitBreakerConfig struct {
	FailureRateThreshold                   float64
	SlowCallDurationThreshold               time.Duration
	SlowCallRateThreshold                   float64
	WaitDurationInOpenState                 time.Duration
	PermittedNumberOfCallsInHalfOpenState   int
	MinimumNumberOfCalls                    int
	SlidingWindowSize                       int
}

type RetryConfig struct {
	MaxAttempts                  int
	WaitDuration                 time.Duration
	EnableExponentialBackoff     bool
	ExponentialBackoffMultiplier float64
}

type TimeLimiterConfig struct {
	TimeoutDuration     time.Duration
	CancelRunningFuture bool
}

type CacheConfig struct {
	Enabled  bool
	RedisURL string
}

// Default returns every configuration key at its documented default.
func Default() Config {
	return Config{
		API: APIConfig{
			RateLimit: 0.2,
		},
		Auth: AuthConfig{
			AutoLogin:       true,
			KeepAlive:       true,
			RefreshInterval: 300 * time.Second,
		},
		Session: SessionConfig{
			Storage:         SessionStorageDatabase,
			ExpirationHours: 24,
			RetentionDays:   30,
			CleanupCron:     "0 0 * * * *",
			AutoCleanup:     true,
		},
		WebSocket: WebSocketConfig{
			Enabled:           true,
			AutoConnect:       true,
			HeartbeatInterval: 900 * time.Second,
			ConnectionTimeout: 30 * time.Second,
			Reconnect: ReconnectConfig{
				Enabled:      true,
				InitialDelay: 1 * time.Second,
				MaxDelay:     60 * time.Second,
				Multiplier:   2.0,
				MaxAttempts:  0,
			},
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				FailureRateThreshold:                   50,
				SlowCallDurationThreshold:               5 * time.Second,
				SlowCallRateThreshold:                   100,
				WaitDurationInOpenState:                 60 * time.Second,
				PermittedNumberOfCallsInHalfOpenState:   10,
				MinimumNumberOfCalls:                    5,
				SlidingWindowSize:                        100,
			},
			Retry: RetryConfig{
				MaxAttempts:                  3,
				WaitDuration:                 2 * time.Second,
				EnableExponentialBackoff:     true,
				ExponentialBackoffMultiplier: 2.0,
			},
			TimeLimiter: TimeLimiterConfig{
				TimeoutDuration:     10 * time.Second,
				CancelRunningFuture: true,
			},
		},
		Cache: CacheConfig{Enabled: false},
	}
}

// yamlOverlay is the subset of Config a YAML file may override: only
// non-secret structural settings. Secrets (api.key, auth.username/password)
// are env-var only regardless of what a YAML file contains.
type yamlOverlay struct {
	API struct {
		Hostname     string  `yaml:"hostname"`
		URL          string  `yaml:"url"`
		WebSocketURL string  `yaml:"websocketUrl"`
		RateLimit    float64 `yaml:"rateLimit"`
	} `yaml:"api"`
	Session struct {
		Storage         string `yaml:"storage"`
		FilePath        string `yaml:"filePath"`
		ExpirationHours int    `yaml:"expirationHours"`
		RetentionDays   int    `yaml:"retentionDays"`
		CleanupCron     string `yaml:"cleanupCron"`
		AutoCleanup     *bool  `yaml:"autoCleanup"`
	} `yaml:"session"`
	WebSocket struct {
		Enabled           *bool `yaml:"enabled"`
		AutoConnect       *bool `yaml:"autoConnect"`
		HeartbeatIntervalMs int `yaml:"heartbeatInterval"`
		ConnectionTimeoutMs int `yaml:"connectionTimeout"`
	} `yaml:"websocket"`
	Cache struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"cache"`
}

// Load builds Config from Default(), a YAML file at yamlPath (if non-empty
// and present), and then environment variables, in that precedence order
// (env wins).
func Load(yamlPath string) (Config, error) {
	cfg := Default()

	if yamlPath != "" {
		if err := applyYAML(&cfg, yamlPath); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if cfg.API.Key == "" {
		return Config{}, fmt.Errorf("config: ALGOLAB_API_KEY is required")
	}
	if cfg.Auth.Username == "" || cfg.Auth.Password == "" {
		return Config{}, fmt.Errorf("config: ALGOLAB_AUTH_USERNAME/ALGOLAB_AUTH_PASSWORD are required")
	}

	return cfg, nil
}

func applyYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var overlay yamlOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	if overlay.API.Hostname != "" {
		cfg.API.Hostname = overlay.API.Hostname
	}
	if overlay.API.URL != "" {
		cfg.API.URL = overlay.API.URL
	}
	if overlay.API.WebSocketURL != "" {
		cfg.API.WebSocketURL = overlay.API.WebSocketURL
	}
	if overlay.API.RateLimit != 0 {
		cfg.API.RateLimit = overlay.API.RateLimit
	}

	if overlay.Session.Storage != "" {
		cfg.Session.Storage = SessionStorageKind(overlay.Session.Storage)
	}
	if overlay.Session.FilePath != "" {
		cfg.Session.FilePath = overlay.Session.FilePath
	}
	if overlay.Session.ExpirationHours != 0 {
		cfg.Session.ExpirationHours = overlay.Session.ExpirationHours
	}
	if overlay.Session.RetentionDays != 0 {
		cfg.Session.RetentionDays = overlay.Session.RetentionDays
	}
	if overlay.Session.CleanupCron != "" {
		cfg.Session.CleanupCron = overlay.Session.CleanupCron
	}
	if overlay.Session.AutoCleanup != nil {
		cfg.Session.AutoCleanup = *overlay.Session.AutoCleanup
	}

	if overlay.WebSocket.Enabled != nil {
		cfg.WebSocket.Enabled = *overlay.WebSocket.Enabled
	}
	if overlay.WebSocket.AutoConnect != nil {
		cfg.WebSocket.AutoConnect = *overlay.WebSocket.AutoConnect
	}
	if overlay.WebSocket.HeartbeatIntervalMs != 0 {
		cfg.WebSocket.HeartbeatInterval = time.Duration(overlay.WebSocket.HeartbeatIntervalMs) * time.Millisecond
	}
	if overlay.WebSocket.ConnectionTimeoutMs != 0 {
		cfg.WebSocket.ConnectionTimeout = time.Duration(overlay.WebSocket.ConnectionTimeoutMs) * time.Millisecond
	}

	if overlay.Cache.Enabled != nil {
		cfg.Cache.Enabled = *overlay.Cache.Enabled
	}

	return nil
}

func applyEnv(cfg *Config) {
	str(&cfg.API.Key, "ALGOLAB_API_KEY")
	str(&cfg.API.Hostname, "ALGOLAB_API_HOSTNAME")
	str(&cfg.API.URL, "ALGOLAB_API_URL")
	str(&cfg.API.WebSocketURL, "ALGOLAB_API_WEBSOCKET_URL")
	flt(&cfg.API.RateLimit, "ALGOLAB_API_RATE_LIMIT")

	str(&cfg.Auth.Username, "ALGOLAB_AUTH_USERNAME")
	str(&cfg.Auth.Password, "ALGOLAB_AUTH_PASSWORD")
	boolean(&cfg.Auth.AutoLogin, "ALGOLAB_AUTH_AUTO_LOGIN")
	boolean(&cfg.Auth.KeepAlive, "ALGOLAB_AUTH_KEEP_ALIVE")
	millis(&cfg.Auth.RefreshInterval, "ALGOLAB_AUTH_REFRESH_INTERVAL_MS")

	if v := os.Getenv("ALGOLAB_SESSION_STORAGE"); v != "" {
		cfg.Session.Storage = SessionStorageKind(v)
	}
	str(&cfg.Session.FilePath, "ALGOLAB_SESSION_FILE_PATH")
	intv(&cfg.Session.ExpirationHours, "ALGOLAB_SESSION_EXPIRATION_HOURS")
	intv(&cfg.Session.RetentionDays, "ALGOLAB_SESSION_RETENTION_DAYS")
	str(&cfg.Session.CleanupCron, "ALGOLAB_SESSION_CLEANUP_CRON")
	boolean(&cfg.Session.AutoCleanup, "ALGOLAB_SESSION_AUTO_CLEANUP")

	boolean(&cfg.WebSocket.Enabled, "ALGOLAB_WEBSOCKET_ENABLED")
	boolean(&cfg.WebSocket.AutoConnect, "ALGOLAB_WEBSOCKET_AUTO_CONNECT")
	millis(&cfg.WebSocket.HeartbeatInterval, "ALGOLAB_WEBSOCKET_HEARTBEAT_INTERVAL_MS")
	millis(&cfg.WebSocket.ConnectionTimeout, "ALGOLAB_WEBSOCKET_CONNECTION_TIMEOUT_MS")
	boolean(&cfg.WebSocket.Reconnect.Enabled, "ALGOLAB_WEBSOCKET_RECONNECT_ENABLED")
	millis(&cfg.WebSocket.Reconnect.InitialDelay, "ALGOLAB_WEBSOCKET_RECONNECT_INITIAL_DELAY_MS")
	millis(&cfg.WebSocket.Reconnect.MaxDelay, "ALGOLAB_WEBSOCKET_RECONNECT_MAX_DELAY_MS")
	flt(&cfg.WebSocket.Reconnect.Multiplier, "ALGOLAB_WEBSOCKET_RECONNECT_MULTIPLIER")
	intv(&cfg.WebSocket.Reconnect.MaxAttempts, "ALGOLAB_WEBSOCKET_RECONNECT_MAX_ATTEMPTS")

	boolean(&cfg.Cache.Enabled, "ALGOLAB_CACHE_ENABLED")
	str(&cfg.Cache.RedisURL, "ALGOLAB_CACHE_REDIS_URL")
}

func str(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func boolean(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func intv(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func flt(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = parsed
		}
	}
}

func millis(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(parsed) * time.Millisecond
		}
	}
}
