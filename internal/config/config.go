package config

import (
	"net/url"
	"strings"
	"time"
)

// Config 主配置结构体，按功能域拆分
type Config struct {
	API       APIConfig       `yaml:"api" json:"api" envPrefix:"API_"`
	Session   SessionConfig   `yaml:"session" json:"session" envPrefix:"SESSION_"`
	Storage   StorageConfig   `yaml:"storage" json:"storage" envPrefix:"STORAGE_"`
	Cookie    CookieConfig    `yaml:"cookie" json:"cookie" envPrefix:"COOKIE_"`
	Transport TransportConfig `yaml:"transport" json:"transport" envPrefix:"TRANSPORT_"`
	Security  SecurityConfig  `yaml:"security" json:"security"`
	Tracing   TracingConfig   `yaml:"tracing" json:"tracing" envPrefix:"TRACING_"`
	UI        UIConfig        `yaml:"ui" json:"ui" envPrefix:"UI_"`
	DevServer DevServerConfig `yaml:"dev_server" json:"dev_server" envPrefix:"DEV_"`
}

// APIConfig describes the dashboard backend.
type APIConfig struct {
	BaseURL          string `yaml:"base_url" json:"base_url" env:"BASE_URL"`
	CredentialHeader string `yaml:"credential_header" json:"credential_header" env:"CREDENTIAL_HEADER"`
	SessionPath      string `yaml:"session_path" json:"session_path" env:"SESSION_PATH"`
	LoginPath        string `yaml:"login_path" json:"login_path" env:"LOGIN_PATH"`
}

// SessionConfig controls visitor bootstrap.
type SessionConfig struct {
	// BootstrapKey is the pre-shared AES-128 key used for the handshake. It
	// ships in client configuration and is not a secret from the client.
	BootstrapKey        string `yaml:"bootstrap_key" json:"bootstrap_key" env:"BOOTSTRAP_KEY"`
	HandshakeTimeoutSec int    `yaml:"handshake_timeout_sec" json:"handshake_timeout_sec" env:"HANDSHAKE_TIMEOUT_SEC"`
	AutoBootstrap       bool   `yaml:"auto_bootstrap" json:"auto_bootstrap" env:"AUTO_BOOTSTRAP"`
}

// StorageConfig selects the durable credential channel.
type StorageConfig struct {
	Backend       string `yaml:"backend" json:"backend" env:"BACKEND"`
	Path          string `yaml:"path" json:"path" env:"PATH"`
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" json:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db" env:"REDIS_DB"`
	RedisPrefix   string `yaml:"redis_prefix" json:"redis_prefix" env:"REDIS_PREFIX"`
	Watch         bool   `yaml:"watch" json:"watch" env:"WATCH"`
}

// CookieConfig controls the cookie mirror channel.
type CookieConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" env:"ENABLED"`
	TTLDays int  `yaml:"ttl_days" json:"ttl_days" env:"TTL_DAYS"`
}

// TransportConfig tunes the HTTP transport. No request-level timeout exists;
// only connection setup is bounded.
type TransportConfig struct {
	DialTimeoutSec           int    `yaml:"dial_timeout_sec" json:"dial_timeout_sec" env:"DIAL_TIMEOUT_SEC"`
	TLSHandshakeTimeoutSec   int    `yaml:"tls_handshake_timeout_sec" json:"tls_handshake_timeout_sec" env:"TLS_HANDSHAKE_TIMEOUT_SEC"`
	ResponseHeaderTimeoutSec int    `yaml:"response_header_timeout_sec" json:"response_header_timeout_sec" env:"RESPONSE_HEADER_TIMEOUT_SEC"`
	ProxyURL                 string `yaml:"proxy_url" json:"proxy_url" env:"PROXY_URL"`
}

// SecurityConfig carries the debug and log file switches.
type SecurityConfig struct {
	Debug   bool   `yaml:"debug" json:"debug" env:"DEBUG"`
	LogFile string `yaml:"log_file" json:"log_file" env:"LOG_FILE"`
}

// TracingConfig enables OTLP span export. An empty endpoint falls back to
// OTEL_EXPORTER_OTLP_ENDPOINT; with neither set tracing stays off.
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint" json:"endpoint" env:"ENDPOINT"`
	Insecure    bool    `yaml:"insecure" json:"insecure" env:"INSECURE"`
	SampleRatio float64 `yaml:"sample_ratio" json:"sample_ratio" env:"SAMPLE_RATIO"`
}

// UIConfig holds presentation preferences that other components react to.
type UIConfig struct {
	Language string `yaml:"language" json:"language" env:"LANGUAGE"`
}

// DevServerConfig configures the local backend emulator.
type DevServerConfig struct {
	Addr           string `yaml:"addr" json:"addr" env:"ADDR"`
	RateLimitRPS   int    `yaml:"rate_limit_rps" json:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int    `yaml:"rate_limit_burst" json:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	JWTSecret      string `yaml:"jwt_secret" json:"jwt_secret" env:"JWT_SECRET"`
	DemoEmail      string `yaml:"demo_email" json:"demo_email" env:"DEMO_EMAIL"`
	DemoPassword   string `yaml:"demo_password" json:"demo_password" env:"DEMO_PASSWORD"`
}

// BaseURL parses API.BaseURL. Validate guarantees it parses.
func (c *Config) BaseURL() *url.URL {
	u, err := url.Parse(strings.TrimRight(c.API.BaseURL, "/"))
	if err != nil {
		return &url.URL{Scheme: "http", Host: "localhost"}
	}
	return u
}

// CookieTTL returns the configured cookie lifetime.
func (c *Config) CookieTTL() time.Duration {
	if c.Cookie.TTLDays <= 0 {
		return 365 * 24 * time.Hour
	}
	return time.Duration(c.Cookie.TTLDays) * 24 * time.Hour
}

// HandshakeTimeout bounds the detached visitor bootstrap attempt.
func (c *Config) HandshakeTimeout() time.Duration {
	return durationOrDefault(c.Session.HandshakeTimeoutSec, 30*time.Second)
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
