package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/apilogin/pkg/observability"
	"github.com/platinummonkey/apilogin/pkg/storage"
)

// Token store backends
const (
	TokenBackendSQL   = "sql"
	TokenBackendRedis = "redis"
)

// Settings sources
const (
	SettingsSourceSQL  = "sql"
	SettingsSourceFile = "file"
)

// Config holds all process configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database storage.Config

	// Token store configuration
	Tokens TokenConfig

	// Where durable plugin settings are read from
	Settings SettingsConfig

	// Session configuration for the login endpoint
	Session SessionConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// Per-IP limit on the service and login endpoints
	RateLimit float64
	RateBurst int

	// Take the client address from X-Forwarded-For / X-Real-IP
	TrustProxyHeaders bool

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// TokenConfig holds login token storage configuration
type TokenConfig struct {
	Backend       string
	Redis         storage.RedisConfig
	PurgeSchedule string // cron expression; empty disables purging
}

// SettingsConfig selects the durable settings source
type SettingsConfig struct {
	Source string
	File   string
}

// SessionConfig holds in-memory session settings
type SessionConfig struct {
	CookieName string
	TTL        time.Duration
	MaxEntries int
	Secure     bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	database, err := loadDatabaseConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      database,
		Tokens:        loadTokenConfig(),
		Settings:      loadSettingsConfig(),
		Session:       loadSessionConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:              getEnv("APILOGIN_HOST", "0.0.0.0"),
		Port:              getEnv("APILOGIN_PORT", "8080"),
		ReadTimeout:       getEnvDuration("APILOGIN_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      getEnvDuration("APILOGIN_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       getEnvDuration("APILOGIN_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getEnvDuration("APILOGIN_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:      getEnvInt64("APILOGIN_MAX_BODY_BYTES", 1<<20),
		RateLimit:         getEnvFloat("APILOGIN_RATE_LIMIT", 20),
		RateBurst:         getEnvInt("APILOGIN_RATE_BURST", 40),
		TrustProxyHeaders: getEnvBool("APILOGIN_TRUST_PROXY_HEADERS", false),
		HealthPort:        getEnv("APILOGIN_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() (storage.Config, error) {
	cfg := storage.DefaultConfig()

	driver, err := storage.ParseDriver(getEnv("APILOGIN_DB_DRIVER", string(storage.DriverPostgres)))
	if err != nil {
		return cfg, err
	}
	cfg.Driver = driver
	cfg.URL = getEnv("APILOGIN_DB_URL", "")

	if maxConns := getEnvInt("APILOGIN_DB_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("APILOGIN_DB_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("APILOGIN_DB_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}

	return cfg, nil
}

// loadTokenConfig loads token store configuration from environment
func loadTokenConfig() TokenConfig {
	return TokenConfig{
		Backend: strings.ToLower(getEnv("APILOGIN_TOKEN_BACKEND", TokenBackendSQL)),
		Redis: storage.RedisConfig{
			URL:        getEnv("APILOGIN_REDIS_URL", "redis://localhost:6379/0"),
			Password:   getEnv("APILOGIN_REDIS_PASSWORD", ""),
			DB:         getEnvInt("APILOGIN_REDIS_DB", 0),
			MaxRetries: getEnvInt("APILOGIN_REDIS_MAX_RETRIES", 3),
			PoolSize:   getEnvInt("APILOGIN_REDIS_POOL_SIZE", 10),
		},
		PurgeSchedule: getEnv("APILOGIN_PURGE_SCHEDULE", ""),
	}
}

// loadSettingsConfig loads the settings source from environment
func loadSettingsConfig() SettingsConfig {
	return SettingsConfig{
		Source: strings.ToLower(getEnv("APILOGIN_SETTINGS_SOURCE", SettingsSourceSQL)),
		File:   getEnv("APILOGIN_SETTINGS_FILE", ""),
	}
}

// loadSessionConfig loads session configuration from environment
func loadSessionConfig() SessionConfig {
	return SessionConfig{
		CookieName: getEnv("APILOGIN_SESSION_COOKIE", "apilogin_session"),
		TTL:        getEnvDuration("APILOGIN_SESSION_TTL", 8*time.Hour),
		MaxEntries: getEnvInt("APILOGIN_SESSION_MAX_ENTRIES", 10000),
		Secure:     getEnvBool("APILOGIN_SESSION_SECURE", true),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           ParseLogLevel(getEnv("APILOGIN_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("APILOGIN_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("APILOGIN_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("APILOGIN_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("APILOGIN_OTEL_SERVICE_NAME", "apilogin"),
		OTelServiceVersion: getEnv("APILOGIN_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("APILOGIN_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("APILOGIN_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("rate limit and burst must not be negative")
	}

	// The user store always lives in the database
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	switch c.Tokens.Backend {
	case TokenBackendSQL:
	case TokenBackendRedis:
		if c.Tokens.Redis.URL == "" {
			return fmt.Errorf("redis URL is required for the redis token backend")
		}
	default:
		return fmt.Errorf("invalid token backend: %s (must be sql or redis)", c.Tokens.Backend)
	}

	switch c.Settings.Source {
	case SettingsSourceSQL:
	case SettingsSourceFile:
		if c.Settings.File == "" {
			return fmt.Errorf("settings file is required for the file settings source")
		}
	default:
		return fmt.Errorf("invalid settings source: %s (must be sql or file)", c.Settings.Source)
	}

	if c.Session.CookieName == "" {
		return fmt.Errorf("session cookie name is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
}

// ParseLogLevel parses a log level name, defaulting to info
func ParseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
