package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kbase/groups-sub003/pkg/observability"
	"github.com/kbase/groups-sub003/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// External collaborators
	Auth        AuthConfig
	Authorities AuthoritiesConfig
	Feeds       FeedsConfig

	// Request lifecycle
	Requests RequestsConfig

	// Custom field validator bindings (YAML file path, empty disables
	// custom fields)
	FieldConfigPath string

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

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// AuthConfig holds identity authority client settings
type AuthConfig struct {
	URL          string
	Timeout      time.Duration
	CacheTTL     time.Duration
	CacheSize    int
	ServiceToken string
}

// AuthoritiesConfig holds per-resource-type authority endpoints. An empty
// URL leaves the type unbound.
type AuthoritiesConfig struct {
	WorkspaceURL   string
	WorkspaceToken string
	CatalogURL     string
	CatalogToken   string
	Timeout        time.Duration
}

// FeedsConfig holds notification sink settings. An empty URL falls back to
// log-only notifications.
type FeedsConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// RequestsConfig holds request lifecycle tunables
type RequestsConfig struct {
	// TTL is how long a new request stays open before expiring.
	TTL time.Duration
	// ExpireEnabled runs the expiration agent inside the server process.
	ExpireEnabled bool
	// ExpireInterval is the sweep period of the expiration agent.
	ExpireInterval time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:          loadServerConfig(),
		Storage:         loadStorageConfig(),
		Auth:            loadAuthConfig(),
		Authorities:     loadAuthoritiesConfig(),
		Feeds:           loadFeedsConfig(),
		Requests:        loadRequestsConfig(),
		FieldConfigPath: getEnv("GROUPS_FIELD_CONFIG", ""),
		Observability:   loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("GROUPS_HOST", "0.0.0.0"),
		Port:            getEnv("GROUPS_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GROUPS_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GROUPS_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GROUPS_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GROUPS_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("GROUPS_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// PostgreSQL config
	if pgURL := getEnv("GROUPS_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if replicaURLs := getEnv("GROUPS_POSTGRES_REPLICA_URLS", ""); replicaURLs != "" {
		cfg.PostgresReplicaURLs = replicaURLs
	}
	if maxConns := getEnvInt("GROUPS_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("GROUPS_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("GROUPS_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// Redis config
	if redisURL := getEnv("GROUPS_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("GROUPS_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("GROUPS_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("GROUPS_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("GROUPS_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	// Cache config
	if cacheEnabled := getEnv("GROUPS_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true"
	}
	if cacheTTL := getEnvDuration("GROUPS_CACHE_TTL", 0); cacheTTL > 0 {
		cfg.CacheTTL = cacheTTL
	}
	if l1CacheSize := getEnvInt("GROUPS_L1_CACHE_SIZE", 0); l1CacheSize > 0 {
		cfg.L1CacheSize = l1CacheSize
	}

	return cfg
}

// loadAuthConfig loads identity authority settings from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		URL:          getEnv("GROUPS_AUTH_URL", ""),
		Timeout:      getEnvDuration("GROUPS_AUTH_TIMEOUT", 10*time.Second),
		CacheTTL:     getEnvDuration("GROUPS_AUTH_CACHE_TTL", 5*time.Minute),
		CacheSize:    getEnvInt("GROUPS_AUTH_CACHE_SIZE", 2048),
		ServiceToken: getEnv("GROUPS_AUTH_SERVICE_TOKEN", ""),
	}
}

// loadAuthoritiesConfig loads resource authority endpoints from environment
func loadAuthoritiesConfig() AuthoritiesConfig {
	return AuthoritiesConfig{
		WorkspaceURL:   getEnv("GROUPS_WORKSPACE_URL", ""),
		WorkspaceToken: getEnv("GROUPS_WORKSPACE_TOKEN", ""),
		CatalogURL:     getEnv("GROUPS_CATALOG_URL", ""),
		CatalogToken:   getEnv("GROUPS_CATALOG_TOKEN", ""),
		Timeout:        getEnvDuration("GROUPS_AUTHORITY_TIMEOUT", 10*time.Second),
	}
}

// loadFeedsConfig loads notification sink settings from environment
func loadFeedsConfig() FeedsConfig {
	return FeedsConfig{
		URL:     getEnv("GROUPS_FEEDS_URL", ""),
		Token:   getEnv("GROUPS_FEEDS_TOKEN", ""),
		Timeout: getEnvDuration("GROUPS_FEEDS_TIMEOUT", 10*time.Second),
	}
}

// loadRequestsConfig loads request lifecycle settings from environment
func loadRequestsConfig() RequestsConfig {
	return RequestsConfig{
		TTL:            getEnvDuration("GROUPS_REQUEST_TTL", 14*24*time.Hour),
		ExpireEnabled:  getEnvBool("GROUPS_EXPIRE_ENABLED", true),
		ExpireInterval: getEnvDuration("GROUPS_EXPIRE_INTERVAL", time.Minute),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("GROUPS_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("GROUPS_METRICS_ENABLED", true),
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

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.CacheEnabled && c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required when the cache is enabled")
	}

	if c.Auth.URL == "" {
		return fmt.Errorf("auth URL is required")
	}

	if c.Requests.TTL <= 0 {
		return fmt.Errorf("request TTL must be positive")
	}
	if c.Requests.ExpireEnabled && c.Requests.ExpireInterval <= 0 {
		return fmt.Errorf("expiration interval must be positive")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
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

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
