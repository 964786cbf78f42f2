package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harborgate/orgd/pkg/observability"
)

// DeploymentMode selects between the hosted product (multi-tenant,
// payment-processor-backed) and a self-hosted installation (license-
// file-backed). It is fixed at process start and read-only afterwards.
type DeploymentMode string

const (
	ModeHosted     DeploymentMode = "hosted"
	ModeSelfHosted DeploymentMode = "self-hosted"
)

// Valid reports whether m is a known mode.
func (m DeploymentMode) Valid() bool {
	return m == ModeHosted || m == ModeSelfHosted
}

// Hosted reports whether this is the hosted deployment.
func (m DeploymentMode) Hosted() bool {
	return m == ModeHosted
}

// Mode implements ModeGate, so a bare mode value can gate dispatch.
func (m DeploymentMode) Mode() DeploymentMode {
	return m
}

// ModeGate is the capability through which command dispatch reads the
// deployment mode.
type ModeGate interface {
	Mode() DeploymentMode
}

// Config holds all application configuration
type Config struct {
	// DeploymentMode is immutable for the lifetime of the process.
	DeploymentMode DeploymentMode `yaml:"deployment_mode"`

	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Guard         GuardConfig         `yaml:"guard"`
	License       LicenseConfig       `yaml:"license"`
	Cache         CacheConfig         `yaml:"cache"`
	Cleanup       CleanupConfig       `yaml:"cleanup"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// Mode implements ModeGate.
func (c *Config) Mode() DeploymentMode {
	return c.DeploymentMode
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string        `yaml:"url"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	ConnLifetime time.Duration `yaml:"conn_lifetime"`
}

// RedisConfig holds Redis configuration for the guard attempt limiter.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// GuardConfig tunes the sensitive-operation guard.
type GuardConfig struct {
	// MinDelay is the fixed wall-clock time a failed verification
	// consumes. Security-relevant; never set it to zero in production.
	MinDelay    time.Duration `yaml:"min_delay"`
	MaxFailures int           `yaml:"max_failures"`
	Window      time.Duration `yaml:"window"`
}

// LicenseConfig holds the license key material. Hosted deployments set
// the private key and can sign; self-hosted deployments set only the
// public key.
type LicenseConfig struct {
	PrivateKeyFile string        `yaml:"private_key_file"`
	PublicKeyFile  string        `yaml:"public_key_file"`
	Validity       time.Duration `yaml:"validity"`
}

// CacheConfig sizes the in-process organization cache. The TTL bounds
// how stale a cached row may be across instances.
type CacheConfig struct {
	OrgCacheSize int           `yaml:"org_cache_size"`
	OrgCacheTTL  time.Duration `yaml:"org_cache_ttl"`
}

// CleanupConfig schedules the revoked-membership purge.
type CleanupConfig struct {
	Schedule  string        `yaml:"schedule"`
	Retention time.Duration `yaml:"retention"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel     observability.LogLevel `yaml:"-"`
	LogLevelName string                 `yaml:"log_level"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// LoadConfig loads configuration from an optional YAML file named by
// ORGD_CONFIG_FILE, then applies environment overrides on top.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := getEnv("ORGD_CONFIG_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)
	cfg.Observability.LogLevel = parseLogLevel(cfg.Observability.LogLevelName)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		DeploymentMode: ModeHosted,
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			URL:          "postgres://localhost/orgd?sslmode=disable",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
			ConnLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Guard: GuardConfig{
			MinDelay:    2 * time.Second,
			MaxFailures: 10,
			Window:      15 * time.Minute,
		},
		License: LicenseConfig{
			Validity: 365 * 24 * time.Hour,
		},
		Cache: CacheConfig{
			OrgCacheSize: 1024,
			OrgCacheTTL:  30 * time.Second,
		},
		Cleanup: CleanupConfig{
			Schedule:  "15 0 * * *",
			Retention: 90 * 24 * time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevelName:       "info",
			MetricsEnabled:     true,
			OTelEnabled:        false,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "orgd",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

func applyEnv(cfg *Config) {
	if mode := getEnv("ORGD_DEPLOYMENT_MODE", ""); mode != "" {
		cfg.DeploymentMode = DeploymentMode(strings.ToLower(mode))
	}

	cfg.Server.Host = getEnv("ORGD_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("ORGD_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvDuration("ORGD_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("ORGD_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getEnvDuration("ORGD_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.ShutdownTimeout = getEnvDuration("ORGD_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.HealthPort = getEnv("ORGD_HEALTH_PORT", cfg.Server.HealthPort)

	cfg.Database.URL = getEnv("ORGD_POSTGRES_URL", cfg.Database.URL)
	cfg.Database.MaxOpenConns = getEnvInt("ORGD_POSTGRES_MAX_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvInt("ORGD_POSTGRES_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.ConnLifetime = getEnvDuration("ORGD_POSTGRES_CONN_LIFETIME", cfg.Database.ConnLifetime)

	cfg.Redis.Addr = getEnv("ORGD_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("ORGD_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("ORGD_REDIS_DB", cfg.Redis.DB)

	cfg.Guard.MinDelay = getEnvDuration("ORGD_GUARD_MIN_DELAY", cfg.Guard.MinDelay)
	cfg.Guard.MaxFailures = getEnvInt("ORGD_GUARD_MAX_FAILURES", cfg.Guard.MaxFailures)
	cfg.Guard.Window = getEnvDuration("ORGD_GUARD_WINDOW", cfg.Guard.Window)

	cfg.License.PrivateKeyFile = getEnv("ORGD_LICENSE_PRIVATE_KEY_FILE", cfg.License.PrivateKeyFile)
	cfg.License.PublicKeyFile = getEnv("ORGD_LICENSE_PUBLIC_KEY_FILE", cfg.License.PublicKeyFile)
	cfg.License.Validity = getEnvDuration("ORGD_LICENSE_VALIDITY", cfg.License.Validity)

	cfg.Cache.OrgCacheSize = getEnvInt("ORGD_ORG_CACHE_SIZE", cfg.Cache.OrgCacheSize)
	cfg.Cache.OrgCacheTTL = getEnvDuration("ORGD_ORG_CACHE_TTL", cfg.Cache.OrgCacheTTL)

	cfg.Cleanup.Schedule = getEnv("ORGD_CLEANUP_SCHEDULE", cfg.Cleanup.Schedule)
	cfg.Cleanup.Retention = getEnvDuration("ORGD_CLEANUP_RETENTION", cfg.Cleanup.Retention)

	cfg.Observability.LogLevelName = getEnv("ORGD_LOG_LEVEL", cfg.Observability.LogLevelName)
	cfg.Observability.MetricsEnabled = getEnvBool("ORGD_METRICS_ENABLED", cfg.Observability.MetricsEnabled)
	cfg.Observability.OTelEnabled = getEnvBool("ORGD_OTEL_ENABLED", cfg.Observability.OTelEnabled)
	cfg.Observability.OTelEndpoint = getEnv("ORGD_OTEL_ENDPOINT", cfg.Observability.OTelEndpoint)
	cfg.Observability.OTelServiceName = getEnv("ORGD_OTEL_SERVICE_NAME", cfg.Observability.OTelServiceName)
	cfg.Observability.OTelServiceVersion = getEnv("ORGD_OTEL_SERVICE_VERSION", cfg.Observability.OTelServiceVersion)
	cfg.Observability.OTelInsecure = getEnvBool("ORGD_OTEL_INSECURE", cfg.Observability.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !c.DeploymentMode.Valid() {
		return fmt.Errorf("invalid deployment mode: %s (must be hosted or self-hosted)", c.DeploymentMode)
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Guard.MinDelay <= 0 {
		return fmt.Errorf("guard minimum delay must be positive")
	}

	// Hosted deployments sign licenses; self-hosted only verify.
	if c.DeploymentMode.Hosted() {
		if c.License.PrivateKeyFile == "" {
			return fmt.Errorf("license private key file is required in hosted mode")
		}
	} else if c.License.PublicKeyFile == "" {
		return fmt.Errorf("license public key file is required in self-hosted mode")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
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
