package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/waypoint/pkg/audit"
	"github.com/platinummonkey/waypoint/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Module provisioning and sessions
	Modules ModulesConfig

	// Audit trail
	Audit AuditConfig

	// Data access
	Datastore DatastoreConfig

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

	// RateLimitEnabled turns on per-actor request limits
	RateLimitEnabled bool
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// ModulesConfig holds module factory and reaper settings
type ModulesConfig struct {
	InitTimeout    time.Duration
	IdleTTL        time.Duration
	ReaperSchedule string

	// SeedFile is a YAML role and user seed. Empty means the built-in seed.
	SeedFile string
}

// AuditConfig holds audit logger settings
type AuditConfig struct {
	MaxEntries int
	MinLevel   audit.Level
}

// DatastoreConfig holds data access settings
type DatastoreConfig struct {
	ReportCacheSize int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  string
	LogFormat string

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// OTel returns the OpenTelemetry settings in the form InitOTel takes
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
	}
}

// Logger returns the logger settings in the form NewLogger takes
func (o ObservabilityConfig) Logger() observability.LoggerConfig {
	return observability.LoggerConfig{Level: o.LogLevel, Format: o.LogFormat}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	auditCfg, err := loadAuditConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Modules:       loadModulesConfig(),
		Audit:         auditCfg,
		Datastore:     loadDatastoreConfig(),
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
		Host:            getEnv("WAYPOINT_HOST", "0.0.0.0"),
		Port:            getEnv("WAYPOINT_PORT", "8080"),
		ReadTimeout:     getEnvDuration("WAYPOINT_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WAYPOINT_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("WAYPOINT_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("WAYPOINT_SHUTDOWN_TIMEOUT", 30*time.Second),

		RateLimitEnabled: getEnvBool("WAYPOINT_RATE_LIMIT_ENABLED", true),
	}
}

func loadModulesConfig() ModulesConfig {
	return ModulesConfig{
		InitTimeout:    getEnvDuration("WAYPOINT_MODULE_INIT_TIMEOUT", 10*time.Second),
		IdleTTL:        getEnvDuration("WAYPOINT_SESSION_IDLE_TTL", 30*time.Minute),
		ReaperSchedule: getEnv("WAYPOINT_REAPER_SCHEDULE", "@every 1m"),
		SeedFile:       getEnv("WAYPOINT_SEED_FILE", ""),
	}
}

func loadAuditConfig() (AuditConfig, error) {
	level, err := audit.ParseLevel(getEnv("WAYPOINT_AUDIT_LEVEL", "info"))
	if err != nil {
		return AuditConfig{}, fmt.Errorf("WAYPOINT_AUDIT_LEVEL: %w", err)
	}
	return AuditConfig{
		MaxEntries: getEnvInt("WAYPOINT_AUDIT_MAX_ENTRIES", 1000),
		MinLevel:   level,
	}, nil
}

func loadDatastoreConfig() DatastoreConfig {
	return DatastoreConfig{
		ReportCacheSize: getEnvInt("WAYPOINT_REPORT_CACHE_SIZE", 128),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           strings.ToLower(getEnv("WAYPOINT_LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("WAYPOINT_LOG_FORMAT", observability.FormatJSON)),
		MetricsEnabled:     getEnvBool("WAYPOINT_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("WAYPOINT_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("WAYPOINT_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("WAYPOINT_OTEL_SERVICE_NAME", "waypoint"),
		OTelServiceVersion: getEnv("WAYPOINT_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("WAYPOINT_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("server port must be numeric: %q", c.Server.Port)
	}

	if c.Audit.MaxEntries <= 0 {
		return fmt.Errorf("audit max entries must be positive, got %d", c.Audit.MaxEntries)
	}
	if c.Datastore.ReportCacheSize <= 0 {
		return fmt.Errorf("report cache size must be positive, got %d", c.Datastore.ReportCacheSize)
	}

	if c.Modules.InitTimeout <= 0 {
		return fmt.Errorf("module init timeout must be positive")
	}
	if c.Modules.IdleTTL <= 0 {
		return fmt.Errorf("session idle TTL must be positive")
	}
	if _, err := cron.ParseStandard(c.Modules.ReaperSchedule); err != nil {
		return fmt.Errorf("invalid reaper schedule %q: %w", c.Modules.ReaperSchedule, err)
	}

	switch c.Observability.LogFormat {
	case observability.FormatJSON, observability.FormatText:
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Observability.LogFormat)
	}

	// Validate OpenTelemetry config
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
