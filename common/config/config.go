package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	Retention RetentionConfig
	Cache     CacheConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// StorageConfig holds remote object store settings
type StorageConfig struct {
	BaseURL        string
	DeliveryURL    string
	APIKey         string
	RequestTimeout time.Duration
}

// RetentionConfig governs lifecycle windows and the reclamation sweeps
type RetentionConfig struct {
	// How long an un-promoted upload survives before it is purge-eligible
	TempTTL time.Duration

	// Grace period between archiving and hard deletion
	ArchiveRetention time.Duration

	// How often the reclaimer runs
	SweepInterval time.Duration

	// Max records handled per sweep per run
	SweepBatchSize int
}

// CacheConfig holds cache settings
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof   bool
	PprofPort     int
	EnableMetrics bool
	MetricsPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "medialedger"),
			User:        getEnv("POSTGRES_USER", "medialedger"),
			Password:    getEnv("POSTGRES_PASSWORD", "medialedger"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Storage: StorageConfig{
			BaseURL:        getEnv("STORE_BASE_URL", "http://localhost:9000"),
			DeliveryURL:    getEnv("STORE_DELIVERY_URL", "http://localhost:9000/media"),
			APIKey:         getEnv("STORE_API_KEY", ""),
			RequestTimeout: getEnvDuration("STORE_REQUEST_TIMEOUT", 30*time.Second),
		},
		Retention: RetentionConfig{
			TempTTL:          getEnvDuration("RETENTION_TEMP_TTL", 24*time.Hour),
			ArchiveRetention: getEnvDuration("RETENTION_ARCHIVE_WINDOW", 7*24*time.Hour),
			SweepInterval:    getEnvDuration("RECLAIM_INTERVAL", 24*time.Hour),
			SweepBatchSize:   getEnvInt("RECLAIM_BATCH_SIZE", 100),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 30*time.Second),
		},
		Telemetry: TelemetryConfig{
			EnablePprof:   getEnvBool("ENABLE_PPROF", true),
			PprofPort:     getEnvInt("PPROF_PORT", 6060),
			EnableMetrics: getEnvBool("ENABLE_METRICS", true),
			MetricsPort:   getEnvInt("METRICS_PORT", 9090),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Storage.BaseURL == "" {
		return fmt.Errorf("object store base URL is required")
	}

	if c.Retention.TempTTL <= 0 {
		return fmt.Errorf("temp TTL must be positive")
	}

	if c.Retention.ArchiveRetention <= 0 {
		return fmt.Errorf("archive retention must be positive")
	}

	if c.Retention.SweepBatchSize < 1 {
		return fmt.Errorf("sweep batch size must be at least 1")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
