package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	// Load environment variables from .env files when present.
	_ "github.com/joho/godotenv/autoload"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	Storage       StorageConfig
	Import        ImportConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	AllowedOrigins     []string
	RateLimitPerSecond int
	RateLimitBurst     int
	ShutdownTimeout    time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type AuthConfig struct {
	JWTSecret string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	MetricsPort    int
}

type StorageConfig struct {
	Type               string // local or gcs
	LocalPath          string
	GCSBucket          string
	GCSCredentialsFile string
	GCSEndpoint        string
}

type ImportConfig struct {
	DuplicateTolerance string // decimal, e.g. "0.01"
	MatchDescription   bool
	MaxUploadBytes     int64
	MaxArchiveEntry    int64
	SweepSchedule      string // cron spec for the orphaned document sweeper
	SweepGrace         time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := FromEnv()

	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if err := cfg.Storage.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromEnv reads the environment without validating it. Tools that never
// serve requests use it to skip the auth settings.
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			AllowedOrigins:     getEnvAsList("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 20),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 40),
			ShutdownTimeout:    getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "bookkeeper-dev"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
		},
		Storage: StorageConfig{
			Type:               getEnv("STORAGE_TYPE", "local"),
			LocalPath:          getEnv("STORAGE_LOCAL_PATH", "./uploads"),
			GCSBucket:          getEnv("STORAGE_GCS_BUCKET", ""),
			GCSCredentialsFile: getEnv("STORAGE_GCS_CREDENTIALS_FILE", ""),
			GCSEndpoint:        getEnv("STORAGE_GCS_ENDPOINT", ""),
		},
		Import: ImportConfig{
			DuplicateTolerance: getEnv("IMPORT_DUPLICATE_TOLERANCE", "0.01"),
			MatchDescription:   getEnvAsBool("IMPORT_DUPLICATE_MATCH_DESCRIPTION", false),
			MaxUploadBytes:     int64(getEnvAsInt("IMPORT_MAX_UPLOAD_BYTES", 50<<20)),
			MaxArchiveEntry:    int64(getEnvAsInt("IMPORT_MAX_ARCHIVE_ENTRY_BYTES", 25<<20)),
			SweepSchedule:      getEnv("IMPORT_SWEEP_SCHEDULE", "*/30 * * * *"),
			SweepGrace:         getEnvAsDuration("IMPORT_SWEEP_GRACE", time.Hour),
		},
	}
}

// Validate checks the backend specific settings.
func (c StorageConfig) Validate() error {
	if c.Type == "gcs" && c.GCSBucket == "" {
		return errors.New("STORAGE_GCS_BUCKET is required when STORAGE_TYPE=gcs")
	}
	return nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
