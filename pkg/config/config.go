package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	// Load environment variables from .env files when present.
	_ "github.com/joho/godotenv/autoload"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Observability ObservabilityConfig
	Import        ImportConfig
	Storage       StorageConfig
	LogLevel      slog.Level
}

type ServerConfig struct {
	Host               string
	Port               int
	RateLimitPerSecond int
	RateLimitBurst     int
	CORSOrigins        []string
	MaxUploadBytes     int64
}

// DatabaseConfig is optional: with Enabled false the API runs without
// settings or deposit persistence.
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
}

type ObservabilityConfig struct {
	MetricsEnabled bool
}

// StorageConfig controls the archive of uploaded files. RetentionDays 0 keeps
// uploads forever.
type StorageConfig struct {
	Enabled       bool
	LocalPath     string
	RetentionDays int
	PruneSchedule string
}

type ImportConfig struct {
	DefaultHeaderRow int
	DefaultCurrency  string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 20),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 40),
			CORSOrigins:        getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			MaxUploadBytes:     int64(getEnvAsInt("MAX_UPLOAD_MB", 20)) << 20,
		},
		Database: DatabaseConfig{
			Enabled:  getEnvAsBool("DATABASE_ENABLED", false),
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "deposit_recon"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("POSTGRES_MAX_CONNS", 10),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
		Import: ImportConfig{
			DefaultHeaderRow: getEnvAsInt("IMPORT_DEFAULT_HEADER_ROW", 0),
			DefaultCurrency:  strings.ToUpper(getEnv("IMPORT_DEFAULT_CURRENCY", "EUR")),
		},
		Storage: StorageConfig{
			Enabled:       getEnvAsBool("UPLOAD_ARCHIVE_ENABLED", true),
			LocalPath:     getEnv("UPLOAD_ARCHIVE_PATH", "./uploads"),
			RetentionDays: getEnvAsInt("UPLOAD_RETENTION_DAYS", 365),
			PruneSchedule: getEnv("UPLOAD_PRUNE_SCHEDULE", "0 3 * * *"),
		},
	}

	level, err := ParseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if cfg.Server.MaxUploadBytes <= 0 {
		return nil, errors.New("MAX_UPLOAD_MB must be positive")
	}
	if cfg.Import.DefaultHeaderRow < 0 {
		return nil, errors.New("IMPORT_DEFAULT_HEADER_ROW must not be negative")
	}
	if cfg.Storage.RetentionDays < 0 {
		return nil, errors.New("UPLOAD_RETENTION_DAYS must not be negative")
	}
	if len(cfg.Import.DefaultCurrency) != 3 {
		return nil, fmt.Errorf("IMPORT_DEFAULT_CURRENCY %q is not an ISO 4217 code", cfg.Import.DefaultCurrency)
	}

	return cfg, nil
}

// ParseLogLevel accepts debug, info, warn and error in any case.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Addr returns the listen address of the HTTP server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
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

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
