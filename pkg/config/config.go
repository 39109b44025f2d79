package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Import        ImportConfig
	Dedup         DedupConfig
	Observability ObservabilityConfig
	Cron          CronConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	RateLimitPerSecond int
	RateLimitBurst     int
	CORSOrigins        []string
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type ImportConfig struct {
	MaxUploadBytes   int64
	RollbackWindow   time.Duration
	SessionRetention time.Duration
	ParseWorkers     int
	PreviewSample    int
	BankConfigDir    string
}

type DedupConfig struct {
	WindowDays         int
	AmountTolerance    float64
	DuplicateThreshold float64
	ReportThreshold    float64
	Strict             bool
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	LogLevel       string
}

type CronConfig struct {
	SweepSchedule string
}

// Load reads configuration from environment variables, after loading a .env
// file from the working directory when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 10),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 20),
			CORSOrigins:        getEnvAsList("SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvAsBool("POSTGRES_ENABLED", false),
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "statement-import"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Import: ImportConfig{
			MaxUploadBytes:   int64(getEnvAsInt("IMPORT_MAX_UPLOAD_BYTES", 20<<20)),
			RollbackWindow:   getEnvAsDuration("IMPORT_ROLLBACK_WINDOW", 24*time.Hour),
			SessionRetention: getEnvAsDuration("IMPORT_SESSION_RETENTION", 48*time.Hour),
			ParseWorkers:     getEnvAsInt("IMPORT_PARSE_WORKERS", 0),
			PreviewSample:    getEnvAsInt("IMPORT_PREVIEW_SAMPLE", 20),
			BankConfigDir:    getEnv("IMPORT_BANK_CONFIG_DIR", ""),
		},
		Dedup: DedupConfig{
			WindowDays:         getEnvAsInt("DEDUP_WINDOW_DAYS", 3),
			AmountTolerance:    getEnvAsFloat("DEDUP_AMOUNT_TOLERANCE", 0),
			DuplicateThreshold: getEnvAsFloat("DEDUP_DUPLICATE_THRESHOLD", 0.7),
			ReportThreshold:    getEnvAsFloat("DEDUP_REPORT_THRESHOLD", 0.4),
			Strict:             getEnvAsBool("DEDUP_STRICT", false),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
		},
		Cron: CronConfig{
			SweepSchedule: getEnv("CRON_SWEEP_SCHEDULE", "@every 15m"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT %d out of range", c.Server.Port))
	}
	if c.Import.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("IMPORT_MAX_UPLOAD_BYTES must be positive"))
	}
	if c.Import.RollbackWindow <= 0 {
		errs = append(errs, errors.New("IMPORT_ROLLBACK_WINDOW must be positive"))
	}
	if c.Import.SessionRetention < c.Import.RollbackWindow {
		errs = append(errs, errors.New("IMPORT_SESSION_RETENTION must not be shorter than the rollback window"))
	}
	if c.Dedup.WindowDays < 0 {
		errs = append(errs, errors.New("DEDUP_WINDOW_DAYS must not be negative"))
	}
	if c.Dedup.AmountTolerance < 0 {
		errs = append(errs, errors.New("DEDUP_AMOUNT_TOLERANCE must not be negative"))
	}
	for name, v := range map[string]float64{
		"DEDUP_DUPLICATE_THRESHOLD": c.Dedup.DuplicateThreshold,
		"DEDUP_REPORT_THRESHOLD":    c.Dedup.ReportThreshold,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s %.2f outside [0, 1]", name, v))
		}
	}
	if c.Dedup.ReportThreshold > c.Dedup.DuplicateThreshold {
		errs = append(errs, errors.New("DEDUP_REPORT_THRESHOLD must not exceed DEDUP_DUPLICATE_THRESHOLD"))
	}
	return errors.Join(errs...)
}

// Level maps the configured level name to a slog level; unknown names
// fall back to info.
func (c ObservabilityConfig) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
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
