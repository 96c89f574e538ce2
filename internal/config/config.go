package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port            int
	Env             string
	LogLevel        string
	ShutdownTimeout time.Duration

	// CORS
	AllowedOrigins []string

	// Store (read collaborator)
	StoreDriver       string
	StoreDSN          string
	StoreMaxOpenConns int

	// Startup connection attempts per backend
	ConnectAttempts int

	// Optional backends, disabled when empty
	RedisURL      string
	ClickHouseURL string
	CacheTTL      time.Duration

	// Scheduler
	PipelinesFile string
	TimeZone      *time.Location
	StageTimeout  time.Duration

	// Run history pool
	HistoryWorkers       int
	HistoryQueueSize     int
	HistoryBatchSize     int
	HistoryFlushInterval time.Duration
}

// Load loads configuration from environment variables.
// It returns an error if critical configuration is missing or malformed.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnvInt("PORT", 8080),
		Env:             getEnv("ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", ""),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", "mysql")),
		StoreMaxOpenConns: getEnvInt("STORE_MAX_OPEN_CONNS", 10),
		ConnectAttempts:   getEnvInt("CONNECT_ATTEMPTS", 5),

		RedisURL:      getEnv("REDIS_URL", ""),
		ClickHouseURL: getEnv("CLICKHOUSE_URL", ""),
		CacheTTL:      getEnvDuration("CACHE_TTL", 5*time.Minute),

		PipelinesFile: getEnv("PIPELINES_FILE", "pipelines.yaml"),
		StageTimeout:  getEnvDuration("STAGE_TIMEOUT", 0),

		HistoryWorkers:       getEnvInt("HISTORY_WORKERS", 1),
		HistoryQueueSize:     getEnvInt("HISTORY_QUEUE_SIZE", 1000),
		HistoryBatchSize:     getEnvInt("HISTORY_BATCH_SIZE", 100),
		HistoryFlushInterval: getEnvDuration("HISTORY_FLUSH_INTERVAL", 5*time.Second),
	}

	// CORS
	origins := getEnv("ALLOWED_ORIGINS", "http://localhost:5173")
	for _, o := range strings.Split(origins, ",") {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
		}
	}

	switch cfg.StoreDriver {
	case "mysql", "postgres":
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER: %s", cfg.StoreDriver)
	}

	// Critical configuration - fail if missing
	var err error
	if cfg.StoreDSN, err = getEnvRequired("STORE_DSN"); err != nil {
		return nil, err
	}

	if cfg.TimeZone, err = getEnvLocation("SCHEDULER_TIMEZONE", time.Local); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadScheduler loads only what the pipeline commands need, so `run` and
// `validate` work on hosts without store credentials.
func LoadScheduler() (*Config, error) {
	cfg := &Config{
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", ""),
		PipelinesFile: getEnv("PIPELINES_FILE", "pipelines.yaml"),
		StageTimeout:  getEnvDuration("STAGE_TIMEOUT", 0),
	}

	var err error
	if cfg.TimeZone, err = getEnvLocation("SCHEDULER_TIMEZONE", time.Local); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether ENV selects production logging.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvRequired(key string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("missing required environment variable: %s", key)
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvLocation(key string, fallback *time.Location) (*time.Location, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	loc, err := time.LoadLocation(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return loc, nil
}
