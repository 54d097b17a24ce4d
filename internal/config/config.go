package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Storage  StorageConfig
	Training TrainingConfig
	API      APIConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds registry backend configuration.
// Driver "memory" keeps registries in process and ignores the rest.
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// StorageConfig holds on-disk artifact locations
type StorageConfig struct {
	BaseDir      string
	DatasetsDir  string
	ProcessedDir string
	ResultsDir   string
	PlotsDir     string
	ModelsDir    string
	MaxUploadMB  int64
}

// TrainingConfig holds forecasting defaults
type TrainingConfig struct {
	DefaultTestRatio float64
	MinProducts      int
	MinWeeks         int
	Workers          int
	QueueSize        int
	RenderPlots      bool
}

// APIConfig holds API behaviour settings
type APIConfig struct {
	RateLimitPerSecond float64
	RateLimitBurst     int
	CORSOrigins        []string
}

// LoadConfig reads configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment
// variables take precedence over it.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	base := getEnvOrDefault("STORAGE_DIR", "storage")

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnvOrDefault("HOST", "0.0.0.0"),
			Port:            getIntOrDefault("PORT", 8000),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getDurationOrDefault("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnvOrDefault("DB_DRIVER", "memory")),
			Host:            getEnvOrDefault("DB_HOST", "localhost"),
			Port:            getIntOrDefault("DB_PORT", 5432),
			User:            getEnvOrDefault("DB_USER", "forecast"),
			Password:        getEnvOrDefault("DB_PASSWORD", ""),
			Database:        getEnvOrDefault("DB_NAME", "unis_forecast"),
			SSLMode:         getEnvOrDefault("DB_SSLMODE", "disable"),
			MaxOpenConns:    getIntOrDefault("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntOrDefault("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationOrDefault("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getDurationOrDefault("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "info"),
		},
		Storage: StorageConfig{
			BaseDir:      base,
			DatasetsDir:  getEnvOrDefault("DATASETS_DIR", filepath.Join(base, "datasets")),
			ProcessedDir: getEnvOrDefault("PROCESSED_DIR", filepath.Join(base, "processed")),
			ResultsDir:   getEnvOrDefault("RESULTS_DIR", filepath.Join(base, "results")),
			PlotsDir:     getEnvOrDefault("PLOTS_DIR", filepath.Join(base, "plots")),
			ModelsDir:    getEnvOrDefault("MODELS_DIR", filepath.Join(base, "models")),
			MaxUploadMB:  int64(getIntOrDefault("MAX_UPLOAD_MB", 100)),
		},
		Training: TrainingConfig{
			DefaultTestRatio: getFloatOrDefault("DEFAULT_TEST_RATIO", 0.3),
			MinProducts:      getIntOrDefault("MIN_PRODUCTS_FOR_TRAINING", 5),
			MinWeeks:         getIntOrDefault("MIN_WEEKS_FOR_TRAINING", 8),
			Workers:          getIntOrDefault("TRAINING_WORKERS", 2),
			QueueSize:        getIntOrDefault("TRAINING_QUEUE_SIZE", 32),
			RenderPlots:      getBoolOrDefault("RENDER_PLOTS", false),
		},
		API: APIConfig{
			RateLimitPerSecond: getFloatOrDefault("RATE_LIMIT_RPS", 10),
			RateLimitBurst:     getIntOrDefault("RATE_LIMIT_BURST", 20),
			CORSOrigins:        splitList(getEnvOrDefault("CORS_ORIGINS", "*")),
		},
	}

	return cfg, nil
}

// Validate checks configuration for impossible values
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "memory", "sqlite3":
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required for postgres")
		}
		if c.Database.MaxOpenConns < 1 {
			return fmt.Errorf("max open connections must be positive")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	if c.Training.DefaultTestRatio <= 0 || c.Training.DefaultTestRatio >= 1 {
		return fmt.Errorf("default test ratio must be in (0,1), got %v", c.Training.DefaultTestRatio)
	}

	if c.Training.Workers < 1 {
		return fmt.Errorf("training workers must be positive, got %d", c.Training.Workers)
	}

	if c.Training.QueueSize < 1 {
		return fmt.Errorf("training queue size must be positive, got %d", c.Training.QueueSize)
	}

	if c.Training.MinProducts < 1 || c.Training.MinWeeks < 1 {
		return fmt.Errorf("minimum products and weeks must be positive")
	}

	if c.API.RateLimitPerSecond <= 0 || c.API.RateLimitBurst < 1 {
		return fmt.Errorf("rate limit must be positive")
	}

	return nil
}

// StorageDirs lists every artifact directory that must exist at startup.
func (c *Config) StorageDirs() []string {
	return []string{
		c.Storage.DatasetsDir,
		c.Storage.ProcessedDir,
		c.Storage.ResultsDir,
		c.Storage.PlotsDir,
		c.Storage.ModelsDir,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return value
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
