// Package config provides configuration management and environment variable handling for the application
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database    DatabaseConfig    `json:"database"`
	Server      ServerConfig      `json:"server"`
	Security    SecurityConfig    `json:"security"`
	Logging     LoggingConfig     `json:"logging"`
	Metrics     MetricsConfig     `json:"metrics"`
	Cache       CacheConfig       `json:"cache"`
	Tracking    TrackingConfig    `json:"tracking"`
	Marketplace MarketplaceConfig `json:"marketplace"`
	Correlation CorrelationConfig `json:"correlation"`
	Scheduler   SchedulerConfig   `json:"scheduler"`
	Events      EventsConfig      `json:"events"`
	Deployment  DeploymentConfig  `json:"deployment"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	MigrationsPath  string        `json:"migrations_path"`
	AutoMigrate     bool          `json:"auto_migrate"`
}

// DSN renders the libpq connection string shared by gorm and golang-migrate
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
}

type SecurityConfig struct {
	// CORS
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	CORSMaxAge       int      `json:"cors_max_age"`

	// Rate Limiting
	GlobalRateLimit int           `json:"global_rate_limit"` // requests per minute
	RedirectLimit   int           `json:"redirect_rate_limit"`
	RateLimitWindow time.Duration `json:"rate_limit_window"`
}

type LoggingConfig struct {
	Level        string `json:"level"`  // debug, info, warn, error
	Format       string `json:"format"` // json, text
	Output       string `json:"output"` // stdout, file, both
	FilePath     string `json:"file_path"`
	MaxSize      int    `json:"max_size"` // MB
	MaxBackups   int    `json:"max_backups"`
	MaxAge       int    `json:"max_age"` // days
	Compress     bool   `json:"compress"`
	EnableCaller bool   `json:"enable_caller"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled     bool   `json:"enabled"`
	RedisURL    string `json:"redis_url"`
	RedisPrefix string `json:"redis_prefix"`
}

// TrackingConfig controls how tracked links are minted and resolved
type TrackingConfig struct {
	BaseURL     string `json:"base_url"`
	FallbackURL string `json:"fallback_url"`
	UIDLength   int    `json:"uid_length"`
}

// MarketplaceConfig points at the order feed used by correlation runs
type MarketplaceConfig struct {
	BaseURL     string        `json:"base_url"`
	AccessToken string        `json:"access_token"`
	Timeout     time.Duration `json:"timeout"`
}

type CorrelationConfig struct {
	DefaultWindowHours  int           `json:"default_window_hours"`
	DefaultOrderLimit   int           `json:"default_order_limit"`
	SimilarityAlgorithm string        `json:"similarity_algorithm"` // token_overlap, levenshtein
	SimilarityThreshold float64       `json:"similarity_threshold"`
	CityCorroboration   bool          `json:"city_corroboration"`
	RequireCityMatch    bool          `json:"require_city_match"`
	RecordOrphans       bool          `json:"record_orphans"`
	LeaseTTL            time.Duration `json:"lease_ttl"`
	Workers             int           `json:"workers"`

	// TimeMatchUnknownBuyer lets the time tier credit the sole in-window click of any customer
	// when the buyer has no conversion history
	TimeMatchUnknownBuyer bool `json:"time_match_unknown_buyer"`
}

type SchedulerConfig struct {
	Enabled   bool          `json:"enabled"`
	Interval  time.Duration `json:"interval"`
	SellerIDs []string      `json:"seller_ids"`
}

type EventsConfig struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

type DeploymentConfig struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
	BuildTime   string `json:"build_time"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "attribution"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			MigrationsPath:  getEnvString("DB_MIGRATIONS_PATH", "migrations"),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 1024*1024), // 1MB
		},
		Security: SecurityConfig{
			AllowedOrigins:   getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods:   getEnvStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders:   getEnvStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "X-Request-ID"}),
			AllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", false),
			CORSMaxAge:       getEnvInt("CORS_MAX_AGE", 86400),
			GlobalRateLimit:  getEnvInt("GLOBAL_RATE_LIMIT", 1000),
			RedirectLimit:    getEnvInt("REDIRECT_RATE_LIMIT", 120),
			RateLimitWindow:  getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
		},
		Logging: LoggingConfig{
			Level:        getEnvString("LOG_LEVEL", "info"),
			Format:       getEnvString("LOG_FORMAT", "json"),
			Output:       getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:     getEnvString("LOG_FILE_PATH", "/var/log/attribution/app.log"),
			MaxSize:      getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups:   getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:       getEnvInt("LOG_MAX_AGE", 30),
			Compress:     getEnvBool("LOG_COMPRESS", true),
			EnableCaller: getEnvBool("LOG_ENABLE_CALLER", false),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", false),
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "attribution:"),
		},
		Tracking: TrackingConfig{
			BaseURL:     strings.TrimRight(getEnvString("TRACKING_BASE_URL", "http://localhost:8080"), "/"),
			FallbackURL: getEnvString("TRACKING_FALLBACK_URL", "https://www.mercadolibre.com.mx"),
			UIDLength:   getEnvInt("TRACKING_UID_LENGTH", 12),
		},
		Marketplace: MarketplaceConfig{
			BaseURL:     getEnvString("MARKETPLACE_BASE_URL", "https://api.mercadolibre.com"),
			AccessToken: getEnvString("MARKETPLACE_ACCESS_TOKEN", ""),
			Timeout:     getEnvDuration("MARKETPLACE_TIMEOUT", 15*time.Second),
		},
		Correlation: CorrelationConfig{
			DefaultWindowHours:    getEnvInt("CORRELATION_DEFAULT_WINDOW_HOURS", 48),
			DefaultOrderLimit:     getEnvInt("CORRELATION_DEFAULT_ORDER_LIMIT", 50),
			SimilarityAlgorithm:   getEnvString("CORRELATION_SIMILARITY_ALGORITHM", "token_overlap"),
			SimilarityThreshold:   getEnvFloat("CORRELATION_SIMILARITY_THRESHOLD", 0.5),
			CityCorroboration:     getEnvBool("CORRELATION_CITY_CORROBORATION", true),
			RequireCityMatch:      getEnvBool("CORRELATION_REQUIRE_CITY_MATCH", false),
			RecordOrphans:         getEnvBool("CORRELATION_RECORD_ORPHANS", true),
			TimeMatchUnknownBuyer: getEnvBool("CORRELATION_TIME_MATCH_UNKNOWN_BUYER", false),
			LeaseTTL:              getEnvDuration("CORRELATION_LEASE_TTL", 5*time.Minute),
			Workers:               getEnvInt("CORRELATION_WORKERS", 4),
		},
		Scheduler: SchedulerConfig{
			Enabled:   getEnvBool("SCHEDULER_ENABLED", false),
			Interval:  getEnvDuration("SCHEDULER_INTERVAL", 30*time.Minute),
			SellerIDs: getEnvStringSlice("SCHEDULER_SELLER_IDS", []string{}),
		},
		Events: EventsConfig{
			Enabled: getEnvBool("EVENTS_ENABLED", false),
			Brokers: getEnvStringSlice("EVENTS_KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnvString("EVENTS_KAFKA_TOPIC", "conversion.attributed"),
		},
		Deployment: DeploymentConfig{
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
			BuildTime:   getEnvString("BUILD_TIME", "unknown"),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads variables from path if it exists; already-set variables win
func loadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}

	// Validate tracking configuration
	if !strings.HasPrefix(cfg.Tracking.BaseURL, "http://") && !strings.HasPrefix(cfg.Tracking.BaseURL, "https://") {
		errors = append(errors, "TRACKING_BASE_URL must be an absolute http(s) URL")
	}
	if cfg.Tracking.UIDLength < 8 || cfg.Tracking.UIDLength > 36 {
		errors = append(errors, "TRACKING_UID_LENGTH must be between 8 and 36")
	}

	// Validate correlation configuration
	if cfg.Correlation.SimilarityThreshold <= 0 || cfg.Correlation.SimilarityThreshold > 1 {
		errors = append(errors, "CORRELATION_SIMILARITY_THRESHOLD must be in (0, 1]")
	}
	switch cfg.Correlation.SimilarityAlgorithm {
	case "token_overlap", "levenshtein":
	default:
		errors = append(errors, "CORRELATION_SIMILARITY_ALGORITHM must be one of: token_overlap, levenshtein")
	}
	if cfg.Correlation.LeaseTTL <= 0 {
		errors = append(errors, "CORRELATION_LEASE_TTL must be positive")
	}
	if cfg.Correlation.Workers <= 0 {
		errors = append(errors, "CORRELATION_WORKERS must be positive")
	}

	// Validate scheduler configuration if enabled
	if cfg.Scheduler.Enabled {
		if cfg.Scheduler.Interval < time.Minute {
			errors = append(errors, "SCHEDULER_INTERVAL must be at least 1m")
		}
		if len(cfg.Scheduler.SellerIDs) == 0 {
			errors = append(errors, "SCHEDULER_SELLER_IDS is required when scheduler is enabled")
		}
	}

	// Validate events configuration if enabled
	if cfg.Events.Enabled {
		if len(cfg.Events.Brokers) == 0 {
			errors = append(errors, "EVENTS_KAFKA_BROKERS is required when events are enabled")
		}
		if cfg.Events.Topic == "" {
			errors = append(errors, "EVENTS_KAFKA_TOPIC is required when events are enabled")
		}
	}

	// Validate logging configuration
	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		valid := false
		for _, level := range validLevels {
			if cfg.Logging.Level == level {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled && cfg.Cache.RedisURL == "" {
		errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled")
	}

	// Return validation errors if any
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
