package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	NewRelic     NewRelicConfig
	Log          LogConfig
	Metrics      MetricsConfig
	Telebirr     TelebirrConfig
	CBEBirr      CBEBirrConfig
	EthiopiaPost EthiopiaPostConfig
	SMS          SMSConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `validate:"required"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
	AllowedOrigins  []string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required"`
	User     string `validate:"required"`
	Password string
	DBName   string `validate:"required"`
	SSLMode  string `validate:"oneof=disable require verify-ca verify-full"`

	MaxOpenConns    int `validate:"gt=0"`
	MaxIdleConns    int `validate:"gte=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	AutoMigrate     bool
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string `validate:"required,hostname_port"`
	Password string
	DB       int `validate:"gte=0"`
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level string `validate:"oneof=debug info warn error"`
	File  string // rotated with lumberjack when set
}

// MetricsConfig holds Prometheus configuration.
type MetricsConfig struct {
	Enabled bool
	Path    string `validate:"required,startswith=/"`
}

// TelebirrConfig holds Telebirr merchant credentials and callback URLs.
type TelebirrConfig struct {
	MerchantID    string        `validate:"required"`
	APIKey        string        `validate:"required"`
	AppSecret     string        `validate:"required"`
	WebhookSecret string        `validate:"required"`
	BaseURL       string        `validate:"required,url"`
	NotifyURL     string        `validate:"required,url"`
	ReturnURL     string        `validate:"required,url"`
	Timeout       time.Duration `validate:"gt=0"`
}

// CBEBirrConfig holds CBE Birr merchant credentials and callback URLs.
type CBEBirrConfig struct {
	MerchantCode  string        `validate:"required"`
	TerminalID    string        `validate:"required"`
	APIKey        string        `validate:"required"`
	AppSecret     string        `validate:"required"`
	WebhookSecret string        `validate:"required"`
	BaseURL       string        `validate:"required,url"`
	CallbackURL   string        `validate:"required,url"`
	ExpiryMinutes int           `validate:"gt=0"`
	Timeout       time.Duration `validate:"gt=0"`
}

// EthiopiaPostConfig holds Ethiopia Post API credentials.
type EthiopiaPostConfig struct {
	BaseURL    string `validate:"required,url"`
	APIKey     string
	MerchantID string
	FromRegion string        `validate:"required"`
	Timeout    time.Duration `validate:"gt=0"`
}

// SMSConfig holds the SMS gateway configuration. An empty GatewayURL
// makes confirmations go to the log instead.
type SMSConfig struct {
	GatewayURL string `validate:"omitempty,url"`
	APIKey     string
	SenderID   string
	Timeout    time.Duration `validate:"gt=0"`
}

// Load loads configuration from environment variables, reading a .env file
// first when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 35*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second),
			AllowedOrigins:  getListEnv("SERVER_ALLOWED_ORIGINS", []string{"https://bolo.gov.et"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "bolo"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getDurationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			AutoMigrate:     getBoolEnv("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "bolo-integration"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
		Telebirr: TelebirrConfig{
			MerchantID:    getEnv("TELEBIRR_MERCHANT_ID", "BOLO_DIGITAL_001"),
			APIKey:        getEnv("TELEBIRR_API_KEY", "test_api_key"),
			AppSecret:     getEnv("TELEBIRR_APP_SECRET", "test_app_secret"),
			WebhookSecret: getEnv("TELEBIRR_WEBHOOK_SECRET", "test_webhook_secret"),
			BaseURL:       getEnv("TELEBIRR_BASE_URL", "https://api.telebirr.et/v1"),
			NotifyURL:     getEnv("TELEBIRR_NOTIFY_URL", "https://bolo.gov.et/api/telebirr/notify"),
			ReturnURL:     getEnv("TELEBIRR_RETURN_URL", "https://bolo.gov.et/payment/success"),
			Timeout:       getDurationEnv("TELEBIRR_TIMEOUT", 15*time.Second),
		},
		CBEBirr: CBEBirrConfig{
			MerchantCode:  getEnv("CBE_MERCHANT_CODE", "BOLO001"),
			TerminalID:    getEnv("CBE_TERMINAL_ID", "TERM001"),
			APIKey:        getEnv("CBE_API_KEY", "test_cbe_key"),
			AppSecret:     getEnv("CBE_APP_SECRET", "test_cbe_secret"),
			WebhookSecret: getEnv("CBE_WEBHOOK_SECRET", "test_cbe_webhook_secret"),
			BaseURL:       getEnv("CBE_BASE_URL", "https://api.cbebirr.et/v2"),
			CallbackURL:   getEnv("CBE_CALLBACK_URL", "https://bolo.gov.et/api/cbe/callback"),
			ExpiryMinutes: getIntEnv("CBE_EXPIRY_MINUTES", 30),
			Timeout:       getDurationEnv("CBE_TIMEOUT", 15*time.Second),
		},
		EthiopiaPost: EthiopiaPostConfig{
			BaseURL:    getEnv("ETHIOPIA_POST_BASE_URL", "https://api.ethiopiapost.gov.et"),
			APIKey:     getEnv("ETHIOPIA_POST_API_KEY", ""),
			MerchantID: getEnv("ETHIOPIA_POST_MERCHANT_ID", ""),
			FromRegion: getEnv("ETHIOPIA_POST_FROM_REGION", "Addis Ababa"),
			Timeout:    getDurationEnv("ETHIOPIA_POST_TIMEOUT", 30*time.Second),
		},
		SMS: SMSConfig{
			GatewayURL: getEnv("SMS_GATEWAY_URL", ""),
			APIKey:     getEnv("SMS_API_KEY", ""),
			SenderID:   getEnv("SMS_SENDER_ID", "BOLO"),
			Timeout:    getDurationEnv("SMS_TIMEOUT", 10*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the struct tags of every section.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
