// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	BotToken        string `validate:"required"`
	AdminTelegramID int64  `validate:"gt=0"`
	WebhookSecret   string
	AdminAPIToken   string

	HTTPPort    string `validate:"required,numeric"`
	Environment string `validate:"oneof=development staging production"`
	LogLevel    string `validate:"oneof=debug info warn error"`

	StorageBackend string `validate:"oneof=dynamodb postgres memory"`
	Tables         TablesConfig `validate:"-"`
	DatabaseURL    string `validate:"required_if=StorageBackend postgres"`

	Redis RedisConfig

	SQSQueueURL string `validate:"omitempty,url"`

	Outbox OutboxConfig

	HistoryLimit    int           `validate:"gte=1,lte=100"`
	UpdateMarkerTTL time.Duration `validate:"gt=0"`
}

// TablesConfig names the DynamoDB tables. Only checked when the backend is
// dynamodb.
type TablesConfig struct {
	Identities string `validate:"required"`
	Customers  string `validate:"required"`
	Ledger     string `validate:"required"`
	Approvals  string `validate:"required"`
	Outbox     string `validate:"required"`
	Updates    string `validate:"required"`
	Audit      string `validate:"required"`
}

// RedisConfig enables the balance snapshot cache when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int           `validate:"gte=0"`
	TTL      time.Duration `validate:"gte=0"`
}

type OutboxConfig struct {
	MaxRetries    int           `validate:"gte=1"`
	BatchSize     int           `validate:"gte=1,lte=1000"`
	SendTimeout   time.Duration `validate:"gt=0"`
	SweepInterval time.Duration `validate:"gte=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORAGE_BACKEND", BackendDynamoDB)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_CACHE_TTL", "24h")
	v.SetDefault("OUTBOX_MAX_RETRIES", 5)
	v.SetDefault("OUTBOX_BATCH_SIZE", 50)
	v.SetDefault("OUTBOX_SEND_TIMEOUT", "10s")
	v.SetDefault("OUTBOX_SWEEP_INTERVAL", "0s")
	v.SetDefault("HISTORY_LIMIT", 10)
	v.SetDefault("UPDATE_MARKER_TTL", "720h")
}

// Load reads .env if present, then the environment, and validates the
// result.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		BotToken:        v.GetString("BOT_TOKEN"),
		AdminTelegramID: v.GetInt64("ADMIN_TG_ID"),
		WebhookSecret:   v.GetString("WEBHOOK_SECRET"),
		AdminAPIToken:   v.GetString("ADMIN_API_TOKEN"),
		HTTPPort:        v.GetString("HTTP_PORT"),
		Environment:     v.GetString("ENVIRONMENT"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		StorageBackend:  v.GetString("STORAGE_BACKEND"),
		Tables: TablesConfig{
			Identities: v.GetString("DYNAMODB_IDENTITIES_TABLE_NAME"),
			Customers:  v.GetString("DYNAMODB_CUSTOMERS_TABLE_NAME"),
			Ledger:     v.GetString("DYNAMODB_LEDGER_TABLE_NAME"),
			Approvals:  v.GetString("DYNAMODB_APPROVALS_TABLE_NAME"),
			Outbox:     v.GetString("DYNAMODB_OUTBOX_TABLE_NAME"),
			Updates:    v.GetString("DYNAMODB_UPDATES_TABLE_NAME"),
			Audit:      v.GetString("DYNAMODB_AUDIT_TABLE_NAME"),
		},
		DatabaseURL: v.GetString("DATABASE_URL"),
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			TTL:      v.GetDuration("REDIS_CACHE_TTL"),
		},
		SQSQueueURL: v.GetString("SQS_QUEUE_URL"),
		Outbox: OutboxConfig{
			MaxRetries:    v.GetInt("OUTBOX_MAX_RETRIES"),
			BatchSize:     v.GetInt("OUTBOX_BATCH_SIZE"),
			SendTimeout:   v.GetDuration("OUTBOX_SEND_TIMEOUT"),
			SweepInterval: v.GetDuration("OUTBOX_SWEEP_INTERVAL"),
		},
		HistoryLimit:    v.GetInt("HISTORY_LIMIT"),
		UpdateMarkerTTL: v.GetDuration("UPDATE_MARKER_TTL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints, and the table names when the backend
// is dynamodb.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.StorageBackend == BackendDynamoDB {
		if err := validate.Struct(c.Tables); err != nil {
			return fmt.Errorf("invalid DynamoDB table configuration: %w", err)
		}
	}
	return nil
}

// IsDevelopment reports whether the service runs on a developer machine.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
