package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces the fully qualified variable names. Each field is
// also read from its bare tag name, e.g. SERVER_PORT or TWILIO_AUTH_TOKEN.
const EnvPrefix = "RIDE"

// Config holds all configuration for the application.
type Config struct {
	Log      LogConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Firebase FirebaseConfig
	Stripe   StripeConfig
	Twilio   TwilioConfig
	Notify   NotifyConfig
	Stream   StreamConfig
	Outbox   OutboxConfig
	Timeout  TimeoutConfig
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string        `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout    time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout   time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	AllowedOrigins []string      `envconfig:"SERVER_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName   string `envconfig:"DB_NAME" default:"rides"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	MaxOpenConns int `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string `envconfig:"NEW_RELIC_APP_NAME" default:"ride-coordinator"`
	LicenseKey string `envconfig:"NEW_RELIC_LICENSE_KEY"`
	Enabled    bool   `envconfig:"NEW_RELIC_ENABLED" default:"false"`
}

// FirebaseConfig holds the settings used to verify caller ID tokens.
type FirebaseConfig struct {
	ProjectID       string `envconfig:"FIREBASE_PROJECT_ID"`
	CredentialsFile string `envconfig:"FIREBASE_CREDENTIALS_FILE"`
}

// StripeConfig holds payment processor configuration.
type StripeConfig struct {
	SecretKey          string `envconfig:"STRIPE_SECRET_KEY"`
	Currency           string `envconfig:"STRIPE_CURRENCY" default:"usd"`
	MinimumChargeCents int64  `envconfig:"STRIPE_MINIMUM_CHARGE_CENTS" default:"50"`
	BufferPercent      int64  `envconfig:"STRIPE_AUTH_BUFFER_PERCENT" default:"15"`
}

// TwilioConfig holds SMS transport configuration.
type TwilioConfig struct {
	AccountSID string `envconfig:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `envconfig:"TWILIO_AUTH_TOKEN"`
	FromNumber string `envconfig:"TWILIO_PHONE_NUMBER"`
}

// NotifyConfig shapes rider-facing messages.
type NotifyConfig struct {
	Brand      string `envconfig:"NOTIFY_BRAND" default:"NELA"`
	TimeZone   string `envconfig:"NOTIFY_TIME_ZONE" default:"America/Los_Angeles"`
	ETAMinutes int    `envconfig:"NOTIFY_ETA_MINUTES" default:"8"`
}

// StreamConfig holds change stream consumer settings.
type StreamConfig struct {
	Key       string        `envconfig:"STREAM_KEY" default:"ride:changes"`
	Group     string        `envconfig:"STREAM_GROUP" default:"transition-orchestrator"`
	Consumer  string        `envconfig:"STREAM_CONSUMER"`
	BatchSize int64         `envconfig:"STREAM_BATCH_SIZE" default:"20"`
	Block     time.Duration `envconfig:"STREAM_BLOCK" default:"5s"`
	ClaimIdle time.Duration `envconfig:"STREAM_CLAIM_IDLE" default:"1m"`
}

// OutboxConfig holds change relay settings.
type OutboxConfig struct {
	PollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"1s"`
	BatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
}

// TimeoutConfig holds pending-ride expiry settings.
type TimeoutConfig struct {
	SweepInterval time.Duration `envconfig:"TIMEOUT_SWEEP_INTERVAL" default:"30s"`
	BatchSize     int           `envconfig:"TIMEOUT_BATCH_SIZE" default:"50"`
	Search        time.Duration `envconfig:"TIMEOUT_SEARCH" default:"5m"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Stripe.BufferPercent < 0 {
		return nil, fmt.Errorf("stripe auth buffer percent must be non-negative")
	}
	if cfg.Timeout.Search <= 0 {
		return nil, fmt.Errorf("driver search timeout must be positive")
	}
	if _, err := time.LoadLocation(cfg.Notify.TimeZone); err != nil {
		return nil, fmt.Errorf("notify time zone: %w", err)
	}
	return &cfg, nil
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
