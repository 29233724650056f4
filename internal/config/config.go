package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	SES         SESConfig         `yaml:"ses"`
	Notify      NotifyConfig      `yaml:"notify"`
	Templates   TemplatesConfig   `yaml:"templates"`
	FireHistory FireHistoryConfig `yaml:"fire_history"`
	Triggers    TriggersConfig    `yaml:"triggers"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int      `yaml:"port"`
	Host        string   `yaml:"host"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the Redis connection used for booking pass locks.
// An empty URL disables Redis; locks then fall back to Postgres advisory locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// Notification transports.
const (
	TransportSES     = "ses"
	TransportWebhook = "webhook"
	TransportLog     = "log"
)

// NotifyConfig controls how rendered notifications leave the process.
type NotifyConfig struct {
	Transport      string        `yaml:"transport"`
	FromName       string        `yaml:"from_name"`
	FromEmail      string        `yaml:"from_email"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Webhook        WebhookConfig `yaml:"webhook"`
}

// Timeout returns the per-dispatch timeout as a duration
func (c NotifyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// WebhookConfig holds the outbound webhook transport settings.
type WebhookConfig struct {
	URL        string `yaml:"url"`
	Secret     string `yaml:"secret"`
	MaxRetries int    `yaml:"max_retries"`
}

// Template sources.
const (
	TemplateSourcePostgres = "postgres"
	TemplateSourceS3       = "s3"
)

// TemplatesConfig selects where notification templates are read from.
type TemplatesConfig struct {
	Source string `yaml:"source"`
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// FireHistoryConfig holds the DynamoDB audit trail settings.
type FireHistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Table   string `yaml:"table"`
	Region  string `yaml:"region"`
	TTLDays int    `yaml:"ttl_days"`
}

// TTL returns the item retention as a duration
func (c FireHistoryConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// TriggersConfig holds trigger processing settings.
type TriggersConfig struct {
	// DedupeEnabled serializes passes on the same booking and trigger type.
	DedupeEnabled    bool     `yaml:"dedupe_enabled"`
	DedupeTTLSeconds int      `yaml:"dedupe_ttl_seconds"`
	Timezone         string   `yaml:"timezone"`
	DateKeys         DateKeys `yaml:"date_keys"`
}

// DedupeTTL returns the expiry of a booking pass lock.
func (c TriggersConfig) DedupeTTL() time.Duration {
	return time.Duration(c.DedupeTTLSeconds) * time.Second
}

// Location resolves the configured timezone, defaulting to UTC.
func (c TriggersConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("triggers.timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DateKeys names the booking-form questions that carry stay dates.
type DateKeys struct {
	CheckInOut string `yaml:"check_in_out"`
	CheckIn    string `yaml:"check_in"`
	CheckOut   string `yaml:"check_out"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on. Defaults to true.
func (c LogConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.Notify.Transport == "" {
		cfg.Notify.Transport = TransportLog
	}
	if cfg.Notify.TimeoutSeconds == 0 {
		cfg.Notify.TimeoutSeconds = 30
	}
	if cfg.Notify.Webhook.MaxRetries == 0 {
		cfg.Notify.Webhook.MaxRetries = 3
	}
	if cfg.Templates.Source == "" {
		cfg.Templates.Source = TemplateSourcePostgres
	}
	if cfg.Templates.Prefix == "" {
		cfg.Templates.Prefix = "templates"
	}
	if cfg.Templates.Region == "" {
		cfg.Templates.Region = cfg.SES.Region
	}
	if cfg.FireHistory.Table == "" {
		cfg.FireHistory.Table = "trigger_fire_history"
	}
	if cfg.FireHistory.Region == "" {
		cfg.FireHistory.Region = cfg.SES.Region
	}
	if cfg.FireHistory.TTLDays == 0 {
		cfg.FireHistory.TTLDays = 90
	}
	if cfg.Triggers.DedupeTTLSeconds == 0 {
		cfg.Triggers.DedupeTTLSeconds = 300
	}
	if cfg.Triggers.DateKeys.CheckInOut == "" {
		cfg.Triggers.DateKeys.CheckInOut = "check_in_out"
	}
	if cfg.Triggers.DateKeys.CheckIn == "" {
		cfg.Triggers.DateKeys.CheckIn = "check_in_date"
	}
	if cfg.Triggers.DateKeys.CheckOut == "" {
		cfg.Triggers.DateKeys.CheckOut = "check_out_date"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("AWS_SES_CONFIGURATION_SET"); v != "" {
		cfg.SES.ConfigurationSet = v
	}
	if v := os.Getenv("NOTIFY_TRANSPORT"); v != "" {
		cfg.Notify.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("NOTIFY_WEBHOOK_URL"); v != "" {
		cfg.Notify.Webhook.URL = v
	}
	if v := os.Getenv("NOTIFY_WEBHOOK_SECRET"); v != "" {
		cfg.Notify.Webhook.Secret = v
	}
	if v := os.Getenv("TEMPLATES_BUCKET"); v != "" {
		cfg.Templates.Bucket = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	return cfg, cfg.Validate()
}

// Validate checks the settings the server cannot start without.
func (cfg *Config) Validate() error {
	switch cfg.Notify.Transport {
	case TransportLog:
	case TransportSES:
		if cfg.Notify.FromEmail == "" {
			return fmt.Errorf("notify.from_email is required for the ses transport")
		}
	case TransportWebhook:
		if cfg.Notify.Webhook.URL == "" {
			return fmt.Errorf("notify.webhook.url is required for the webhook transport")
		}
	default:
		return fmt.Errorf("notify.transport %q: want ses, webhook or log", cfg.Notify.Transport)
	}
	switch cfg.Templates.Source {
	case TemplateSourcePostgres:
	case TemplateSourceS3:
		if cfg.Templates.Bucket == "" {
			return fmt.Errorf("templates.bucket is required for the s3 source")
		}
	default:
		return fmt.Errorf("templates.source %q: want postgres or s3", cfg.Templates.Source)
	}
	if _, err := cfg.Triggers.Location(); err != nil {
		return err
	}
	return nil
}
