package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Email    EmailConfig    `mapstructure:"email"`
	WhatsApp WhatsAppConfig `mapstructure:"whatsapp"`
	Matching MatchingConfig `mapstructure:"matching"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
	// Batch endpoint rate limit per operator.
	BatchRateLimit  int           `mapstructure:"batch_rate_limit"`
	BatchRateWindow time.Duration `mapstructure:"batch_rate_window"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// AuthConfig configures operator JWTs.
type AuthConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// PipelineConfig bounds scheduling and delivery batches.
type PipelineConfig struct {
	ScheduleLimit  int           `mapstructure:"schedule_limit"`
	DeliverLimit   int           `mapstructure:"deliver_limit"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RecoveryWindow time.Duration `mapstructure:"recovery_window"`
	SendTimeout    time.Duration `mapstructure:"send_timeout"`
	Concurrency    int           `mapstructure:"concurrency"`
	DefaultChannel string        `mapstructure:"default_channel"`
	LedgerCacheTTL time.Duration `mapstructure:"ledger_cache_ttl"`
}

// EmailConfig holds the e-mail provider and the system sender identity.
type EmailConfig struct {
	APIURL         string `mapstructure:"api_url"`
	APIKey         string `mapstructure:"api_key"`
	FromName       string `mapstructure:"from_name"`
	FromAddress    string `mapstructure:"from_address"`
	ReplyTo        string `mapstructure:"reply_to"`
	VerifiedDomain string `mapstructure:"verified_domain"`
	Verified       bool   `mapstructure:"verified"`
}

// WhatsAppConfig holds the messaging gateway settings.
type WhatsAppConfig struct {
	APIURL        string `mapstructure:"api_url"`
	APIKey        string `mapstructure:"api_key"`
	SigningSecret string `mapstructure:"signing_secret"`
}

// ConditionEntry lists the event statuses that satisfy one rule condition.
// PendingMethods lets a generic pending status satisfy the condition when the
// payment method matches.
type ConditionEntry struct {
	Statuses       []string `mapstructure:"statuses"`
	PendingMethods []string `mapstructure:"pending_methods"`
}

// MatchingConfig overrides entries of the built-in condition tables.
type MatchingConfig struct {
	PaymentConditions  map[string]ConditionEntry `mapstructure:"payment_conditions"`
	ShippingConditions map[string]ConditionEntry `mapstructure:"shipping_conditions"`
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	p := c.Pipeline
	if p.ScheduleLimit <= 0 || p.DeliverLimit <= 0 {
		return fmt.Errorf("pipeline limits must be positive")
	}
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("pipeline.max_attempts must be positive")
	}
	if p.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be positive")
	}
	switch p.DefaultChannel {
	case "email", "whatsapp":
	default:
		return fmt.Errorf("pipeline.default_channel %q is not a known channel", p.DefaultChannel)
	}
	return nil
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: SFN_ (StoreFront Notifier).
// Nested keys use underscore: SFN_DATABASE_HOST, SFN_AUTH_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.batch_rate_limit", 30)
	v.SetDefault("server.batch_rate_window", "1m")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "storefront")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.expiry", "12h")
	v.SetDefault("auth.issuer", "storefront-notifier")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("pipeline.schedule_limit", 100)
	v.SetDefault("pipeline.deliver_limit", 100)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.recovery_window", "5m")
	v.SetDefault("pipeline.send_timeout", "15s")
	v.SetDefault("pipeline.concurrency", 8)
	v.SetDefault("pipeline.default_channel", "email")
	v.SetDefault("pipeline.ledger_cache_ttl", "720h")
	v.SetDefault("email.api_url", "")
	v.SetDefault("email.api_key", "")
	v.SetDefault("email.from_name", "")
	v.SetDefault("email.from_address", "")
	v.SetDefault("email.reply_to", "")
	v.SetDefault("email.verified_domain", "")
	v.SetDefault("email.verified", false)
	v.SetDefault("whatsapp.api_url", "")
	v.SetDefault("whatsapp.api_key", "")
	v.SetDefault("whatsapp.signing_secret", "")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: SFN_DATABASE_HOST -> database.host
	v.SetEnvPrefix("SFN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
