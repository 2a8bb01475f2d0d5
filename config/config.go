package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	AES       AESConfig       `mapstructure:"aes"`
	Log       LogConfig       `mapstructure:"log"`
	Funding   FundingConfig   `mapstructure:"funding"`
	Rails     RailsConfig     `mapstructure:"rails"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
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

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// FundingConfig controls how the planner fills a funding plan.
type FundingConfig struct {
	RailOrder   []string `mapstructure:"rail_order"`   // Rails consulted after the wallet, in order
	DefaultRail string   `mapstructure:"default_rail"` // Fallback when no source covers the remainder
}

// RailConfig holds the connection settings for one external rail.
type RailConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// RailsConfig names the three external rails this deployment talks to.
type RailsConfig struct {
	RailA RailConfig `mapstructure:"rail_a"`
	RailB RailConfig `mapstructure:"rail_b"`
	RailC RailConfig `mapstructure:"rail_c"`
}

// BreakerConfig applies to every rail breaker. Each rail still gets its own
// breaker instance; only the thresholds are shared.
type BreakerConfig struct {
	FailureThreshold float64       `mapstructure:"failure_threshold"` // Failure rate in [0,1]
	MinimumCalls     int           `mapstructure:"minimum_calls"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
	Window           time.Duration `mapstructure:"window"`
	Timeout          time.Duration `mapstructure:"timeout"` // Per-call hard timeout
}

// RetryConfig shapes the retry policy for provider dispatch.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Factor       float64       `mapstructure:"factor"`
}

// WebhookConfig controls inbound event verification.
type WebhookConfig struct {
	Secret string `mapstructure:"secret"` // HMAC shared secret; empty skips verification
}

// ProviderConfig tunes how provider responses are interpreted.
type ProviderConfig struct {
	// Vocabulary extends the built-in status-term mapping. Keys are
	// provider terms, values one of PENDING, COMPLETED, FAILED.
	Vocabulary map[string]string `mapstructure:"vocabulary"`
}

// RateLimitConfig holds per-surface fixed-window limits.
type RateLimitConfig struct {
	IntentsPerMinute  int64 `mapstructure:"intents_per_minute"`
	WebhooksPerMinute int64 `mapstructure:"webhooks_per_minute"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: BRG_ (Bridge Orchestrator).
// Nested keys use underscore: BRG_DATABASE_HOST, BRG_WEBHOOK_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "bridge_orchestrator")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "bridge-orchestrator")
	v.SetDefault("aes.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("funding.rail_order", []string{"EXTERNAL_RAIL_A", "EXTERNAL_RAIL_B", "EXTERNAL_RAIL_C"})
	v.SetDefault("funding.default_rail", "EXTERNAL_RAIL_A")
	v.SetDefault("rails.rail_a.base_url", "")
	v.SetDefault("rails.rail_a.api_key", "")
	v.SetDefault("rails.rail_a.call_timeout", "15s")
	v.SetDefault("rails.rail_b.base_url", "")
	v.SetDefault("rails.rail_b.api_key", "")
	v.SetDefault("rails.rail_b.call_timeout", "15s")
	v.SetDefault("rails.rail_c.base_url", "")
	v.SetDefault("rails.rail_c.api_key", "")
	v.SetDefault("rails.rail_c.call_timeout", "15s")
	v.SetDefault("breaker.failure_threshold", 0.5)
	v.SetDefault("breaker.minimum_calls", 5)
	v.SetDefault("breaker.cooldown", "30s")
	v.SetDefault("breaker.window", "60s")
	v.SetDefault("breaker.timeout", "10s")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_delay", "1s")
	v.SetDefault("retry.max_delay", "10s")
	v.SetDefault("retry.factor", 2.0)
	v.SetDefault("webhook.secret", "")
	v.SetDefault("provider.vocabulary", map[string]string{})
	v.SetDefault("ratelimit.intents_per_minute", 120)
	v.SetDefault("ratelimit.webhooks_per_minute", 600)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: BRG_DATABASE_HOST -> database.host
	v.SetEnvPrefix("BRG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional, env vars can suffice
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
