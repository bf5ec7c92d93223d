package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Log          LogConfig          `mapstructure:"log"`
	Gateways     GatewaysConfig     `mapstructure:"gateways"`
	Risk         RiskConfig         `mapstructure:"risk"`
	RateLimit    RateLimitConfig    `mapstructure:"ratelimit"`
	Session      SessionConfig      `mapstructure:"session"`
	Refund       RefundConfig       `mapstructure:"refund"`
	Notification NotificationConfig `mapstructure:"notification"`
	Sweeper      SweeperConfig      `mapstructure:"sweeper"`
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

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// GatewaysConfig carries per-provider credentials and knobs.
type GatewaysConfig struct {
	Card         CardGatewayConfig         `mapstructure:"card"`
	Wallet       WalletGatewayConfig       `mapstructure:"wallet"`
	BankTransfer BankTransferGatewayConfig `mapstructure:"bank_transfer"`
}

type CardGatewayConfig struct {
	APIBase       string        `mapstructure:"api_base"`
	APIKey        string        `mapstructure:"api_key"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Currencies    []string      `mapstructure:"currencies"`
}

type WalletGatewayConfig struct {
	APIBase       string        `mapstructure:"api_base"`
	ClientID      string        `mapstructure:"client_id"`
	ClientSecret  string        `mapstructure:"client_secret"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	ReturnURL     string        `mapstructure:"return_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Currencies    []string      `mapstructure:"currencies"`
}

type BankTransferGatewayConfig struct {
	AccountName   string   `mapstructure:"account_name"`
	AccountNumber string   `mapstructure:"account_number"`
	BankName      string   `mapstructure:"bank_name"`
	ExpiryDays    int      `mapstructure:"expiry_days"`
	Currencies    []string `mapstructure:"currencies"`
}

// RiskConfig holds the fraud score weights and decision thresholds.
// The score is 0-100; each category is capped at its weight.
type RiskConfig struct {
	NetworkWeight  int `mapstructure:"network_weight"`
	VelocityWeight int `mapstructure:"velocity_weight"`
	BehaviorWeight int `mapstructure:"behavior_weight"`
	PayloadWeight  int `mapstructure:"payload_weight"`

	BlockThreshold  int `mapstructure:"block_threshold"`
	ReviewThreshold int `mapstructure:"review_threshold"`

	// VelocityMax is the attempts-per-hour count that saturates the
	// velocity category.
	VelocityMax int `mapstructure:"velocity_max"`
}

// RateLimitConfig defines fixed-window caps at three granularities.
// A request must pass all three.
type RateLimitConfig struct {
	PerMinute int64 `mapstructure:"per_minute"`
	PerHour   int64 `mapstructure:"per_hour"`
	PerDay    int64 `mapstructure:"per_day"`
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type RefundConfig struct {
	WindowDays int `mapstructure:"window_days"`
}

// NotificationConfig configures the outbound change-notification sink.
type NotificationConfig struct {
	SinkURL    string        `mapstructure:"sink_url"`
	SigningKey string        `mapstructure:"signing_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// SweeperConfig controls the background expiry / invoice-repair loop.
type SweeperConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	PendingTimeout time.Duration `mapstructure:"pending_timeout"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: PAYCORE_.
// Nested keys use underscore: PAYCORE_DATABASE_HOST, PAYCORE_RISK_BLOCK_THRESHOLD, etc.
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
	v.SetDefault("database.dbname", "payment_core")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("gateways.card.api_base", "https://api.card.example.com")
	v.SetDefault("gateways.card.timeout", "10s")
	v.SetDefault("gateways.card.currencies", []string{"USD", "EUR", "GBP"})
	v.SetDefault("gateways.wallet.api_base", "https://api.wallet.example.com")
	v.SetDefault("gateways.wallet.timeout", "10s")
	v.SetDefault("gateways.wallet.currencies", []string{"USD", "EUR"})
	v.SetDefault("gateways.bank_transfer.expiry_days", 30)
	v.SetDefault("gateways.bank_transfer.currencies", []string{"USD"})

	v.SetDefault("risk.network_weight", 30)
	v.SetDefault("risk.velocity_weight", 25)
	v.SetDefault("risk.behavior_weight", 25)
	v.SetDefault("risk.payload_weight", 20)
	v.SetDefault("risk.block_threshold", 90)
	v.SetDefault("risk.review_threshold", 70)
	v.SetDefault("risk.velocity_max", 10)

	v.SetDefault("ratelimit.per_minute", 30)
	v.SetDefault("ratelimit.per_hour", 300)
	v.SetDefault("ratelimit.per_day", 1000)

	v.SetDefault("session.ttl", "30m")
	v.SetDefault("refund.window_days", 180)

	v.SetDefault("notification.sink_url", "")
	v.SetDefault("notification.timeout", "5s")

	v.SetDefault("sweeper.interval", "1m")
	v.SetDefault("sweeper.pending_timeout", "30m")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: PAYCORE_DATABASE_HOST -> database.host
	v.SetEnvPrefix("PAYCORE")
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
