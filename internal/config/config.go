// Package config provides configuration management using viper.
// It supports loading from YAML files, a local .env file and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Market     MarketConfig     `mapstructure:"market"`
	Steam      SteamConfig      `mapstructure:"steam"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Withdrawal WithdrawalConfig `mapstructure:"withdrawal"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Account    AccountConfig    `mapstructure:"account"`
	Bot        BotConfig        `mapstructure:"bot"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds Redis connection configuration.
// An empty Addr selects the in-memory cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MarketConfig holds marketplace API configuration.
type MarketConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	PricesURL  string        `mapstructure:"prices_url"`
	APIKey     string        `mapstructure:"api_key"`
	RateLimit  float64       `mapstructure:"rate_limit"`
	Burst      int           `mapstructure:"burst"`
	Timeout    time.Duration `mapstructure:"timeout"`
	BuyTimeout time.Duration `mapstructure:"buy_timeout"`
}

// SteamConfig holds Steam Web API configuration.
type SteamConfig struct {
	APIURL       string        `mapstructure:"api_url"`
	CommunityURL string        `mapstructure:"community_url"`
	APIKey       string        `mapstructure:"api_key"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	MaxAge       time.Duration `mapstructure:"max_age"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// CatalogConfig holds catalog importer configuration.
type CatalogConfig struct {
	MediaDir  string        `mapstructure:"media_dir"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// WithdrawalConfig holds withdrawal reconciliation windows.
type WithdrawalConfig struct {
	Markup          float64       `mapstructure:"markup"`
	GraceWindow     time.Duration `mapstructure:"grace_window"`
	FailDebounce    time.Duration `mapstructure:"fail_debounce"`
	AbsoluteTimeout time.Duration `mapstructure:"absolute_timeout"`
	StaleLockAfter  time.Duration `mapstructure:"stale_lock_after"`
	BatchSize       int           `mapstructure:"batch_size"`
}

// SchedulerConfig holds background job intervals.
type SchedulerConfig struct {
	PriceSyncInterval      time.Duration `mapstructure:"price_sync_interval"`
	WithdrawalPollInterval time.Duration `mapstructure:"withdrawal_poll_interval"`
}

// AuthConfig holds the shared secret used by the login gateway.
type AuthConfig struct {
	GatewaySecret string `mapstructure:"gateway_secret"`
}

// AccountConfig holds account defaults.
type AccountConfig struct {
	DepositAmount string `mapstructure:"deposit_amount"`
}

// BotConfig holds Telegram ops bot configuration.
// An empty Token disables the bot.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Secrets are read from the process environment only.
type Secrets struct {
	MarketAPIKey     string `envconfig:"MARKET_API_KEY"`
	SteamAPIKey      string `envconfig:"STEAM_API_KEY"`
	BotToken         string `envconfig:"BOT_TOKEN"`
	GatewaySecret    string `envconfig:"GATEWAY_SECRET"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD"`
	RedisPassword    string `envconfig:"REDIS_PASSWORD"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Deposit returns the configured top-up amount.
func (a *AccountConfig) Deposit() decimal.Decimal {
	amount, err := decimal.NewFromString(a.DepositAmount)
	if err != nil || !amount.IsPositive() {
		return decimal.NewFromInt(100)
	}
	return amount
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. DATABASE_HOST, MARKET_BASE_URL, WITHDRAWAL_GRACE_WINDOW
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var secrets Secrets
	if err := envconfig.Process("", &secrets); err != nil {
		return nil, fmt.Errorf("failed to read secrets: %w", err)
	}
	cfg.applySecrets(secrets)

	return &cfg, nil
}

func (c *Config) applySecrets(s Secrets) {
	if s.MarketAPIKey != "" {
		c.Market.APIKey = s.MarketAPIKey
	}
	if s.SteamAPIKey != "" {
		c.Steam.APIKey = s.SteamAPIKey
	}
	if s.BotToken != "" {
		c.Bot.Token = s.BotToken
	}
	if s.GatewaySecret != "" {
		c.Auth.GatewaySecret = s.GatewaySecret
	}
	if s.DatabasePassword != "" {
		c.Database.Password = s.DatabasePassword
	}
	if s.RedisPassword != "" {
		c.Redis.Password = s.RedisPassword
	}
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "casemarket")
	v.SetDefault("database.name", "casemarket")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("redis.db", 0)

	v.SetDefault("market.base_url", "https://market.csgo.com/api/v2")
	v.SetDefault("market.prices_url", "https://market.csgo.com/api/v2/prices/USD.json")
	v.SetDefault("market.rate_limit", 5.0)
	v.SetDefault("market.burst", 5)
	v.SetDefault("market.timeout", "10s")
	v.SetDefault("market.buy_timeout", "15s")

	v.SetDefault("steam.api_url", "https://api.steampowered.com")
	v.SetDefault("steam.community_url", "https://steamcommunity.com")
	v.SetDefault("steam.cache_ttl", "12h")
	v.SetDefault("steam.max_age", "12h")
	v.SetDefault("steam.timeout", "5s")

	v.SetDefault("catalog.media_dir", "./media")
	v.SetDefault("catalog.user_agent", "Mozilla/5.0 (importer)")
	v.SetDefault("catalog.timeout", "10s")

	v.SetDefault("withdrawal.markup", 1.05)
	v.SetDefault("withdrawal.grace_window", "300s")
	v.SetDefault("withdrawal.fail_debounce", "60s")
	v.SetDefault("withdrawal.absolute_timeout", "360s")
	v.SetDefault("withdrawal.stale_lock_after", "10m")
	v.SetDefault("withdrawal.batch_size", 100)

	v.SetDefault("scheduler.price_sync_interval", "15m")
	v.SetDefault("scheduler.withdrawal_poll_interval", "1m")

	v.SetDefault("account.deposit_amount", "100.00")

	v.SetDefault("log.level", "info")
}

// IsAdmin checks if a Telegram user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}
