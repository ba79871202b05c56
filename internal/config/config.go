package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode            string        `mapstructure:"mode"`
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	ReadLimit       int64         `mapstructure:"read_limit"`
	PingPeriod      time.Duration `mapstructure:"ping_period"`
	Secret          string        `mapstructure:"secret"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	StoreTimeout    time.Duration `mapstructure:"store_timeout"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	FanoutWorkers   int           `mapstructure:"fanout_workers"`
	MaxBodyLen      int           `mapstructure:"max_body_len"`
	HistoryLimit    int           `mapstructure:"history_limit"`
	ICEURLs         []string      `mapstructure:"ice_urls"`

	RateLimit RateLimit `mapstructure:"rate_limit"`
	Store     Store     `mapstructure:"store"`
	AMQP      AMQP      `mapstructure:"amqp"`
	Auth      Auth      `mapstructure:"auth"`
}

type RateLimit struct {
	Messages int           `mapstructure:"messages"`
	Interval time.Duration `mapstructure:"interval"`
}

type Store struct {
	Driver      string `mapstructure:"driver"`
	BadgerPath  string `mapstructure:"badger_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// AMQP enables the call journal when URL is set.
type AMQP struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// Auth enables token checks when Secret is set.
type Auth struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

const (
	DriverMemory   = "memory"
	DriverBadger   = "badger"
	DriverPostgres = "postgres"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("delivery_timeout", "3s")
	v.SetDefault("store_timeout", "5s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("fanout_workers", 16)
	v.SetDefault("max_body_len", 4096)
	v.SetDefault("history_limit", 200)
	v.SetDefault("ice_urls", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("rate_limit.messages", 20)
	v.SetDefault("rate_limit.interval", "10s")
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.badger_path", "./data/badger")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "talkie.calls")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", "12h")
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default) on top of the
// defaults; TALKIE_* environment variables win over both.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("TALKIE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("store", cfg.Store.Driver).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Mode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("mode %q: want debug, release or test", c.Mode))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.DeliveryTimeout <= 0 {
		errs = append(errs, errors.New("delivery_timeout must be positive"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("store_timeout must be positive"))
	}
	if c.SendBuffer < 1 {
		errs = append(errs, errors.New("send_buffer must be at least 1"))
	}
	if c.RateLimit.Messages < 1 || c.RateLimit.Interval <= 0 {
		errs = append(errs, errors.New("rate_limit needs positive messages and interval"))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverBadger:
		if c.Store.BadgerPath == "" {
			errs = append(errs, errors.New("store.badger_path is required for badger"))
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q: want memory, badger or postgres", c.Store.Driver))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
