package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	TelegramToken    string        `mapstructure:"telegram_token"`
	BotUsername      string        `mapstructure:"bot_username"`
	BotHandleTimeout time.Duration `mapstructure:"bot_handle_timeout"`

	RequiredInvites  int      `mapstructure:"required_invites"`
	GatedChannelURL  string   `mapstructure:"gated_channel_url"`
	RequiredChannels []string `mapstructure:"required_channels"`

	DatabaseDriver string `mapstructure:"database_driver"`
	DatabaseDSN    string `mapstructure:"database_dsn"`

	RedisURL       string        `mapstructure:"redis_url"`
	ThrottleLimit  int           `mapstructure:"throttle_limit"`
	ThrottleWindow time.Duration `mapstructure:"throttle_window"`

	APIListen string `mapstructure:"api_listen"`
}

func New() *Config {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		logrus.Fatalf("unmarshalling config: %v", err)
	}
	cfg.RequiredChannels = normalizeChannels(cfg.RequiredChannels)
	return cfg
}

func SetupCommon() {
	viper.SetDefault("database_driver", DriverPostgres)
	viper.SetDefault("required_invites", 5)
	viper.SetDefault("throttle_limit", 5)
	viper.SetDefault("throttle_window", "10s")
	viper.SetEnvPrefix("INVITEGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	viper.MustBindEnv("telegram_token")
	viper.MustBindEnv("bot_username")
	viper.MustBindEnv("gated_channel_url")
	viper.MustBindEnv("required_channels")
	viper.MustBindEnv("database_dsn")
	viper.MustBindEnv("redis_url")
	viper.AutomaticEnv()
}

// Validate reports every missing or malformed value at once.
func (c *Config) Validate() error {
	var errs []error
	if c.TelegramToken == "" {
		errs = append(errs, errors.New("telegram_token is required"))
	}
	errs = append(errs, c.ValidateStorage())
	if c.RequiredInvites <= 0 {
		errs = append(errs, fmt.Errorf("required_invites must be positive, got %d", c.RequiredInvites))
	}
	if c.GatedChannelURL == "" {
		errs = append(errs, errors.New("gated_channel_url is required"))
	} else if u, err := url.Parse(c.GatedChannelURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("gated_channel_url %q is not an absolute url", c.GatedChannelURL))
	}
	if len(c.RequiredChannels) == 0 {
		errs = append(errs, errors.New("required_channels is required"))
	}
	if c.RedisURL != "" && (c.ThrottleLimit <= 0 || c.ThrottleWindow <= 0) {
		errs = append(errs, errors.New("throttle_limit and throttle_window must be positive when redis_url is set"))
	}
	return errors.Join(errs...)
}

// ValidateStorage checks only the database settings, which is all the api needs.
func (c *Config) ValidateStorage() error {
	var errs []error
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database_dsn is required"))
	}
	if c.DatabaseDriver != DriverPostgres && c.DatabaseDriver != DriverSQLite {
		errs = append(errs, fmt.Errorf("unsupported database_driver %q", c.DatabaseDriver))
	}
	return errors.Join(errs...)
}

// Redacted is safe to log: the bot token is masked.
func (c Config) Redacted() Config {
	if c.TelegramToken != "" {
		c.TelegramToken = "***"
	}
	if c.DatabaseDSN != "" {
		c.DatabaseDSN = "***"
	}
	return c
}

// normalizeChannels accepts "@handle", "handle" and comma separated values
// that slipped through as a single element.
func normalizeChannels(raw []string) []string {
	var result []string
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if !strings.HasPrefix(part, "@") {
				part = "@" + part
			}
			result = append(result, part)
		}
	}
	return result
}
