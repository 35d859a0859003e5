package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		TelegramToken:    "123:abc",
		BotHandleTimeout: 10 * time.Second,
		RequiredInvites:  5,
		GatedChannelURL:  "https://t.me/+secret",
		RequiredChannels: []string{"@english_avenue"},
		DatabaseDriver:   DriverSQLite,
		DatabaseDSN:      "file::memory:",
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"missing token", func(c *Config) { c.TelegramToken = "" }, "telegram_token is required"},
		{"bad driver", func(c *Config) { c.DatabaseDriver = "mysql" }, `unsupported database_driver "mysql"`},
		{"zero invites", func(c *Config) { c.RequiredInvites = 0 }, "required_invites must be positive"},
		{"relative url", func(c *Config) { c.GatedChannelURL = "t.me/+x" }, "is not an absolute url"},
		{"no channels", func(c *Config) { c.RequiredChannels = nil }, "required_channels is required"},
		{"redis without window", func(c *Config) {
			c.RedisURL = "redis://localhost:6379"
			c.ThrottleWindow = 0
		}, "throttle_limit and throttle_window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateStorage(t *testing.T) {
	cfg := &Config{DatabaseDriver: DriverSQLite, DatabaseDSN: "file::memory:"}
	require.NoError(t, cfg.ValidateStorage())

	cfg.DatabaseDriver = "mysql"
	err := cfg.ValidateStorage()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported database_driver "mysql"`)

	cfg = &Config{DatabaseDriver: DriverPostgres}
	err = cfg.ValidateStorage()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_dsn is required")
}

func TestNormalizeChannels(t *testing.T) {
	got := normalizeChannels([]string{"@english_avenue, humoyunsielts", " ", "@third"})
	assert.Equal(t, []string{"@english_avenue", "@humoyunsielts", "@third"}, got)
}

func TestRedacted(t *testing.T) {
	cfg := validConfig()
	red := cfg.Redacted()
	assert.Equal(t, "***", red.TelegramToken)
	assert.Equal(t, "***", red.DatabaseDSN)
	assert.Equal(t, "123:abc", cfg.TelegramToken)
}
