package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o644))
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.MarketData.PollInterval)
	assert.Equal(t, 15*time.Minute, cfg.Bot.DefaultInterval)
	assert.Equal(t, 0.5, cfg.Risk.BreakevenProgress)
	assert.Equal(t, 0.75, cfg.Risk.TrailingProgress)
	assert.Equal(t, 0.25, cfg.Risk.TrailingDistance)
	assert.Equal(t, []float64{0.5, 0.3}, cfg.Risk.PartialWeights)
	assert.Equal(t, 4, cfg.Monitor.Workers)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	dir := writeConfig(t, `
market_data:
  poll_interval: 5s
bot:
  default_interval: 1m
risk:
  scale_out: true
`)
	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.MarketData.PollInterval)
	assert.Equal(t, time.Minute, cfg.Bot.DefaultInterval)
	assert.True(t, cfg.Risk.ScaleOut)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	dir := writeConfig(t, "server:\n  port: 9000\n")
	t.Setenv("SERVER_PORT", "9100")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
}

func TestLoadConfig_EnvWithoutFile(t *testing.T) {
	// Arrange
	t.Setenv("TELEGRAM_ENABLED", "true")
	t.Setenv("TELEGRAM_BOT_TOKEN", "abc")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("MARKET_DATA_API_KEY", "k")
	t.Setenv("BOT_GENERATOR_URL", "http://generator:9000")

	// Act
	cfg, err := LoadConfig(t.TempDir())

	// Assert
	require.NoError(t, err)
	assert.True(t, cfg.Telegram.Enabled)
	assert.Equal(t, "abc", cfg.Telegram.BotToken)
	assert.Equal(t, int64(42), cfg.Telegram.ChatID)
	assert.Equal(t, "k", cfg.MarketData.ApiKey)
	assert.Equal(t, "http://generator:9000", cfg.Bot.GeneratorURL)
}

func TestLoadConfig_RejectsSubMinuteBotInterval(t *testing.T) {
	dir := writeConfig(t, "bot:\n  default_interval: 30s\n")

	_, err := LoadConfig(dir)

	assert.ErrorContains(t, err, "bot.default_interval")
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg, err := LoadConfig(t.TempDir())
		require.NoError(t, err)
		return cfg
	}

	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"zero poll interval", func(c *Config) { c.MarketData.PollInterval = 0 }},
		{"trailing before breakeven", func(c *Config) { c.Risk.TrailingProgress = 0.4 }},
		{"weights sum to one", func(c *Config) { c.Risk.PartialWeights = []float64{0.5, 0.5} }},
		{"too many weights", func(c *Config) { c.Risk.PartialWeights = []float64{0.2, 0.2, 0.2} }},
		{"zero bot interval", func(c *Config) { c.Bot.DefaultInterval = 0 }},
		{"sub-minute bot interval", func(c *Config) { c.Bot.DefaultInterval = 30 * time.Second }},
		{"telegram without token", func(c *Config) { c.Telegram.Enabled = true }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
