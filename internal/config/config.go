package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Logger     Logger     `mapstructure:"logger"`
	Database   Database   `mapstructure:"database"`
	MarketData MarketData `mapstructure:"market_data"`
	Risk       Risk       `mapstructure:"risk"`
	Monitor    Monitor    `mapstructure:"monitor"`
	Bot        Bot        `mapstructure:"bot"`
	Telegram   Telegram   `mapstructure:"telegram"`
	Server     Server     `mapstructure:"server"`
}

// MarketData holds the configuration for the market-data provider.
type MarketData struct {
	BaseURL        string        `mapstructure:"base_url"`
	ApiKey         string        `mapstructure:"api_key"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Risk holds the protection thresholds applied to active signals.
// Progress values are fractions of the entry-to-TP1 distance.
type Risk struct {
	BreakevenProgress float64       `mapstructure:"breakeven_progress"`
	TrailingProgress  float64       `mapstructure:"trailing_progress"`
	TrailingDistance  float64       `mapstructure:"trailing_distance"`
	ScaleOut          bool          `mapstructure:"scale_out"`
	PartialWeights    []float64     `mapstructure:"partial_weights"`
	EntryExpiry       time.Duration `mapstructure:"entry_expiry"`
}

// Monitor holds the configuration for the monitor pass.
type Monitor struct {
	Workers int `mapstructure:"workers"`
}

// Bot holds the defaults used when a bot config row is first created.
type Bot struct {
	Type            string        `mapstructure:"type"`
	DefaultInterval time.Duration `mapstructure:"default_interval"`
	DefaultClasses  []string      `mapstructure:"default_classes"`
	MinConfluence   int           `mapstructure:"min_confluence"`
	GeneratorURL    string        `mapstructure:"generator_url"`
}

// Telegram holds the configuration for the notification channel.
type Telegram struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// Server holds the configuration for the operator API.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error: defaults and environment apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("read config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("decode config: %w", err)
	}

	err = config.Validate()
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "signals.db")

	v.SetDefault("market_data.base_url", "http://localhost:8081/api/v1")
	v.SetDefault("market_data.api_key", "")
	v.SetDefault("market_data.rate_limit", 5)       // requests per second
	v.SetDefault("market_data.rate_limit_burst", 2) // burst size
	v.SetDefault("market_data.poll_interval", "30s")
	v.SetDefault("market_data.timeout", "10s")

	v.SetDefault("risk.breakeven_progress", 0.5)
	v.SetDefault("risk.trailing_progress", 0.75)
	v.SetDefault("risk.trailing_distance", 0.25)
	v.SetDefault("risk.scale_out", false)
	v.SetDefault("risk.partial_weights", []float64{0.5, 0.3})
	v.SetDefault("risk.entry_expiry", "72h")

	v.SetDefault("monitor.workers", 4)

	v.SetDefault("bot.type", "signals")
	v.SetDefault("bot.default_interval", "15m")
	v.SetDefault("bot.default_classes", []string{"forex", "crypto"})
	v.SetDefault("bot.min_confluence", 60)
	v.SetDefault("bot.generator_url", "")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", 0)

	v.SetDefault("server.port", 8080)
}

// Validate rejects values the risk engine or scheduler cannot work with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.MarketData.PollInterval <= 0 {
		return fmt.Errorf("market_data.poll_interval must be positive")
	}
	if c.Risk.BreakevenProgress <= 0 || c.Risk.TrailingProgress < c.Risk.BreakevenProgress {
		return fmt.Errorf("risk progress thresholds must satisfy 0 < breakeven <= trailing")
	}
	if c.Risk.TrailingDistance <= 0 {
		return fmt.Errorf("risk.trailing_distance must be positive")
	}
	sum := 0.0
	for _, w := range c.Risk.PartialWeights {
		if w <= 0 {
			return fmt.Errorf("risk.partial_weights must be positive")
		}
		sum += w
	}
	if len(c.Risk.PartialWeights) > 2 || sum >= 1 {
		return fmt.Errorf("risk.partial_weights takes at most two legs summing below 1")
	}
	if c.Monitor.Workers <= 0 {
		return fmt.Errorf("monitor.workers must be positive")
	}
	if c.Bot.DefaultInterval < time.Minute {
		return fmt.Errorf("bot.default_interval must be at least 1m")
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}
