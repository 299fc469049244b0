// Package config defines the tradeview configuration and its validation.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration. Fields come from a TOML file and are
// then overridden by TRADEVIEW_* environment variables.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Venue     VenueConfig     `toml:"venue"`
	Orderbook OrderbookConfig `toml:"orderbook"`
	Dashboard DashboardConfig `toml:"dashboard"`
	Analytics AnalyticsConfig `toml:"analytics"`
	Trading   TradingConfig   `toml:"trading"`
	Redis     RedisConfig     `toml:"redis"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// LogConfig controls the optional rotated log file. Logs always go to
// stdout; File adds a second, rotated destination.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// VenueConfig holds the remote trading venue endpoint and the session used
// at startup. Token and AccountID are normally injected from the
// environment.
type VenueConfig struct {
	BaseURL   string   `toml:"base_url"`
	Timeout   duration `toml:"timeout"`
	UserAgent string   `toml:"user_agent"`
	Token     string   `toml:"token"`
	AccountID string   `toml:"account_id"`
}

// OrderbookConfig holds the order book watch parameters.
type OrderbookConfig struct {
	Symbol          string   `toml:"symbol"`
	RefreshInterval duration `toml:"refresh_interval"`
	Depth           int      `toml:"depth"`
}

// DashboardConfig holds the dashboard poller parameters.
type DashboardConfig struct {
	RefreshInterval duration `toml:"refresh_interval"`
}

// AnalyticsConfig holds analytics display parameters.
type AnalyticsConfig struct {
	TrendWindow int `toml:"trend_window"`
}

// TradingConfig holds the submit rate limit. A zero RateLimit disables it.
type TradingConfig struct {
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// RedisConfig holds Redis connection parameters. Redis is optional.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	Prefix     string   `toml:"prefix"`
	MirrorTTL  duration `toml:"mirror_ttl"`
}

// duration wraps time.Duration so TOML strings like "60s" decode.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds the local HTTP/WebSocket server parameters. An empty
// APIKey disables request authentication.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramAPIURL    string   `toml:"telegram_api_url"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with sensible defaults.
func Defaults() Config {
	return Config{
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Venue: VenueConfig{
			BaseURL:   "http://localhost:8080",
			Timeout:   duration{10 * time.Second},
			UserAgent: "tradeview/1.0",
		},
		Orderbook: OrderbookConfig{
			Symbol:          "BTC-USD",
			RefreshInterval: duration{60 * time.Second},
			Depth:           20,
		},
		Dashboard: DashboardConfig{
			RefreshInterval: duration{30 * time.Second},
		},
		Analytics: AnalyticsConfig{
			TrendWindow: 20,
		},
		Trading: TradingConfig{
			RateLimit:  5,
			RateWindow: duration{time.Second},
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			Prefix:     "tradeview:",
			MirrorTTL:  duration{5 * time.Minute},
		},
		Server: ServerConfig{
			Enabled:     false,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"order_filled", "submit_failed"},
		},
		Mode:     "watch",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"watch":  true,
	"server": true,
	"report": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: watch, server, report)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Venue
	if u, err := url.Parse(c.Venue.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("venue: base_url must be an absolute URL, got %q", c.Venue.BaseURL))
	}
	if c.Venue.Timeout.Duration <= 0 {
		errs = append(errs, "venue: timeout must be > 0")
	}

	// Order book
	if c.Mode != "report" && strings.TrimSpace(c.Orderbook.Symbol) == "" {
		errs = append(errs, "orderbook: symbol must not be empty")
	}
	if c.Orderbook.RefreshInterval.Duration < time.Second {
		errs = append(errs, "orderbook: refresh_interval must be >= 1s")
	}
	if c.Orderbook.Depth < 0 {
		errs = append(errs, "orderbook: depth must be >= 0")
	}

	if c.Dashboard.RefreshInterval.Duration < time.Second {
		errs = append(errs, "dashboard: refresh_interval must be >= 1s")
	}
	if c.Analytics.TrendWindow < 1 {
		errs = append(errs, "analytics: trend_window must be >= 1")
	}

	if c.Trading.RateLimit < 0 {
		errs = append(errs, "trading: rate_limit must be >= 0")
	}
	if c.Trading.RateLimit > 0 && c.Trading.RateWindow.Duration <= 0 {
		errs = append(errs, "trading: rate_window must be > 0 when rate_limit is set")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Server.Enabled || c.Mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
