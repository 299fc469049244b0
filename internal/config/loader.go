package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path (skipped when path is empty) over
// Defaults, loads .env if present and applies TRADEVIEW_* overrides. The
// result is not validated; call Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides lets operators inject secrets and per-deploy settings
// without touching the TOML file. Only non-empty variables apply.
func applyEnvOverrides(cfg *Config) {
	// ── Log ──
	setStr(&cfg.Log.File, "TRADEVIEW_LOG_FILE")
	setInt(&cfg.Log.MaxSizeMB, "TRADEVIEW_LOG_MAX_SIZE_MB")
	setInt(&cfg.Log.MaxBackups, "TRADEVIEW_LOG_MAX_BACKUPS")
	setInt(&cfg.Log.MaxAgeDays, "TRADEVIEW_LOG_MAX_AGE_DAYS")

	// ── Venue ──
	setStr(&cfg.Venue.BaseURL, "TRADEVIEW_VENUE_BASE_URL")
	setDuration(&cfg.Venue.Timeout, "TRADEVIEW_VENUE_TIMEOUT")
	setStr(&cfg.Venue.UserAgent, "TRADEVIEW_VENUE_USER_AGENT")
	setStr(&cfg.Venue.Token, "TRADEVIEW_VENUE_TOKEN")
	setStr(&cfg.Venue.AccountID, "TRADEVIEW_VENUE_ACCOUNT_ID")

	// ── Order book / dashboard / analytics ──
	setStr(&cfg.Orderbook.Symbol, "TRADEVIEW_ORDERBOOK_SYMBOL")
	setDuration(&cfg.Orderbook.RefreshInterval, "TRADEVIEW_ORDERBOOK_REFRESH_INTERVAL")
	setInt(&cfg.Orderbook.Depth, "TRADEVIEW_ORDERBOOK_DEPTH")
	setDuration(&cfg.Dashboard.RefreshInterval, "TRADEVIEW_DASHBOARD_REFRESH_INTERVAL")
	setInt(&cfg.Analytics.TrendWindow, "TRADEVIEW_ANALYTICS_TREND_WINDOW")

	// ── Trading ──
	setInt(&cfg.Trading.RateLimit, "TRADEVIEW_TRADING_RATE_LIMIT")
	setDuration(&cfg.Trading.RateWindow, "TRADEVIEW_TRADING_RATE_WINDOW")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TRADEVIEW_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TRADEVIEW_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEVIEW_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEVIEW_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADEVIEW_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADEVIEW_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADEVIEW_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Prefix, "TRADEVIEW_REDIS_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRADEVIEW_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADEVIEW_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADEVIEW_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TRADEVIEW_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADEVIEW_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADEVIEW_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADEVIEW_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADEVIEW_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRADEVIEW_MODE")
	setStr(&cfg.LogLevel, "TRADEVIEW_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
