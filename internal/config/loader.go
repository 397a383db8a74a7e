package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PULSE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PULSE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "PULSE_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "PULSE_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "PULSE_WALLET_KEY_PASSWORD")

	// ── Ledger ──
	setStr(&cfg.Ledger.Receiver, "PULSE_LEDGER_RECEIVER")
	setStr(&cfg.Ledger.MinRatingAmount, "PULSE_LEDGER_MIN_RATING_AMOUNT")
	setInt64(&cfg.Ledger.PriceNumerator, "PULSE_LEDGER_PRICE_NUMERATOR")
	setInt64(&cfg.Ledger.PriceDenominator, "PULSE_LEDGER_PRICE_DENOMINATOR")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "PULSE_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "PULSE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PULSE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PULSE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PULSE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PULSE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PULSE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PULSE_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "PULSE_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "PULSE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PULSE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PULSE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PULSE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PULSE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PULSE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PULSE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PULSE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PULSE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PULSE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PULSE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PULSE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PULSE_S3_REGION")
	setStr(&cfg.S3.Bucket, "PULSE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PULSE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PULSE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PULSE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PULSE_S3_FORCE_PATH_STYLE")

	// ── Aggregator ──
	setDuration(&cfg.Aggregator.RefreshInterval, "PULSE_AGGREGATOR_REFRESH_INTERVAL")
	setDuration(&cfg.Aggregator.LockTTL, "PULSE_AGGREGATOR_LOCK_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PULSE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PULSE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PULSE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminAPIKey, "PULSE_SERVER_ADMIN_API_KEY")
	setInt(&cfg.Server.RateLimit, "PULSE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "PULSE_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PULSE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PULSE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PULSE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PULSE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PULSE_MODE")
	setStr(&cfg.LogLevel, "PULSE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
