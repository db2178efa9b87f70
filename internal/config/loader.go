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
// built-in defaults, applies DUELCORE_* environment variable overrides, and
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

// applyEnvOverrides reads well-known DUELCORE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "DUELCORE_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "DUELCORE_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "DUELCORE_WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.FeeCollector, "DUELCORE_WALLET_FEE_COLLECTOR")

	// ── Ledger ──
	setStr(&cfg.Ledger.RPCEndpoint, "DUELCORE_LEDGER_RPC_ENDPOINT")
	setStr(&cfg.Ledger.DuelProgramID, "DUELCORE_LEDGER_DUEL_PROGRAM_ID")
	setStr(&cfg.Ledger.MarketProgramID, "DUELCORE_LEDGER_MARKET_PROGRAM_ID")
	setInt(&cfg.Ledger.MinConfirmations, "DUELCORE_LEDGER_MIN_CONFIRMATIONS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DUELCORE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DUELCORE_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "DUELCORE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DUELCORE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DUELCORE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DUELCORE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DUELCORE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DUELCORE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DUELCORE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DUELCORE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DUELCORE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "DUELCORE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DUELCORE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DUELCORE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DUELCORE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DUELCORE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DUELCORE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "DUELCORE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DUELCORE_S3_REGION")
	setStr(&cfg.S3.Bucket, "DUELCORE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DUELCORE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DUELCORE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DUELCORE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DUELCORE_S3_FORCE_PATH_STYLE")

	// ── Duel ──
	setInt(&cfg.Duel.FeeBps, "DUELCORE_DUEL_FEE_BPS")
	setDuration(&cfg.Duel.JoinWindow, "DUELCORE_DUEL_JOIN_WINDOW")
	setDuration(&cfg.Duel.Countdown, "DUELCORE_DUEL_COUNTDOWN")
	setDuration(&cfg.Duel.DuelDuration, "DUELCORE_DUEL_DURATION")
	setFloat64(&cfg.Duel.PriceScale, "DUELCORE_DUEL_PRICE_SCALE")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "DUELCORE_FEED_ENABLED")
	setStr(&cfg.Feed.WsHost, "DUELCORE_FEED_WS_HOST")
	setStringSlice(&cfg.Feed.Symbols, "DUELCORE_FEED_SYMBOLS")

	// ── Sweeper ──
	setBool(&cfg.Sweeper.Enabled, "DUELCORE_SWEEPER_ENABLED")
	setDuration(&cfg.Sweeper.Interval, "DUELCORE_SWEEPER_INTERVAL")
	setInt(&cfg.Sweeper.BatchSize, "DUELCORE_SWEEPER_BATCH_SIZE")
	setDuration(&cfg.Sweeper.ArchiveAfter, "DUELCORE_SWEEPER_ARCHIVE_AFTER")
	setStr(&cfg.Sweeper.ArchiveCron, "DUELCORE_SWEEPER_ARCHIVE_CRON")
	setStr(&cfg.Sweeper.ArchivePrefix, "DUELCORE_SWEEPER_ARCHIVE_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DUELCORE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DUELCORE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DUELCORE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "DUELCORE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "DUELCORE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "DUELCORE_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DUELCORE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DUELCORE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DUELCORE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DUELCORE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "DUELCORE_MODE")
	setStr(&cfg.LogLevel, "DUELCORE_LOG_LEVEL")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
