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
// built-in defaults, applies CASINO_* environment variable overrides, and
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

// applyEnvOverrides reads well-known CASINO_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "CASINO_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "CASINO_CHAIN_ID")
	setStr(&cfg.Chain.GameContract, "CASINO_CHAIN_GAME_CONTRACT")
	setStr(&cfg.Chain.TokenContract, "CASINO_CHAIN_TOKEN_CONTRACT")
	setStr(&cfg.Chain.DelegationManager, "CASINO_CHAIN_DELEGATION_MANAGER")
	setStr(&cfg.Chain.AccountFactory, "CASINO_CHAIN_ACCOUNT_FACTORY")
	setStr(&cfg.Chain.MethodEnforcer, "CASINO_CHAIN_METHOD_ENFORCER")

	// ── Operator ──
	setStr(&cfg.Operator.PrivateKey, "CASINO_OPERATOR_PRIVATE_KEY")
	setStr(&cfg.Operator.EncryptedKeyPath, "CASINO_OPERATOR_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Operator.KeyPassword, "CASINO_OPERATOR_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CASINO_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CASINO_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CASINO_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CASINO_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CASINO_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CASINO_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CASINO_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CASINO_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CASINO_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CASINO_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CASINO_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CASINO_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CASINO_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CASINO_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CASINO_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CASINO_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.CacheTTLSeconds, "CASINO_REDIS_CACHE_TTL_SECONDS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CASINO_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CASINO_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CASINO_S3_REGION")
	setStr(&cfg.S3.Bucket, "CASINO_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CASINO_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CASINO_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CASINO_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CASINO_S3_FORCE_PATH_STYLE")

	// ── Settlement ──
	setStr(&cfg.Settlement.Mode, "CASINO_SETTLEMENT_MODE")
	setDuration(&cfg.Settlement.PollInterval, "CASINO_SETTLEMENT_POLL_INTERVAL")
	setDuration(&cfg.Settlement.StepDelay, "CASINO_SETTLEMENT_STEP_DELAY")
	setDuration(&cfg.Settlement.LockTTL, "CASINO_SETTLEMENT_LOCK_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CASINO_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CASINO_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CASINO_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CASINO_SERVER_API_KEY")
	setInt(&cfg.Server.JoinRateLimit, "CASINO_SERVER_JOIN_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CASINO_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CASINO_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CASINO_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CASINO_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CASINO_MODE")
	setStr(&cfg.LogLevel, "CASINO_LOG_LEVEL")
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
