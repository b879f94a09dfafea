// Package config defines the top-level configuration for the casino backend
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CASINO_* environment variables.
type Config struct {
	Chain      ChainConfig      `toml:"chain"`
	Operator   OperatorConfig   `toml:"operator"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Settlement SettlementConfig `toml:"settlement"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// ChainConfig holds RPC endpoint and contract addresses for the game ledger.
type ChainConfig struct {
	RPCURL             string `toml:"rpc_url"`
	ChainID            int64  `toml:"chain_id"`
	GameContract       string `toml:"game_contract"`
	TokenContract      string `toml:"token_contract"`
	DelegationManager  string `toml:"delegation_manager"`
	AccountFactory     string `toml:"account_factory"`
	MethodEnforcer     string `toml:"method_enforcer"`
	ReceiptPollSeconds int    `toml:"receipt_poll_seconds"`
}

// OperatorConfig holds the operator identity used to pay for smart-account
// deployments and to submit redemption transactions. The key is never
// embedded in source; it is injected here at process start.
type OperatorConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr            string `toml:"addr"`
	Password        string `toml:"password"`
	DB              int    `toml:"db"`
	PoolSize        int    `toml:"pool_size"`
	MaxRetries      int    `toml:"max_retries"`
	TLSEnabled      bool   `toml:"tls_enabled"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds"`
}

// S3Config holds S3-compatible object storage parameters for the settlement
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// SettlementConfig selects the settlement path and poller cadence.
type SettlementConfig struct {
	// Mode selects the orchestrator: "ledger" redeems stored delegations
	// on-chain; "simulated" walks per-loser steps on a timer.
	Mode         string   `toml:"mode"`
	PollInterval duration `toml:"poll_interval"`
	StepDelay    duration `toml:"step_delay"`
	LockTTL      duration `toml:"lock_ttl"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled       bool     `toml:"enabled"`
	Port          int      `toml:"port"`
	CORSOrigins   []string `toml:"cors_origins"`
	APIKey        string   `toml:"api_key"`
	JoinRateLimit int      `toml:"join_rate_limit"` // joins per player per minute
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "2m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5s" or "2m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:             "https://ethereum-sepolia-rpc.publicnode.com",
			ChainID:            11155111,
			GameContract:       "0x80329bC3872aa52bCEb0b1E7d7B11D52845362F3",
			TokenContract:      "0x1b44F3514812d835EB1BDB0acB33d3fA3351Ee43",
			ReceiptPollSeconds: 2,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "casino",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			DB:              0,
			PoolSize:        20,
			MaxRetries:      3,
			TLSEnabled:      false,
			CacheTTLSeconds: 5,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "casino-settlements",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Settlement: SettlementConfig{
			Mode:         "simulated",
			PollInterval: duration{5 * time.Second},
			StepDelay:    duration{1500 * time.Millisecond},
			LockTTL:      duration{2 * time.Minute},
		},
		Server: ServerConfig{
			Enabled:       true,
			Port:          8000,
			CORSOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
			JoinRateLimit: 6,
		},
		Notify: NotifyConfig{
			Events: []string{"player_joined", "game_resolved", "settlement_completed", "settlement_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"monitor": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validSettlementModes enumerates the accepted settlement orchestrators.
var validSettlementModes = map[string]bool{
	"simulated": true,
	"ledger":    true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, monitor, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Chain.GameContract == "" {
		errs = append(errs, "chain: game_contract must not be empty")
	}
	if c.Chain.TokenContract == "" {
		errs = append(errs, "chain: token_contract must not be empty")
	}

	// Operator — a key source is required whenever the ledger settlement path
	// or join submission can run.
	if c.Operator.PrivateKey == "" && c.Operator.EncryptedKeyPath == "" {
		errs = append(errs, "operator: either private_key or encrypted_key_path must be set")
	}
	if c.Operator.EncryptedKeyPath != "" && c.Operator.KeyPassword == "" {
		errs = append(errs, "operator: key_password is required when encrypted_key_path is set")
	}

	// Settlement
	if !validSettlementModes[strings.ToLower(c.Settlement.Mode)] {
		errs = append(errs, fmt.Sprintf("settlement: unknown mode %q (valid: simulated, ledger)", c.Settlement.Mode))
	}
	if strings.ToLower(c.Settlement.Mode) == "ledger" && c.Chain.DelegationManager == "" {
		errs = append(errs, "settlement: chain.delegation_manager is required for ledger mode")
	}
	if strings.ToLower(c.Settlement.Mode) == "ledger" && c.Chain.MethodEnforcer == "" {
		errs = append(errs, "settlement: chain.method_enforcer is required for ledger mode")
	}
	if c.Settlement.PollInterval.Duration <= 0 {
		errs = append(errs, "settlement: poll_interval must be > 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.JoinRateLimit < 1 {
			errs = append(errs, "server: join_rate_limit must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
