package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/jaylabs/cryptocasino/internal/blob/s3"
	"github.com/jaylabs/cryptocasino/internal/cache/redis"
	"github.com/jaylabs/cryptocasino/internal/config"
	"github.com/jaylabs/cryptocasino/internal/crypto"
	"github.com/jaylabs/cryptocasino/internal/delegation"
	"github.com/jaylabs/cryptocasino/internal/domain"
	"github.com/jaylabs/cryptocasino/internal/ledger"
	"github.com/jaylabs/cryptocasino/internal/notify"
	"github.com/jaylabs/cryptocasino/internal/settlement"
	"github.com/jaylabs/cryptocasino/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Chain
	Ledger   *ledger.Client
	Operator string // operator address, hex

	// Stores
	DelegationStore domain.DelegationStore
	SettlementStore domain.SettlementStore
	AuditStore      domain.AuditStore

	// Caches
	GameCache   domain.GameCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	Archiver domain.Archiver // nil when S3 is disabled

	// Delegation and settlement
	Manager      *delegation.Manager
	Orchestrator settlement.Orchestrator

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Operator key and ledger client ---
	key, err := crypto.LoadOperatorKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Operator.PrivateKey,
		EncryptedKeyPath: cfg.Operator.EncryptedKeyPath,
		KeyPassword:      cfg.Operator.KeyPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: operator key: %w", err)
	}

	ledgerClient, err := ledger.New(ctx, ledger.ClientConfig{
		RPCURL:            cfg.Chain.RPCURL,
		ChainID:           cfg.Chain.ChainID,
		GameContract:      cfg.Chain.GameContract,
		TokenContract:     cfg.Chain.TokenContract,
		DelegationManager: cfg.Chain.DelegationManager,
		AccountFactory:    cfg.Chain.AccountFactory,
	}, key, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: ledger: %w", err)
	}
	closers = append(closers, ledgerClient.Close)
	deps.Ledger = ledgerClient
	deps.Operator = key.Address().Hex()

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.DelegationStore = postgres.NewDelegationStore(pool)
	deps.SettlementStore = postgres.NewSettlementStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	cacheTTL := time.Duration(cfg.Redis.CacheTTLSeconds) * time.Second
	deps.GameCache = redis.NewGameCache(redisClient, cacheTTL)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 settlement archive (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.AuditStore)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Delegation manager ---
	// Ledger mode redeems on chain, where only the player's own signature is
	// accepted; simulated mode may operator-sign joins that carry no
	// delegation.
	signer := crypto.NewDelegationSigner(key, cfg.Chain.ChainID, common.HexToAddress(cfg.Chain.DelegationManager))
	deps.Manager = delegation.NewManager(delegation.ManagerConfig{
		TokenContract:  cfg.Chain.TokenContract,
		MethodEnforcer: cfg.Chain.MethodEnforcer,
		SelfSign:       strings.ToLower(cfg.Settlement.Mode) != "ledger",
	}, signer, ledgerClient, ledgerClient, deps.DelegationStore, logger)

	// --- Settlement orchestrator ---
	switch strings.ToLower(cfg.Settlement.Mode) {
	case "ledger":
		deps.Orchestrator = settlement.NewLedger(
			deps.SettlementStore, deps.Manager, deps.SignalBus, logger,
		)
	default:
		deps.Orchestrator = settlement.NewSimulated(
			deps.SettlementStore, deps.Manager, deps.SignalBus,
			cfg.Settlement.StepDelay.Duration, logger,
		)
	}

	return deps, cleanup, nil
}
