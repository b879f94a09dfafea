package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaylabs/cryptocasino/internal/domain"
	"github.com/jaylabs/cryptocasino/internal/notify"
	"github.com/jaylabs/cryptocasino/internal/settlement"
)

// AccountProvisioner is the slice of the delegation manager the settlement
// service needs: making sure every joined player's smart account exists
// before redemption pulls from it.
type AccountProvisioner interface {
	Initialize(ctx context.Context, gameID uint64, players []string) error
}

// SettlementService coordinates a claim run: it takes the per-game lock,
// provisions the roster, runs the configured orchestrator against fresh
// ledger state, and handles the bookkeeping around the outcome (audit,
// notification, archive).
type SettlementService struct {
	games       *GameService
	orch        settlement.Orchestrator
	accounts    AccountProvisioner
	locks       domain.LockManager
	settlements domain.SettlementStore
	delegations domain.DelegationStore
	archiver    domain.Archiver // nil when the archive is disabled
	notifier    *notify.Notifier
	audit       domain.AuditStore
	lockTTL     time.Duration
	logger      *slog.Logger
}

// NewSettlementService creates a SettlementService. archiver may be nil.
func NewSettlementService(
	games *GameService,
	orch settlement.Orchestrator,
	accounts AccountProvisioner,
	locks domain.LockManager,
	settlements domain.SettlementStore,
	delegations domain.DelegationStore,
	archiver domain.Archiver,
	notifier *notify.Notifier,
	audit domain.AuditStore,
	lockTTL time.Duration,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		games:       games,
		orch:        orch,
		accounts:    accounts,
		locks:       locks,
		settlements: settlements,
		delegations: delegations,
		archiver:    archiver,
		notifier:    notifier,
		audit:       audit,
		lockTTL:     lockTTL,
		logger:      logger.With(slog.String("component", "settlement_service")),
	}
}

func settleLockKey(gameID uint64) string {
	return fmt.Sprintf("settle:%d", gameID)
}

// Settle runs the claim for one game. Concurrent settles of the same game are
// serialized through a distributed lock; the loser of the race gets
// ErrLockHeld and should retry after the holder finishes.
func (s *SettlementService) Settle(ctx context.Context, gameID uint64) (domain.Settlement, error) {
	unlock, err := s.locks.Acquire(ctx, settleLockKey(gameID), s.lockTTL)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("service: settle game %d: %w", gameID, err)
	}
	defer unlock()

	// Always settle against fresh ledger state, never a cached snapshot.
	game, err := s.games.Refresh(ctx, gameID)
	if err != nil {
		return domain.Settlement{}, err
	}

	// Redemption transfers out of the losers' smart accounts, so every joined
	// player's account must exist before any value moves. Initialize is
	// idempotent; accounts deployed at join time are skipped.
	players := make([]string, 0, len(game.Bets))
	for _, b := range game.Bets {
		if b.Joined {
			players = append(players, b.Player)
		}
	}
	if err := s.accounts.Initialize(ctx, gameID, players); err != nil {
		return domain.Settlement{}, fmt.Errorf("service: settle game %d: %w", gameID, err)
	}

	st, err := s.orch.Settle(ctx, game)
	if err != nil {
		s.auditLog(ctx, "settlement.failed", map[string]any{
			"game_id": gameID,
			"error":   err.Error(),
		})
		if notifyErr := s.notifier.Notify(ctx, notify.EventSettlementFailed,
			"Settlement failed",
			fmt.Sprintf("game %d: %v", gameID, err),
		); notifyErr != nil {
			s.logger.WarnContext(ctx, "failure notification failed", slog.String("error", notifyErr.Error()))
		}
		return domain.Settlement{}, err
	}

	s.auditLog(ctx, "settlement.completed", map[string]any{
		"game_id":    st.GameID,
		"winner":     st.Winner,
		"total_pool": st.TotalPool.String(),
		"tx":         st.TxHash,
		"simulated":  st.Simulated,
	})
	if err := s.notifier.Notify(ctx, notify.EventSettlementCompleted,
		"Settlement completed",
		fmt.Sprintf("game %d: %s won %s", st.GameID, st.Winner, st.TotalPool),
	); err != nil {
		s.logger.WarnContext(ctx, "completion notification failed", slog.String("error", err.Error()))
	}

	s.archive(ctx, st)

	return st, nil
}

// GetSettlement returns the persisted settlement for a game.
func (s *SettlementService) GetSettlement(ctx context.Context, gameID uint64) (domain.Settlement, error) {
	return s.settlements.GetByGame(ctx, gameID)
}

// ListRecent returns the most recent settlements.
func (s *SettlementService) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Settlement, error) {
	return s.settlements.ListRecent(ctx, opts)
}

// archive uploads the settlement report. Archive failures never fail the
// settlement; the money already moved.
func (s *SettlementService) archive(ctx context.Context, st domain.Settlement) {
	if s.archiver == nil {
		return
	}
	records, err := s.delegations.ListByGame(ctx, st.GameID)
	if err != nil {
		s.logger.WarnContext(ctx, "archive record lookup failed",
			slog.Uint64("game_id", st.GameID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.archiver.ArchiveSettlement(ctx, st, records); err != nil {
		s.logger.WarnContext(ctx, "settlement archive failed",
			slog.Uint64("game_id", st.GameID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SettlementService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
