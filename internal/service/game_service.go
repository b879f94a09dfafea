// Package service implements the application workflows on top of the domain
// interfaces: game reads, the relayed join flow, and settlement runs.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/jaylabs/cryptocasino/internal/delegation"
	"github.com/jaylabs/cryptocasino/internal/domain"
	"github.com/jaylabs/cryptocasino/internal/notify"
)

// ChannelGames is the signal-bus channel game snapshots are published on.
const ChannelGames = "games"

// maxListGames caps how many games a single list call will read off the
// ledger.
const maxListGames = 50

// GameService serves game state, cache-first, and runs the relayed join flow.
type GameService struct {
	ledger   domain.GameLedger
	cache    domain.GameCache
	bus      domain.SignalBus
	manager  *delegation.Manager
	notifier *notify.Notifier
	audit    domain.AuditStore
	logger   *slog.Logger

	now func() time.Time
}

// NewGameService creates a GameService with all required dependencies.
func NewGameService(
	ledger domain.GameLedger,
	cache domain.GameCache,
	bus domain.SignalBus,
	manager *delegation.Manager,
	notifier *notify.Notifier,
	audit domain.AuditStore,
	logger *slog.Logger,
) *GameService {
	return &GameService{
		ledger:   ledger,
		cache:    cache,
		bus:      bus,
		manager:  manager,
		notifier: notifier,
		audit:    audit,
		logger:   logger.With(slog.String("component", "game_service")),
		now:      time.Now,
	}
}

// GetGame returns a game with its bets, checking the cache first and falling
// back to the ledger on a miss.
func (s *GameService) GetGame(ctx context.Context, gameID uint64) (domain.Game, error) {
	game, err := s.cache.Get(ctx, gameID)
	if err == nil {
		return game, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "cache read failed",
			slog.Uint64("game_id", gameID),
			slog.String("error", err.Error()),
		)
	}
	return s.Refresh(ctx, gameID)
}

// Refresh reads a game and its bets straight from the ledger and back-fills
// the cache.
func (s *GameService) Refresh(ctx context.Context, gameID uint64) (domain.Game, error) {
	game, err := s.loadGame(ctx, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	if cacheErr := s.cache.Set(ctx, game); cacheErr != nil {
		s.logger.WarnContext(ctx, "cache set failed",
			slog.Uint64("game_id", gameID),
			slog.String("error", cacheErr.Error()),
		)
	}
	return game, nil
}

// ListGames returns every game on the ledger, newest first, capped at
// maxListGames.
func (s *GameService) ListGames(ctx context.Context) ([]domain.Game, error) {
	next, err := s.ledger.NextGameID(ctx)
	if err != nil {
		return nil, err
	}

	first := uint64(0)
	if next > maxListGames {
		first = next - maxListGames
	}

	games := make([]domain.Game, 0, next-first)
	for id := next; id > first; id-- {
		game, err := s.GetGame(ctx, id-1)
		if err != nil {
			return nil, err
		}
		games = append(games, game)
	}
	return games, nil
}

// LatestGame returns the most recently created game, or ErrNotFound when no
// game exists yet.
func (s *GameService) LatestGame(ctx context.Context) (domain.Game, error) {
	next, err := s.ledger.NextGameID(ctx)
	if err != nil {
		return domain.Game{}, err
	}
	if next == 0 {
		return domain.Game{}, domain.ErrNotFound
	}
	return s.GetGame(ctx, next-1)
}

// JoinGame runs the full join flow for one player: window check, smart
// account provisioning plus delegation validation and persistence, then the
// relayed stake transaction. deleg is the player-signed delegation from the
// request body; the manager falls back to operator signing only when
// configured for simulated settlement. The stored authorization is rolled
// back when the relay fails so stored records stay in step with on-chain
// players.
func (s *GameService) JoinGame(ctx context.Context, gameID uint64, player string, guessPrice *big.Int, deleg *domain.Delegation) (domain.AuthorizationResult, error) {
	game, err := s.Refresh(ctx, gameID)
	if err != nil {
		return domain.AuthorizationResult{}, err
	}
	if !game.Joinable(s.now()) {
		return domain.AuthorizationResult{}, fmt.Errorf("service: game %d: %w", gameID, domain.ErrGameNotJoinable)
	}
	if _, taken := game.BetFor(player); taken {
		return domain.AuthorizationResult{}, fmt.Errorf("service: game %d player %s: %w", gameID, player, domain.ErrDuplicatePlayer)
	}

	result, err := s.manager.Authorize(ctx, gameID, player, deleg)
	if err != nil {
		return domain.AuthorizationResult{}, err
	}

	txHash, err := s.ledger.JoinGame(ctx, gameID, guessPrice)
	if err != nil {
		if revokeErr := s.manager.Revoke(ctx, gameID, player); revokeErr != nil {
			s.logger.ErrorContext(ctx, "authorization rollback failed",
				slog.Uint64("game_id", gameID),
				slog.String("player", player),
				slog.String("error", revokeErr.Error()),
			)
		}
		return domain.AuthorizationResult{}, err
	}

	if cacheErr := s.cache.Invalidate(ctx, gameID); cacheErr != nil {
		s.logger.WarnContext(ctx, "cache invalidate failed",
			slog.Uint64("game_id", gameID),
			slog.String("error", cacheErr.Error()),
		)
	}

	s.auditLog(ctx, "game.join", map[string]any{
		"game_id": gameID,
		"player":  player,
		"guess":   guessPrice.String(),
		"tx":      txHash,
	})
	if err := s.notifier.Notify(ctx, notify.EventPlayerJoined,
		"Player joined",
		fmt.Sprintf("game %d: %s guessed %s", gameID, player, guessPrice),
	); err != nil {
		s.logger.WarnContext(ctx, "join notification failed", slog.String("error", err.Error()))
	}

	s.publishSnapshot(ctx, gameID)

	s.logger.InfoContext(ctx, "player joined",
		slog.Uint64("game_id", gameID),
		slog.String("player", player),
		slog.String("tx", txHash),
	)
	return result, nil
}

// ResolveGame asks the contract to resolve a game whose betting horizon has
// passed. The contract decides the final price and winner; this only submits
// the nudge transaction from the operator account.
func (s *GameService) ResolveGame(ctx context.Context, gameID uint64) (string, error) {
	txHash, err := s.ledger.ResolveGame(ctx, gameID)
	if err != nil {
		return "", err
	}

	if cacheErr := s.cache.Invalidate(ctx, gameID); cacheErr != nil {
		s.logger.WarnContext(ctx, "cache invalidate failed",
			slog.Uint64("game_id", gameID),
			slog.String("error", cacheErr.Error()),
		)
	}
	s.auditLog(ctx, "game.resolve", map[string]any{
		"game_id": gameID,
		"tx":      txHash,
	})
	return txHash, nil
}

// publishSnapshot pushes a fresh game snapshot onto the games channel.
// Failures are logged, never fatal.
func (s *GameService) publishSnapshot(ctx context.Context, gameID uint64) {
	game, err := s.Refresh(ctx, gameID)
	if err != nil {
		s.logger.WarnContext(ctx, "snapshot refresh failed",
			slog.Uint64("game_id", gameID),
			slog.String("error", err.Error()),
		)
		return
	}
	payload, err := json.Marshal(game)
	if err != nil {
		s.logger.WarnContext(ctx, "snapshot marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, ChannelGames, payload); err != nil {
		s.logger.WarnContext(ctx, "snapshot publish failed", slog.String("error", err.Error()))
	}
}

func (s *GameService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// loadGame reads the game tuple plus every player's bet.
func (s *GameService) loadGame(ctx context.Context, gameID uint64) (domain.Game, error) {
	game, err := s.ledger.GetGameState(ctx, gameID)
	if err != nil {
		return domain.Game{}, err
	}

	players, err := s.ledger.GetPlayers(ctx, gameID)
	if err != nil {
		return domain.Game{}, err
	}

	bets := make([]domain.Bet, 0, len(players))
	for _, p := range players {
		bet, err := s.ledger.GetPlayerGuess(ctx, gameID, p)
		if err != nil {
			return domain.Game{}, err
		}
		bets = append(bets, bet)
	}
	game.Bets = bets
	return game, nil
}
