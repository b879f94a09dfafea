package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/jaylabs/cryptocasino/internal/domain"
)

// ChannelSettlement is the signal-bus channel settlement progress events are
// published on.
const ChannelSettlement = "settlement"

// Authorizer is the slice of the delegation manager the orchestrators need.
type Authorizer interface {
	AuthorizationCount(ctx context.Context, gameID uint64) (int64, error)
	RedeemToWinner(ctx context.Context, gameID uint64, winner string, amountEach *big.Int) (string, error)
}

// Orchestrator runs the claim for one resolved game. Settle is idempotent: a
// game that already has a persisted settlement returns it unchanged.
type Orchestrator interface {
	Settle(ctx context.Context, game domain.Game) (domain.Settlement, error)
}

// Event is one settlement progress update, published on the signal bus and
// fanned out to WebSocket subscribers.
type Event struct {
	Type      string `json:"type"` // started | collected | distributed | completed
	Ref       string `json:"ref"`  // settlement run reference
	GameID    uint64 `json:"gameId"`
	Player    string `json:"player,omitempty"`
	Amount    string `json:"amount,omitempty"` // 1e18 scale, decimal string
	TxHash    string `json:"txHash,omitempty"`
	Simulated bool   `json:"simulated"`
}

// deps are the collaborators shared by both orchestrator implementations.
type deps struct {
	store  domain.SettlementStore
	auth   Authorizer
	bus    domain.SignalBus
	logger *slog.Logger
}

// preflight enforces the shared settlement preconditions. It returns the
// existing settlement when the game was already settled, otherwise the
// computed winner/loser split.
//
// Every joined player must have a stored authorization before any value
// moves: a partial redemption would strand the remaining stakes, so a count
// mismatch aborts with ErrSettlementNotReady rather than settling partially.
func (d *deps) preflight(ctx context.Context, game domain.Game) (*domain.Settlement, domain.SettlementRecord, error) {
	existing, err := d.store.GetByGame(ctx, game.ID)
	switch {
	case err == nil:
		return &existing, domain.SettlementRecord{}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, domain.SettlementRecord{}, fmt.Errorf("settlement: lookup game %d: %w", game.ID, err)
	}

	rec, err := Compute(game)
	if err != nil {
		return nil, domain.SettlementRecord{}, err
	}

	authCount, err := d.auth.AuthorizationCount(ctx, game.ID)
	if err != nil {
		return nil, domain.SettlementRecord{}, fmt.Errorf("settlement: count authorizations for game %d: %w", game.ID, err)
	}
	players := int64(len(rec.Losers) + 1)
	if authCount != players {
		return nil, domain.SettlementRecord{}, fmt.Errorf(
			"settlement: game %d has %d authorizations for %d players: %w",
			game.ID, authCount, players, domain.ErrSettlementNotReady,
		)
	}

	return nil, rec, nil
}

// publish emits a settlement event; bus failures are logged, never fatal.
func (d *deps) publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		d.logger.WarnContext(ctx, "marshal settlement event", slog.String("error", err.Error()))
		return
	}
	if err := d.bus.Publish(ctx, ChannelSettlement, payload); err != nil {
		d.logger.WarnContext(ctx, "publish settlement event",
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}
