package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/jaylabs/cryptocasino/internal/domain"
)

// Ledger performs the real claim: it batch-redeems the losers' stored
// delegations so each losing smart account transfers its stake to the winner
// in one operator transaction.
type Ledger struct {
	deps
	now func() time.Time
}

// NewLedger builds the on-chain orchestrator.
func NewLedger(store domain.SettlementStore, auth Authorizer, bus domain.SignalBus, logger *slog.Logger) *Ledger {
	return &Ledger{
		deps: deps{
			store:  store,
			auth:   auth,
			bus:    bus,
			logger: logger.With(slog.String("component", "settlement.ledger")),
		},
		now: time.Now,
	}
}

// Settle redeems the losers' delegations for one resolved game. Nothing is
// marked settled until the redemption transaction is confirmed, so a failed
// claim can be retried.
func (l *Ledger) Settle(ctx context.Context, game domain.Game) (domain.Settlement, error) {
	existing, rec, err := l.preflight(ctx, game)
	if err != nil {
		return domain.Settlement{}, err
	}
	if existing != nil {
		l.logger.InfoContext(ctx, "game already settled", slog.Uint64("game_id", game.ID))
		return *existing, nil
	}

	ref := uuid.NewString()
	l.publish(ctx, Event{Type: "started", Ref: ref, GameID: game.ID})

	// Each loser owes exactly the fixed stake.
	players := int64(len(rec.Losers) + 1)
	amountEach := new(big.Int).Div(rec.TotalPool, big.NewInt(players))

	txHash := ""
	if len(rec.Losers) > 0 {
		txHash, err = l.auth.RedeemToWinner(ctx, game.ID, rec.Winner.Player, amountEach)
		if err != nil {
			return domain.Settlement{}, err
		}
	}

	settlement := domain.Settlement{
		GameID:    game.ID,
		Winner:    rec.Winner.Player,
		TotalPool: rec.TotalPool,
		TxHash:    txHash,
		SettledAt: l.now().UTC(),
	}
	if err := l.store.Create(ctx, settlement); err != nil {
		// The redemption landed on chain; surface the persistence failure
		// loudly instead of pretending the claim did not happen.
		return domain.Settlement{}, fmt.Errorf("settlement: persist game %d after redeem tx %s: %w", game.ID, txHash, err)
	}

	l.publish(ctx, Event{
		Type:   "completed",
		Ref:    ref,
		GameID: game.ID,
		Player: rec.Winner.Player,
		Amount: rec.TotalPool.String(),
		TxHash: txHash,
	})
	l.logger.InfoContext(ctx, "settlement complete",
		slog.Uint64("game_id", game.ID),
		slog.String("winner", rec.Winner.Player),
		slog.String("tx", txHash),
	)
	return settlement, nil
}

var _ Orchestrator = (*Ledger)(nil)
