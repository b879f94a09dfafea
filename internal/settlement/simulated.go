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

// Simulated replays the claim as timed steps without touching the chain: one
// collect step per loser, then a distribute step, each published on the
// signal bus so connected clients can animate the payout.
type Simulated struct {
	deps
	stepDelay time.Duration

	// injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSimulated builds the simulated orchestrator.
func NewSimulated(store domain.SettlementStore, auth Authorizer, bus domain.SignalBus, stepDelay time.Duration, logger *slog.Logger) *Simulated {
	return &Simulated{
		deps: deps{
			store:  store,
			auth:   auth,
			bus:    bus,
			logger: logger.With(slog.String("component", "settlement.simulated")),
		},
		stepDelay: stepDelay,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Settle walks the simulated claim for one resolved game.
func (s *Simulated) Settle(ctx context.Context, game domain.Game) (domain.Settlement, error) {
	existing, rec, err := s.preflight(ctx, game)
	if err != nil {
		return domain.Settlement{}, err
	}
	if existing != nil {
		s.logger.InfoContext(ctx, "game already settled", slog.Uint64("game_id", game.ID))
		return *existing, nil
	}

	ref := uuid.NewString()
	players := int64(len(rec.Losers) + 1)
	amountEach := new(big.Int).Div(rec.TotalPool, big.NewInt(players))

	s.publish(ctx, Event{Type: "started", Ref: ref, GameID: game.ID, Simulated: true})

	for _, loser := range rec.Losers {
		if err := s.sleep(ctx, s.stepDelay); err != nil {
			return domain.Settlement{}, fmt.Errorf("settlement: game %d interrupted: %w", game.ID, err)
		}
		s.publish(ctx, Event{
			Type:      "collected",
			Ref:       ref,
			GameID:    game.ID,
			Player:    loser.Player,
			Amount:    amountEach.String(),
			Simulated: true,
		})
	}

	if err := s.sleep(ctx, s.stepDelay); err != nil {
		return domain.Settlement{}, fmt.Errorf("settlement: game %d interrupted: %w", game.ID, err)
	}
	s.publish(ctx, Event{
		Type:      "distributed",
		Ref:       ref,
		GameID:    game.ID,
		Player:    rec.Winner.Player,
		Amount:    rec.TotalPool.String(),
		Simulated: true,
	})

	settlement := domain.Settlement{
		GameID:    game.ID,
		Winner:    rec.Winner.Player,
		TotalPool: rec.TotalPool,
		Simulated: true,
		SettledAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, settlement); err != nil {
		return domain.Settlement{}, fmt.Errorf("settlement: persist game %d: %w", game.ID, err)
	}

	s.publish(ctx, Event{Type: "completed", Ref: ref, GameID: game.ID, Player: rec.Winner.Player, Simulated: true})
	s.logger.InfoContext(ctx, "simulated settlement complete",
		slog.Uint64("game_id", game.ID),
		slog.String("winner", rec.Winner.Player),
		slog.String("total_pool", rec.TotalPool.String()),
		slog.Int("losers", len(rec.Losers)),
	)
	return settlement, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Orchestrator = (*Simulated)(nil)
