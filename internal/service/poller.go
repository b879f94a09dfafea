package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaylabs/cryptocasino/internal/domain"
	"github.com/jaylabs/cryptocasino/internal/notify"
)

// Poller periodically refreshes the latest game from the ledger, publishes
// snapshots on the games channel, and fires a notification the first time a
// game shows up resolved.
type Poller struct {
	games    *GameService
	bus      domain.SignalBus
	notifier *notify.Notifier
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	seenResolved     map[uint64]bool
	resolveAttempted map[uint64]bool
}

// NewPoller creates a Poller ticking at the given interval.
func NewPoller(games *GameService, bus domain.SignalBus, notifier *notify.Notifier, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		games:            games,
		bus:              bus,
		notifier:         notifier,
		interval:         interval,
		now:              time.Now,
		logger:           logger.With(slog.String("component", "poller")),
		seenResolved:     make(map[uint64]bool),
		resolveAttempted: make(map[uint64]bool),
	}
}

// Run blocks, polling until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "poller started", slog.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	game, err := p.games.LatestGame(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return
		}
		p.logger.WarnContext(ctx, "poll failed", slog.String("error", err.Error()))
		return
	}

	// Force a fresh read so the published snapshot is never a stale cache hit.
	game, err = p.games.Refresh(ctx, game.ID)
	if err != nil {
		p.logger.WarnContext(ctx, "refresh failed",
			slog.Uint64("game_id", game.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	payload, err := json.Marshal(game)
	if err != nil {
		p.logger.WarnContext(ctx, "snapshot marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := p.bus.Publish(ctx, ChannelGames, payload); err != nil {
		p.logger.WarnContext(ctx, "snapshot publish failed", slog.String("error", err.Error()))
	}

	// Nudge the contract once when a game is past its end time but still
	// unresolved. The contract owns the outcome; a failed nudge is retried on
	// a later process, not hammered every tick.
	if !game.Resolved && game.Active && p.now().Unix() >= game.EndsAt && !p.resolveAttempted[game.ID] {
		p.resolveAttempted[game.ID] = true
		if tx, err := p.games.ResolveGame(ctx, game.ID); err != nil {
			p.logger.WarnContext(ctx, "resolve nudge failed",
				slog.Uint64("game_id", game.ID),
				slog.String("error", err.Error()),
			)
		} else {
			p.logger.InfoContext(ctx, "resolve submitted",
				slog.Uint64("game_id", game.ID),
				slog.String("tx", tx),
			)
		}
	}

	if game.Resolved && !p.seenResolved[game.ID] {
		p.seenResolved[game.ID] = true
		if err := p.notifier.Notify(ctx, notify.EventGameResolved,
			"Game resolved",
			fmt.Sprintf("game %d (%s): final price %s, winner %s", game.ID, game.Symbol, game.FinalPrice, game.Winner),
		); err != nil {
			p.logger.WarnContext(ctx, "resolve notification failed", slog.String("error", err.Error()))
		}
	}
}
