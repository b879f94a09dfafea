package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
)

// JoinGame submits a join for the given game with the player's guess (1e8
// scale). The transaction is relayed from the operator account; the stake is
// pulled by the contract via the token allowance granted at delegation time.
func (c *Client) JoinGame(ctx context.Context, gameID uint64, guessPrice *big.Int) (string, error) {
	input, err := gameABI.Pack("joinGame", new(big.Int).SetUint64(gameID), guessPrice)
	if err != nil {
		return "", fmt.Errorf("ledger: pack joinGame: %w", err)
	}

	txHash, err := c.transact(ctx, c.game, input, nil)
	if err != nil {
		return "", fmt.Errorf("ledger: joinGame(%d): %w", gameID, err)
	}

	c.logger.InfoContext(ctx, "join submitted",
		slog.Uint64("game_id", gameID),
		slog.String("guess_price", guessPrice.String()),
		slog.String("tx", txHash),
	)
	return txHash, nil
}

// ResolveGame asks the contract to resolve a game past its end time.
func (c *Client) ResolveGame(ctx context.Context, gameID uint64) (string, error) {
	input, err := gameABI.Pack("resolveGame", new(big.Int).SetUint64(gameID))
	if err != nil {
		return "", fmt.Errorf("ledger: pack resolveGame: %w", err)
	}

	txHash, err := c.transact(ctx, c.game, input, nil)
	if err != nil {
		return "", fmt.Errorf("ledger: resolveGame(%d): %w", gameID, err)
	}

	c.logger.InfoContext(ctx, "resolve submitted",
		slog.Uint64("game_id", gameID),
		slog.String("tx", txHash),
	)
	return txHash, nil
}
