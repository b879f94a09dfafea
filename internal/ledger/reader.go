package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jaylabs/cryptocasino/internal/domain"
)

// NextGameID returns the id the next created game will receive.
func (c *Client) NextGameID(ctx context.Context) (uint64, error) {
	input, err := gameABI.Pack("nextGameId")
	if err != nil {
		return 0, fmt.Errorf("ledger: pack nextGameId: %w", err)
	}
	out, err := c.call(ctx, c.game, input)
	if err != nil {
		return 0, err
	}
	values, err := gameABI.Unpack("nextGameId", out)
	if err != nil {
		return 0, fmt.Errorf("ledger: %w: nextGameId: %v", domain.ErrMalformedLedgerResponse, err)
	}
	id, err := asBigInt(values, 0)
	if err != nil {
		return 0, fmt.Errorf("ledger: %w: nextGameId: %v", domain.ErrMalformedLedgerResponse, err)
	}
	return id.Uint64(), nil
}

// GetGameState reads the game tuple (without bets) for the given id.
func (c *Client) GetGameState(ctx context.Context, gameID uint64) (domain.Game, error) {
	input, err := gameABI.Pack("getGameState", new(big.Int).SetUint64(gameID))
	if err != nil {
		return domain.Game{}, fmt.Errorf("ledger: pack getGameState: %w", err)
	}
	out, err := c.call(ctx, c.game, input)
	if err != nil {
		return domain.Game{}, err
	}
	values, err := gameABI.Unpack("getGameState", out)
	if err != nil {
		return domain.Game{}, fmt.Errorf("ledger: %w: getGameState(%d): %v", domain.ErrMalformedLedgerResponse, gameID, err)
	}

	game, err := decodeGameState(gameID, values)
	if err != nil {
		return domain.Game{}, fmt.Errorf("ledger: %w: getGameState(%d): %v", domain.ErrMalformedLedgerResponse, gameID, err)
	}
	return game, nil
}

// GetPlayers returns the addresses that joined a game, in join order.
func (c *Client) GetPlayers(ctx context.Context, gameID uint64) ([]string, error) {
	input, err := gameABI.Pack("getPlayers", new(big.Int).SetUint64(gameID))
	if err != nil {
		return nil, fmt.Errorf("ledger: pack getPlayers: %w", err)
	}
	out, err := c.call(ctx, c.game, input)
	if err != nil {
		return nil, err
	}
	values, err := gameABI.Unpack("getPlayers", out)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w: getPlayers(%d): %v", domain.ErrMalformedLedgerResponse, gameID, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("ledger: %w: getPlayers(%d): expected 1 value, got %d", domain.ErrMalformedLedgerResponse, gameID, len(values))
	}
	addrs, ok := values[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("ledger: %w: getPlayers(%d): unexpected element type %T", domain.ErrMalformedLedgerResponse, gameID, values[0])
	}

	players := make([]string, len(addrs))
	for i, a := range addrs {
		players[i] = a.Hex()
	}
	return players, nil
}

// GetPlayerGuess reads one player's bet for a game.
func (c *Client) GetPlayerGuess(ctx context.Context, gameID uint64, player string) (domain.Bet, error) {
	input, err := gameABI.Pack("getPlayerGuess", new(big.Int).SetUint64(gameID), common.HexToAddress(player))
	if err != nil {
		return domain.Bet{}, fmt.Errorf("ledger: pack getPlayerGuess: %w", err)
	}
	out, err := c.call(ctx, c.game, input)
	if err != nil {
		return domain.Bet{}, err
	}
	values, err := gameABI.Unpack("getPlayerGuess", out)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("ledger: %w: getPlayerGuess(%d, %s): %v", domain.ErrMalformedLedgerResponse, gameID, player, err)
	}

	bet, err := decodePlayerGuess(player, values)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("ledger: %w: getPlayerGuess(%d, %s): %v", domain.ErrMalformedLedgerResponse, gameID, player, err)
	}
	return bet, nil
}

// ---------------------------------------------------------------------------
// Tuple decoding. Ledger reads come back as positional values; every decode
// validates arity and element types before destructuring so a contract or ABI
// mismatch surfaces as ErrMalformedLedgerResponse instead of a panic.
// ---------------------------------------------------------------------------

const gameStateArity = 10

func decodeGameState(gameID uint64, values []any) (domain.Game, error) {
	if len(values) != gameStateArity {
		return domain.Game{}, fmt.Errorf("expected %d values, got %d", gameStateArity, len(values))
	}

	symbol, ok := values[0].(string)
	if !ok {
		return domain.Game{}, fmt.Errorf("symbol: unexpected type %T", values[0])
	}
	startAt, err := asBigInt(values, 1)
	if err != nil {
		return domain.Game{}, fmt.Errorf("startAt: %w", err)
	}
	joinEndsAt, err := asBigInt(values, 2)
	if err != nil {
		return domain.Game{}, fmt.Errorf("joinEndsAt: %w", err)
	}
	endsAt, err := asBigInt(values, 3)
	if err != nil {
		return domain.Game{}, fmt.Errorf("endsAt: %w", err)
	}
	active, ok := values[4].(bool)
	if !ok {
		return domain.Game{}, fmt.Errorf("active: unexpected type %T", values[4])
	}
	resolved, ok := values[5].(bool)
	if !ok {
		return domain.Game{}, fmt.Errorf("resolved: unexpected type %T", values[5])
	}
	fixedBetAmount, err := asBigInt(values, 6)
	if err != nil {
		return domain.Game{}, fmt.Errorf("fixedBetAmount: %w", err)
	}
	totalPool, err := asBigInt(values, 7)
	if err != nil {
		return domain.Game{}, fmt.Errorf("totalPool: %w", err)
	}
	winner, ok := values[8].(common.Address)
	if !ok {
		return domain.Game{}, fmt.Errorf("winner: unexpected type %T", values[8])
	}
	finalPrice, err := asBigInt(values, 9)
	if err != nil {
		return domain.Game{}, fmt.Errorf("finalPrice: %w", err)
	}

	return domain.Game{
		ID:             gameID,
		Symbol:         symbol,
		StartAt:        startAt.Int64(),
		JoinEndsAt:     joinEndsAt.Int64(),
		EndsAt:         endsAt.Int64(),
		Active:         active,
		Resolved:       resolved,
		FixedBetAmount: fixedBetAmount,
		TotalPool:      totalPool,
		Winner:         winner.Hex(),
		FinalPrice:     finalPrice,
	}, nil
}

const playerGuessArity = 3

func decodePlayerGuess(player string, values []any) (domain.Bet, error) {
	if len(values) != playerGuessArity {
		return domain.Bet{}, fmt.Errorf("expected %d values, got %d", playerGuessArity, len(values))
	}

	guessPrice, err := asBigInt(values, 0)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("guessPrice: %w", err)
	}
	joined, ok := values[1].(bool)
	if !ok {
		return domain.Bet{}, fmt.Errorf("joined: unexpected type %T", values[1])
	}
	claimed, ok := values[2].(bool)
	if !ok {
		return domain.Bet{}, fmt.Errorf("claimed: unexpected type %T", values[2])
	}

	return domain.Bet{
		Player:     player,
		GuessPrice: guessPrice,
		Joined:     joined,
		Claimed:    claimed,
	}, nil
}

func asBigInt(values []any, i int) (*big.Int, error) {
	if i >= len(values) {
		return nil, fmt.Errorf("index %d out of range", i)
	}
	n, ok := values[i].(*big.Int)
	if !ok || n == nil {
		return nil, fmt.Errorf("unexpected type %T", values[i])
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.GameLedger = (*Client)(nil)
