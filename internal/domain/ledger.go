package domain

import (
	"context"
	"math/big"
)

// GameLedger is the read/write surface of the game contract. Network or RPC
// failures surface as ErrLedgerUnavailable; responses whose shape does not
// match the expected tuple surface as ErrMalformedLedgerResponse.
type GameLedger interface {
	// NextGameID returns the id the next created game will receive; existing
	// games occupy [0, NextGameID).
	NextGameID(ctx context.Context) (uint64, error)

	// GetGameState reads the game tuple without its bets.
	GetGameState(ctx context.Context, gameID uint64) (Game, error)

	// GetPlayers returns the addresses that joined a game, in join order.
	GetPlayers(ctx context.Context, gameID uint64) ([]string, error)

	// GetPlayerGuess reads one player's bet for a game.
	GetPlayerGuess(ctx context.Context, gameID uint64, player string) (Bet, error)

	// JoinGame submits a join with the given guess (1e8 scale) from the
	// operator relay account and waits for inclusion.
	JoinGame(ctx context.Context, gameID uint64, guessPrice *big.Int) (string, error)

	// ResolveGame asks the contract to resolve a game past its end time.
	ResolveGame(ctx context.Context, gameID uint64) (string, error)
}

// SmartAccountProvisioner derives and deploys player smart-account wrappers.
type SmartAccountProvisioner interface {
	// SmartAccountAddress resolves the counterfactual address for a player's
	// smart account via the factory's view method.
	SmartAccountAddress(ctx context.Context, player string) (string, error)

	// EnsureDeployed deploys the player's smart account when no contract code
	// exists at its computed address yet. It is idempotent: a prior deployment
	// is detected and skipped. Returns the smart-account address and whether a
	// deployment transaction was sent.
	EnsureDeployed(ctx context.Context, player string) (addr string, deployed bool, err error)
}

// DelegationRedeemer submits a batch redemption that executes, for each signed
// delegation, an ERC-20 transfer to the winner, as a single operator
// transaction. The batch succeeds or fails atomically at the ledger level.
type DelegationRedeemer interface {
	RedeemDelegations(ctx context.Context, delegations []Delegation, winner string, amountEach *big.Int) (txHash string, err error)
}
