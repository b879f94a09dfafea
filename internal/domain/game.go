package domain

import (
	"math/big"
	"time"
)

// Scaling constants used by the game contract. Stake and pool amounts are
// fixed-point integers scaled by 1e18 (token decimals); guess and settlement
// prices are scaled by 1e8.
const (
	StakeDecimals = 18
	PriceDecimals = 8
)

// ZeroAddress is the sentinel the contract returns for an unset winner.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// Bet is one player's guess in a game. Bets are immutable once recorded on
// the ledger; there is at most one per (game, player).
type Bet struct {
	Player     string   `json:"player"`
	GuessPrice *big.Int `json:"guessPrice"` // 1e8 scale
	Joined     bool     `json:"joined"`
	Claimed    bool     `json:"claimed"`
}

// Game mirrors the on-chain game state tuple. The ledger owns the lifecycle;
// this backend only ever reads it, except for the join operation.
type Game struct {
	ID             uint64   `json:"id"`
	Symbol         string   `json:"symbol"`
	StartAt        int64    `json:"startAt"`    // unix seconds
	JoinEndsAt     int64    `json:"joinEndsAt"` // unix seconds
	EndsAt         int64    `json:"endsAt"`     // unix seconds
	Active         bool     `json:"active"`
	Resolved       bool     `json:"resolved"`
	FixedBetAmount *big.Int `json:"fixedBetAmount"` // 1e18 scale
	TotalPool      *big.Int `json:"totalPool"`      // 1e18 scale
	Winner         string   `json:"winner"`         // zero address until resolution
	FinalPrice     *big.Int `json:"finalPrice"`     // 1e8 scale
	Bets           []Bet    `json:"bets,omitempty"`
}

// Joinable reports whether a join submitted at now would be accepted. The
// ledger remains the authority and may still reject the transaction.
func (g Game) Joinable(now time.Time) bool {
	if !g.Active || g.Resolved {
		return false
	}
	return now.Unix() < g.JoinEndsAt
}

// HasWinner reports whether the contract has recorded a non-sentinel winner.
func (g Game) HasWinner() bool {
	return g.Winner != "" && g.Winner != ZeroAddress
}

// BetFor returns the bet placed by player, if any.
func (g Game) BetFor(player string) (Bet, bool) {
	for _, b := range g.Bets {
		if equalAddress(b.Player, player) {
			return b, true
		}
	}
	return Bet{}, false
}

// Settlement is the persisted outcome of a claim. Its existence is what makes
// the claim idempotent across process restarts: a second settle of the same
// game returns this row instead of disbursing again.
type Settlement struct {
	GameID    uint64    `json:"gameId"`
	Winner    string    `json:"winner"`
	TotalPool *big.Int  `json:"totalPool"`
	TxHash    string    `json:"txHash"`
	Simulated bool      `json:"simulated"`
	SettledAt time.Time `json:"settledAt"`
}

// SettlementRecord is the derived winner/loser split for a resolved game.
// It is computed, never persisted.
type SettlementRecord struct {
	Winner    Bet
	Losers    []Bet
	TotalPool *big.Int
}
