// Package settlement decides who won a resolved game and disburses the pool,
// either by replaying the claim as timed simulation steps or by redeeming the
// stored delegations on chain.
package settlement

import (
	"fmt"
	"math/big"

	"github.com/jaylabs/cryptocasino/internal/domain"
)

// Compute derives the winner/loser split for a resolved game. The winner is
// the joined bet whose guess is closest to the final price; on a tie the
// earlier joiner wins. When the contract has already recorded a winner that
// address is honored instead of recomputing.
func Compute(game domain.Game) (domain.SettlementRecord, error) {
	if !game.Resolved {
		return domain.SettlementRecord{}, fmt.Errorf("settlement: game %d not resolved: %w", game.ID, domain.ErrSettlementNotReady)
	}

	joined := make([]domain.Bet, 0, len(game.Bets))
	for _, b := range game.Bets {
		if b.Joined {
			joined = append(joined, b)
		}
	}
	if len(joined) == 0 {
		return domain.SettlementRecord{}, fmt.Errorf("settlement: game %d has no joined bets", game.ID)
	}

	var winner domain.Bet
	var found bool
	if game.HasWinner() {
		for _, b := range joined {
			if domain.EqualAddress(b.Player, game.Winner) {
				winner, found = b, true
				break
			}
		}
		if !found {
			return domain.SettlementRecord{}, fmt.Errorf("settlement: game %d winner %s has no bet", game.ID, game.Winner)
		}
	} else {
		if game.FinalPrice == nil {
			return domain.SettlementRecord{}, fmt.Errorf("settlement: game %d resolved without final price", game.ID)
		}
		winner = closestBet(joined, game.FinalPrice)
	}

	losers := make([]domain.Bet, 0, len(joined)-1)
	for _, b := range joined {
		if !domain.EqualAddress(b.Player, winner.Player) {
			losers = append(losers, b)
		}
	}

	return domain.SettlementRecord{
		Winner:    winner,
		Losers:    losers,
		TotalPool: poolFor(game, len(joined)),
	}, nil
}

// closestBet picks the bet minimizing |guess - final|, preserving join order
// on ties.
func closestBet(bets []domain.Bet, final *big.Int) domain.Bet {
	best := bets[0]
	bestDist := distance(best.GuessPrice, final)
	for _, b := range bets[1:] {
		if d := distance(b.GuessPrice, final); d.Cmp(bestDist) < 0 {
			best, bestDist = b, d
		}
	}
	return best
}

func distance(guess, final *big.Int) *big.Int {
	if guess == nil {
		// An absent guess can never win.
		return new(big.Int).Lsh(big.NewInt(1), 256)
	}
	return new(big.Int).Abs(new(big.Int).Sub(guess, final))
}

// poolFor prefers the contract-tracked pool and reconstructs it from the
// fixed stake when the contract reports zero.
func poolFor(game domain.Game, players int) *big.Int {
	if game.TotalPool != nil && game.TotalPool.Sign() > 0 {
		return new(big.Int).Set(game.TotalPool)
	}
	if game.FixedBetAmount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(game.FixedBetAmount, big.NewInt(int64(players)))
}
