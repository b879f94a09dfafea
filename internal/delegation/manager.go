// Package delegation builds, signs, persists, and redeems the scoped
// authorizations that let the operator move a losing player's stake to the
// winner at settlement time.
package delegation

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/jaylabs/cryptocasino/internal/crypto"
	"github.com/jaylabs/cryptocasino/internal/domain"
)

// ManagerConfig carries the addresses the manager bakes into every
// authorization it produces.
type ManagerConfig struct {
	// TokenContract is the ERC-20 the delegation scope is restricted to.
	TokenContract string
	// MethodEnforcer is the caveat enforcer contract that restricts redeemed
	// calls to the allowed method selectors.
	MethodEnforcer string
	// SelfSign lets the manager sign a delegation with the operator key when a
	// join carries none. A self-signed delegation grants the operator authority
	// the player never approved and would be rejected by the delegation manager
	// contract, so this is only acceptable when settlement never redeems on a
	// real ledger.
	SelfSign bool
}

// Manager owns the player authorization lifecycle: smart-account provisioning,
// delegation construction and signing, persistence, and batch redemption.
type Manager struct {
	cfg      ManagerConfig
	signer   *crypto.DelegationSigner
	accounts domain.SmartAccountProvisioner
	redeemer domain.DelegationRedeemer
	store    domain.DelegationStore
	logger   *slog.Logger
}

// NewManager wires a Manager from its collaborators.
func NewManager(
	cfg ManagerConfig,
	signer *crypto.DelegationSigner,
	accounts domain.SmartAccountProvisioner,
	redeemer domain.DelegationRedeemer,
	store domain.DelegationStore,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		cfg:      cfg,
		signer:   signer,
		accounts: accounts,
		redeemer: redeemer,
		store:    store,
		logger:   logger.With(slog.String("component", "delegation")),
	}
}

// Operator returns the delegate address every authorization is granted to.
func (m *Manager) Operator() string {
	return m.signer.Address().Hex()
}

// Initialize provisions smart accounts for a known roster up front so later
// joins skip the deployment transaction. It is idempotent: already-deployed
// accounts are detected and skipped.
func (m *Manager) Initialize(ctx context.Context, gameID uint64, players []string) error {
	for _, player := range players {
		account, deployed, err := m.accounts.EnsureDeployed(ctx, player)
		if err != nil {
			return fmt.Errorf("delegation: provision account for %s: %w", player, err)
		}
		if deployed {
			m.logger.InfoContext(ctx, "smart account created",
				slog.Uint64("game_id", gameID),
				slog.String("player", player),
				slog.String("account", account),
			)
		}
	}
	return nil
}

// Authorize runs the join-time authorization flow for one player: rejects a
// second authorization for the same game, makes sure the player's smart
// account exists on chain, then validates and persists the player-signed
// delegation. signed may be nil only when SelfSign is enabled, in which case
// the manager builds and operator-signs a delegation scoped to the token's
// transfer methods.
func (m *Manager) Authorize(ctx context.Context, gameID uint64, player string, signed *domain.Delegation) (domain.AuthorizationResult, error) {
	existing, err := m.store.ListByGame(ctx, gameID)
	if err != nil {
		return domain.AuthorizationResult{}, fmt.Errorf("delegation: list game %d: %w", gameID, err)
	}
	for _, rec := range existing {
		if domain.EqualAddress(rec.Player, player) {
			return domain.AuthorizationResult{}, fmt.Errorf("delegation: game %d player %s: %w", gameID, player, domain.ErrDuplicatePlayer)
		}
	}

	account, deployed, err := m.accounts.EnsureDeployed(ctx, player)
	if err != nil {
		return domain.AuthorizationResult{}, fmt.Errorf("delegation: provision account for %s: %w", player, err)
	}
	if deployed {
		m.logger.InfoContext(ctx, "smart account created",
			slog.String("player", player),
			slog.String("account", account),
		)
	}

	var deleg domain.Delegation
	if signed != nil {
		if err := m.validatePlayerDelegation(*signed, account, player); err != nil {
			return domain.AuthorizationResult{}, fmt.Errorf("delegation: game %d player %s: %w", gameID, player, err)
		}
		deleg = *signed
	} else {
		if !m.cfg.SelfSign {
			return domain.AuthorizationResult{}, fmt.Errorf(
				"delegation: game %d player %s: missing player-signed delegation: %w",
				gameID, player, domain.ErrInvalidDelegation,
			)
		}
		deleg, err = m.buildDelegation(account)
		if err != nil {
			return domain.AuthorizationResult{}, err
		}
		sig, err := m.signer.SignDelegation(deleg)
		if err != nil {
			return domain.AuthorizationResult{}, fmt.Errorf("delegation: %w: %v", domain.ErrSigningFailed, err)
		}
		deleg.Signature = sig
	}

	payload, err := deleg.Encode()
	if err != nil {
		return domain.AuthorizationResult{}, err
	}
	if _, err := m.store.Create(ctx, domain.DelegationRecord{
		GameID:  gameID,
		Player:  player,
		Payload: payload,
	}); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.AuthorizationResult{}, fmt.Errorf("delegation: game %d player %s: %w", gameID, player, domain.ErrDuplicatePlayer)
		}
		return domain.AuthorizationResult{}, fmt.Errorf("delegation: persist game %d: %w", gameID, err)
	}

	m.logger.InfoContext(ctx, "authorization stored",
		slog.Uint64("game_id", gameID),
		slog.String("player", player),
		slog.String("account", account),
	)

	return domain.AuthorizationResult{
		Player:              player,
		SmartAccountAddress: account,
		Delegation:          deleg,
	}, nil
}

// validatePlayerDelegation checks a client-supplied delegation before it is
// persisted: it must name the player's smart account as delegator, grant the
// operator, and carry a signature that recovers to the player's EOA.
func (m *Manager) validatePlayerDelegation(d domain.Delegation, account, player string) error {
	if !d.Signed() {
		return fmt.Errorf("%w: not signed", domain.ErrInvalidDelegation)
	}
	if !domain.EqualAddress(d.Delegator, account) {
		return fmt.Errorf("%w: delegator %s is not the player's smart account %s",
			domain.ErrInvalidDelegation, d.Delegator, account)
	}
	if !domain.EqualAddress(d.Delegate, m.Operator()) {
		return fmt.Errorf("%w: delegate %s is not the operator", domain.ErrInvalidDelegation, d.Delegate)
	}
	signerAddr, err := m.signer.RecoverDelegationSigner(d)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidDelegation, err)
	}
	if !domain.EqualAddress(signerAddr.Hex(), player) {
		return fmt.Errorf("%w: signature recovers to %s, not player %s",
			domain.ErrInvalidDelegation, signerAddr.Hex(), player)
	}
	return nil
}

// Revoke removes a player's stored authorization for a game. It is used to
// roll back when the join transaction fails after the authorization was
// persisted, keeping records and on-chain players in step.
func (m *Manager) Revoke(ctx context.Context, gameID uint64, player string) error {
	records, err := m.store.ListByGame(ctx, gameID)
	if err != nil {
		return fmt.Errorf("delegation: list game %d: %w", gameID, err)
	}
	for _, rec := range records {
		if domain.EqualAddress(rec.Player, player) {
			return m.store.DeleteByID(ctx, rec.ID)
		}
	}
	return domain.ErrNotFound
}

// AuthorizationCount returns how many players have stored an authorization
// for a game.
func (m *Manager) AuthorizationCount(ctx context.Context, gameID uint64) (int64, error) {
	return m.store.CountByGame(ctx, gameID)
}

// LoserDelegations decodes every stored authorization for a game except the
// winner's own.
func (m *Manager) LoserDelegations(ctx context.Context, gameID uint64, winner string) ([]domain.Delegation, error) {
	records, err := m.store.ListByGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("delegation: list game %d: %w", gameID, err)
	}

	losers := make([]domain.Delegation, 0, len(records))
	for _, rec := range records {
		if domain.EqualAddress(rec.Player, winner) {
			continue
		}
		d, err := rec.Delegation()
		if err != nil {
			return nil, fmt.Errorf("delegation: record %s: %w", rec.ID, err)
		}
		if !d.Signed() {
			return nil, fmt.Errorf("delegation: record %s: unsigned delegation", rec.ID)
		}
		losers = append(losers, d)
	}
	return losers, nil
}

// RedeemToWinner batch-redeems the losers' delegations, transferring
// amountEach tokens from each losing smart account to the winner, in a single
// operator transaction.
func (m *Manager) RedeemToWinner(ctx context.Context, gameID uint64, winner string, amountEach *big.Int) (string, error) {
	losers, err := m.LoserDelegations(ctx, gameID, winner)
	if err != nil {
		return "", err
	}
	if len(losers) == 0 {
		return "", nil
	}

	txHash, err := m.redeemer.RedeemDelegations(ctx, losers, winner, amountEach)
	if err != nil {
		return "", fmt.Errorf("delegation: %w: redeem game %d: %v", domain.ErrSettlementFailed, gameID, err)
	}

	m.logger.InfoContext(ctx, "delegations redeemed",
		slog.Uint64("game_id", gameID),
		slog.Int("losers", len(losers)),
		slog.String("winner", winner),
		slog.String("tx", txHash),
	)
	return txHash, nil
}

// buildDelegation constructs the unsigned delegation from the player's smart
// account to the operator, caveated to the token's transfer methods.
func (m *Manager) buildDelegation(account string) (domain.Delegation, error) {
	salt, err := randomSalt()
	if err != nil {
		return domain.Delegation{}, fmt.Errorf("delegation: salt: %w", err)
	}
	return domain.Delegation{
		Delegate:  m.Operator(),
		Delegator: account,
		Authority: domain.RootAuthority,
		Caveats: []domain.Caveat{
			{
				Enforcer: m.cfg.MethodEnforcer,
				Terms:    scopeTerms(),
			},
		},
		Salt: salt,
	}, nil
}

// scopeTerms packs the allowed method selectors into the enforcer's terms
// format: the 4-byte selectors concatenated.
func scopeTerms() string {
	terms := "0x"
	for _, sig := range domain.DelegationScopeSelectors {
		selector := ethcrypto.Keccak256([]byte(sig))[:4]
		terms += fmt.Sprintf("%x", selector)
	}
	return terms
}

func randomSalt() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("0x%x", new(big.Int).SetBytes(buf[:])), nil
}
