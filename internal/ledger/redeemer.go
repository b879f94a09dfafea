package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jaylabs/cryptocasino/internal/domain"
)

// Wire shapes for delegationManagerABI. Field names must line up with the
// tuple component names for abi packing.
type wireCaveat struct {
	Enforcer common.Address
	Terms    []byte
}

type wireDelegation struct {
	Delegate  common.Address
	Delegator common.Address
	Authority [32]byte
	Caveats   []wireCaveat
	Salt      *big.Int
	Signature []byte
}

type wireExecution struct {
	Target   common.Address
	Value    *big.Int
	CallData []byte
}

// singleCallMode selects the plain single-call execution mode for each
// redeemed delegation.
const singleCallMode = uint8(0)

// RedeemDelegations submits one operator transaction that redeems every
// signed delegation, each paired with an ERC-20 transfer of amountEach to the
// winner. The batch is atomic: either every transfer executes or none does.
func (c *Client) RedeemDelegations(ctx context.Context, delegations []domain.Delegation, winner string, amountEach *big.Int) (string, error) {
	if len(delegations) == 0 {
		return "", fmt.Errorf("ledger: redeem: no delegations")
	}

	transferData, err := erc20ABI.Pack("transfer", common.HexToAddress(winner), amountEach)
	if err != nil {
		return "", fmt.Errorf("ledger: pack transfer: %w", err)
	}

	wires := make([]wireDelegation, 0, len(delegations))
	modes := make([]uint8, 0, len(delegations))
	executions := make([]wireExecution, 0, len(delegations))
	for i, d := range delegations {
		w, err := toWireDelegation(d)
		if err != nil {
			return "", fmt.Errorf("ledger: redeem: delegation %d: %w", i, err)
		}
		wires = append(wires, w)
		modes = append(modes, singleCallMode)
		executions = append(executions, wireExecution{
			Target:   c.token,
			Value:    big.NewInt(0),
			CallData: transferData,
		})
	}

	input, err := delegationManagerABI.Pack("redeemDelegations", wires, modes, executions)
	if err != nil {
		return "", fmt.Errorf("ledger: pack redeemDelegations: %w", err)
	}

	txHash, err := c.transact(ctx, c.manager, input, nil)
	if err != nil {
		return "", fmt.Errorf("ledger: redeemDelegations: %w", err)
	}

	c.logger.InfoContext(ctx, "delegations redeemed",
		slog.Int("count", len(delegations)),
		slog.String("winner", winner),
		slog.String("amount_each", amountEach.String()),
		slog.String("tx", txHash),
	)
	return txHash, nil
}

func toWireDelegation(d domain.Delegation) (wireDelegation, error) {
	authority, err := hexToHash(d.Authority)
	if err != nil {
		return wireDelegation{}, fmt.Errorf("authority: %w", err)
	}
	salt, err := hexToBig(d.Salt)
	if err != nil {
		return wireDelegation{}, fmt.Errorf("salt: %w", err)
	}
	signature, err := hexToBytes(d.Signature)
	if err != nil {
		return wireDelegation{}, fmt.Errorf("signature: %w", err)
	}

	caveats := make([]wireCaveat, len(d.Caveats))
	for i, cv := range d.Caveats {
		terms, err := hexToBytes(cv.Terms)
		if err != nil {
			return wireDelegation{}, fmt.Errorf("caveat %d terms: %w", i, err)
		}
		caveats[i] = wireCaveat{
			Enforcer: common.HexToAddress(cv.Enforcer),
			Terms:    terms,
		}
	}

	return wireDelegation{
		Delegate:  common.HexToAddress(d.Delegate),
		Delegator: common.HexToAddress(d.Delegator),
		Authority: authority,
		Caveats:   caveats,
		Salt:      salt,
		Signature: signature,
	}, nil
}

func hexToBytes(s string) ([]byte, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if len(trimmed)%2 == 1 {
		trimmed = "0" + trimmed
	}
	b, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q", s)
	}
	return b, nil
}

func hexToHash(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hexToBytes(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func hexToBig(s string) (*big.Int, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("empty value")
	}
	n, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex number %q", s)
	}
	return n, nil
}

var _ domain.DelegationRedeemer = (*Client)(nil)
