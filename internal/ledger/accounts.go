package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jaylabs/cryptocasino/internal/domain"
)

// Smart accounts are deployed deterministically from the factory with a fixed
// salt, so the same player always maps to the same wrapper address.
var accountSalt = big.NewInt(0)

// SmartAccountAddress resolves the counterfactual address for a player's
// smart account via the factory's view method.
func (c *Client) SmartAccountAddress(ctx context.Context, player string) (string, error) {
	input, err := factoryABI.Pack("getAddress", common.HexToAddress(player), accountSalt)
	if err != nil {
		return "", fmt.Errorf("ledger: pack getAddress: %w", err)
	}
	out, err := c.call(ctx, c.factory, input)
	if err != nil {
		return "", err
	}
	values, err := factoryABI.Unpack("getAddress", out)
	if err != nil {
		return "", fmt.Errorf("ledger: %w: getAddress(%s): %v", domain.ErrMalformedLedgerResponse, player, err)
	}
	if len(values) != 1 {
		return "", fmt.Errorf("ledger: %w: getAddress(%s): expected 1 value, got %d", domain.ErrMalformedLedgerResponse, player, len(values))
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("ledger: %w: getAddress(%s): unexpected type %T", domain.ErrMalformedLedgerResponse, player, values[0])
	}
	return addr.Hex(), nil
}

// EnsureDeployed deploys the player's smart account when no contract code
// exists at its computed address yet. A prior deployment is detected via
// eth_getCode and skipped, so repeated calls are idempotent.
func (c *Client) EnsureDeployed(ctx context.Context, player string) (string, bool, error) {
	addr, err := c.SmartAccountAddress(ctx, player)
	if err != nil {
		return "", false, err
	}

	code, err := c.eth.CodeAt(ctx, common.HexToAddress(addr), nil)
	if err != nil {
		return "", false, fmt.Errorf("ledger: %w: code at %s: %v", domain.ErrLedgerUnavailable, addr, err)
	}
	if len(code) > 0 {
		return addr, false, nil
	}

	input, err := factoryABI.Pack("createAccount", common.HexToAddress(player), accountSalt)
	if err != nil {
		return "", false, fmt.Errorf("ledger: pack createAccount: %w", err)
	}
	txHash, err := c.transact(ctx, c.factory, input, nil)
	if err != nil {
		return "", false, fmt.Errorf("ledger: createAccount(%s): %w", player, err)
	}

	c.logger.InfoContext(ctx, "smart account deployed",
		slog.String("player", player),
		slog.String("account", addr),
		slog.String("tx", txHash),
	)
	return addr, true, nil
}

var _ domain.SmartAccountProvisioner = (*Client)(nil)
