// Package ledger implements the game-contract client over an
// Ethereum-compatible JSON-RPC endpoint using go-ethereum.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/jaylabs/cryptocasino/internal/crypto"
	"github.com/jaylabs/cryptocasino/internal/domain"
)

// ClientConfig holds the chain endpoint and contract addresses.
type ClientConfig struct {
	RPCURL            string
	ChainID           int64
	GameContract      string
	TokenContract     string
	DelegationManager string
	AccountFactory    string
}

// Client talks to the game contract, the token contract, the smart-account
// factory, and the delegation manager from the operator account.
type Client struct {
	eth      *ethclient.Client
	operator *crypto.OperatorKey
	chainID  *big.Int

	game    common.Address
	token   common.Address
	manager common.Address
	factory common.Address

	logger *slog.Logger
}

// New dials the RPC endpoint and returns a connected Client.
func New(ctx context.Context, cfg ClientConfig, operator *crypto.OperatorKey, logger *slog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("ledger: dial %s: %w", cfg.RPCURL, err)
	}

	return &Client{
		eth:      eth,
		operator: operator,
		chainID:  big.NewInt(cfg.ChainID),
		game:     common.HexToAddress(cfg.GameContract),
		token:    common.HexToAddress(cfg.TokenContract),
		manager:  common.HexToAddress(cfg.DelegationManager),
		factory:  common.HexToAddress(cfg.AccountFactory),
		logger:   logger.With(slog.String("component", "ledger")),
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Operator returns the relay/payer address.
func (c *Client) Operator() common.Address {
	return c.operator.Address()
}

// call executes a read-only contract call and returns the raw return data.
func (c *Client) call(ctx context.Context, to common.Address, input []byte) ([]byte, error) {
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w: call %s: %v", domain.ErrLedgerUnavailable, to.Hex(), err)
	}
	return out, nil
}

// transact signs and submits a transaction from the operator account and
// waits for it to be mined. It returns the transaction hash.
func (c *Client) transact(ctx context.Context, to common.Address, input []byte, value *big.Int) (string, error) {
	from := c.operator.Address()

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("ledger: %w: nonce: %v", domain.ErrLedgerUnavailable, err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("ledger: %w: gas price: %v", domain.ErrLedgerUnavailable, err)
	}

	msg := ethereum.CallMsg{From: from, To: &to, Value: value, Data: input}
	gasLimit, err := c.eth.EstimateGas(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("ledger: %w: estimate gas: %v", domain.ErrLedgerUnavailable, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     input,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.operator.Private())
	if err != nil {
		return "", fmt.Errorf("ledger: sign tx: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("ledger: %w: send tx: %v", domain.ErrLedgerUnavailable, err)
	}

	c.logger.InfoContext(ctx, "transaction submitted",
		slog.String("to", to.Hex()),
		slog.String("hash", signed.Hash().Hex()),
	)

	receipt, err := bind.WaitMined(ctx, c.eth, signed)
	if err != nil {
		return "", fmt.Errorf("ledger: %w: wait mined %s: %v", domain.ErrLedgerUnavailable, signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("ledger: transaction %s reverted", signed.Hash().Hex())
	}

	return signed.Hash().Hex(), nil
}
