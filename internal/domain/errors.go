package domain

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrAlreadyExists           = errors.New("already exists")
	ErrLedgerUnavailable       = errors.New("ledger unavailable")
	ErrMalformedLedgerResponse = errors.New("malformed ledger response")
	ErrDuplicatePlayer         = errors.New("player already joined")
	ErrGameNotJoinable         = errors.New("game not joinable")
	ErrSettlementFailed        = errors.New("settlement failed")
	ErrSettlementNotReady      = errors.New("settlement not ready")
	ErrSigningFailed           = errors.New("signing failed")
	ErrInvalidDelegation       = errors.New("invalid delegation")
	ErrRateLimited             = errors.New("rate limited")
	ErrLockHeld                = errors.New("lock already held")
)
