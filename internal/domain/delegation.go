package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ERC-20 method signatures a delegation is scoped to. A delegation never
// authorizes anything outside these three selectors on the configured token.
var DelegationScopeSelectors = []string{
	"approve(address,uint256)",
	"transfer(address,uint256)",
	"transferFrom(address,address,uint256)",
}

// RootAuthority marks a delegation granted directly by the delegator rather
// than re-delegated from a parent delegation.
const RootAuthority = "0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"

// Caveat restricts what a delegation may be redeemed for. Terms is
// enforcer-specific ABI-encoded data, hex encoded.
type Caveat struct {
	Enforcer string `json:"enforcer"`
	Terms    string `json:"terms"`
}

// Delegation is a signed, scoped permission from a player's smart account
// (the delegator) to the operator (the delegate). Once signed it is immutable;
// it must be persisted before it can be redeemed.
type Delegation struct {
	Delegate  string   `json:"delegate"`
	Delegator string   `json:"delegator"`
	Authority string   `json:"authority"`
	Caveats   []Caveat `json:"caveats"`
	Salt      string   `json:"salt"`
	Signature string   `json:"signature,omitempty"`
}

// Signed reports whether the delegation carries a signature.
func (d Delegation) Signed() bool {
	return d.Signature != ""
}

// Encode serializes the delegation to the JSON payload stored in a record's
// text field.
func (d Delegation) Encode() (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("domain: encode delegation: %w", err)
	}
	return string(data), nil
}

// DecodeDelegation parses a delegation from a stored record payload.
func DecodeDelegation(payload string) (Delegation, error) {
	var d Delegation
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return Delegation{}, fmt.Errorf("domain: decode delegation: %w", err)
	}
	if d.Delegate == "" || d.Delegator == "" {
		return Delegation{}, fmt.Errorf("domain: decode delegation: missing delegate or delegator")
	}
	return d, nil
}

// DelegationRecord is one persisted authorization blob, keyed by game id.
type DelegationRecord struct {
	ID        string    `json:"id"`
	GameID    uint64    `json:"gameId"`
	Player    string    `json:"player"`
	Payload   string    `json:"text"` // serialized Delegation
	CreatedAt time.Time `json:"createdAt"`
}

// Delegation decodes the record payload.
func (r DelegationRecord) Delegation() (Delegation, error) {
	return DecodeDelegation(r.Payload)
}

// AuthorizationResult is returned by the delegation manager after a player
// joins: the player's EOA, the derived smart-account address, and the signed
// delegation that was persisted.
type AuthorizationResult struct {
	Player              string     `json:"player"`
	SmartAccountAddress string     `json:"smartAccountAddress"`
	Delegation          Delegation `json:"delegation"`
}

func equalAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

// EqualAddress compares two hex addresses case-insensitively.
func EqualAddress(a, b string) bool {
	return equalAddress(a, b)
}
