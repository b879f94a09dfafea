package crypto

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/jaylabs/cryptocasino/internal/domain"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// Delegation(address delegate,address delegator,bytes32 authority,Caveat[] caveats,uint256 salt)Caveat(address enforcer,bytes terms)
	delegationTypeHash = ethcrypto.Keccak256(
		[]byte("Delegation(address delegate,address delegator,bytes32 authority,Caveat[] caveats,uint256 salt)Caveat(address enforcer,bytes terms)"),
	)

	// Caveat(address enforcer,bytes terms)
	caveatTypeHash = ethcrypto.Keccak256(
		[]byte("Caveat(address enforcer,bytes terms)"),
	)
)

// DelegationSigner produces EIP-712 signatures over Delegation structs for
// the delegation-manager contract domain.
type DelegationSigner struct {
	key       *OperatorKey
	domainSep []byte // cached EIP-712 domain separator hash
}

// NewDelegationSigner creates a signer bound to the delegation-manager
// contract on the given chain. The manager address is part of the EIP-712
// domain, so signatures are not replayable across deployments.
func NewDelegationSigner(key *OperatorKey, chainID int64, manager common.Address) *DelegationSigner {
	s := &DelegationSigner{key: key}
	s.domainSep = ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte("DelegationManager")),
			ethcrypto.Keccak256([]byte("1")),
			bigIntTo32Bytes(big.NewInt(chainID)),
			common.LeftPadBytes(manager.Bytes(), 32),
		),
	)
	return s
}

// Address returns the signing address.
func (s *DelegationSigner) Address() common.Address {
	return s.key.Address()
}

// SignDelegation computes the EIP-712 digest of the delegation and signs it.
// The returned string is a hex-encoded 65-byte signature (r || s || v).
func (s *DelegationSigner) SignDelegation(d domain.Delegation) (string, error) {
	digest, err := s.DelegationDigest(d)
	if err != nil {
		return "", err
	}

	sig, err := ethcrypto.Sign(digest, s.key.Private())
	if err != nil {
		return "", fmt.Errorf("crypto/signer: %w: %v", domain.ErrSigningFailed, err)
	}

	// go-ethereum returns v in {0,1}; EIP-712 expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverDelegationSigner recovers the address that produced the delegation's
// signature under this signer's EIP-712 domain. It is used to verify that a
// client-supplied delegation was really signed by the player it claims to
// come from.
func (s *DelegationSigner) RecoverDelegationSigner(d domain.Delegation) (common.Address, error) {
	if !d.Signed() {
		return common.Address{}, fmt.Errorf("crypto/signer: delegation is not signed")
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(d.Signature, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: invalid signature encoding: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto/signer: signature must be 65 bytes, got %d", len(sig))
	}

	digest, err := s.DelegationDigest(d)
	if err != nil {
		return common.Address{}, err
	}

	// Recovery wants v in {0,1}; do not mutate the caller's bytes.
	recSig := make([]byte, 65)
	copy(recSig, sig)
	if recSig[64] >= 27 {
		recSig[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(digest, recSig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recover: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// DelegationDigest computes the final EIP-712 digest for a delegation:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func (s *DelegationSigner) DelegationDigest(d domain.Delegation) ([]byte, error) {
	structHash, err := delegationStructHash(d)
	if err != nil {
		return nil, err
	}
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			s.domainSep,
			structHash,
		),
	), nil
}

// delegationStructHash encodes and hashes a Delegation according to EIP-712.
func delegationStructHash(d domain.Delegation) ([]byte, error) {
	authority, err := hexTo32Bytes(d.Authority)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid authority %q: %w", d.Authority, err)
	}

	salt, ok := new(big.Int).SetString(strings.TrimPrefix(d.Salt, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid salt %q", d.Salt)
	}

	caveatsHash, err := caveatArrayHash(d.Caveats)
	if err != nil {
		return nil, err
	}

	delegate := common.HexToAddress(d.Delegate)
	delegator := common.HexToAddress(d.Delegator)

	return ethcrypto.Keccak256(
		concatBytes(
			delegationTypeHash,
			common.LeftPadBytes(delegate.Bytes(), 32),
			common.LeftPadBytes(delegator.Bytes(), 32),
			authority,
			caveatsHash,
			bigIntTo32Bytes(salt),
		),
	), nil
}

// caveatArrayHash hashes a caveat array per EIP-712: the keccak256 of the
// concatenated struct hashes of its members.
func caveatArrayHash(caveats []domain.Caveat) ([]byte, error) {
	var hashes []byte
	for _, c := range caveats {
		terms, err := hex.DecodeString(strings.TrimPrefix(c.Terms, "0x"))
		if err != nil {
			return nil, fmt.Errorf("crypto/signer: invalid caveat terms %q: %w", c.Terms, err)
		}
		enforcer := common.HexToAddress(c.Enforcer)
		h := ethcrypto.Keccak256(
			concatBytes(
				caveatTypeHash,
				common.LeftPadBytes(enforcer.Bytes(), 32),
				ethcrypto.Keccak256(terms),
			),
		)
		hashes = append(hashes, h...)
	}
	return ethcrypto.Keccak256(hashes), nil
}

// hexTo32Bytes decodes a 0x-prefixed hex string into exactly 32 bytes.
func hexTo32Bytes(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	return b, nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
