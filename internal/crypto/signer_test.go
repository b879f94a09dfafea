package crypto

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/jaylabs/cryptocasino/internal/domain"
)

// well-known test key (hardhat account #1), never used outside tests.
const testKeyHex = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

func testSigner(t *testing.T) *DelegationSigner {
	t.Helper()
	key, err := LoadOperatorKey(KeyConfig{RawPrivateKey: testKeyHex})
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	manager := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	return NewDelegationSigner(key, 11155111, manager)
}

func testDelegation() domain.Delegation {
	return domain.Delegation{
		Delegate:  "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Delegator: "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC",
		Authority: domain.RootAuthority,
		Caveats: []domain.Caveat{
			{Enforcer: "0x0000000000000000000000000000000000000abc", Terms: "0x1b44"},
		},
		Salt: "0x0",
	}
}

func TestSignDelegationRecoversSigner(t *testing.T) {
	t.Parallel()

	s := testSigner(t)
	d := testDelegation()

	sigHex, err := s.SignDelegation(d)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !strings.HasPrefix(sigHex, "0x") || len(sigHex) != 2+65*2 {
		t.Fatalf("unexpected signature format: %q", sigHex)
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	// Undo the v offset for recovery.
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	digest, err := s.DelegationDigest(d)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}

	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got := ethcrypto.PubkeyToAddress(*pub); got != s.Address() {
		t.Fatalf("recovered %s, want %s", got.Hex(), s.Address().Hex())
	}
}

func TestRecoverDelegationSigner(t *testing.T) {
	t.Parallel()

	s := testSigner(t)
	d := testDelegation()

	sig, err := s.SignDelegation(d)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	d.Signature = sig

	got, err := s.RecoverDelegationSigner(d)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got != s.Address() {
		t.Fatalf("recovered %s, want %s", got.Hex(), s.Address().Hex())
	}

	// A mutated field invalidates the signature: recovery yields a different
	// address, never the original signer.
	tampered := d
	tampered.Delegate = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	if got, err := s.RecoverDelegationSigner(tampered); err == nil && got == s.Address() {
		t.Fatal("tampered delegation still recovers to the signer")
	}

	unsigned := testDelegation()
	if _, err := s.RecoverDelegationSigner(unsigned); err == nil {
		t.Fatal("expected error for unsigned delegation")
	}
}

func TestDelegationDigestDeterministic(t *testing.T) {
	t.Parallel()

	s := testSigner(t)
	d := testDelegation()

	d1, err := s.DelegationDigest(d)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	d2, err := s.DelegationDigest(d)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if !bytes.Equal(d1, d2) {
		t.Fatal("digest not deterministic")
	}

	// Any field change must move the digest.
	changed := d
	changed.Salt = "0x1"
	d3, err := s.DelegationDigest(changed)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if bytes.Equal(d1, d3) {
		t.Fatal("digest unchanged after salt change")
	}
}

func TestDelegationDigestRejectsBadFields(t *testing.T) {
	t.Parallel()

	s := testSigner(t)

	bad := testDelegation()
	bad.Authority = "0x1234" // not 32 bytes
	if _, err := s.DelegationDigest(bad); err == nil {
		t.Fatal("expected error for short authority")
	}

	bad = testDelegation()
	bad.Salt = "zz"
	if _, err := s.DelegationDigest(bad); err == nil {
		t.Fatal("expected error for invalid salt")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	t.Parallel()

	blob, err := EncryptKey("0x"+testKeyHex, "hunter2")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != testKeyHex {
		t.Fatalf("round trip mismatch: got %s", got)
	}

	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Fatal("expected error for wrong password")
	}
}
