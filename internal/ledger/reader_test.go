package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jaylabs/cryptocasino/internal/domain"
)

func testWireInput() domain.Delegation {
	return domain.Delegation{
		Delegate:  "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Delegator: "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC",
		Authority: domain.RootAuthority,
		Caveats: []domain.Caveat{
			{Enforcer: "0x0000000000000000000000000000000000000abc", Terms: "0x1b44"},
		},
		Salt:      "0x0",
		Signature: "0xdeadbeef",
	}
}

func validGameValues() []any {
	return []any{
		"PEPE",
		big.NewInt(1_700_000_000),
		big.NewInt(1_700_000_060),
		big.NewInt(1_700_000_120),
		true,
		false,
		big.NewInt(10).Mul(big.NewInt(10), big.NewInt(1e18)),
		big.NewInt(0),
		common.Address{},
		big.NewInt(0),
	}
}

func TestDecodeGameState(t *testing.T) {
	t.Parallel()

	game, err := decodeGameState(7, validGameValues())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if game.ID != 7 || game.Symbol != "PEPE" {
		t.Fatalf("unexpected game: %+v", game)
	}
	if game.StartAt != 1_700_000_000 || game.JoinEndsAt != 1_700_000_060 || game.EndsAt != 1_700_000_120 {
		t.Fatalf("unexpected times: %+v", game)
	}
	if !game.Active || game.Resolved {
		t.Fatalf("unexpected flags: %+v", game)
	}
}

func TestDecodeGameStateMalformed(t *testing.T) {
	t.Parallel()

	mutate := func(i int, v any) []any {
		values := validGameValues()
		values[i] = v
		return values
	}

	tests := []struct {
		name   string
		values []any
	}{
		{"too_few_values", validGameValues()[:9]},
		{"too_many_values", append(validGameValues(), big.NewInt(1))},
		{"symbol_wrong_type", mutate(0, 42)},
		{"start_wrong_type", mutate(1, "1700000000")},
		{"active_wrong_type", mutate(4, big.NewInt(1))},
		{"winner_wrong_type", mutate(8, "0x0")},
		{"nil_price", mutate(9, (*big.Int)(nil))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := decodeGameState(1, tt.values); err == nil {
				t.Fatal("expected decode error")
			}
		})
	}
}

func TestDecodePlayerGuess(t *testing.T) {
	t.Parallel()

	player := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	bet, err := decodePlayerGuess(player, []any{big.NewInt(41_000_000), true, false})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if bet.Player != player || !bet.Joined || bet.Claimed {
		t.Fatalf("unexpected bet: %+v", bet)
	}
	if bet.GuessPrice.Cmp(big.NewInt(41_000_000)) != 0 {
		t.Fatalf("unexpected guess: %s", bet.GuessPrice)
	}

	if _, err := decodePlayerGuess(player, []any{big.NewInt(1), true}); err == nil {
		t.Fatal("expected arity error")
	}
	if _, err := decodePlayerGuess(player, []any{"1", true, false}); err == nil {
		t.Fatal("expected type error")
	}
}

func TestToWireDelegation(t *testing.T) {
	t.Parallel()

	d := testWireInput()
	w, err := toWireDelegation(d)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if w.Delegate != common.HexToAddress(d.Delegate) {
		t.Fatalf("delegate mismatch: %s", w.Delegate.Hex())
	}
	if w.Salt.Sign() != 0 {
		t.Fatalf("salt mismatch: %s", w.Salt)
	}
	if len(w.Caveats) != 1 || len(w.Caveats[0].Terms) != 2 {
		t.Fatalf("caveats mismatch: %+v", w.Caveats)
	}

	bad := d
	bad.Authority = "0x1234"
	if _, err := toWireDelegation(bad); err == nil {
		t.Fatal("expected error for short authority")
	}

	bad = d
	bad.Salt = "not-hex"
	if _, err := toWireDelegation(bad); err == nil {
		t.Fatal("expected error for invalid salt")
	}
}
