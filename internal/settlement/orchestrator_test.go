package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/jaylabs/cryptocasino/internal/domain"
)

type memSettlementStore struct {
	mu   sync.Mutex
	rows map[uint64]domain.Settlement
}

func newMemSettlementStore() *memSettlementStore {
	return &memSettlementStore{rows: map[uint64]domain.Settlement{}}
}

func (s *memSettlementStore) Create(_ context.Context, st domain.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[st.GameID]; ok {
		return domain.ErrAlreadyExists
	}
	s.rows[st.GameID] = st
	return nil
}

func (s *memSettlementStore) GetByGame(_ context.Context, gameID uint64) (domain.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rows[gameID]
	if !ok {
		return domain.Settlement{}, domain.ErrNotFound
	}
	return st, nil
}

func (s *memSettlementStore) ListRecent(_ context.Context, opts domain.ListOpts) ([]domain.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Settlement, 0, len(s.rows))
	for _, st := range s.rows {
		out = append(out, st)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

type fakeAuthorizer struct {
	count     int64
	countErr  error
	redeemTx  string
	redeemErr error
	redeemed  int
}

func (a *fakeAuthorizer) AuthorizationCount(context.Context, uint64) (int64, error) {
	return a.count, a.countErr
}

func (a *fakeAuthorizer) RedeemToWinner(context.Context, uint64, string, *big.Int) (string, error) {
	if a.redeemErr != nil {
		return "", a.redeemErr
	}
	a.redeemed++
	return a.redeemTx, nil
}

type memBus struct {
	mu     sync.Mutex
	events []Event
}

func (b *memBus) Publish(_ context.Context, _ string, payload []byte) error {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (b *memBus) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, ev := range b.events {
		out[i] = ev.Type
	}
	return out
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSimulated(store domain.SettlementStore, auth Authorizer, bus domain.SignalBus) *Simulated {
	s := NewSimulated(store, auth, bus, time.Millisecond, discard())
	s.now = func() time.Time { return time.Unix(1_700_000_200, 0) }
	s.sleep = func(context.Context, time.Duration) error { return nil }
	return s
}

func threePlayerGame() domain.Game {
	return resolvedGame(price(0.41),
		bet("0xA1", price(0.40)),
		bet("0xA2", price(0.45)),
		bet("0xA3", price(0.38)),
	)
}

func TestSimulatedSettleWalksSteps(t *testing.T) {
	t.Parallel()

	store := newMemSettlementStore()
	bus := &memBus{}
	s := testSimulated(store, &fakeAuthorizer{count: 3}, bus)

	st, err := s.Settle(context.Background(), threePlayerGame())
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !st.Simulated {
		t.Fatal("settlement not marked simulated")
	}
	if st.Winner != "0xA1" {
		t.Fatalf("winner %s, want 0xA1", st.Winner)
	}
	if st.TotalPool.Cmp(stake(30)) != 0 {
		t.Fatalf("pool %s", st.TotalPool)
	}

	want := []string{"started", "collected", "collected", "distributed", "completed"}
	got := bus.types()
	if len(got) != len(want) {
		t.Fatalf("events %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, got[i], want[i])
		}
	}

	// Per-loser collect amount is the fixed stake.
	bus.mu.Lock()
	collected := bus.events[1]
	bus.mu.Unlock()
	if collected.Amount != stake(10).String() {
		t.Fatalf("collected amount %s, want %s", collected.Amount, stake(10))
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newMemSettlementStore()
	bus := &memBus{}
	s := testSimulated(store, &fakeAuthorizer{count: 3}, bus)
	game := threePlayerGame()

	first, err := s.Settle(context.Background(), game)
	if err != nil {
		t.Fatalf("first settle: %v", err)
	}
	events := len(bus.types())

	second, err := s.Settle(context.Background(), game)
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if second.Winner != first.Winner || !second.SettledAt.Equal(first.SettledAt) {
		t.Fatalf("second settle differs: %+v vs %+v", second, first)
	}
	if got := len(bus.types()); got != events {
		t.Fatalf("second settle published %d extra events", got-events)
	}
}

func TestSettleRequiresFullAuthorization(t *testing.T) {
	t.Parallel()

	store := newMemSettlementStore()
	s := testSimulated(store, &fakeAuthorizer{count: 2}, &memBus{}) // 3 players, 2 auths

	_, err := s.Settle(context.Background(), threePlayerGame())
	if !errors.Is(err, domain.ErrSettlementNotReady) {
		t.Fatalf("got %v, want ErrSettlementNotReady", err)
	}
	if _, err := store.GetByGame(context.Background(), 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("settlement persisted despite missing authorizations")
	}
}

func TestSettleRejectsUnresolvedGame(t *testing.T) {
	t.Parallel()

	s := testSimulated(newMemSettlementStore(), &fakeAuthorizer{count: 3}, &memBus{})
	game := threePlayerGame()
	game.Resolved = false

	_, err := s.Settle(context.Background(), game)
	if !errors.Is(err, domain.ErrSettlementNotReady) {
		t.Fatalf("got %v, want ErrSettlementNotReady", err)
	}
}

func TestLedgerSettleRedeems(t *testing.T) {
	t.Parallel()

	store := newMemSettlementStore()
	auth := &fakeAuthorizer{count: 3, redeemTx: "0xabc123"}
	bus := &memBus{}
	l := NewLedger(store, auth, bus, discard())
	l.now = func() time.Time { return time.Unix(1_700_000_200, 0) }

	st, err := l.Settle(context.Background(), threePlayerGame())
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if st.Simulated {
		t.Fatal("ledger settlement marked simulated")
	}
	if st.TxHash != "0xabc123" {
		t.Fatalf("tx %q", st.TxHash)
	}
	if auth.redeemed != 1 {
		t.Fatalf("redeem called %d times", auth.redeemed)
	}
}

func TestLedgerSettleFailureLeavesGameUnsettled(t *testing.T) {
	t.Parallel()

	store := newMemSettlementStore()
	auth := &fakeAuthorizer{count: 3, redeemErr: domain.ErrSettlementFailed}
	l := NewLedger(store, auth, &memBus{}, discard())

	_, err := l.Settle(context.Background(), threePlayerGame())
	if !errors.Is(err, domain.ErrSettlementFailed) {
		t.Fatalf("got %v, want ErrSettlementFailed", err)
	}
	if _, err := store.GetByGame(context.Background(), 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("failed settlement was persisted")
	}

	// A retry after the failure succeeds.
	auth.redeemErr = nil
	auth.redeemTx = "0xretry"
	st, err := l.Settle(context.Background(), threePlayerGame())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if st.TxHash != "0xretry" {
		t.Fatalf("tx %q", st.TxHash)
	}
}

func TestLedgerSettleSinglePlayerNoRedeem(t *testing.T) {
	t.Parallel()

	store := newMemSettlementStore()
	auth := &fakeAuthorizer{count: 1, redeemTx: "0xshould-not-happen"}
	l := NewLedger(store, auth, &memBus{}, discard())

	game := resolvedGame(price(0.41), bet("0xA1", price(0.40)))
	st, err := l.Settle(context.Background(), game)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if st.TxHash != "" {
		t.Fatalf("tx %q, want none", st.TxHash)
	}
	if auth.redeemed != 0 {
		t.Fatal("redeem called for single-player game")
	}
}
