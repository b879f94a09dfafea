package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/jaylabs/cryptocasino/internal/domain"
)

type fakeLocks struct {
	err      error
	acquired int
}

func (l *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func() {}, nil
}

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
	return out, nil
}

// stepRecorder tracks the order settlement collaborators run in.
type stepRecorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *stepRecorder) record(step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
}

type fakeRosterProvisioner struct {
	rec     *stepRecorder
	err     error
	players []string
}

func (p *fakeRosterProvisioner) Initialize(_ context.Context, _ uint64, players []string) error {
	if p.err != nil {
		return p.err
	}
	p.rec.record("provision")
	p.players = players
	return nil
}

type fakeOrchestrator struct {
	rec     *stepRecorder
	settled int
}

func (o *fakeOrchestrator) Settle(_ context.Context, game domain.Game) (domain.Settlement, error) {
	o.rec.record("settle")
	o.settled++
	return domain.Settlement{
		GameID:    game.ID,
		Winner:    "0xA1",
		TotalPool: big.NewInt(2e18),
		TxHash:    "0xsettletx",
		SettledAt: time.Now().UTC(),
	}, nil
}

func testSettlementService(t *testing.T, ledger *fakeLedger, prov *fakeRosterProvisioner, orch *fakeOrchestrator, locks *fakeLocks) *SettlementService {
	t.Helper()
	games, _ := testGameService(t, ledger, &memDelegationStore{})
	return NewSettlementService(
		games, orch, prov, locks,
		newMemSettlementStore(), &memDelegationStore{}, nil,
		testNotifier(), nopAudit{},
		time.Minute, discard(),
	)
}

func settledGame(id uint64) domain.Game {
	g := openGame(id,
		domain.Bet{Player: "0xA1", GuessPrice: big.NewInt(40_000_000), Joined: true},
		domain.Bet{Player: "0xA2", GuessPrice: big.NewInt(45_000_000), Joined: true},
		domain.Bet{Player: "0xA3", GuessPrice: big.NewInt(1), Joined: false},
	)
	g.Resolved = true
	return g
}

func TestSettleProvisionsRosterBeforeClaim(t *testing.T) {
	t.Parallel()

	ledger := &fakeLedger{games: map[uint64]domain.Game{8: settledGame(8)}}
	rec := &stepRecorder{}
	prov := &fakeRosterProvisioner{rec: rec}
	orch := &fakeOrchestrator{rec: rec}
	svc := testSettlementService(t, ledger, prov, orch, &fakeLocks{})

	st, err := svc.Settle(context.Background(), 8)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if st.GameID != 8 {
		t.Fatalf("settlement game %d, want 8", st.GameID)
	}

	// Only joined players are provisioned, and accounts exist before any
	// redemption runs.
	if len(prov.players) != 2 {
		t.Fatalf("provisioned %d players, want 2: %v", len(prov.players), prov.players)
	}
	if len(rec.steps) != 2 || rec.steps[0] != "provision" || rec.steps[1] != "settle" {
		t.Fatalf("step order %v, want provision before settle", rec.steps)
	}
}

func TestSettleProvisionFailureAborts(t *testing.T) {
	t.Parallel()

	ledger := &fakeLedger{games: map[uint64]domain.Game{8: settledGame(8)}}
	rec := &stepRecorder{}
	prov := &fakeRosterProvisioner{rec: rec, err: errors.New("rpc down")}
	orch := &fakeOrchestrator{rec: rec}
	svc := testSettlementService(t, ledger, prov, orch, &fakeLocks{})

	if _, err := svc.Settle(context.Background(), 8); err == nil {
		t.Fatal("expected error when provisioning fails")
	}
	if orch.settled != 0 {
		t.Fatal("claim must not run when provisioning fails")
	}
}

func TestSettleLockHeld(t *testing.T) {
	t.Parallel()

	ledger := &fakeLedger{games: map[uint64]domain.Game{8: settledGame(8)}}
	rec := &stepRecorder{}
	orch := &fakeOrchestrator{rec: rec}
	svc := testSettlementService(t, ledger, &fakeRosterProvisioner{rec: rec}, orch, &fakeLocks{err: domain.ErrLockHeld})

	_, err := svc.Settle(context.Background(), 8)
	if !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("got %v, want ErrLockHeld", err)
	}
	if orch.settled != 0 {
		t.Fatal("claim must not run without the lock")
	}
}
