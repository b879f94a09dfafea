package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/jaylabs/cryptocasino/internal/crypto"
	"github.com/jaylabs/cryptocasino/internal/delegation"
	"github.com/jaylabs/cryptocasino/internal/domain"
	"github.com/jaylabs/cryptocasino/internal/notify"
)

const testKeyHex = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type fakeLedger struct {
	mu       sync.Mutex
	games    map[uint64]domain.Game
	joinErr  error
	joins    int
	resolves int
}

func (f *fakeLedger) NextGameID(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var max uint64
	for id := range f.games {
		if id+1 > max {
			max = id + 1
		}
	}
	return max, nil
}

func (f *fakeLedger) GetGameState(_ context.Context, gameID uint64) (domain.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[gameID]
	if !ok {
		return domain.Game{}, domain.ErrLedgerUnavailable
	}
	state := g
	state.Bets = nil
	return state, nil
}

func (f *fakeLedger) GetPlayers(_ context.Context, gameID uint64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := f.games[gameID]
	players := make([]string, len(g.Bets))
	for i, b := range g.Bets {
		players[i] = b.Player
	}
	return players, nil
}

func (f *fakeLedger) GetPlayerGuess(_ context.Context, gameID uint64, player string) (domain.Bet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := f.games[gameID]
	for _, b := range g.Bets {
		if domain.EqualAddress(b.Player, player) {
			return b, nil
		}
	}
	return domain.Bet{Player: player}, nil
}

func (f *fakeLedger) JoinGame(context.Context, uint64, *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return "", f.joinErr
	}
	f.joins++
	return "0xjointx", nil
}

func (f *fakeLedger) ResolveGame(context.Context, uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves++
	return "0xresolvetx", nil
}

type memCache struct {
	mu    sync.Mutex
	games map[uint64]domain.Game
}

func newMemCache() *memCache {
	return &memCache{games: map[uint64]domain.Game{}}
}

func (c *memCache) Get(_ context.Context, gameID uint64) (domain.Game, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.games[gameID]
	if !ok {
		return domain.Game{}, domain.ErrNotFound
	}
	return g, nil
}

func (c *memCache) Set(_ context.Context, game domain.Game) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.games[game.ID] = game
	return nil
}

func (c *memCache) Invalidate(_ context.Context, gameID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.games, gameID)
	return nil
}

type nopBus struct{}

func (nopBus) Publish(context.Context, string, []byte) error { return nil }
func (nopBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

type nopAudit struct{}

func (nopAudit) Log(context.Context, string, map[string]any) error { return nil }
func (nopAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type memDelegationStore struct {
	mu      sync.Mutex
	records []domain.DelegationRecord
}

func (s *memDelegationStore) Create(_ context.Context, rec domain.DelegationRecord) (domain.DelegationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.GameID == rec.GameID && domain.EqualAddress(r.Player, rec.Player) {
			return domain.DelegationRecord{}, domain.ErrAlreadyExists
		}
	}
	rec.ID = uuid.NewString()
	s.records = append(s.records, rec)
	return rec, nil
}

func (s *memDelegationStore) ListByGame(_ context.Context, gameID uint64) ([]domain.DelegationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DelegationRecord
	for _, r := range s.records {
		if r.GameID == gameID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memDelegationStore) CountByGame(ctx context.Context, gameID uint64) (int64, error) {
	recs, _ := s.ListByGame(ctx, gameID)
	return int64(len(recs)), nil
}

func (s *memDelegationStore) DeleteByGame(_ context.Context, gameID uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []domain.DelegationRecord
	var removed int64
	for _, r := range s.records {
		if r.GameID == gameID {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return removed, nil
}

func (s *memDelegationStore) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

type fakeProvisioner struct{}

func (fakeProvisioner) SmartAccountAddress(_ context.Context, player string) (string, error) {
	return player, nil
}

func (fakeProvisioner) EnsureDeployed(_ context.Context, player string) (string, bool, error) {
	return player, false, nil
}

type fakeRedeemer struct{}

func (fakeRedeemer) RedeemDelegations(context.Context, []domain.Delegation, string, *big.Int) (string, error) {
	return "0xredeemtx", nil
}

// ---------------------------------------------------------------------------
// setup
// ---------------------------------------------------------------------------

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testNotifier() *notify.Notifier {
	return notify.NewNotifier(nil, nil, discard())
}

func testManager(t *testing.T, store domain.DelegationStore) *delegation.Manager {
	t.Helper()
	key, err := crypto.LoadOperatorKey(crypto.KeyConfig{RawPrivateKey: testKeyHex})
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	signer := crypto.NewDelegationSigner(key, 11155111, common.HexToAddress("0x000000000000000000000000000000000000dEaD"))
	cfg := delegation.ManagerConfig{
		TokenContract:  "0x1b44F3514812d835EB1BDB0acB33d3fA3351Ee43",
		MethodEnforcer: "0x0000000000000000000000000000000000000abc",
		SelfSign:       true,
	}
	return delegation.NewManager(cfg, signer, fakeProvisioner{}, fakeRedeemer{}, store, discard())
}

func openGame(id uint64, bets ...domain.Bet) domain.Game {
	now := time.Now().Unix()
	return domain.Game{
		ID:             id,
		Symbol:         "PEPE",
		StartAt:        now - 30,
		JoinEndsAt:     now + 60,
		EndsAt:         now + 120,
		Active:         true,
		FixedBetAmount: big.NewInt(1e18),
		TotalPool:      big.NewInt(0),
		Winner:         domain.ZeroAddress,
		FinalPrice:     big.NewInt(0),
		Bets:           bets,
	}
}

func testGameService(t *testing.T, ledger *fakeLedger, store domain.DelegationStore) (*GameService, *memCache) {
	t.Helper()
	cache := newMemCache()
	svc := NewGameService(ledger, cache, nopBus{}, testManager(t, store), testNotifier(), nopAudit{}, discard())
	return svc, cache
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestGetGameCacheFirst(t *testing.T) {
	t.Parallel()

	ledger := &fakeLedger{games: map[uint64]domain.Game{0: openGame(0)}}
	svc, cache := testGameService(t, ledger, &memDelegationStore{})

	cached := openGame(0)
	cached.Symbol = "CACHED"
	if err := cache.Set(context.Background(), cached); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	game, err := svc.GetGame(context.Background(), 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if game.Symbol != "CACHED" {
		t.Fatalf("symbol %q, want cache hit", game.Symbol)
	}
}

func TestGetGameFallsBackToLedger(t *testing.T) {
	t.Parallel()

	ledger := &fakeLedger{games: map[uint64]domain.Game{
		0: openGame(0, domain.Bet{Player: "0xA1", GuessPrice: big.NewInt(42), Joined: true}),
	}}
	svc, cache := testGameService(t, ledger, &memDelegationStore{})

	game, err := svc.GetGame(context.Background(), 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(game.Bets) != 1 || game.Bets[0].Player != "0xA1" {
		t.Fatalf("bets not loaded: %+v", game.Bets)
	}

	// Miss back-fills the cache.
	if _, err := cache.Get(context.Background(), 0); err != nil {
		t.Fatalf("cache not back-filled: %v", err)
	}
}

func TestJoinGameFlow(t *testing.T) {
	t.Parallel()

	ledger := &fakeLedger{games: map[uint64]domain.Game{7: openGame(7)}}
	store := &memDelegationStore{}
	svc, _ := testGameService(t, ledger, store)

	res, err := svc.JoinGame(context.Background(), 7, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", big.NewInt(41_000_000), nil)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !res.Delegation.Signed() {
		t.Fatal("delegation not signed")
	}
	if ledger.joins != 1 {
		t.Fatalf("join transactions %d, want 1", ledger.joins)
	}
	count, _ := store.CountByGame(context.Background(), 7)
	if count != 1 {
		t.Fatalf("stored records %d, want 1", count)
	}
}

func TestJoinGameClosedWindow(t *testing.T) {
	t.Parallel()

	game := openGame(3)
	game.JoinEndsAt = time.Now().Unix() - 10
	ledger := &fakeLedger{games: map[uint64]domain.Game{3: game}}
	svc, _ := testGameService(t, ledger, &memDelegationStore{})

	_, err := svc.JoinGame(context.Background(), 3, "0xA1", big.NewInt(1), nil)
	if !errors.Is(err, domain.ErrGameNotJoinable) {
		t.Fatalf("got %v, want ErrGameNotJoinable", err)
	}
}

func TestJoinGameInactive(t *testing.T) {
	t.Parallel()

	game := openGame(3)
	game.Active = false
	ledger := &fakeLedger{games: map[uint64]domain.Game{3: game}}
	svc, _ := testGameService(t, ledger, &memDelegationStore{})

	_, err := svc.JoinGame(context.Background(), 3, "0xA1", big.NewInt(1), nil)
	if !errors.Is(err, domain.ErrGameNotJoinable) {
		t.Fatalf("got %v, want ErrGameNotJoinable", err)
	}
}

func TestJoinGameDuplicatePlayer(t *testing.T) {
	t.Parallel()

	player := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	game := openGame(3, domain.Bet{Player: player, GuessPrice: big.NewInt(1), Joined: true})
	ledger := &fakeLedger{games: map[uint64]domain.Game{3: game}}
	svc, _ := testGameService(t, ledger, &memDelegationStore{})

	_, err := svc.JoinGame(context.Background(), 3, player, big.NewInt(2), nil)
	if !errors.Is(err, domain.ErrDuplicatePlayer) {
		t.Fatalf("got %v, want ErrDuplicatePlayer", err)
	}
}

func TestJoinGameRollsBackOnRelayFailure(t *testing.T) {
	t.Parallel()

	ledger := &fakeLedger{
		games:   map[uint64]domain.Game{5: openGame(5)},
		joinErr: domain.ErrLedgerUnavailable,
	}
	store := &memDelegationStore{}
	svc, _ := testGameService(t, ledger, store)

	_, err := svc.JoinGame(context.Background(), 5, "0xA1", big.NewInt(1), nil)
	if !errors.Is(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("got %v, want ErrLedgerUnavailable", err)
	}
	count, _ := store.CountByGame(context.Background(), 5)
	if count != 0 {
		t.Fatalf("authorization not rolled back, %d records remain", count)
	}
}

func TestListGamesNewestFirst(t *testing.T) {
	t.Parallel()

	ledger := &fakeLedger{games: map[uint64]domain.Game{
		0: openGame(0),
		1: openGame(1),
		2: openGame(2),
	}}
	svc, _ := testGameService(t, ledger, &memDelegationStore{})

	games, err := svc.ListGames(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(games) != 3 {
		t.Fatalf("games %d, want 3", len(games))
	}
	if games[0].ID != 2 || games[2].ID != 0 {
		t.Fatalf("order %d,%d,%d, want newest first", games[0].ID, games[1].ID, games[2].ID)
	}
}
