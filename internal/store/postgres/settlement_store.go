package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jaylabs/cryptocasino/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a SettlementStore backed by the given pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Create inserts a settlement row. A game may only settle once; a second
// insert for the same game maps to domain.ErrAlreadyExists.
func (s *SettlementStore) Create(ctx context.Context, st domain.Settlement) error {
	pool := "0"
	if st.TotalPool != nil {
		pool = st.TotalPool.String()
	}

	const query = `
		INSERT INTO settlements (game_id, winner, total_pool, tx_hash, simulated, settled_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, query, st.GameID, st.Winner, pool, st.TxHash, st.Simulated, st.SettledAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create settlement for game %d: %w", st.GameID, err)
	}
	return nil
}

// GetByGame returns the settlement for a game, or domain.ErrNotFound.
func (s *SettlementStore) GetByGame(ctx context.Context, gameID uint64) (domain.Settlement, error) {
	const query = `
		SELECT game_id, winner, total_pool::text, tx_hash, simulated, settled_at
		FROM settlements
		WHERE game_id = $1`
	st, err := scanSettlement(s.pool.QueryRow(ctx, query, gameID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Settlement{}, domain.ErrNotFound
		}
		return domain.Settlement{}, fmt.Errorf("postgres: get settlement for game %d: %w", gameID, err)
	}
	return st, nil
}

// ListRecent returns the most recent settlements, newest first, paginated.
func (s *SettlementStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Settlement, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	const query = `
		SELECT game_id, winner, total_pool::text, tx_hash, simulated, settled_at
		FROM settlements
		ORDER BY settled_at DESC
		LIMIT $1 OFFSET $2`
	rows, err := s.pool.Query(ctx, query, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements: %w", err)
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan settlement: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list settlements rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettlement(row rowScanner) (domain.Settlement, error) {
	var st domain.Settlement
	var pool string
	if err := row.Scan(&st.GameID, &st.Winner, &pool, &st.TxHash, &st.Simulated, &st.SettledAt); err != nil {
		return domain.Settlement{}, err
	}
	n, ok := new(big.Int).SetString(pool, 10)
	if !ok {
		return domain.Settlement{}, fmt.Errorf("invalid total_pool %q", pool)
	}
	st.TotalPool = n
	return st, nil
}

var _ domain.SettlementStore = (*SettlementStore)(nil)
