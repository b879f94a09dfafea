package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jaylabs/cryptocasino/internal/domain"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

// DelegationStore implements domain.DelegationStore using PostgreSQL.
type DelegationStore struct {
	pool *pgxpool.Pool
}

// NewDelegationStore creates a DelegationStore backed by the given pool.
func NewDelegationStore(pool *pgxpool.Pool) *DelegationStore {
	return &DelegationStore{pool: pool}
}

// Create inserts a new delegation record. The (game_id, player) unique
// constraint maps to domain.ErrAlreadyExists.
func (s *DelegationStore) Create(ctx context.Context, rec domain.DelegationRecord) (domain.DelegationRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO delegation_records (id, game_id, player, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.pool.Exec(ctx, query, rec.ID, rec.GameID, rec.Player, rec.Payload, rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.DelegationRecord{}, domain.ErrAlreadyExists
		}
		return domain.DelegationRecord{}, fmt.Errorf("postgres: create delegation record: %w", err)
	}
	return rec, nil
}

// ListByGame returns all records for a game, newest first.
func (s *DelegationStore) ListByGame(ctx context.Context, gameID uint64) ([]domain.DelegationRecord, error) {
	const query = `
		SELECT id, game_id, player, payload, created_at
		FROM delegation_records
		WHERE game_id = $1
		ORDER BY created_at DESC, id`
	rows, err := s.pool.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list delegation records for game %d: %w", gameID, err)
	}
	defer rows.Close()

	var records []domain.DelegationRecord
	for rows.Next() {
		var rec domain.DelegationRecord
		if err := rows.Scan(&rec.ID, &rec.GameID, &rec.Player, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan delegation record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list delegation records rows: %w", err)
	}
	return records, nil
}

// CountByGame returns how many records a game has.
func (s *DelegationStore) CountByGame(ctx context.Context, gameID uint64) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM delegation_records WHERE game_id = $1", gameID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count delegation records for game %d: %w", gameID, err)
	}
	return count, nil
}

// DeleteByGame removes every record for a game and returns how many rows were
// deleted. Deleting a game with no records is not an error.
func (s *DelegationStore) DeleteByGame(ctx context.Context, gameID uint64) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM delegation_records WHERE game_id = $1", gameID)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete delegation records for game %d: %w", gameID, err)
	}
	return tag.RowsAffected(), nil
}

// DeleteByID removes a single record. Missing ids map to domain.ErrNotFound.
func (s *DelegationStore) DeleteByID(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM delegation_records WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("postgres: delete delegation record %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.DelegationStore = (*DelegationStore)(nil)
