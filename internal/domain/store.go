package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// DelegationStore persists signed authorization blobs keyed by game id.
// Create must enforce the one-authorization-per-(game, player) invariant and
// return ErrAlreadyExists on a duplicate.
type DelegationStore interface {
	Create(ctx context.Context, rec DelegationRecord) (DelegationRecord, error)
	ListByGame(ctx context.Context, gameID uint64) ([]DelegationRecord, error)
	CountByGame(ctx context.Context, gameID uint64) (int64, error)
	DeleteByGame(ctx context.Context, gameID uint64) (int64, error)
	DeleteByID(ctx context.Context, id string) error
}

// SettlementStore persists completed settlements. GetByGame returns
// ErrNotFound for games that have not been settled.
type SettlementStore interface {
	Create(ctx context.Context, s Settlement) error
	GetByGame(ctx context.Context, gameID uint64) (Settlement, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]Settlement, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
