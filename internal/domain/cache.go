package domain

import (
	"context"
	"time"
)

// GameCache caches game snapshots read from the ledger so the HTTP API does
// not hit the RPC node on every poll.
type GameCache interface {
	Get(ctx context.Context, gameID uint64) (Game, error)
	Set(ctx context.Context, game Game) error
	Invalidate(ctx context.Context, gameID uint64) error
}

// LockManager provides distributed locks. Acquire returns ErrLockHeld when
// another party holds the lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter limits request rates per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus is the pub/sub fabric between the poller, the settlement
// orchestrator, and the WebSocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
