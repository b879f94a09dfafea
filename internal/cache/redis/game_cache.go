package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jaylabs/cryptocasino/internal/domain"
)

// defaultGameTTL keeps cached snapshots slightly ahead of the poller cadence
// so a stale entry never outlives two polls.
const defaultGameTTL = 5 * time.Second

// GameCache implements domain.GameCache using JSON-serialized game snapshots
// under game:{id} keys with a short TTL.
type GameCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewGameCache creates a GameCache backed by the given Client. A non-positive
// ttl falls back to the default.
func NewGameCache(c *Client, ttl time.Duration) *GameCache {
	if ttl <= 0 {
		ttl = defaultGameTTL
	}
	return &GameCache{rdb: c.Underlying(), ttl: ttl}
}

func gameKey(id uint64) string {
	return "game:" + strconv.FormatUint(id, 10)
}

// Set stores a game snapshot.
func (gc *GameCache) Set(ctx context.Context, game domain.Game) error {
	data, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("redis: marshal game %d: %w", game.ID, err)
	}
	if err := gc.rdb.Set(ctx, gameKey(game.ID), data, gc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set game %d: %w", game.ID, err)
	}
	return nil
}

// Get retrieves a game snapshot, or domain.ErrNotFound on a cache miss.
func (gc *GameCache) Get(ctx context.Context, gameID uint64) (domain.Game, error) {
	data, err := gc.rdb.Get(ctx, gameKey(gameID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Game{}, domain.ErrNotFound
		}
		return domain.Game{}, fmt.Errorf("redis: get game %d: %w", gameID, err)
	}

	var game domain.Game
	if err := json.Unmarshal(data, &game); err != nil {
		return domain.Game{}, fmt.Errorf("redis: unmarshal game %d: %w", gameID, err)
	}
	return game, nil
}

// Invalidate drops a cached snapshot, typically right after a join so the
// next read reflects the new bet.
func (gc *GameCache) Invalidate(ctx context.Context, gameID uint64) error {
	if err := gc.rdb.Del(ctx, gameKey(gameID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate game %d: %w", gameID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.GameCache = (*GameCache)(nil)
