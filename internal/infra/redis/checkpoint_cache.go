package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"haccp-training-service/internal/app"
	"haccp-training-service/internal/domain"
)

// CheckpointCache layers a Redis hash in front of a durable checkpoint
// repository so resume-from-checkpoint avoids a database round-trip for the
// common reload-right-away case. One hash per (player, module):
//
//	HSET sim:ckpt:{player}:{module} {questionIndex} {json snapshot}
//
// Writes go through to the backing store first; the cache is best effort
// and expires on its own, Redis being unavailable never fails a save.
type CheckpointCache struct {
	client  *redis.Client
	backing app.CheckpointRepository
	ttl     time.Duration
}

func NewCheckpointCache(client *redis.Client, backing app.CheckpointRepository, ttl time.Duration) *CheckpointCache {
	return &CheckpointCache{client: client, backing: backing, ttl: ttl}
}

func (c *CheckpointCache) List(ctx context.Context, playerID string, module int) ([]domain.Checkpoint, error) {
	fields, err := c.client.HGetAll(ctx, c.key(playerID, module)).Result()
	if err == nil && len(fields) > 0 {
		out := make([]domain.Checkpoint, 0, len(fields))
		for _, raw := range fields {
			var cp domain.Checkpoint
			if err := json.Unmarshal([]byte(raw), &cp); err != nil {
				// Corrupt cache entry; fall back to the store.
				return c.backing.List(ctx, playerID, module)
			}
			out = append(out, cp)
		}
		return out, nil
	}
	return c.backing.List(ctx, playerID, module)
}

func (c *CheckpointCache) Upsert(ctx context.Context, cp domain.Checkpoint) error {
	if err := c.backing.Upsert(ctx, cp); err != nil {
		return err
	}
	raw, err := json.Marshal(cp)
	if err != nil {
		return nil
	}
	key := c.key(cp.PlayerID, cp.Module)
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, strconv.Itoa(cp.QuestionIndex), raw)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	_, _ = pipe.Exec(ctx)
	return nil
}

func (c *CheckpointCache) DeleteRun(ctx context.Context, playerID string, module int) error {
	if err := c.backing.DeleteRun(ctx, playerID, module); err != nil {
		return err
	}
	_ = c.client.Del(ctx, c.key(playerID, module)).Err()
	return nil
}

func (c *CheckpointCache) key(playerID string, module int) string {
	return fmt.Sprintf("sim:ckpt:%s:%d", playerID, module)
}
