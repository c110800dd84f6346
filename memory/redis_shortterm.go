package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// RedisShortTerm is a Redis-backed ShortTermStore for deployments where the
// recent-turn window must survive process restarts or be shared across
// replicas. Each owner maps to one list key; LPUSH+LTRIM keep the window
// bounded server-side.
type RedisShortTerm struct {
	client    redis.UniversalClient
	cap       int
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisShortTerm creates a Redis short-term store. cap <= 0 falls back to
// DefaultShortTermCap.
func NewRedisShortTerm(client redis.UniversalClient, capacity int, logger *zap.Logger) *RedisShortTerm {
	if capacity <= 0 {
		capacity = DefaultShortTermCap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisShortTerm{
		client:    client,
		cap:       capacity,
		keyPrefix: "memflow:shortterm:",
		logger:    logger.With(zap.String("component", "short_term_redis")),
	}
}

func (s *RedisShortTerm) key(ownerID string) string {
	return s.keyPrefix + ownerID
}

// Append pushes a turn and trims the list to capacity.
func (s *RedisShortTerm) Append(ctx context.Context, ownerID string, msg types.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key(ownerID), payload)
	pipe.LTrim(ctx, s.key(ownerID), 0, int64(s.cap-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewStorageError("redis short-term append failed", err)
	}
	return nil
}

// Recent returns the last limit turns in chronological order.
func (s *RedisShortTerm) Recent(ctx context.Context, ownerID string, limit int) ([]types.Message, error) {
	if limit <= 0 || limit > s.cap {
		limit = s.cap
	}
	raw, err := s.client.LRange(ctx, s.key(ownerID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, types.NewStorageError("redis short-term read failed", err)
	}
	// LPUSH stores newest first; reverse back to chronological.
	out := make([]types.Message, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var msg types.Message
		if err := json.Unmarshal([]byte(raw[i]), &msg); err != nil {
			s.logger.Warn("skipping undecodable short-term entry",
				zap.String("owner_id", ownerID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// Clear deletes the owner's list.
func (s *RedisShortTerm) Clear(ctx context.Context, ownerID string) error {
	if err := s.client.Del(ctx, s.key(ownerID)).Err(); err != nil {
		return types.NewStorageError("redis short-term clear failed", err)
	}
	return nil
}

// Len reports the list length for the owner.
func (s *RedisShortTerm) Len(ctx context.Context, ownerID string) (int, error) {
	n, err := s.client.LLen(ctx, s.key(ownerID)).Result()
	if err != nil {
		return 0, types.NewStorageError("redis short-term len failed", err)
	}
	return int(n), nil
}
