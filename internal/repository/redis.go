package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"installbot/internal/config"
	"installbot/internal/models"

	"github.com/redis/go-redis/v9"
)

// Session hash fields. The stage and timestamp sit beside the payload so an
// operator can inspect a conversation with HGET without decoding JSON.
const (
	fieldStage     = "stage"
	fieldUpdatedAt = "updated_at"
	fieldPayload   = "payload"
)

var errNilClient = errors.New("redis client is nil")

// RedisSessionRepository keeps one hash per chat identity with a sliding TTL.
type RedisSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisSessionRepository(client *redis.Client, ttl time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{client: client, ttl: ttl}
}

func sessionKey(identity string) string {
	return "chat_session:" + identity
}

func rateLimitKey(identity string) string {
	return "chat_rate:" + identity
}

func (r *RedisSessionRepository) GetSession(ctx context.Context, identity string) (*models.Session, error) {
	if r.client == nil {
		return nil, errNilClient
	}
	payload, err := r.client.HGet(ctx, sessionKey(identity), fieldPayload).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", identity, err)
	}

	var s models.Session
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", identity, err)
	}
	return &s, nil
}

// SetSession writes the hash and refreshes its TTL in one transaction.
func (r *RedisSessionRepository) SetSession(ctx context.Context, s *models.Session) error {
	if r.client == nil {
		return errNilClient
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.Identity, err)
	}

	key := sessionKey(s.Identity)
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			fieldStage, s.Stage.String(),
			fieldUpdatedAt, strconv.FormatInt(s.UpdatedAt.Unix(), 10),
			fieldPayload, data,
		)
		if r.ttl > 0 {
			p.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store session %s: %w", s.Identity, err)
	}
	return nil
}

func (r *RedisSessionRepository) ClearSession(ctx context.Context, identity string) error {
	if r.client == nil {
		return errNilClient
	}
	if err := r.client.Del(ctx, sessionKey(identity)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", identity, err)
	}
	return nil
}

// CheckRateLimit counts messages in a fixed window. INCR and EXPIRE NX run in one
// transaction; later hits keep the window set by the first one.
func (r *RedisSessionRepository) CheckRateLimit(ctx context.Context, identity string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}
	key := rateLimitKey(identity)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", identity, err)
	}
	return incr.Val() <= int64(limit), nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
