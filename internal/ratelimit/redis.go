package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/confreg/backend/pkg/utils"
)

const (
	attemptsPrefix = "ratelimit:attempts:"
	lockPrefix     = "ratelimit:lock:"
)

// RedisLimiter shares attempt counts between API instances.
// Attempts live in a sorted set scored by unix-nano time; a lockout is a key with a TTL.
type RedisLimiter struct {
	client *redis.Client
	policy Policy
	now    func() time.Time
}

// NewRedisLimiter creates a Redis-backed Limiter.
func NewRedisLimiter(client *redis.Client, policy Policy) *RedisLimiter {
	return &RedisLimiter{client: client, policy: policy.withDefaults(), now: time.Now}
}

// Check implements Limiter.
func (l *RedisLimiter) Check(ctx context.Context, key string) (Decision, error) {
	ttl, err := l.client.PTTL(ctx, lockPrefix+key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("redis pttl: %w", err)
	}
	if ttl > 0 {
		return Decision{RetryAfter: ttl}, nil
	}
	return Decision{Allowed: true}, nil
}

// Fail implements Limiter.
func (l *RedisLimiter) Fail(ctx context.Context, key string) (Decision, error) {
	if d, err := l.Check(ctx, key); err != nil || !d.Allowed {
		return d, err
	}
	nonce, err := utils.GenerateToken(6)
	if err != nil {
		return Decision{}, err
	}
	now := l.now()
	setKey := attemptsPrefix + key
	cutoff := now.Add(-l.policy.Window).UnixNano()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, setKey, "-inf", strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, setKey, redis.Z{Score: float64(now.UnixNano()), Member: strconv.FormatInt(now.UnixNano(), 10) + "-" + nonce})
	count := pipe.ZCard(ctx, setKey)
	pipe.PExpire(ctx, setKey, l.policy.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("redis record attempt: %w", err)
	}

	if count.Val() >= int64(l.policy.MaxAttempts) {
		lock := l.client.TxPipeline()
		lock.Set(ctx, lockPrefix+key, "1", l.policy.Lockout)
		lock.Del(ctx, setKey)
		if _, err := lock.Exec(ctx); err != nil {
			return Decision{}, fmt.Errorf("redis lock: %w", err)
		}
		return Decision{RetryAfter: l.policy.Lockout}, nil
	}
	return Decision{Allowed: true}, nil
}

// Reset implements Limiter.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, attemptsPrefix+key, lockPrefix+key).Err()
}
