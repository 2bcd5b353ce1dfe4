package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/peakform/peakform-backend/internal/platform/logger"
)

// RedisQueue carries step invocations on a redis LIST, with a companion ZSET
// holding retries scheduled for the future (scored by ready time, promoted
// back onto the LIST when due). The pair gives at-least-once delivery with
// backoff without the application managing its own timers.
type RedisQueue struct {
	log        *logger.Logger
	rdb        *goredis.Client
	pendingKey string
	delayedKey string
}

func NewRedisQueue(log *logger.Logger, addr string, keyPrefix string) (*RedisQueue, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	if keyPrefix == "" {
		keyPrefix = "peakform:stepq"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisQueue{
		log:        log.With("service", "RedisQueue"),
		rdb:        rdb,
		pendingKey: keyPrefix,
		delayedKey: keyPrefix + ":delayed",
	}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, inv Invocation) error {
	if q == nil || q.rdb == nil {
		return fmt.Errorf("redis queue not initialized")
	}
	raw, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, q.pendingKey, raw).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

// Pop blocks up to timeout waiting for the next pending invocation.
// Returns (nil, nil) on timeout.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Invocation, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.pendingKey).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected brpop reply of length %d", len(res))
	}
	var inv Invocation
	if err := json.Unmarshal([]byte(res[1]), &inv); err != nil {
		return nil, fmt.Errorf("decode invocation: %w", err)
	}
	return &inv, nil
}

// ScheduleRetry parks an invocation in the delayed set until readyAt.
func (q *RedisQueue) ScheduleRetry(ctx context.Context, inv Invocation, readyAt time.Time) error {
	raw, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	return q.rdb.ZAdd(ctx, q.delayedKey, goredis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: raw,
	}).Err()
}

// PromoteDue moves every delayed invocation whose ready time has passed back
// onto the pending list. Removal happens per member before the push, so a
// crash mid-promotion loses nothing (the member is either still delayed or
// already pending).
func (q *RedisQueue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	members, err := q.rdb.ZRangeByScore(ctx, q.delayedKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, m := range members {
		removed, err := q.rdb.ZRem(ctx, q.delayedKey, m).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			// another promoter got it first
			continue
		}
		if err := q.rdb.LPush(ctx, q.pendingKey, m).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// Client exposes the underlying redis client for collaborators that share
// the connection (pub/sub notifications).
func (q *RedisQueue) Client() *goredis.Client { return q.rdb }

func (q *RedisQueue) Close() error {
	if q == nil || q.rdb == nil {
		return nil
	}
	return q.rdb.Close()
}
