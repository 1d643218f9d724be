package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultKey        = "queue:resolve_product"
	DefaultPopTimeout = 5 * time.Second
)

// RedisClient is the subset of the redis client the queue uses.
type RedisClient interface {
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
}

// RedisQueue shares tasks between processes through a redis list. Tasks are
// pushed on the left and popped from the right.
type RedisQueue struct {
	client     RedisClient
	key        string
	popTimeout time.Duration
	closed     atomic.Bool
}

func NewRedisQueue(client RedisClient, key string, popTimeout time.Duration) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	if popTimeout <= 0 {
		popTimeout = DefaultPopTimeout
	}
	return &RedisQueue{
		client:     client,
		key:        key,
		popTimeout: popTimeout,
	}
}

func (q *RedisQueue) Push(ctx context.Context, task *Task) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to push task: %w", err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		if q.closed.Load() {
			return nil, ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := q.client.BRPop(ctx, q.popTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("failed to pop task: %w", err)
		}
		if len(result) != 2 {
			return nil, fmt.Errorf("failed to pop task: unexpected reply %v", result)
		}

		var task Task
		if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task: %w", err)
		}
		return &task, nil
	}
}

func (q *RedisQueue) Size(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return int(n), nil
}

// Close stops this consumer. Tasks already in redis stay there.
func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	return nil
}
