// Package queue carries deferred fan-out jobs through a Redis list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"feedcraft/internal/dispatch"
)

var _ dispatch.Queue = (*Redis)(nil)

// Redis is a FIFO job queue: LPUSH to enqueue, BRPOP to consume. Jobs that
// exhaust their attempts move to the "<key>:dead" list.
type Redis struct {
	rdb *goredis.Client
	key string
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr, key string) (*Redis, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, key), nil
}

// New wraps an existing client.
func New(rdb *goredis.Client, key string) *Redis {
	return &Redis{rdb: rdb, key: key}
}

func (q *Redis) Key() string     { return q.key }
func (q *Redis) DeadKey() string { return q.key + ":dead" }

func (q *Redis) Enqueue(ctx context.Context, job dispatch.Job) error {
	return q.push(ctx, q.key, job)
}

// Bury parks a job that will not be retried.
func (q *Redis) Bury(ctx context.Context, job dispatch.Job) error {
	return q.push(ctx, q.DeadKey(), job)
}

func (q *Redis) push(ctx context.Context, key string, job dispatch.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding %s job: %w", job.Type, err)
	}
	if err := q.rdb.LPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("pushing %s job: %w", job.Type, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job. It returns nil when none arrived.
func (q *Redis) Dequeue(ctx context.Context, timeout time.Duration) (*dispatch.Job, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("popping job: %w", err)
	}
	// res is [key, value]
	var job dispatch.Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("decoding job: %w", err)
	}
	return &job, nil
}

// Len reports pending and dead job counts.
func (q *Redis) Len(ctx context.Context) (pending, dead int64, err error) {
	pending, err = q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("counting jobs: %w", err)
	}
	dead, err = q.rdb.LLen(ctx, q.DeadKey()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("counting dead jobs: %w", err)
	}
	return pending, dead, nil
}

func (q *Redis) Close() error {
	return q.rdb.Close()
}
