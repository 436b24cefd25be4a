// Package queue is the Redis-backed queue store: per-queue FIFO lists plus
// per-job hash records. Queue membership and the job record are independent —
// a pop is not transactional with any record mutation, and callers must
// tolerate a popped id whose record briefly lags.
package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Queue is the queue store interface. Implementations must be safe for
// concurrent use across overlapping processor invocations.
type Queue interface {
	// Push appends a job id to the queue tail.
	Push(ctx context.Context, queueName string, jobID uuid.UUID) error
	// Pop removes and returns the oldest job id. Returns ok=false on empty.
	Pop(ctx context.Context, queueName string) (uuid.UUID, bool, error)
	// Length returns the number of entries currently on the queue.
	Length(ctx context.Context, queueName string) (int64, error)

	// SetJobFields merges fields into the job's record.
	SetJobFields(ctx context.Context, jobID uuid.UUID, fields map[string]string) error
	// GetJobFields returns the job's record. Returns ok=false when absent.
	GetJobFields(ctx context.Context, jobID uuid.UUID) (map[string]string, bool, error)

	// MarkInFlight registers a job as processing with a deadline after which
	// the sweeper may reclaim it.
	MarkInFlight(ctx context.Context, jobID uuid.UUID, deadline time.Time) error
	// ClearInFlight removes a job from the in-flight registry.
	ClearInFlight(ctx context.Context, jobID uuid.UUID) error
	// ExpiredInFlight returns job ids whose in-flight deadline passed.
	ExpiredInFlight(ctx context.Context, now time.Time) ([]uuid.UUID, error)

	// AddExpandedOnce records that a check was expanded for a batch group and
	// reports whether this call was the first to do so.
	AddExpandedOnce(ctx context.Context, groupID, checkID uuid.UUID) (bool, error)
	// RemoveExpanded releases an expansion reservation after a failed enqueue
	// so a retry can claim the check again.
	RemoveExpanded(ctx context.Context, groupID, checkID uuid.UUID) error

	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// RedisQueue implements the Queue interface using go-redis/v9.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue creates a new RedisQueue from a Redis URL.
func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisQueue{client: redis.NewClient(opts)}, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) Push(ctx context.Context, queueName string, jobID uuid.UUID) error {
	return q.client.LPush(ctx, QueueKey(queueName), jobID.String()).Err()
}

func (q *RedisQueue) Pop(ctx context.Context, queueName string) (uuid.UUID, bool, error) {
	val, err := q.client.RPop(ctx, QueueKey(queueName)).Result()
	if err == redis.Nil {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

func (q *RedisQueue) Length(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, QueueKey(queueName)).Result()
}

func (q *RedisQueue) SetJobFields(ctx context.Context, jobID uuid.UUID, fields map[string]string) error {
	args := make(map[string]any, len(fields))
	for k, v := range fields {
		args[k] = v
	}
	return q.client.HSet(ctx, JobKey(jobID), args).Err()
}

func (q *RedisQueue) GetJobFields(ctx context.Context, jobID uuid.UUID) (map[string]string, bool, error) {
	fields, err := q.client.HGetAll(ctx, JobKey(jobID)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	return fields, true, nil
}

func (q *RedisQueue) MarkInFlight(ctx context.Context, jobID uuid.UUID, deadline time.Time) error {
	return q.client.ZAdd(ctx, InFlightKey(), redis.Z{
		Score:  float64(deadline.UnixMilli()),
		Member: jobID.String(),
	}).Err()
}

func (q *RedisQueue) ClearInFlight(ctx context.Context, jobID uuid.UUID) error {
	return q.client.ZRem(ctx, InFlightKey(), jobID.String()).Err()
}

func (q *RedisQueue) ExpiredInFlight(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	vals, err := q.client.ZRangeByScore(ctx, InFlightKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(vals))
	for _, v := range vals {
		id, err := uuid.Parse(v)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (q *RedisQueue) AddExpandedOnce(ctx context.Context, groupID, checkID uuid.UUID) (bool, error) {
	added, err := q.client.SAdd(ctx, ExpandedKey(groupID), checkID.String()).Result()
	if err != nil {
		return false, err
	}
	return added == 1, nil
}

func (q *RedisQueue) RemoveExpanded(ctx context.Context, groupID, checkID uuid.UUID) error {
	return q.client.SRem(ctx, ExpandedKey(groupID), checkID.String()).Err()
}

func (q *RedisQueue) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := q.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
