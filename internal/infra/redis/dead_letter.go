package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dvanle/relay/internal/core/domain"
)

// DeadLetterRepo implements DeadLetterRepository using Redis.
//
// Records are kept under per-record keys with a TTL and ordered by a
// sorted set scored with the failure time, so Pop drains oldest first.
type DeadLetterRepo struct {
	rdb       *redis.Client
	namespace string
}

// NewDeadLetterRepo creates a new Redis-backed dead-letter repository.
func NewDeadLetterRepo(client *Client, namespace string) *DeadLetterRepo {
	return &DeadLetterRepo{
		rdb:       client.rdb,
		namespace: namespace,
	}
}

// Key helpers
func (r *DeadLetterRepo) queueKey() string {
	return fmt.Sprintf("dead_letters:%s", r.namespace)
}

func (r *DeadLetterRepo) recordKey(id string) string {
	return fmt.Sprintf("dead_letter:%s:%s", r.namespace, id)
}

// Add adds a dead record to the queue.
func (r *DeadLetterRepo) Add(ctx context.Context, rec *domain.DeadRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal dead record: %w", err)
	}

	id := rec.Record.ID.String()

	// Store the data
	if err := r.rdb.Set(ctx, r.recordKey(id), data, 7*24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to set dead record: %w", err)
	}

	// Add to sorted set (score = failure time, oldest drained first)
	if err := r.rdb.ZAdd(ctx, r.queueKey(), redis.Z{
		Score:  float64(rec.FailedAt.UnixNano()),
		Member: id,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to queue: %w", err)
	}

	return nil
}

// Pop removes and returns the oldest dead record, or nil when empty.
func (r *DeadLetterRepo) Pop(ctx context.Context) (*domain.DeadRecord, error) {
	results, err := r.rdb.ZRange(ctx, r.queueKey(), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	if len(results) == 0 {
		return nil, nil
	}

	id := results[0]

	data, err := r.rdb.Get(ctx, r.recordKey(id)).Bytes()
	if err == redis.Nil {
		// Data expired but ID still in queue, remove it
		r.rdb.ZRem(ctx, r.queueKey(), id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dead record: %w", err)
	}

	var rec domain.DeadRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dead record: %w", err)
	}

	// Remove from queue and delete data
	if err := r.rdb.ZRem(ctx, r.queueKey(), id).Err(); err != nil {
		return nil, fmt.Errorf("failed to remove from queue: %w", err)
	}
	if err := r.rdb.Del(ctx, r.recordKey(id)).Err(); err != nil {
		return nil, fmt.Errorf("failed to delete dead record: %w", err)
	}

	return &rec, nil
}

// All retrieves all dead records without removing them.
func (r *DeadLetterRepo) All(ctx context.Context) ([]*domain.DeadRecord, error) {
	ids, err := r.rdb.ZRange(ctx, r.queueKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	records := make([]*domain.DeadRecord, 0, len(ids))
	for _, id := range ids {
		data, err := r.rdb.Get(ctx, r.recordKey(id)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get dead record: %w", err)
		}

		var rec domain.DeadRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}

	return records, nil
}

// Count returns the count of dead records.
func (r *DeadLetterRepo) Count(ctx context.Context) (int64, error) {
	count, err := r.rdb.ZCard(ctx, r.queueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return count, nil
}
