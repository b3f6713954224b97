package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tally/internal/model"
)

var ErrCacheMiss = errors.New("transaction not found in cache")

// TransactionCache keeps transaction projections in Redis for lookups by correlation id.
// Records never change once written, so an entry is never stale; the TTL only bounds memory.
type TransactionCache struct {
	redisClient *redis.Client
	ttl         time.Duration
}

func NewTransactionCache(rdb *redis.Client, ttl time.Duration) *TransactionCache {
	return &TransactionCache{redisClient: rdb, ttl: ttl}
}

func transactionKey(transactionID string) string {
	return fmt.Sprintf("txn:%s", transactionID)
}

func (c *TransactionCache) Get(ctx context.Context, transactionID string) (*model.TransactionResult, error) {
	data, err := c.redisClient.Get(ctx, transactionKey(transactionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("read transaction %s from Redis: %w", transactionID, err)
	}

	var res model.TransactionResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode cached transaction %s: %w", transactionID, err)
	}
	return &res, nil
}

func (c *TransactionCache) Set(ctx context.Context, res *model.TransactionResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode transaction %s: %w", res.TransactionID, err)
	}
	if err := c.redisClient.Set(ctx, transactionKey(res.TransactionID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save transaction %s to Redis: %w", res.TransactionID, err)
	}
	return nil
}
