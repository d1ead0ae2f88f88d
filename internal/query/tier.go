package query

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"nexora/internal/cache"
)

const tierNamespace = "query"

// Tier is a shared second-level store for successful results.
type Tier interface {
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	Set(ctx context.Context, key Key, value []byte) error
	// DeleteTree removes key and all keys it prefixes.
	DeleteTree(ctx context.Context, key Key) error
}

// RedisTier keeps results as JSON strings under "query:<key>" with a TTL.
type RedisTier struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisTier returns a tier backed by rdb.
func NewRedisTier(rdb *redis.Client, ttl time.Duration) *RedisTier {
	return &RedisTier{rdb: rdb, ttl: ttl}
}

func (t *RedisTier) redisKey(key Key) string {
	return tierNamespace + ":" + key.String()
}

// Get returns the raw JSON stored for key.
func (t *RedisTier) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	var raw json.RawMessage
	found, err := cache.GetJSON(ctx, t.rdb, t.redisKey(key), &raw)
	if err != nil || !found {
		return nil, false, err
	}
	return raw, true, nil
}

// Set stores value, which must already be JSON.
func (t *RedisTier) Set(ctx context.Context, key Key, value []byte) error {
	if !json.Valid(value) {
		return errors.New("query: tier value is not valid JSON")
	}
	return cache.SetJSON(ctx, t.rdb, t.redisKey(key), json.RawMessage(value), t.ttl)
}

// DeleteTree removes key and every key below it.
func (t *RedisTier) DeleteTree(ctx context.Context, key Key) error {
	return cache.DeleteTree(ctx, t.rdb, t.redisKey(key))
}
