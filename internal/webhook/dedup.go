package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper guards event processing against webhook redelivery. Begin claims
// the event ID; Release gives the claim back so a failed event can be retried
// on the next delivery.
type Deduper interface {
	Begin(ctx context.Context, eventID string) (duplicate bool, err error)
	Release(ctx context.Context, eventID string) error
}

const dedupKeyPrefix = "stripe:event:"

type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) Begin(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupKeyPrefix+eventID, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !ok, nil
}

func (d *RedisDeduper) Release(ctx context.Context, eventID string) error {
	return d.client.Del(ctx, dedupKeyPrefix+eventID).Err()
}
