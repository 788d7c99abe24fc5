// Package redisx holds the Redis client setup and the webhook deduplication
// keys. Redis is only a fast path; the database stays authoritative.
package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	KeyWebhookDedup = "dedup:webhook:%s:%s"

	TTLDedup = 48 * time.Hour
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Deduper remembers payment references whose webhook already reached a
// terminal outcome.
type Deduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDeduper(rdb *redis.Client, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = TTLDedup
	}
	return &Deduper{rdb: rdb, ttl: ttl}
}

func (d *Deduper) Seen(ctx context.Context, gateway, reference string) (bool, error) {
	return Exists(ctx, d.rdb, fmt.Sprintf(KeyWebhookDedup, gateway, reference))
}

func (d *Deduper) Mark(ctx context.Context, gateway, reference string) error {
	return d.rdb.Set(ctx, fmt.Sprintf(KeyWebhookDedup, gateway, reference), "1", d.ttl).Err()
}
