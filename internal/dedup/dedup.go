// Package dedup suppresses duplicate frames with a Redis TTL window, for
// deployments where several receivers feed the same bus.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisClient is the subset of redis operations the deduper uses; tests
// substitute a fake.
type redisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Close() error
}

// Deduper remembers recently seen frames for a TTL window.
type Deduper struct {
	client redisClient
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(addr string, ttl time.Duration) (*Deduper, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Deduper{client: client, ttl: ttl}, nil
}

// NewWithClient builds a Deduper around an existing client (useful for
// testing).
func NewWithClient(client redisClient, ttl time.Duration) *Deduper {
	return &Deduper{client: client, ttl: ttl}
}

// Seen records the frame and reports whether it was already present within
// the TTL window. On Redis errors it fails open: the frame is reported as
// unseen so decoding proceeds.
func (d *Deduper) Seen(ctx context.Context, frame string) (bool, error) {
	set, err := d.client.SetNX(ctx, "frame:"+frame, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return !set, nil
}

// Close closes the Redis connection.
func (d *Deduper) Close() error {
	return d.client.Close()
}
