// Package cache keeps per-wholesaler category lists in Redis (cache-aside).
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Categories is the cache contract used by the product service.
type Categories interface {
	// Get returns the cached list and whether it was present.
	Get(ctx context.Context, wholesalerID int64) ([]string, bool, error)
	// Set stores the list for the configured TTL.
	Set(ctx context.Context, wholesalerID int64, cats []string) error
	// Invalidate drops the cached list.
	Invalidate(ctx context.Context, wholesalerID int64) error
}

// Redis implements Categories on a go-redis client.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis builds a Redis-backed category cache.
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "rms:categories:"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (c *Redis) key(wholesalerID int64) string {
	return c.prefix + strconv.FormatInt(wholesalerID, 10)
}

// Get reads the cached list.
func (c *Redis) Get(ctx context.Context, wholesalerID int64) ([]string, bool, error) {
	data, err := c.client.Get(ctx, c.key(wholesalerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false, fmt.Errorf("cache decode: %w", err)
	}
	return out, true, nil
}

// Set writes the list.
func (c *Redis) Set(ctx context.Context, wholesalerID int64, cats []string) error {
	data, err := json.Marshal(cats)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.key(wholesalerID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate deletes the list.
func (c *Redis) Invalidate(ctx context.Context, wholesalerID int64) error {
	if err := c.client.Del(ctx, c.key(wholesalerID)).Err(); err != nil {
		return fmt.Errorf("cache del: %w", err)
	}
	return nil
}

// Nop caches nothing.
type Nop struct{}

func (Nop) Get(context.Context, int64) ([]string, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, int64, []string) error         { return nil }
func (Nop) Invalidate(context.Context, int64) error            { return nil }

// Connect dials Redis at addr and pings it. An empty addr or a failed ping yields nil,
// so callers fall back to Nop.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
