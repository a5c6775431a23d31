// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package progress

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisInvalidator implements [QueryCacheInvalidator] by deleting any cached
// query keys under the given prefixes from Redis via a SCAN cursor, rather
// than KEYS, so a large keyspace never blocks the server.
type RedisInvalidator struct {
	client *redis.Client
}

// NewRedisInvalidator constructs the default query-cache invalidator.
func NewRedisInvalidator(client *redis.Client) *RedisInvalidator {
	return &RedisInvalidator{client: client}
}

func (r *RedisInvalidator) Invalidate(ctx context.Context, keyPrefixes []string) error {
	for _, prefix := range keyPrefixes {
		if err := r.invalidatePrefix(ctx, prefix); err != nil {
			return err
		}
	}
	return nil
}

func (r *RedisInvalidator) invalidatePrefix(ctx context.Context, prefix string) error {
	pattern := prefix + "*"
	var cursor uint64

	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("redis: scan %q failed: %w", pattern, err)
		}

		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis: del under %q failed: %w", pattern, err)
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
