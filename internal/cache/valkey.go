// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package cache provides the Valkey (Redis-compatible) client, the cache
// backend contract, and the read-through tree cache with shard-aware
// invalidation.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConnectValkey creates a Valkey client and verifies the connection with a ping.
func ConnectValkey(host, port, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("valkey ping: %w", err)
	}

	slog.Info("valkey connected", "addr", fmt.Sprintf("%s:%s", host, port))
	return client, nil
}

// Backend is the key-value contract the tree cache runs on. A tag is a key
// prefix namespace; DeleteByTag enumerates and removes every key under it,
// which is how bulk invalidation works on a store without native tags.
type Backend interface {
	// Get returns the stored value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// DeleteByKey removes a single key. Removing an absent key is a no-op.
	DeleteByKey(ctx context.Context, key string) error

	// DeleteByTag removes every key under the tag prefix and returns how
	// many were deleted. Deleting an empty tag is a no-op.
	DeleteByTag(ctx context.Context, tag string) (int, error)
}

// scanBatchSize is how many keys one SCAN iteration requests.
const scanBatchSize = 100

// ValkeyBackend implements Backend on a Valkey client.
type ValkeyBackend struct {
	client *redis.Client
}

// NewValkeyBackend wraps a connected Valkey client.
func NewValkeyBackend(client *redis.Client) *ValkeyBackend {
	return &ValkeyBackend{client: client}
}

// Get retrieves a value. A missing key is (nil, false, nil), not an error.
func (b *ValkeyBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("valkey get: %w", err)
	}
	return val, true, nil
}

// Set stores a value with the given TTL.
func (b *ValkeyBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := b.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("valkey set: %w", err)
	}
	return nil
}

// DeleteByKey removes a single key.
func (b *ValkeyBackend) DeleteByKey(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("valkey del: %w", err)
	}
	return nil
}

// DeleteByTag removes every key under the tag prefix by scanning. Flushing
// a tag with no keys is a no-op, so repeated flushes are harmless.
func (b *ValkeyBackend) DeleteByTag(ctx context.Context, tag string) (int, error) {
	var cursor uint64
	deleted := 0
	for {
		keys, nextCursor, err := b.client.Scan(ctx, cursor, tag+"*", scanBatchSize).Result()
		if err != nil {
			return deleted, fmt.Errorf("valkey scan %q: %w", tag, err)
		}
		if len(keys) > 0 {
			if err := b.client.Del(ctx, keys...).Err(); err != nil {
				return deleted, fmt.Errorf("valkey bulk del %q: %w", tag, err)
			}
			deleted += len(keys)
		}
		cursor = nextCursor
		if cursor == 0 {
			return deleted, nil
		}
	}
}
