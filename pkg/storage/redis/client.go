// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-xmss.
//
// go-xmss is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// casScript atomically replaces KEYS[1] with ARGV[2] when it equals ARGV[1].
// Returns 1 on success, 0 on content mismatch, -1 when the key is missing
// and -2 when the persisted length differs.
const casScript = `
local current = redis.call('GET', KEYS[1])
if not current then
	return -1
end
if string.len(current) ~= string.len(ARGV[1]) then
	return -2
end
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2])
return 1
`

const (
	casSwapped         int64 = 1
	casContentMismatch int64 = 0
	casMissing         int64 = -1
	casSizeMismatch    int64 = -2
)

// errNil is returned by redisClient.Get when the key does not exist.
var errNil = errors.New("redis: nil")

// redisClient is the subset of Redis operations the store needs.
type redisClient interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
	CompareAndSwap(ctx context.Context, key string, expected, value []byte) (int64, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// goRedisClient implements redisClient on top of go-redis.
type goRedisClient struct {
	client *goredis.Client
	cas    *goredis.Script
}

var _ redisClient = (*goRedisClient)(nil)

func newGoRedisClient(cfg *Config) (redisClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	opts := &goredis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &goRedisClient{
		client: client,
		cas:    goredis.NewScript(casScript),
	}, nil
}

func (c *goRedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, errNil
		}
		return nil, err
	}
	return value, nil
}

func (c *goRedisClient) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	return c.client.SetNX(ctx, key, value, 0).Result()
}

func (c *goRedisClient) CompareAndSwap(ctx context.Context, key string, expected, value []byte) (int64, error) {
	return c.cas.Run(ctx, c.client, []string{key}, expected, value).Int64()
}

func (c *goRedisClient) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return c.client.Del(ctx, keys...).Result()
}

func (c *goRedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *goRedisClient) Close() error {
	return c.client.Close()
}
