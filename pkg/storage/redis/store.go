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

// Package redis provides a storage.StateStore backed by Redis. The stateful
// compare-and-swap runs server-side as a Lua script, and create-once writes
// use SETNX. Durability follows the server's persistence configuration; run
// Redis with AOF and appendfsync always when it holds live signing state.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jeremyhahn/go-xmss/pkg/storage"
	"github.com/jeremyhahn/go-xmss/pkg/types"
)

const defaultKeyPrefix = "xmss"

// Config configures the Redis connection.
type Config struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// KeyPrefix namespaces all keys. Defaults to "xmss".
	KeyPrefix string `yaml:"key_prefix"`

	// OperationTimeout bounds each store call. Defaults to 5s.
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// Store is a storage.StateStore for one key in Redis.
type Store struct {
	client  redisClient
	prefix  string
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

var _ storage.StateStore = (*Store)(nil)

// New connects to Redis and returns a store for the key called name.
func New(cfg *Config, name string) (*Store, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	client, err := newGoRedisClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("redis storage: %w", err)
	}
	return newStore(client, cfg, name), nil
}

func newStore(client redisClient, cfg *Config, name string) *Store {
	prefix := defaultKeyPrefix
	timeout := 5 * time.Second
	if cfg != nil {
		if cfg.KeyPrefix != "" {
			prefix = cfg.KeyPrefix
		}
		if cfg.OperationTimeout > 0 {
			timeout = cfg.OperationTimeout
		}
	}
	return &Store{
		client:  client,
		prefix:  prefix + ":" + name + ":",
		timeout: timeout,
	}
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, ":\x00") {
		return fmt.Errorf("redis storage: %w: %q", storage.ErrInvalidID, name)
	}
	return nil
}

func (s *Store) key(part types.KeyPart) string {
	return s.prefix + part.String()
}

func (s *Store) opContext() (context.Context, context.CancelFunc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, nil, storage.ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	return ctx, cancel, nil
}

// Store writes data into an empty slot using SETNX.
func (s *Store) Store(part types.KeyPart, data []byte) error {
	if err := storage.ValidatePart(part); err != nil {
		return err
	}
	ctx, cancel, err := s.opContext()
	if err != nil {
		return err
	}
	defer cancel()

	created, err := s.client.SetNX(ctx, s.key(part), data)
	if err != nil {
		return fmt.Errorf("redis storage: failed to store %s: %w", part, err)
	}
	if !created {
		return storage.ErrAlreadyExists
	}
	return nil
}

// StoreStatefulPart runs the compare-and-swap script.
func (s *Store) StoreStatefulPart(expected, data []byte) error {
	if len(expected) != len(data) {
		return storage.ErrSizeMismatch
	}
	ctx, cancel, err := s.opContext()
	if err != nil {
		return err
	}
	defer cancel()

	result, err := s.client.CompareAndSwap(ctx, s.key(types.PrivateStateful), expected, data)
	if err != nil {
		return fmt.Errorf("redis storage: failed to compare-and-swap stateful part: %w", err)
	}
	switch result {
	case casSwapped:
		return nil
	case casContentMismatch:
		return storage.ErrContentMismatch
	case casMissing:
		return storage.ErrNotFound
	case casSizeMismatch:
		return storage.ErrSizeMismatch
	default:
		return fmt.Errorf("redis storage: unexpected compare-and-swap result %d", result)
	}
}

// Load returns the slot contents.
func (s *Store) Load(part types.KeyPart) ([]byte, error) {
	if err := storage.ValidatePart(part); err != nil {
		return nil, err
	}
	ctx, cancel, err := s.opContext()
	if err != nil {
		return nil, err
	}
	defer cancel()

	value, err := s.client.Get(ctx, s.key(part))
	if err != nil {
		if errors.Is(err, errNil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("redis storage: failed to load %s: %w", part, err)
	}
	return value, nil
}

// DeletePublicPart removes the public slot.
func (s *Store) DeletePublicPart() error {
	ctx, cancel, err := s.opContext()
	if err != nil {
		return err
	}
	defer cancel()

	if _, err := s.client.Del(ctx, s.key(types.Public)); err != nil {
		return fmt.Errorf("redis storage: failed to delete public part: %w", err)
	}
	return nil
}

// Purge deletes all slots with a single DEL, which Redis applies atomically.
func (s *Store) Purge() error {
	ctx, cancel, err := s.opContext()
	if err != nil {
		return err
	}
	defer cancel()

	keys := make([]string, 0, len(types.KeyParts))
	for _, part := range types.KeyParts {
		keys = append(keys, s.key(part))
	}
	if _, err := s.client.Del(ctx, keys...); err != nil {
		return fmt.Errorf("redis storage: failed to purge: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
