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

// Package badger provides a storage.StateStore backed by an embedded
// BadgerDB instance. Several keys may share one database; each key's slots
// live under their own prefix. Compare-and-swap runs inside a single
// read-write transaction.
package badger

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v3"

	"github.com/jeremyhahn/go-xmss/pkg/adapters/logger"
	"github.com/jeremyhahn/go-xmss/pkg/storage"
	"github.com/jeremyhahn/go-xmss/pkg/types"
)

const keyPrefix = "xmss/"

// Config configures the underlying database.
type Config struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir string `yaml:"dir"`

	// InMemory keeps all data in memory. Intended for tests.
	InMemory bool `yaml:"in_memory"`

	// DisableSyncWrites turns off fsync on commit. Leaving sync enabled is
	// required for crash safety of the stateful slot.
	DisableSyncWrites bool `yaml:"disable_sync_writes"`

	// Logger receives BadgerDB's internal log output. Nil discards it.
	Logger logger.Logger `yaml:"-"`
}

// OpenDB opens a BadgerDB instance for use with New.
func OpenDB(cfg Config) (*badgerdb.DB, error) {
	var opts badgerdb.Options
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, fmt.Errorf("badger storage: data directory cannot be empty")
		}
		opts = badgerdb.DefaultOptions(cfg.Dir)
		opts.SyncWrites = !cfg.DisableSyncWrites
	}

	// Slot values are tiny; keep the caches small.
	opts.MemTableSize = 16 << 20
	opts.BlockCacheSize = 16 << 20
	opts.IndexCacheSize = 8 << 20
	opts.NumMemtables = 2

	if cfg.Logger != nil {
		opts.Logger = &badgerLogger{logger: cfg.Logger.With(logger.String("component", "badger"))}
	} else {
		opts.Logger = nil
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger storage: failed to open database: %w", err)
	}
	return db, nil
}

// Store is a storage.StateStore for one key inside a BadgerDB instance.
type Store struct {
	db     *badgerdb.DB
	name   string
	ownsDB bool

	mu     sync.Mutex
	closed bool
}

var _ storage.StateStore = (*Store)(nil)

// New returns a store for the key called name inside db. Closing the store
// does not close db.
func New(db *badgerdb.DB, name string) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("badger storage: database cannot be nil")
	}
	if name == "" || strings.ContainsAny(name, "/\x00") {
		return nil, fmt.Errorf("badger storage: %w: %q", storage.ErrInvalidID, name)
	}
	return &Store{db: db, name: name}, nil
}

// Open opens a dedicated database and returns a store that closes it on Close.
func Open(cfg Config, name string) (*Store, error) {
	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	s, err := New(db, name)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

func (s *Store) key(part types.KeyPart) []byte {
	return []byte(keyPrefix + s.name + "/" + part.String())
}

func (s *Store) begin() error {
	if s.closed {
		return storage.ErrClosed
	}
	return nil
}

// Store writes data into an empty slot.
func (s *Store) Store(part types.KeyPart, data []byte) error {
	if err := storage.ValidatePart(part); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(s.key(part))
		switch {
		case err == nil:
			return storage.ErrAlreadyExists
		case !errors.Is(err, badgerdb.ErrKeyNotFound):
			return err
		}
		return txn.Set(s.key(part), append([]byte(nil), data...))
	})
	return wrap("store "+part.String(), err)
}

// StoreStatefulPart performs the compare-and-swap in one transaction.
func (s *Store) StoreStatefulPart(expected, data []byte) error {
	if len(expected) != len(data) {
		return storage.ErrSizeMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return err
	}

	key := s.key(types.PrivateStateful)
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		current, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		defer storage.Zeroize(current)

		if err := storage.CheckSwap(current, expected, data); err != nil {
			return err
		}
		return txn.Set(key, append([]byte(nil), data...))
	})
	return wrap("compare-and-swap stateful part", err)
}

// Load returns a copy of the slot contents.
func (s *Store) Load(part types.KeyPart) ([]byte, error) {
	if err := storage.ValidatePart(part); err != nil {
		return nil, err
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, storage.ErrClosed
	}

	var value []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(s.key(part))
		if err != nil {
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, wrap("load "+part.String(), err)
	}
	return value, nil
}

// DeletePublicPart removes the public slot.
func (s *Store) DeletePublicPart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(s.key(types.Public))
	})
	return wrap("delete public part", err)
}

// Purge removes all slots in one transaction. Superseded versions of the
// private values are discarded by the next compaction.
func (s *Store) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		for _, part := range types.KeyParts {
			if err := txn.Delete(s.key(part)); err != nil {
				return err
			}
		}
		return nil
	})
	return wrap("purge", err)
}

// Close releases the store. The database is closed only if Open created it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.ownsDB {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("badger storage: failed to close database: %w", err)
		}
	}
	return nil
}

// wrap passes contract errors through unchanged and annotates everything else.
func wrap(op string, err error) error {
	if err == nil || storage.IsContractError(err) {
		return err
	}
	return fmt.Errorf("badger storage: failed to %s: %w", op, err)
}

// badgerLogger routes BadgerDB's printf-style logging into a Logger.
type badgerLogger struct {
	logger logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
