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

package mocks

import (
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-xmss/pkg/storage"
	"github.com/jeremyhahn/go-xmss/pkg/types"
)

// Op names a StateStore method for fault injection and call counting.
type Op string

const (
	OpStore             Op = "Store"
	OpStoreStatefulPart Op = "StoreStatefulPart"
	OpLoad              Op = "Load"
	OpDeletePublicPart  Op = "DeletePublicPart"
	OpPurge             Op = "Purge"
	OpClose             Op = "Close"
)

type failure struct {
	countdown int
	err       error
}

// MockStateStore is a mock implementation of storage.StateStore for testing.
// Data lives in a storage.MemoryStore; every method can be overridden or
// made to fail, and all calls are recorded.
type MockStateStore struct {
	mu      sync.Mutex
	backing *storage.MemoryStore

	// Configurable behavior
	StoreFunc             func(part types.KeyPart, data []byte) error
	StoreStatefulPartFunc func(expected, data []byte) error
	LoadFunc              func(part types.KeyPart) ([]byte, error)
	DeletePublicPartFunc  func() error
	PurgeFunc             func() error

	// Call tracking
	Calls          []string
	StatefulWrites int

	counts   map[Op]int
	failures map[Op]*failure
}

var _ storage.StateStore = (*MockStateStore)(nil)

// NewMockStateStore creates a new, empty MockStateStore.
func NewMockStateStore() *MockStateStore {
	return &MockStateStore{
		backing:  storage.NewMemoryStore(),
		counts:   make(map[Op]int),
		failures: make(map[Op]*failure),
	}
}

// Backing returns the store holding the mock's data. Writes made through it
// are not recorded.
func (m *MockStateStore) Backing() *storage.MemoryStore {
	return m.backing
}

// FailOn makes the nth following call of op return err without touching
// the data. A non-positive nth fails every following call.
func (m *MockStateStore) FailOn(op Op, nth int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = &failure{countdown: nth, err: err}
}

// ClearFailures removes all injected failures.
func (m *MockStateStore) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = make(map[Op]*failure)
}

// CallCount returns how many times op was called.
func (m *MockStateStore) CallCount(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[op]
}

// Mutations returns the number of calls to mutating methods.
func (m *MockStateStore) Mutations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[OpStore] + m.counts[OpStoreStatefulPart] + m.counts[OpDeletePublicPart] + m.counts[OpPurge]
}

// Reset clears call tracking.
func (m *MockStateStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.StatefulWrites = 0
	m.counts = make(map[Op]int)
}

// record tracks a call and returns an injected failure, if any.
func (m *MockStateStore) record(op Op, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counts[op]++
	if detail != "" {
		m.Calls = append(m.Calls, fmt.Sprintf("%s(%s)", op, detail))
	} else {
		m.Calls = append(m.Calls, string(op))
	}

	f, ok := m.failures[op]
	if !ok {
		return nil
	}
	if f.countdown <= 0 {
		return f.err
	}
	f.countdown--
	if f.countdown == 0 {
		delete(m.failures, op)
		return f.err
	}
	return nil
}

// Store writes data into an empty slot.
func (m *MockStateStore) Store(part types.KeyPart, data []byte) error {
	if err := m.record(OpStore, part.String()); err != nil {
		return err
	}
	if m.StoreFunc != nil {
		return m.StoreFunc(part, data)
	}
	return m.backing.Store(part, data)
}

// StoreStatefulPart swaps the stateful slot.
func (m *MockStateStore) StoreStatefulPart(expected, data []byte) error {
	if err := m.record(OpStoreStatefulPart, ""); err != nil {
		return err
	}
	var err error
	if m.StoreStatefulPartFunc != nil {
		err = m.StoreStatefulPartFunc(expected, data)
	} else {
		err = m.backing.StoreStatefulPart(expected, data)
	}
	if err == nil {
		m.mu.Lock()
		m.StatefulWrites++
		m.mu.Unlock()
	}
	return err
}

// Load returns the slot contents.
func (m *MockStateStore) Load(part types.KeyPart) ([]byte, error) {
	if err := m.record(OpLoad, part.String()); err != nil {
		return nil, err
	}
	if m.LoadFunc != nil {
		return m.LoadFunc(part)
	}
	return m.backing.Load(part)
}

// DeletePublicPart removes the public slot.
func (m *MockStateStore) DeletePublicPart() error {
	if err := m.record(OpDeletePublicPart, ""); err != nil {
		return err
	}
	if m.DeletePublicPartFunc != nil {
		return m.DeletePublicPartFunc()
	}
	return m.backing.DeletePublicPart()
}

// Purge erases all slots.
func (m *MockStateStore) Purge() error {
	if err := m.record(OpPurge, ""); err != nil {
		return err
	}
	if m.PurgeFunc != nil {
		return m.PurgeFunc()
	}
	return m.backing.Purge()
}

// Close is recorded but leaves the data readable so tests can inspect it.
func (m *MockStateStore) Close() error {
	return m.record(OpClose, "")
}
