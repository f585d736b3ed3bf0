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

package storage

import (
	"sync"

	"github.com/jeremyhahn/go-xmss/pkg/types"
)

// MemoryStore provides an in-memory StateStore.
// This is useful for testing and ephemeral deployments. Replaced and purged
// private bytes are zeroized.
// Thread-safe using a read-write mutex.
type MemoryStore struct {
	slots  map[types.KeyPart][]byte
	mu     sync.RWMutex
	closed bool
}

// NewMemoryStore creates a new, empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots: make(map[types.KeyPart][]byte),
	}
}

// New creates a new in-memory store.
// For persistent storage, use file.New() with a directory path.
func New() StateStore {
	return NewMemoryStore()
}

// Store writes data into an empty slot.
func (m *MemoryStore) Store(part types.KeyPart, data []byte) error {
	if err := ValidatePart(part); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if _, exists := m.slots[part]; exists {
		return ErrAlreadyExists
	}

	// Store a copy to prevent modification
	m.slots[part] = append([]byte(nil), data...)
	return nil
}

// StoreStatefulPart performs the compare-and-swap of the stateful slot.
func (m *MemoryStore) StoreStatefulPart(expected, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if len(expected) != len(data) {
		return ErrSizeMismatch
	}
	current, exists := m.slots[types.PrivateStateful]
	if !exists {
		return ErrNotFound
	}
	if err := CheckSwap(current, expected, data); err != nil {
		return err
	}

	Zeroize(current)
	m.slots[types.PrivateStateful] = append([]byte(nil), data...)
	return nil
}

// Load returns a copy of the slot contents.
func (m *MemoryStore) Load(part types.KeyPart) ([]byte, error) {
	if err := ValidatePart(part); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	value, exists := m.slots[part]
	if !exists {
		return nil, ErrNotFound
	}

	// Return a copy to prevent modification
	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

// DeletePublicPart removes the public slot.
func (m *MemoryStore) DeletePublicPart() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	delete(m.slots, types.Public)
	return nil
}

// Purge zeroizes the private slots and removes everything.
func (m *MemoryStore) Purge() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.purgeLocked()
	return nil
}

func (m *MemoryStore) purgeLocked() {
	for part, value := range m.slots {
		if part.IsPrivate() {
			Zeroize(value)
		}
		delete(m.slots, part)
	}
}

// Exists reports whether a slot is occupied.
func (m *MemoryStore) Exists(part types.KeyPart) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.slots[part]
	return exists
}

// Close zeroizes all private material and releases the store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.purgeLocked()
	m.closed = true
	m.slots = nil
	return nil
}
