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

// Package storage defines the persistence contract for XMSS private key
// material and provides an in-memory implementation. Durable backends live in
// the file, badger, redis and vault subpackages.
package storage

import (
	"crypto/subtle"
	"io/fs"

	"github.com/jeremyhahn/go-xmss/pkg/types"
)

// StateStore persists the three slots of a single XMSS key. The stateless and
// public slots are create-once. The stateful slot is written once by Store and
// afterwards only by StoreStatefulPart.
//
// Implementations must be safe for concurrent use, but the signing layer
// assumes a single writer per persisted key and does not rely on cross-process
// locking.
type StateStore interface {
	// Store writes data into an empty slot.
	// Returns ErrAlreadyExists if the slot is occupied.
	Store(part types.KeyPart, data []byte) error

	// StoreStatefulPart replaces the stateful slot with data if and only if the
	// persisted value equals expected byte-for-byte.
	// Returns ErrSizeMismatch if the lengths differ, ErrNotFound if the slot is
	// empty and ErrContentMismatch if the persisted bytes differ.
	StoreStatefulPart(expected, data []byte) error

	// Load returns a copy of the slot contents.
	// Returns ErrNotFound if the slot is empty.
	Load(part types.KeyPart) ([]byte, error)

	// DeletePublicPart removes the public slot. Absence is not an error.
	DeletePublicPart() error

	// Purge overwrites the private slots and removes every slot.
	// Purging an empty store succeeds.
	Purge() error

	// Close releases any resources held by the store.
	Close() error
}

// Options contains optional parameters for durable stores.
type Options struct {
	// Permissions sets the public slot file permissions for file-based stores
	Permissions fs.FileMode
}

// CheckSwap validates a compare-and-swap of the stateful slot against its
// current persisted value. Backends call it while holding whatever lock or
// transaction makes the subsequent write atomic.
func CheckSwap(current, expected, data []byte) error {
	if len(expected) != len(data) || len(current) != len(expected) {
		return ErrSizeMismatch
	}
	if subtle.ConstantTimeCompare(current, expected) != 1 {
		return ErrContentMismatch
	}
	return nil
}

// Zeroize overwrites b with zeros.
func Zeroize(b []byte) {
	clear(b)
}

// ValidatePart returns ErrInvalidPart for slots outside the defined set.
func ValidatePart(part types.KeyPart) error {
	if !part.IsValid() {
		return ErrInvalidPart
	}
	return nil
}
