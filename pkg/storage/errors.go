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

import "errors"

var (
	// ErrClosed is returned when attempting to use a closed store.
	ErrClosed = errors.New("storage: closed")

	// ErrNotFound is returned when a slot is empty.
	ErrNotFound = errors.New("storage: not found")

	// ErrAlreadyExists is returned when writing a create-once slot that is occupied.
	ErrAlreadyExists = errors.New("storage: already exists")

	// ErrSizeMismatch is returned by a stateful compare-and-swap whose
	// expected, new and persisted values do not share one length.
	ErrSizeMismatch = errors.New("storage: size mismatch")

	// ErrContentMismatch is returned by a stateful compare-and-swap when the
	// persisted value differs from the expected value.
	ErrContentMismatch = errors.New("storage: content mismatch")

	// ErrInvalidPart is returned for a key part outside the defined slots.
	ErrInvalidPart = errors.New("storage: invalid key part")

	// ErrInvalidID is returned when a key name is invalid or empty.
	ErrInvalidID = errors.New("storage: invalid ID")
)

// IsContractError reports whether err is one of the contract signals a
// correct store raises for a caller-side fault, as opposed to an I/O,
// network or permission failure inside the backend.
func IsContractError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrSizeMismatch) ||
		errors.Is(err, ErrContentMismatch) ||
		errors.Is(err, ErrInvalidPart) ||
		errors.Is(err, ErrClosed)
}
